package funding

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/settlement/internal/ledger"
)

// Repository persists funding requests. Resolve is a compare-and-set on the
// pending status.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	ListByOwner(ctx context.Context, ownerID string, page ledger.Page) ([]Request, error)
	ListByStatus(ctx context.Context, status Status, page ledger.Page) ([]Request, error)
	Resolve(ctx context.Context, req Request) error
}

// PostgresRepository stores funding requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectRequest = `SELECT id, owner_id, wallet_id, direction, method, amount, fee, net, evidence_ref,
        status, resolver_id, resolution_notes, resolved_at, ledger_group_id, created_at, updated_at
        FROM funding_requests`

// Create inserts a pending request.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	_, err := r.db.Exec(ctx, `INSERT INTO funding_requests (id, owner_id, wallet_id, direction, method, amount, fee, net,
        evidence_ref, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.OwnerID, req.WalletID, string(req.Direction), string(req.Method), req.Amount, req.Fee, req.Net,
		req.EvidenceRef, string(req.Status), req.CreatedAt, req.UpdatedAt)
	return err
}

// Get fetches a request by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	rows, err := r.db.Query(ctx, selectRequest+` WHERE id = $1`, id)
	if err != nil {
		return Request{}, err
	}
	out, err := scanRequests(rows)
	if err != nil {
		return Request{}, err
	}
	if len(out) == 0 {
		return Request{}, ErrNotFound
	}
	return out[0], nil
}

// ListByOwner returns the owner's requests newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, page ledger.Page) ([]Request, error) {
	page = page.Normalize()
	rows, err := r.db.Query(ctx, selectRequest+` WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

// ListByStatus returns requests in status, oldest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, page ledger.Page) ([]Request, error) {
	page = page.Normalize()
	rows, err := r.db.Query(ctx, selectRequest+` WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		string(status), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

// Resolve moves a pending request to its terminal status.
func (r *PostgresRepository) Resolve(ctx context.Context, req Request) error {
	tag, err := r.db.Exec(ctx, `UPDATE funding_requests
        SET status = $2, resolver_id = $3, resolution_notes = $4, resolved_at = $5, ledger_group_id = $6,
            fee = $7, net = $8, updated_at = $9
        WHERE id = $1 AND status = 'pending'`,
		req.ID, string(req.Status), req.ResolverID, req.ResolutionNotes, req.ResolvedAt, nullable(req.LedgerGroupID),
		req.Fee, req.Net, req.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, req.ID); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanRequests(rows pgx.Rows) ([]Request, error) {
	defer rows.Close()
	var out []Request
	for rows.Next() {
		var (
			req        Request
			direction  string
			method     string
			status     string
			resolver   *string
			notes      *string
			groupID    *string
			resolvedAt *time.Time
		)
		if err := rows.Scan(&req.ID, &req.OwnerID, &req.WalletID, &direction, &method, &req.Amount, &req.Fee, &req.Net,
			&req.EvidenceRef, &status, &resolver, &notes, &resolvedAt, &groupID, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Direction = Direction(direction)
		req.Method = Method(method)
		req.Status = Status(status)
		if resolver != nil {
			req.ResolverID = *resolver
		}
		if notes != nil {
			req.ResolutionNotes = *notes
		}
		if groupID != nil {
			req.LedgerGroupID = *groupID
		}
		if resolvedAt != nil {
			t := resolvedAt.UTC()
			req.ResolvedAt = &t
		}
		req.CreatedAt = req.CreatedAt.UTC()
		req.UpdatedAt = req.UpdatedAt.UTC()
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
