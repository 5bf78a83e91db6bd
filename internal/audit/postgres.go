package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/settlement/internal/ledger"
)

// PostgresLog stores audit entries in the audit_log table. The table has no
// UPDATE or DELETE path in this package.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog builds an audit log backed by PostgreSQL.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

const selectColumns = `SELECT id, actor_id, actor_role, action, subject_type, subject_id,
        before_status, after_status, notes, metadata, created_at FROM audit_log`

// Append inserts a new audit entry.
func (l *PostgresLog) Append(ctx context.Context, entry Entry) (Entry, error) {
	if err := entry.validate(); err != nil {
		return Entry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return Entry{}, err
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_log (id, actor_id, actor_role, action, subject_type, subject_id,
        before_status, after_status, notes, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.ActorID, entry.ActorRole, entry.Action, string(entry.SubjectType), entry.SubjectID,
		entry.BeforeStatus, entry.AfterStatus, entry.Notes, metadata, entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ListBySubject returns the entries about one subject, oldest first.
func (l *PostgresLog) ListBySubject(ctx context.Context, subjectType SubjectType, subjectID string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, selectColumns+` WHERE subject_type = $1 AND subject_id = $2 ORDER BY seq ASC`,
		string(subjectType), subjectID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// List returns entries newest first.
func (l *PostgresLog) List(ctx context.Context, page ledger.Page) ([]Entry, error) {
	page = page.Normalize()
	rows, err := l.db.Query(ctx, selectColumns+` ORDER BY seq DESC LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			subjectType string
			metadata    []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &subjectType, &e.SubjectID,
			&e.BeforeStatus, &e.AfterStatus, &e.Notes, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SubjectType = SubjectType(subjectType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, err
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
