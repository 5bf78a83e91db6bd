package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/settlement/internal/events"
)

const (
	pgUniqueViolation       = "23505"
	pgLockNotAvailable      = "55P03"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgQueryCanceled         = "57014"
	pgCheckViolation        = "23514"
	idempotencyKeyIndexName = "ledger_groups_idempotency_key_key"
)

// PostgresLedger persists accounts, groups and entries in PostgreSQL. Balances
// are materialized on the accounts row and only changed inside ApplyEntries.
type PostgresLedger struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
	publisher   events.Publisher
	logger      *slog.Logger
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool, opts ...Option) *PostgresLedger {
	o := buildOptions(opts)
	return &PostgresLedger{db: db, lockTimeout: o.lockTimeout, publisher: o.publisher, logger: o.logger}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code, owner string) error {
	if code == "" {
		return ErrInvalidEntry
	}
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code, owner) VALUES ($1, $2, $3)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code, owner)
	return err
}

// Account fetches the materialized account row.
func (l *PostgresLedger) Account(ctx context.Context, code string) (Account, error) {
	row := l.db.QueryRow(ctx, `SELECT code, owner, balance, version, created_at, updated_at
        FROM accounts WHERE code = $1`, code)
	var acc Account
	if err := row.Scan(&acc.Code, &acc.Owner, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return acc, nil
}

// Balance returns the account balance; zero until the first entry.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	acc, err := l.Account(ctx, code)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// ApplyEntries commits a group in one database transaction. Account rows are
// locked FOR UPDATE one by one in ascending code order.
func (l *PostgresLedger) ApplyEntries(ctx context.Context, group Group) (Receipt, error) {
	if group.IdempotencyKey != "" {
		if res, found, err := loadReceipt(ctx, l.db, group.IdempotencyKey); err != nil {
			return Receipt{}, err
		} else if found {
			return res, ErrDuplicateTransaction
		}
	}

	prepared, codes, deltas, err := prepare(group, time.Now().UTC())
	if err != nil {
		return Receipt{}, err
	}

	receipt, changes, err := l.commit(ctx, prepared, group.IdempotencyKey, codes, deltas)
	if err != nil {
		if isUniqueViolation(err) && group.IdempotencyKey != "" {
			res, found, loadErr := loadReceipt(context.WithoutCancel(ctx), l.db, group.IdempotencyKey)
			if loadErr == nil && found {
				return res, ErrDuplicateTransaction
			}
		}
		return Receipt{}, mapPgError(err)
	}

	publish(ctx, l.publisher, l.logger, changes)
	return receipt, nil
}

func (l *PostgresLedger) commit(ctx context.Context, group Group, key string, codes []string, deltas map[string]int64) (Receipt, []events.BalanceChanged, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Receipt{}, nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", l.lockTimeout.Milliseconds())); err != nil {
		return Receipt{}, nil, err
	}

	accounts := make(map[string]Account, len(codes))
	for _, code := range codes {
		var acc Account
		err := tx.QueryRow(ctx, `SELECT code, owner, balance, version FROM accounts WHERE code = $1 FOR UPDATE`, code).
			Scan(&acc.Code, &acc.Owner, &acc.Balance, &acc.Version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Receipt{}, nil, ErrAccountNotFound
			}
			return Receipt{}, nil, err
		}
		if acc.Balance+deltas[code] < 0 {
			return Receipt{}, nil, ErrInsufficientFunds
		}
		accounts[code] = acc
	}

	groupID, err := uuid.Parse(group.ID)
	if err != nil {
		return Receipt{}, nil, fmt.Errorf("group id: %w", err)
	}
	var idemKey *string
	if key != "" {
		idemKey = &key
	}
	now := group.Entries[0].CreatedAt
	var seq int64
	if err := tx.QueryRow(ctx, `INSERT INTO ledger_groups (id, reference, idempotency_key, committed_at)
        VALUES ($1, $2, $3, $4) RETURNING seq`, groupID, group.Reference, idemKey, now).Scan(&seq); err != nil {
		return Receipt{}, nil, err
	}

	running := make(map[string]int64, len(accounts))
	for code, acc := range accounts {
		running[code] = acc.Balance
	}
	for i, e := range group.Entries {
		running[e.AccountCode] += e.Delta
		entryID, err := uuid.Parse(e.ID)
		if err != nil {
			return Receipt{}, nil, fmt.Errorf("entry id: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO entries (id, group_id, position, account_code, delta, balance_after, kind, reference, note, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entryID, groupID, i, e.AccountCode, e.Delta, running[e.AccountCode], string(e.Kind), e.Reference, e.Note, now); err != nil {
			return Receipt{}, nil, err
		}
	}

	balances := make(map[string]int64, len(accounts))
	changes := make([]events.BalanceChanged, 0, len(accounts))
	for _, code := range codes {
		acc := accounts[code]
		cmd, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
            WHERE code = $3 AND version = $4`, running[code], now, code, acc.Version)
		if err != nil {
			return Receipt{}, nil, err
		}
		if cmd.RowsAffected() == 0 {
			return Receipt{}, nil, ErrConflict
		}
		balances[code] = running[code]
		changes = append(changes, events.BalanceChanged{
			Kind:        events.KindBalanceChanged,
			AccountCode: code,
			Owner:       acc.Owner,
			GroupID:     group.ID,
			Reference:   group.Reference,
			Delta:       deltas[code],
			Balance:     running[code],
			Version:     acc.Version + 1,
			OccurredAt:  now,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, nil, err
	}
	return Receipt{GroupID: group.ID, Sequence: seq, Balances: balances, CommittedAt: now}, changes, nil
}

// Entries lists an account's entries in commit order.
func (l *PostgresLedger) Entries(ctx context.Context, code string, page Page) ([]Entry, error) {
	page = page.Normalize()
	if _, err := l.Account(ctx, code); err != nil {
		return nil, err
	}
	rows, err := l.db.Query(ctx, `SELECT e.id, e.group_id, e.account_code, e.delta, e.balance_after, e.kind, e.reference, e.note, e.created_at
        FROM entries e
        INNER JOIN ledger_groups g ON g.id = e.group_id
        WHERE e.account_code = $1
        ORDER BY g.seq, e.position
        LIMIT $2 OFFSET $3`, code, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Group loads a committed group with its entries.
func (l *PostgresLedger) Group(ctx context.Context, id string) (Group, error) {
	groupID, err := uuid.Parse(id)
	if err != nil {
		return Group{}, ErrGroupNotFound
	}
	var g Group
	var key *string
	if err := l.db.QueryRow(ctx, `SELECT reference, idempotency_key FROM ledger_groups WHERE id = $1`, groupID).Scan(&g.Reference, &key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	g.ID = id
	if key != nil {
		g.IdempotencyKey = *key
	}
	rows, err := l.db.Query(ctx, `SELECT id, group_id, account_code, delta, balance_after, kind, reference, note, created_at
        FROM entries WHERE group_id = $1 ORDER BY position`, groupID)
	if err != nil {
		return Group{}, err
	}
	if g.Entries, err = scanEntries(rows); err != nil {
		return Group{}, err
	}
	return g, nil
}

// GroupByKey loads the group committed under an idempotency key.
func (l *PostgresLedger) GroupByKey(ctx context.Context, key string) (Group, error) {
	if key == "" {
		return Group{}, ErrGroupNotFound
	}
	var groupID uuid.UUID
	if err := l.db.QueryRow(ctx, `SELECT id FROM ledger_groups WHERE idempotency_key = $1`, key).Scan(&groupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	return l.Group(ctx, groupID.String())
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			id      uuid.UUID
			groupID uuid.UUID
			kind    string
		)
		if err := rows.Scan(&id, &groupID, &e.AccountCode, &e.Delta, &e.BalanceAfter, &kind, &e.Reference, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.GroupID = groupID.String()
		e.Kind = EntryKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// loadReceipt rebuilds the receipt of an already committed idempotency key from
// the balance_after snapshots of its entries.
func loadReceipt(ctx context.Context, q querier, key string) (Receipt, bool, error) {
	var (
		groupID     uuid.UUID
		res         Receipt
		committedAt time.Time
	)
	err := q.QueryRow(ctx, `SELECT id, seq, committed_at FROM ledger_groups WHERE idempotency_key = $1`, key).
		Scan(&groupID, &res.Sequence, &committedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, false, nil
		}
		return Receipt{}, false, err
	}
	rows, err := q.Query(ctx, `SELECT account_code, balance_after FROM entries WHERE group_id = $1 ORDER BY position`, groupID)
	if err != nil {
		return Receipt{}, false, err
	}
	defer rows.Close()
	res.Balances = make(map[string]int64)
	for rows.Next() {
		var (
			code    string
			balance int64
		)
		if err := rows.Scan(&code, &balance); err != nil {
			return Receipt{}, false, err
		}
		res.Balances[code] = balance
	}
	if err := rows.Err(); err != nil {
		return Receipt{}, false, err
	}
	res.GroupID = groupID.String()
	res.CommittedAt = committedAt.UTC()
	res.Replayed = true
	return res, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == idempotencyKeyIndexName
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
