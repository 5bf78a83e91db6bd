package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "lock timeout", err: &pgconn.PgError{Code: pgLockNotAvailable, Message: "canceling statement due to lock timeout"}, want: ErrConflict},
		{name: "serialization failure", err: &pgconn.PgError{Code: pgSerializationFailure}, want: ErrConflict},
		{name: "deadlock", err: &pgconn.PgError{Code: pgDeadlockDetected}, want: ErrConflict},
		{name: "statement canceled", err: &pgconn.PgError{Code: pgQueryCanceled}, want: ErrConflict},
		{name: "wrapped lock timeout", err: fmt.Errorf("insert entry: %w", &pgconn.PgError{Code: pgLockNotAvailable}), want: ErrConflict},
		{name: "negative snapshot", err: &pgconn.PgError{Code: pgCheckViolation, ConstraintName: "entries_balance_after_check"}, want: ErrInsufficientFunds},
		{name: "context deadline", err: context.DeadlineExceeded, want: ErrConflict},
		{name: "context canceled", err: fmt.Errorf("begin: %w", context.Canceled), want: ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapPgError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	other := &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	got := mapPgError(other)
	if errors.Is(got, ErrConflict) || errors.Is(got, ErrInsufficientFunds) {
		t.Fatalf("unrelated error must pass through, got %v", got)
	}
	var pgErr *pgconn.PgError
	if !errors.As(got, &pgErr) || pgErr.Code != "42P01" {
		t.Fatalf("expected original pg error, got %v", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: idempotencyKeyIndexName}) {
		t.Fatalf("idempotency key violation not recognized")
	}
	if isUniqueViolation(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "accounts_code_key"}) {
		t.Fatalf("other unique constraints must not count as replays")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain errors are not unique violations")
	}
}

func TestLoadReceiptReplaysCommittedGroup(t *testing.T) {
	groupID := uuid.New()
	committed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	q := &stubQuerier{
		row: stubRow{values: []any{groupID, int64(42), committed}},
		rows: [][]any{
			{"wallet:a", int64(700)},
			{"wallet:b", int64(294)},
			{FeeSinkAccountCode, int64(6)},
		},
	}

	res, found, err := loadReceipt(context.Background(), q, "retry-1")
	if err != nil || !found {
		t.Fatalf("expected replayed receipt, found=%v err=%v", found, err)
	}
	if q.lastArg != "retry-1" {
		t.Fatalf("expected lookup by key, got %v", q.lastArg)
	}
	if res.GroupID != groupID.String() || res.Sequence != 42 || !res.Replayed {
		t.Fatalf("unexpected receipt %+v", res)
	}
	if !res.CommittedAt.Equal(committed) || res.CommittedAt.Location() != time.UTC {
		t.Fatalf("expected UTC commit time, got %v", res.CommittedAt)
	}
	want := map[string]int64{"wallet:a": 700, "wallet:b": 294, FeeSinkAccountCode: 6}
	for code, balance := range want {
		if res.Balances[code] != balance {
			t.Fatalf("%s: expected %d, got %d", code, balance, res.Balances[code])
		}
	}
}

func TestLoadReceiptUnknownKey(t *testing.T) {
	q := &stubQuerier{row: stubRow{err: pgx.ErrNoRows}}
	_, found, err := loadReceipt(context.Background(), q, "fresh")
	if err != nil || found {
		t.Fatalf("expected no receipt, found=%v err=%v", found, err)
	}

	boom := errors.New("connection reset")
	q = &stubQuerier{row: stubRow{err: boom}}
	if _, _, err := loadReceipt(context.Background(), q, "fresh"); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

type stubQuerier struct {
	row     stubRow
	rows    [][]any
	lastArg any
}

func (q *stubQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("exec not supported")
}

func (q *stubQuerier) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return &stubRows{values: q.rows, pos: -1}, nil
}

func (q *stubQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if len(args) > 0 {
		q.lastArg = args[0]
	}
	return q.row
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type stubRows struct {
	values [][]any
	pos    int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.pos++
	return r.pos < len(r.values)
}

func (r *stubRows) Scan(dest ...any) error { return assign(dest, r.values[r.pos]) }

func (r *stubRows) Values() ([]any, error) { return r.values[r.pos], nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
