package ledger_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/settlement/internal/infra"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/logging"
	"github.com/congo-pay/settlement/migrations"
)

// postgresPool connects to TEST_DATABASE_URL and applies the migrations. Tests
// using it are skipped when the variable is unset.
func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := infra.MigrateUp(url, migrations.FS, logging.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := infra.NewPostgresPool(context.Background(), url, infra.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func uniqueCode(prefix string) string {
	return prefix + ":" + uuid.NewString()
}

func TestPostgresLedger_IdempotentReplay(t *testing.T) {
	l := ledger.NewPostgresLedger(postgresPool(t))
	ctx := context.Background()
	a, b := uniqueCode("wallet"), uniqueCode("wallet")
	if err := ledger.SeedBalance(l, a, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.EnsureAccount(ctx, b, ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	key := uuid.NewString()
	group := ledger.Group{Reference: "p2p:" + key, IdempotencyKey: key, Entries: []ledger.Entry{
		{AccountCode: a, Delta: -300, Kind: ledger.KindTransferDebit},
		{AccountCode: b, Delta: 300, Kind: ledger.KindTransferCredit},
	}}
	first, err := l.ApplyEntries(ctx, group)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	again, err := l.ApplyEntries(ctx, group)
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if again.GroupID != first.GroupID || again.Sequence != first.Sequence || again.Balances[a] != 700 {
		t.Fatalf("replay differs: first=%+v again=%+v", first, again)
	}
	if bal, _ := l.Balance(ctx, a); bal != 700 {
		t.Fatalf("expected single debit, balance=%d", bal)
	}

	g, err := l.GroupByKey(ctx, key)
	if err != nil || g.ID != first.GroupID || len(g.Entries) != 2 {
		t.Fatalf("group by key: %+v %v", g, err)
	}
	if _, err := l.GroupByKey(ctx, uuid.NewString()); !errors.Is(err, ledger.ErrGroupNotFound) {
		t.Fatalf("expected group not found, got %v", err)
	}
}

func TestPostgresLedger_LockTimeoutIsConflict(t *testing.T) {
	pool := postgresPool(t)
	l := ledger.NewPostgresLedger(pool, ledger.WithLockTimeout(100*time.Millisecond))
	ctx := context.Background()
	a := uniqueCode("wallet")
	if err := ledger.SeedBalance(l, a, 500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck
	if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE code = $1 FOR UPDATE`, a); err != nil {
		t.Fatalf("hold lock: %v", err)
	}

	_, err = l.ApplyEntries(ctx, ledger.Group{Entries: []ledger.Entry{
		{AccountCode: a, Delta: -100, Kind: ledger.KindWithdrawalDebit},
	}})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if bal, _ := l.Balance(ctx, a); bal != 500 {
		t.Fatalf("expected untouched balance, got %d", bal)
	}
}

func TestPostgresLedger_NegativeSnapshotIsInsufficientFunds(t *testing.T) {
	l := ledger.NewPostgresLedger(postgresPool(t))
	ctx := context.Background()
	a, b := uniqueCode("wallet"), uniqueCode("wallet")
	if err := ledger.SeedBalance(l, a, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.EnsureAccount(ctx, b, ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	_, err := l.ApplyEntries(ctx, ledger.Group{Entries: []ledger.Entry{
		{AccountCode: a, Delta: -150, Kind: ledger.KindTransferDebit},
		{AccountCode: b, Delta: 150, Kind: ledger.KindTransferCredit},
		{AccountCode: b, Delta: -150, Kind: ledger.KindTransferDebit},
		{AccountCode: a, Delta: 150, Kind: ledger.KindTransferCredit},
	}})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if bal, _ := l.Balance(ctx, a); bal != 100 {
		t.Fatalf("expected untouched balance, got %d", bal)
	}
}
