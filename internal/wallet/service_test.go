package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/ledger"
)

func TestServiceCreateAndBalance(t *testing.T) {
	repo := NewMemoryRepository()
	led := ledger.NewInMemory()
	svc := NewService(repo, led)

	ctx := context.Background()
	ownerID := uuid.NewString()
	wallet, err := svc.Create(ctx, CreateInput{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if wallet.Currency != defaultCurrency {
		t.Fatalf("expected default currency, got %s", wallet.Currency)
	}

	fetched, err := svc.GetByOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.ID != wallet.ID {
		t.Fatalf("expected wallet ID %s, got %s", wallet.ID, fetched.ID)
	}

	balance, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 0 {
		t.Fatalf("expected zero balance for a fresh wallet, got %d", balance.Amount)
	}

	if err := ledger.SeedBalance(led, wallet.AccountCode, 2_500); err != nil {
		t.Fatalf("seed: %v", err)
	}

	balance, err = svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500 {
		t.Fatalf("expected balance 2500, got %d", balance.Amount)
	}

	stmt, err := svc.Entries(ctx, wallet.ID, ledger.Page{})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(stmt.Entries) != 1 || stmt.Entries[0].BalanceAfter != 2_500 {
		t.Fatalf("unexpected statement %+v", stmt.Entries)
	}
}

func TestServiceCreateOnePerOwner(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory())
	ctx := context.Background()
	ownerID := uuid.NewString()

	if _, err := svc.Create(ctx, CreateInput{OwnerID: ownerID}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: ownerID}); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected wallet exists, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: "not-a-uuid"}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected invalid owner, got %v", err)
	}
	if _, err := svc.Balance(ctx, uuid.NewString()); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestIDFromAccountCode(t *testing.T) {
	id := uuid.NewString()
	got, ok := IDFromAccountCode(AccountCode(id))
	if !ok || got != id {
		t.Fatalf("expected %s, got %q ok=%v", id, got, ok)
	}
	if _, ok := IDFromAccountCode(ledger.FeeSinkAccountCode); ok {
		t.Fatalf("fee sink must not map to a wallet")
	}
	if _, ok := IDFromAccountCode("wallet:"); ok {
		t.Fatalf("empty identifier must not map to a wallet")
	}
}
