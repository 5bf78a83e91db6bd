package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/ledger"
)

const (
	statusActive    = "active"
	defaultCurrency = "XAF"
)

var (
	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = apperr.New(apperr.KindNotFound, "wallet_not_found", "wallet not found")
	// ErrWalletExists is returned when the owner already holds a wallet.
	ErrWalletExists = apperr.New(apperr.KindState, "wallet_exists", "wallet exists")
	// ErrInvalidOwner rejects owner identifiers that are not UUIDs.
	ErrInvalidOwner = apperr.New(apperr.KindValidation, "invalid_owner", "invalid owner id")
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo   Repository
	ledger ledger.Store
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Store) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions a wallet and its ledger account. An owner holds at most
// one wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, ErrInvalidOwner
	}
	if _, err := s.repo.GetByOwner(ctx, input.OwnerID); err == nil {
		return Wallet{}, ErrWalletExists
	}

	walletID := uuid.New().String()
	accountCode := AccountCode(walletID)

	if err := s.ledger.EnsureAccount(ctx, accountCode, input.OwnerID); err != nil {
		return Wallet{}, err
	}

	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	wallet := Wallet{
		ID:          walletID,
		OwnerID:     input.OwnerID,
		AccountCode: accountCode,
		Currency:    currency,
		Status:      statusActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the wallet held by ownerID.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	account, err := s.ledger.Account(ctx, wallet.AccountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		WalletID: wallet.ID,
		Amount:   account.Balance,
		Currency: wallet.Currency,
		Version:  account.Version,
		AsOf:     time.Now().UTC(),
	}, nil
}

// Entries lists the wallet's journal entries in commit order.
func (s *Service) Entries(ctx context.Context, id string, page ledger.Page) (Statement, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Statement{}, err
	}
	page = page.Normalize()
	entries, err := s.ledger.Entries(ctx, wallet.AccountCode, page)
	if err != nil {
		return Statement{}, err
	}
	return Statement{WalletID: wallet.ID, Entries: entries, Page: page}, nil
}
