package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/audit"
	"github.com/congo-pay/settlement/internal/fees"
	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/notification"
	"github.com/congo-pay/settlement/internal/wallet"
)

const (
	maxNoteLength = 140
	referenceP2P  = "p2p"
)

var (
	ErrInvalidAmount       = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be positive")
	ErrAmountBelowFee      = apperr.New(apperr.KindValidation, "amount_below_fee", "amount does not cover the minimum fee")
	ErrInvalidNote         = apperr.New(apperr.KindValidation, "invalid_note", "note is too long")
	ErrSenderNotFound      = apperr.New(apperr.KindNotFound, "sender_not_found", "sender wallet not found")
	ErrRecipientNotFound   = apperr.New(apperr.KindNotFound, "recipient_not_found", "recipient not found")
	ErrSelfTransfer        = apperr.New(apperr.KindValidation, "self_transfer", "cannot transfer to own wallet")
	ErrInsufficientBalance = apperr.New(apperr.KindResource, "insufficient_balance", "insufficient balance")
	ErrConflict            = apperr.New(apperr.KindState, "transfer_conflict", "transfer conflicted with a concurrent operation, retry")
	ErrTransferNotFound    = apperr.New(apperr.KindNotFound, "transfer_not_found", "transfer not found")
	ErrForbidden           = apperr.New(apperr.KindForbidden, "forbidden", "admin role required")
	ErrReasonRequired      = apperr.New(apperr.KindValidation, "reason_required", "a reversal needs a reason")
)

// Directory resolves a phone number to a registered user.
type Directory interface {
	ResolvePhone(ctx context.Context, phone string) (identity.User, error)
}

// Config carries the fee settings applied to transfers.
type Config struct {
	Fees           fees.Policy
	FeeSinkAccount string
}

// Service moves funds between wallets through the ledger.
type Service struct {
	ledger    ledger.Store
	wallets   *wallet.Service
	directory Directory
	audit     audit.Log
	notifier  *notification.Dispatcher
	cfg       Config
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(store ledger.Store, wallets *wallet.Service, directory Directory, auditLog audit.Log, notifier *notification.Dispatcher, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:    store,
		wallets:   wallets,
		directory: directory,
		audit:     auditLog,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// TransferInput captures the data needed to move funds to a phone number.
type TransferInput struct {
	SenderID       string
	RecipientPhone string
	Amount         int64
	Note           string
	IdempotencyKey string
}

// TransferResult describes the ledger outcome of a transfer.
type TransferResult struct {
	TransactionID     string
	TransactionNumber string
	Amount            int64
	Fee               int64
	Net               int64
	SenderBalance     int64
	RecipientWalletID string
	CompletedAt       time.Time
	Replayed          bool
}

// Transfer debits the sender, credits the recipient with the net amount and
// the fee sink with the fee, all in one ledger group. Retrying with the same
// idempotency key returns the original result without moving funds again.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if s.cfg.FeeSinkAccount != "" && !s.cfg.Fees.Covers(input.Amount) {
		return TransferResult{}, ErrAmountBelowFee
	}
	if utf8.RuneCountInString(input.Note) > maxNoteLength {
		return TransferResult{}, ErrInvalidNote
	}

	from, err := s.wallets.GetByOwner(ctx, input.SenderID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return TransferResult{}, ErrSenderNotFound
		}
		return TransferResult{}, err
	}

	recipient, err := s.directory.ResolvePhone(ctx, input.RecipientPhone)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return TransferResult{}, ErrRecipientNotFound
		}
		return TransferResult{}, err
	}
	to, err := s.wallets.GetByOwner(ctx, recipient.ID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return TransferResult{}, ErrRecipientNotFound
		}
		return TransferResult{}, err
	}
	if to.ID == from.ID {
		return TransferResult{}, ErrSelfTransfer
	}

	charge := fees.Result{Fee: 0, Net: input.Amount}
	if s.cfg.FeeSinkAccount != "" {
		charge = fees.Calculate(input.Amount, s.cfg.Fees)
	}

	key := input.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	entries := []ledger.Entry{{AccountCode: from.AccountCode, Delta: -input.Amount, Kind: ledger.KindTransferDebit, Note: input.Note}}
	if charge.Net > 0 {
		entries = append(entries, ledger.Entry{AccountCode: to.AccountCode, Delta: charge.Net, Kind: ledger.KindTransferCredit, Note: input.Note})
	}
	if charge.Fee > 0 {
		entries = append(entries, ledger.Entry{AccountCode: s.cfg.FeeSinkAccount, Delta: charge.Fee, Kind: ledger.KindFee})
	}

	receipt, err := s.ledger.ApplyEntries(ctx, ledger.Group{
		Reference:      referenceP2P,
		IdempotencyKey: idempotencyKey(from.ID, key),
		Entries:        entries,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return s.replayed(ctx, receipt, from)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return TransferResult{}, ErrInsufficientBalance
	case errors.Is(err, ledger.ErrConflict):
		return TransferResult{}, ErrConflict
	default:
		return TransferResult{}, err
	}

	result := TransferResult{
		TransactionID:     receipt.GroupID,
		TransactionNumber: TransactionNumber(receipt.CommittedAt, receipt.Sequence),
		Amount:            input.Amount,
		Fee:               charge.Fee,
		Net:               charge.Net,
		SenderBalance:     receipt.Balances[from.AccountCode],
		RecipientWalletID: to.ID,
		CompletedAt:       receipt.CommittedAt,
	}

	s.record(ctx, input, result)
	s.notifier.Dispatch(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: to.OwnerID,
		Body:        fmt.Sprintf("You received %d from %s", result.Net, from.OwnerID),
		Data:        map[string]string{"transaction_number": result.TransactionNumber},
	})

	return result, nil
}

// ReverseInput identifies the transfer to undo and who undoes it.
type ReverseInput struct {
	TransactionID string
	Resolver      identity.Principal
	Reason        string
}

// ReverseResult describes the compensating group.
type ReverseResult struct {
	ReversalID    string
	TransactionID string
	CompletedAt   time.Time
	Replayed      bool
}

// Reverse books a compensating group that negates a completed transfer. Only
// admins may reverse, and the recipient must still hold the credited funds.
// Reversing twice returns the first reversal.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (ReverseResult, error) {
	if !input.Resolver.IsAdmin() {
		return ReverseResult{}, ErrForbidden
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return ReverseResult{}, ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > maxNoteLength {
		return ReverseResult{}, ErrInvalidNote
	}

	original, err := s.ledger.Group(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrGroupNotFound) {
			return ReverseResult{}, ErrTransferNotFound
		}
		return ReverseResult{}, err
	}
	if original.Reference != referenceP2P {
		return ReverseResult{}, ErrTransferNotFound
	}

	receipt, err := ledger.Reverse(ctx, s.ledger, original.ID, reason)
	replayed := false
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		replayed = true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ReverseResult{}, ErrInsufficientBalance
	case errors.Is(err, ledger.ErrConflict):
		return ReverseResult{}, ErrConflict
	default:
		return ReverseResult{}, err
	}

	result := ReverseResult{
		ReversalID:    receipt.GroupID,
		TransactionID: original.ID,
		CompletedAt:   receipt.CommittedAt,
		Replayed:      replayed,
	}
	if replayed {
		return result, nil
	}

	if s.audit != nil {
		if _, err := s.audit.Append(context.WithoutCancel(ctx), audit.Entry{
			ActorID:      input.Resolver.UserID,
			ActorRole:    input.Resolver.Role,
			Action:       audit.ActionTransferReversed,
			SubjectType:  audit.SubjectTransfer,
			SubjectID:    original.ID,
			BeforeStatus: "completed",
			AfterStatus:  "reversed",
			Notes:        reason,
			Metadata:     map[string]string{"reversal_id": result.ReversalID},
		}); err != nil {
			s.logger.Error("audit reversal", "transaction_id", original.ID, "error", err)
		}
	}
	s.logger.Info("transfer reversed", "transaction_id", original.ID, "reversal_id", result.ReversalID, "resolver", input.Resolver.UserID)
	return result, nil
}

// History returns the transfer legs of the owner's journal in commit order.
// Paging applies to the whole journal; deposits, withdrawals and seeds are
// dropped from the page.
func (s *Service) History(ctx context.Context, ownerID string, page ledger.Page) ([]ledger.Entry, error) {
	w, err := s.wallets.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, err
	}
	stmt, err := s.wallets.Entries(ctx, w.ID, page)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, len(stmt.Entries))
	for _, e := range stmt.Entries {
		switch e.Kind {
		case ledger.KindTransferDebit, ledger.KindTransferCredit, ledger.KindReversal:
			out = append(out, e)
		}
	}
	return out, nil
}

// TransactionNumber formats the human-facing transfer number.
func TransactionNumber(committedAt time.Time, sequence int64) string {
	return "TRX-" + committedAt.UTC().Format("20060102") + "-" + fmt.Sprintf("%08d", sequence)
}

func idempotencyKey(walletID, key string) string {
	return "transfer:" + walletID + ":" + key
}

// replayed rebuilds the original result from the committed group.
func (s *Service) replayed(ctx context.Context, receipt ledger.Receipt, from wallet.Wallet) (TransferResult, error) {
	group, err := s.ledger.Group(ctx, receipt.GroupID)
	if err != nil {
		return TransferResult{}, err
	}
	result := TransferResult{
		TransactionID:     receipt.GroupID,
		TransactionNumber: TransactionNumber(receipt.CommittedAt, receipt.Sequence),
		SenderBalance:     receipt.Balances[from.AccountCode],
		CompletedAt:       receipt.CommittedAt,
		Replayed:          true,
	}
	for _, e := range group.Entries {
		switch e.Kind {
		case ledger.KindTransferDebit:
			result.Amount = -e.Delta
		case ledger.KindTransferCredit:
			result.Net = e.Delta
			if id, ok := wallet.IDFromAccountCode(e.AccountCode); ok {
				result.RecipientWalletID = id
			}
		case ledger.KindFee:
			result.Fee = e.Delta
		}
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, input TransferInput, result TransferResult) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Append(context.WithoutCancel(ctx), audit.Entry{
		ActorID:     input.SenderID,
		ActorRole:   identity.RoleUser,
		Action:      audit.ActionTransferCompleted,
		SubjectType: audit.SubjectTransfer,
		SubjectID:   result.TransactionID,
		AfterStatus: "completed",
		Metadata: map[string]string{
			"transaction_number":  result.TransactionNumber,
			"recipient_wallet_id": result.RecipientWalletID,
			"amount":              strconv.FormatInt(result.Amount, 10),
			"fee":                 strconv.FormatInt(result.Fee, 10),
		},
	})
	if err != nil {
		s.logger.Error("audit transfer", "transaction_id", result.TransactionID, "error", err)
	}
}
