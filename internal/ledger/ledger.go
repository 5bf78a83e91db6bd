package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/apperr"
)

var (
	// ErrInsufficientFunds occurs when a group would leave any account with a
	// negative balance.
	ErrInsufficientFunds = apperr.New(apperr.KindResource, "insufficient_funds", "insufficient funds")

	// ErrAccountNotFound indicates an entry references an unknown account code.
	ErrAccountNotFound = apperr.New(apperr.KindNotFound, "account_not_found", "account not found")

	// ErrConflict is returned when the account locks could not be acquired in
	// time or a concurrent writer won the race. The caller may retry.
	ErrConflict = apperr.New(apperr.KindState, "conflict", "ledger conflict, retry later")

	// ErrDuplicateTransaction indicates the group's idempotency key was already
	// committed. The original receipt is returned alongside it.
	ErrDuplicateTransaction = apperr.New(apperr.KindState, "duplicate_transaction", "duplicate transaction")

	// ErrEmptyGroup rejects groups without entries.
	ErrEmptyGroup = apperr.New(apperr.KindValidation, "empty_group", "journal group has no entries")

	// ErrInvalidEntry rejects entries with a zero delta, unknown kind or missing account.
	ErrInvalidEntry = apperr.New(apperr.KindValidation, "invalid_entry", "invalid journal entry")

	// ErrGroupNotFound is returned when looking up an unknown group.
	ErrGroupNotFound = apperr.New(apperr.KindNotFound, "group_not_found", "journal group not found")
)

// FeeSinkAccountCode is the default account collecting fees.
const FeeSinkAccountCode = "fees:collected"

// EntryKind classifies a journal entry.
type EntryKind string

const (
	KindTransferDebit   EntryKind = "transfer_debit"
	KindTransferCredit  EntryKind = "transfer_credit"
	KindDepositCredit   EntryKind = "deposit_credit"
	KindWithdrawalDebit EntryKind = "withdrawal_debit"
	KindFee             EntryKind = "fee"
	KindReversal        EntryKind = "reversal"
)

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindTransferDebit, KindTransferCredit, KindDepositCredit, KindWithdrawalDebit, KindFee, KindReversal:
		return true
	}
	return false
}

// Account is the balance holder. Balance changes only through committed entries.
type Account struct {
	Code      string
	Owner     string
	Balance   int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one immutable signed mutation of an account.
type Entry struct {
	ID           string
	GroupID      string
	AccountCode  string
	Delta        int64
	BalanceAfter int64
	Kind         EntryKind
	Reference    string
	Note         string
	CreatedAt    time.Time
}

// Group is a set of entries committed together or not at all.
type Group struct {
	ID             string
	Reference      string
	IdempotencyKey string
	Entries        []Entry
}

// Receipt describes a committed group.
type Receipt struct {
	GroupID     string
	Sequence    int64
	Balances    map[string]int64
	CommittedAt time.Time
	Replayed    bool
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Store defines the contract implemented by ledger backends (in-memory, Postgres).
// ApplyEntries is the only way to change a balance.
type Store interface {
	EnsureAccount(ctx context.Context, code, owner string) error
	Account(ctx context.Context, code string) (Account, error)
	Balance(ctx context.Context, code string) (int64, error)
	ApplyEntries(ctx context.Context, group Group) (Receipt, error)
	Entries(ctx context.Context, code string, page Page) ([]Entry, error)
	Group(ctx context.Context, id string) (Group, error)
	GroupByKey(ctx context.Context, key string) (Group, error)
}

// prepare validates a group, fills identifiers and timestamps, and returns the
// distinct account codes in lock order together with the net delta per account.
func prepare(group Group, now time.Time) (Group, []string, map[string]int64, error) {
	if len(group.Entries) == 0 {
		return Group{}, nil, nil, ErrEmptyGroup
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	entries := make([]Entry, len(group.Entries))
	deltas := make(map[string]int64, len(group.Entries))
	for i, e := range group.Entries {
		if e.AccountCode == "" || e.Delta == 0 || !e.Kind.Valid() {
			return Group{}, nil, nil, fmt.Errorf("entry %d: %w", i, ErrInvalidEntry)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Reference == "" {
			e.Reference = group.Reference
		}
		e.GroupID = group.ID
		e.CreatedAt = now
		entries[i] = e
		deltas[e.AccountCode] += e.Delta
	}
	group.Entries = entries

	codes := make([]string, 0, len(deltas))
	for code := range deltas {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return group, codes, deltas, nil
}

// Reverse appends a compensating group that negates every entry of a committed
// group. It is idempotent per original group and obeys the non-negative rule.
func Reverse(ctx context.Context, store Store, groupID, reason string) (Receipt, error) {
	original, err := store.Group(ctx, groupID)
	if err != nil {
		return Receipt{}, err
	}
	compensating := Group{
		Reference:      "reversal:" + groupID,
		IdempotencyKey: "reversal:" + groupID,
		Entries:        make([]Entry, 0, len(original.Entries)),
	}
	for _, e := range original.Entries {
		compensating.Entries = append(compensating.Entries, Entry{
			AccountCode: e.AccountCode,
			Delta:       -e.Delta,
			Kind:        KindReversal,
			Note:        reason,
		})
	}
	return store.ApplyEntries(ctx, compensating)
}
