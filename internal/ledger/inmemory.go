package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/congo-pay/settlement/internal/events"
)

const defaultLockTimeout = 2 * time.Second

type memAccount struct {
	lock  chan struct{}
	state Account
}

type inMemoryLedger struct {
	mu          sync.RWMutex
	accounts    map[string]*memAccount
	journal     map[string][]Entry
	groups      map[string]Group
	receipts    map[string]Receipt
	seq         int64
	lockTimeout time.Duration
	publisher   events.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a ledger backend.
type Option func(*options)

type options struct {
	lockTimeout time.Duration
	publisher   events.Publisher
	logger      *slog.Logger
}

// WithLockTimeout bounds how long ApplyEntries waits for account locks.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithPublisher receives one change event per touched account after each commit.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithLogger sets the logger used for post-commit side effects.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{lockTimeout: defaultLockTimeout, publisher: events.Nop{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.publisher == nil {
		o.publisher = events.Nop{}
	}
	return o
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for development and tests.
func NewInMemory(opts ...Option) Store {
	o := buildOptions(opts)
	return &inMemoryLedger{
		accounts:    make(map[string]*memAccount),
		journal:     make(map[string][]Entry),
		groups:      make(map[string]Group),
		receipts:    make(map[string]Receipt),
		lockTimeout: o.lockTimeout,
		publisher:   o.publisher,
		logger:      o.logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code, owner string) error {
	if code == "" {
		return ErrInvalidEntry
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[code]; !exists {
		now := l.now()
		l.accounts[code] = &memAccount{
			lock:  make(chan struct{}, 1),
			state: Account{Code: code, Owner: owner, CreatedAt: now, UpdatedAt: now},
		}
	}
	return nil
}

func (l *inMemoryLedger) Account(_ context.Context, code string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, exists := l.accounts[code]
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return acc.state, nil
}

func (l *inMemoryLedger) Balance(ctx context.Context, code string) (int64, error) {
	acc, err := l.Account(ctx, code)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (l *inMemoryLedger) ApplyEntries(ctx context.Context, group Group) (Receipt, error) {
	if group.IdempotencyKey != "" {
		if res, ok := l.replay(group.IdempotencyKey); ok {
			return res, ErrDuplicateTransaction
		}
	}

	prepared, codes, deltas, err := prepare(group, l.now())
	if err != nil {
		return Receipt{}, err
	}

	accounts := make([]*memAccount, 0, len(codes))
	l.mu.RLock()
	for _, code := range codes {
		acc, ok := l.accounts[code]
		if !ok {
			l.mu.RUnlock()
			return Receipt{}, ErrAccountNotFound
		}
		accounts = append(accounts, acc)
	}
	l.mu.RUnlock()

	// Locks are taken in ascending code order so opposite-direction groups cannot deadlock.
	held, err := l.lockAll(ctx, accounts)
	defer l.unlockAll(held)
	if err != nil {
		return Receipt{}, err
	}

	// From here on the commit ignores ctx: it either fully commits or fully fails.
	l.mu.Lock()
	if group.IdempotencyKey != "" {
		if res, ok := l.receipts[group.IdempotencyKey]; ok {
			l.mu.Unlock()
			res.Replayed = true
			return res, ErrDuplicateTransaction
		}
	}
	// Every balance_after snapshot must stay non-negative, matching the
	// entries CHECK constraint of the Postgres backend.
	running := make(map[string]int64, len(accounts))
	for _, acc := range accounts {
		running[acc.state.Code] = acc.state.Balance
	}
	for _, e := range prepared.Entries {
		running[e.AccountCode] += e.Delta
		if running[e.AccountCode] < 0 {
			l.mu.Unlock()
			return Receipt{}, ErrInsufficientFunds
		}
	}

	now := prepared.Entries[0].CreatedAt
	for _, acc := range accounts {
		running[acc.state.Code] = acc.state.Balance
	}
	for i := range prepared.Entries {
		e := &prepared.Entries[i]
		running[e.AccountCode] += e.Delta
		e.BalanceAfter = running[e.AccountCode]
		l.journal[e.AccountCode] = append(l.journal[e.AccountCode], *e)
	}

	balances := make(map[string]int64, len(accounts))
	changes := make([]events.BalanceChanged, 0, len(accounts))
	for _, acc := range accounts {
		acc.state.Balance = running[acc.state.Code]
		acc.state.Version++
		acc.state.UpdatedAt = now
		balances[acc.state.Code] = acc.state.Balance
		changes = append(changes, events.BalanceChanged{
			Kind:        events.KindBalanceChanged,
			AccountCode: acc.state.Code,
			Owner:       acc.state.Owner,
			GroupID:     prepared.ID,
			Reference:   prepared.Reference,
			Delta:       deltas[acc.state.Code],
			Balance:     acc.state.Balance,
			Version:     acc.state.Version,
			OccurredAt:  now,
		})
	}

	l.seq++
	receipt := Receipt{GroupID: prepared.ID, Sequence: l.seq, Balances: balances, CommittedAt: now}
	l.groups[prepared.ID] = prepared
	if group.IdempotencyKey != "" {
		l.receipts[group.IdempotencyKey] = receipt
	}
	l.mu.Unlock()

	publish(ctx, l.publisher, l.logger, changes)
	return receipt, nil
}

func (l *inMemoryLedger) replay(key string) (Receipt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res, ok := l.receipts[key]
	if ok {
		res.Replayed = true
	}
	return res, ok
}

func (l *inMemoryLedger) lockAll(ctx context.Context, accounts []*memAccount) ([]*memAccount, error) {
	timer := time.NewTimer(l.lockTimeout)
	defer timer.Stop()

	held := make([]*memAccount, 0, len(accounts))
	for _, acc := range accounts {
		select {
		case acc.lock <- struct{}{}:
			held = append(held, acc)
		case <-timer.C:
			return held, ErrConflict
		case <-ctx.Done():
			return held, ErrConflict
		}
	}
	return held, nil
}

func (l *inMemoryLedger) unlockAll(held []*memAccount) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].lock
	}
}

func (l *inMemoryLedger) Entries(_ context.Context, code string, page Page) ([]Entry, error) {
	page = page.Normalize()
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.accounts[code]; !ok {
		return nil, ErrAccountNotFound
	}
	journal := l.journal[code]
	if page.Offset >= len(journal) {
		return []Entry{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(journal) {
		end = len(journal)
	}
	out := make([]Entry, end-page.Offset)
	copy(out, journal[page.Offset:end])
	return out, nil
}

func (l *inMemoryLedger) Group(_ context.Context, id string) (Group, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.groups[id]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	g.Entries = append([]Entry(nil), g.Entries...)
	return g, nil
}

// GroupByKey loads the group committed under an idempotency key.
func (l *inMemoryLedger) GroupByKey(ctx context.Context, key string) (Group, error) {
	l.mu.RLock()
	res, ok := l.receipts[key]
	l.mu.RUnlock()
	if key == "" || !ok {
		return Group{}, ErrGroupNotFound
	}
	return l.Group(ctx, res.GroupID)
}

// publish emits change events after commit. Failures are logged, never returned:
// the mutation is already durable.
func publish(ctx context.Context, p events.Publisher, logger *slog.Logger, changes []events.BalanceChanged) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range changes {
		if err := p.Publish(ctx, ev); err != nil && logger != nil {
			logger.Warn("publish balance change", slog.String("account", ev.AccountCode), slog.String("group_id", ev.GroupID), slog.Any("error", err))
		}
	}
}
