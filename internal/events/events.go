package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// KindBalanceChanged is emitted once per account touched by a committed journal group.
	KindBalanceChanged = "balance_changed"
)

// BalanceChanged describes the post-commit state of one account.
type BalanceChanged struct {
	Kind        string    `json:"kind"`
	AccountCode string    `json:"account_code"`
	Owner       string    `json:"owner,omitempty"`
	GroupID     string    `json:"group_id"`
	Reference   string    `json:"reference,omitempty"`
	Delta       int64     `json:"delta"`
	Balance     int64     `json:"balance"`
	Version     int64     `json:"version"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher receives committed balance changes. Implementations must not block
// the caller for long; the ledger publishes after its commit returns.
type Publisher interface {
	Publish(ctx context.Context, event BalanceChanged) error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, BalanceChanged) error { return nil }

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, event BalanceChanged) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster delivers events to in-process subscribers keyed by account code.
// Slow subscribers lose events rather than stall the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[chan BalanceChanged]struct{}
	buffer int
	logger *slog.Logger
}

// NewBroadcaster builds a broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{subs: make(map[string]map[chan BalanceChanged]struct{}), buffer: buffer, logger: logger}
}

// Subscribe registers interest in an account. The returned cancel func
// unregisters and closes the channel.
func (b *Broadcaster) Subscribe(accountCode string) (<-chan BalanceChanged, func()) {
	ch := make(chan BalanceChanged, b.buffer)
	b.mu.Lock()
	if b.subs[accountCode] == nil {
		b.subs[accountCode] = make(map[chan BalanceChanged]struct{})
	}
	b.subs[accountCode][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[accountCode], ch)
			if len(b.subs[accountCode]) == 0 {
				delete(b.subs, accountCode)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(_ context.Context, event BalanceChanged) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event.AccountCode] {
		select {
		case ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("balance event dropped for slow subscriber", slog.String("account", event.AccountCode))
			}
		}
	}
	return nil
}
