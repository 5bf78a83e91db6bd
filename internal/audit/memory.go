package audit

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/ledger"
)

type memoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLog returns an in-memory audit log for development and tests.
func NewMemoryLog() Log {
	return &memoryLog{}
}

func (l *memoryLog) Append(_ context.Context, entry Entry) (Entry, error) {
	if err := entry.validate(); err != nil {
		return Entry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Metadata = maps.Clone(entry.Metadata)

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return entry, nil
}

func (l *memoryLog) ListBySubject(_ context.Context, subjectType SubjectType, subjectID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// List returns entries newest first.
func (l *memoryLog) List(_ context.Context, page ledger.Page) ([]Entry, error) {
	page = page.Normalize()
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, page.Limit)
	for i := len(l.entries) - 1 - page.Offset; i >= 0 && len(out) < page.Limit; i-- {
		out = append(out, cloneEntry(l.entries[i]))
	}
	return out, nil
}

func cloneEntry(e Entry) Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
