package funding

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/settlement/internal/ledger"
)

type memoryRepository struct {
	mu       sync.RWMutex
	requests map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{requests: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string, page ledger.Page) ([]Request, error) {
	out := r.filter(func(req Request) bool { return req.OwnerID == ownerID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (r *memoryRepository) ListByStatus(_ context.Context, status Status, page ledger.Page) ([]Request, error) {
	out := r.filter(func(req Request) bool { return req.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (r *memoryRepository) Resolve(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != StatusPending {
		return ErrAlreadyResolved
	}
	r.requests[req.ID] = req
	return nil
}

func (r *memoryRepository) filter(keep func(Request) bool) []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Request
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	return out
}

func paginate(items []Request, page ledger.Page) []Request {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
