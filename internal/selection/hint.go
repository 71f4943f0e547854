package selection

import (
	"context"
	"sync"
)

// hinted serves a caller-supplied organization id ahead of the wrapped store until
// the first Save.
type hinted struct {
	next Store

	mu   sync.Mutex
	hint string
}

// WithHint returns a Store whose Load yields hint while it is set and otherwise defers
// to next. Save goes to next and drops the hint. A nil next is an in-memory store.
func WithHint(next Store, hint string) Store {
	if next == nil {
		next = NewMemoryStore()
	}
	if hint == "" {
		return next
	}
	return &hinted{hint: hint, next: next}
}

func (h *hinted) Load(ctx context.Context, userID string) (string, error) {
	h.mu.Lock()
	hint := h.hint
	h.mu.Unlock()
	if hint != "" {
		return hint, nil
	}
	return h.next.Load(ctx, userID)
}

func (h *hinted) Save(ctx context.Context, userID, orgID string) error {
	h.mu.Lock()
	h.hint = ""
	h.mu.Unlock()
	return h.next.Save(ctx, userID, orgID)
}

// fallback serves a default organization id when the wrapped store has none.
type fallback struct {
	next  Store
	orgID string
}

// WithDefault returns a Store whose Load yields orgID only when next has no saved
// selection. A nil next is an in-memory store.
func WithDefault(next Store, orgID string) Store {
	if next == nil {
		next = NewMemoryStore()
	}
	if orgID == "" {
		return next
	}
	return &fallback{next: next, orgID: orgID}
}

func (f *fallback) Load(ctx context.Context, userID string) (string, error) {
	saved, err := f.next.Load(ctx, userID)
	if err != nil || saved != "" {
		return saved, err
	}
	return f.orgID, nil
}

func (f *fallback) Save(ctx context.Context, userID, orgID string) error {
	return f.next.Save(ctx, userID, orgID)
}
