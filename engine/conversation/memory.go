package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository keeps conversations in process memory. It backs the
// memory store driver and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Conversation
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Conversation), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, conv *Conversation) error {
	if err := Prepare(conv, r.now()); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[conv.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, conv.ID)
	}
	r.items[conv.ID] = *conv
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &conv, nil
}

func (r *MemoryRepository) Owner(ctx context.Context, id string) (string, error) {
	conv, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return conv.OwnerID, nil
}

func (r *MemoryRepository) SaveAnswer(_ context.Context, id string, answer string) error {
	return r.update(id, func(conv *Conversation) {
		conv.Answer = answer
	})
}

func (r *MemoryRepository) MarkStatus(_ context.Context, id string, status Status, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.update(id, func(conv *Conversation) {
		conv.Status = status
		conv.Error = errMsg
	})
}

func (r *MemoryRepository) update(id string, fn func(*Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	fn(&conv)
	conv.UpdatedAt = r.now().UTC()
	r.items[id] = conv
	return nil
}
