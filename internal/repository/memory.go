package repository

import (
	"context"
	"sync"

	"clinicsync/internal/models"
)

// MemoryDeadLetter is the in-process dead-letter list used without Redis.
type MemoryDeadLetter struct {
	mu      sync.Mutex
	letters []models.DeadLetter
	maxLen  int
}

func NewMemoryDeadLetter(capacity int) *MemoryDeadLetter {
	if capacity <= 0 {
		capacity = DefaultDeadLetterCap
	}
	return &MemoryDeadLetter{maxLen: capacity}
}

func (r *MemoryDeadLetter) Push(_ context.Context, letter models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.letters = append(r.letters, letter)
	if len(r.letters) > r.maxLen {
		r.letters = r.letters[len(r.letters)-r.maxLen:]
	}
	return nil
}

func (r *MemoryDeadLetter) List(_ context.Context, limit int64) ([]models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.letters))
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.DeadLetter, 0, n)
	for i := len(r.letters) - 1; i >= 0 && int64(len(out)) < n; i-- {
		out = append(out, r.letters[i])
	}
	return out, nil
}
