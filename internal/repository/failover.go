package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"clinicsync/internal/domain"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the primary is left alone after a failure.
const recoveryInterval = time.Minute

// FailoverDeadLetter writes to the primary sink and switches to the fallback
// while the primary is failing.
type FailoverDeadLetter struct {
	primary  domain.DeadLetterSink
	fallback domain.DeadLetterSink
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverDeadLetter(primary, fallback domain.DeadLetterSink, logger *zerolog.Logger) *FailoverDeadLetter {
	return &FailoverDeadLetter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the primary should be tried now.
func (r *FailoverDeadLetter) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverDeadLetter) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary dead-letter store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverDeadLetter) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary dead-letter store recovered")
	}
}

func (r *FailoverDeadLetter) Push(ctx context.Context, letter models.DeadLetter) error {
	if r.usePrimary() {
		err := r.primary.Push(ctx, letter)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Push(ctx, letter)
}

// List reads the primary when it is up. Entries held by the fallback during
// an outage are appended after the primary's.
func (r *FailoverDeadLetter) List(ctx context.Context, limit int64) ([]models.DeadLetter, error) {
	var letters []models.DeadLetter
	if r.usePrimary() {
		got, err := r.primary.List(ctx, limit)
		if err == nil {
			r.markUp()
			letters = got
		} else {
			r.markDown(err)
		}
	}

	if limit > 0 && int64(len(letters)) >= limit {
		return letters, nil
	}
	rest := int64(0)
	if limit > 0 {
		rest = limit - int64(len(letters))
	}
	local, err := r.fallback.List(ctx, rest)
	if err != nil {
		return letters, err
	}
	return append(letters, local...), nil
}
