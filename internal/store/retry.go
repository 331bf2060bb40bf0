package store

import (
	"context"
	"time"

	"governance-sync/internal/record"

	"github.com/sirupsen/logrus"
)

// RetryStore decorates another Store adding automatic retry of Save.
// It attempts the write up to the configured number of attempts, waiting the
// specified delay between retries, and returns the error of the last attempt.
// Load is passed through untouched.
//
// If attempts is < 1, it defaults to 1 (no retries).
// If delayMs is 0, it defaults to 1000ms.
type RetryStore struct {
	inner    Store
	attempts int
	delay    time.Duration
}

func NewRetryStore(inner Store, attempts int, delayMs int) *RetryStore {
	if attempts < 1 {
		attempts = 1
	}
	if delayMs == 0 {
		delayMs = 1000
	}
	return &RetryStore{
		inner:    inner,
		attempts: attempts,
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

func (r *RetryStore) Load(ctx context.Context) (record.State, error) {
	return r.inner.Load(ctx)
}

// Save forwards the call to the wrapped store retrying on failure.
func (r *RetryStore) Save(ctx context.Context, st record.State) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.inner.Save(ctx, st)
		if err == nil {
			return nil
		}

		logrus.Warnf("state save failed (attempt %d/%d): %v", attempt, r.attempts, err)

		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return failure("save", ctx.Err())
			case <-time.After(r.delay):
			}
		}
	}
	return err
}

func (r *RetryStore) Close() error {
	return r.inner.Close()
}
