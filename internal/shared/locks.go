// Package shared carries cross-module helpers: critical-section locks and the
// write-off approval trail.
package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker holds the critical section.
var ErrLockHeld = errors.New("shared: lock held")

// LoanLockKey builds the redis key serialising operations on one loan.
func LoanLockKey(loanID int64) string {
	return fmt.Sprintf("servicing:loan:%d:lock", loanID)
}

// PeriodLockKey builds the redis key for period-granularity critical sections.
// Causation runs and the period closer both take it, which gives the close
// precondition check a consistent marker snapshot.
func PeriodLockKey(periodID int64) string {
	return fmt.Sprintf("servicing:period:%d:lock", periodID)
}

// Locker provides exclusive sections backed by redis SET NX. The TTL bounds
// how long a crashed holder can block others.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock or fails with ErrLockHeld. The returned release
// function is safe to defer.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		// No redis configured: single-process deployments rely on database
		// row locks instead.
		return func() {}, nil
	}
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = l.client.Del(context.Background(), key).Err()
	}, nil
}
