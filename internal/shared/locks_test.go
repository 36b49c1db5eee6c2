package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, time.Minute)
}

func TestLockerAcquireRelease(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, LoanLockKey(1))
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, LoanLockKey(1))
	require.ErrorIs(t, err, ErrLockHeld)

	// A different loan is a different critical section.
	otherRelease, err := locker.Acquire(ctx, LoanLockKey(2))
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := locker.Acquire(ctx, LoanLockKey(1))
	require.NoError(t, err)
	release2()
}

func TestLockerPeriodKeyIndependentOfLoanKey(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	releaseLoan, err := locker.Acquire(ctx, LoanLockKey(7))
	require.NoError(t, err)
	defer releaseLoan()

	releasePeriod, err := locker.Acquire(ctx, PeriodLockKey(7))
	require.NoError(t, err)
	defer releasePeriod()
}

func TestLockerWithoutRedisIsNoOp(t *testing.T) {
	locker := NewLocker(nil, 0)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, LoanLockKey(1))
	require.NoError(t, err)
	release()

	again, err := locker.Acquire(ctx, LoanLockKey(1))
	require.NoError(t, err)
	again()
}
