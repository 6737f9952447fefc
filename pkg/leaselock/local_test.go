package leaselock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLocal_Busy(t *testing.T) {
	l := NewLocal()
	key := CountryKey(common.Chile)

	err := l.WithLease(context.Background(), key, Options{}, func(ctx context.Context) error {
		inner := l.WithLease(ctx, key, Options{}, func(context.Context) error { return nil })
		assert.True(t, errors.Is(inner, ErrBusy))

		other := l.WithLease(ctx, CountryKey(common.USA), Options{}, func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	err = l.WithLease(context.Background(), key, Options{}, func(context.Context) error { return nil })
	assert.NoError(t, err, "released lease can be taken again")
}

func TestLocal_WaitSerializes(t *testing.T) {
	l := NewLocal()
	var active, peak atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for range 4 {
		g.Go(func() error {
			return l.WithLease(ctx, "k", Options{Wait: true, WaitInterval: time.Millisecond}, func(context.Context) error {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), peak.Load())
}

func TestLocal_ExpiredLeaseIsTakenOver(t *testing.T) {
	l := NewLocal()
	now := time.Now()
	l.now = func() time.Time { return now }

	require.True(t, l.tryAcquire("k", "a", time.Minute))
	assert.False(t, l.tryAcquire("k", "b", time.Minute))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.tryAcquire("k", "b", time.Minute))
	assert.False(t, l.renew("k", "a", time.Minute))
}

func TestLocal_EmptyKey(t *testing.T) {
	err := NewLocal().WithLease(context.Background(), "", Options{}, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWithCountry(t *testing.T) {
	l := NewLocal()

	err := WithCountry(context.Background(), l, common.Chile, Options{}, func(ctx context.Context) error {
		inner := l.WithLease(ctx, CountryKey(common.Chile), Options{}, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrBusy)
		return nil
	})
	require.NoError(t, err)

	err = WithCountry(context.Background(), l, "", Options{}, func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestLocal_LostLeaseCancelsWithErrLost(t *testing.T) {
	l := NewLocal()
	key := CountryKey(common.Colombia)

	err := l.WithLease(context.Background(), key, Options{TTL: time.Second, RenewEvery: 5 * time.Millisecond}, func(ctx context.Context) error {
		l.mu.Lock()
		delete(l.leases, key)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("lease context was not canceled")
		}
		assert.ErrorIs(t, context.Cause(ctx), ErrLost)
		return context.Cause(ctx)
	})
	assert.ErrorIs(t, err, ErrLost)
}
