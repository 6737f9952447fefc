// Package leaselock provides named, expiring locks. The engine takes one per
// country so reconciliation never overlaps with resolution or with itself.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

// Locker runs fn while holding the lease named key. The context passed to
// fn is canceled with ErrLost as cause if the lease cannot be renewed.
type Locker interface {
	WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error
}

type Options struct {
	TTL        time.Duration
	RenewEvery time.Duration

	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	TokenPrefix string
}

// CountryKey is the lease name guarding writes to one country's graph.
func CountryKey(c common.Country) string {
	return "linkage:" + string(c)
}

// WithCountry runs fn while l holds the lease of country c.
func WithCountry(ctx context.Context, l Locker, c common.Country, opts Options, fn func(ctx context.Context) error) error {
	if c == "" {
		return errors.New("lease lock country is empty")
	}
	return l.WithLease(ctx, CountryKey(c), opts, fn)
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = 250 * time.Millisecond
	}
	if o.WaitJitter < 0 {
		o.WaitJitter = 0
	}
	return o
}

// acquireLoop calls try until it succeeds, failing fast with ErrBusy unless
// opts.Wait is set.
func acquireLoop(ctx context.Context, opts Options, try func(context.Context) (bool, error)) error {
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !opts.Wait {
			return ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return err
		}
	}
}

// hold runs fn with a context that is canceled once extend fails. extend is
// called every opts.RenewEvery until fn returns; its error becomes the
// cancel cause wrapped in ErrLost.
func hold(ctx context.Context, opts Options, extend func(context.Context) error, fn func(ctx context.Context) error) error {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(opts.RenewEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-leaseCtx.Done():
				return
			case <-t.C:
			}
			if err := extend(leaseCtx); err != nil {
				if !errors.Is(err, ErrLost) {
					err = fmt.Errorf("%w: %w", ErrLost, err)
				}
				cancel(err)
				return
			}
		}
	}()

	err := fn(leaseCtx)
	close(done)
	<-stopped
	return err
}

func newToken(prefix string) (string, error) {
	tok, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return prefix + tok, nil
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
