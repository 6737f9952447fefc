package leaselock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Local is an in-process Locker for single-process runs and tests. Leases
// still expire after TTL so a stuck holder does not block forever.
type Local struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]localLease), now: time.Now}
}

func (l *Local) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lease lock key is empty")
	}
	opts = opts.withDefaults()

	token, err := newToken(opts.TokenPrefix)
	if err != nil {
		return err
	}

	err = acquireLoop(ctx, opts, func(context.Context) (bool, error) {
		return l.tryAcquire(key, token, opts.TTL), nil
	})
	if err != nil {
		return err
	}
	defer l.release(key, token)

	return hold(ctx, opts, func(context.Context) error {
		if !l.renew(key, token, opts.TTL) {
			return ErrLost
		}
		return nil
	}, fn)
}

func (l *Local) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && cur.expires.After(now) && cur.token != token {
		return false
	}
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	return true
}

func (l *Local) renew(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[key]
	if !ok || cur.token != token {
		return false
	}
	cur.expires = l.now().Add(ttl)
	l.leases[key] = cur
	return true
}

func (l *Local) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
}
