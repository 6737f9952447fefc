package leaselock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/util"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps country leases in the linkage_leases table so that runs on
// different workers exclude each other. A lease past its expiry is free to
// take over.
type Postgres struct {
	db querier

	extendTries   int
	extendBackoff time.Duration
	extendTimeout time.Duration
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return newPostgres(pool)
}

func newPostgres(db querier) *Postgres {
	return &Postgres{
		db:            db,
		extendTries:   3,
		extendBackoff: 200 * time.Millisecond,
		extendTimeout: 15 * time.Second,
	}
}

type holder struct {
	token      string
	acquiredAt time.Time
	expiresAt  time.Time
}

func (p *Postgres) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lease lock key is empty")
	}
	opts = opts.withDefaults()

	token, err := newToken(opts.TokenPrefix)
	if err != nil {
		return err
	}

	err = acquireLoop(ctx, opts, func(ctx context.Context) (bool, error) {
		return p.claim(ctx, key, token, opts.TTL)
	})
	if errors.Is(err, ErrBusy) {
		if h, ok, herr := p.current(ctx, key); herr == nil && ok {
			return fmt.Errorf("%w: %s held by %s since %s until %s", ErrBusy, key, h.token,
				h.acquiredAt.UTC().Format(time.RFC3339), h.expiresAt.UTC().Format(time.RFC3339))
		}
	}
	if err != nil {
		return err
	}
	logger.Debug("[Lease] Acquired", "key", key, "token", token, "ttl", opts.TTL)

	defer func() {
		if err := p.free(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Warn("[Lease] Failed to release lease", "key", key, "err", err)
		}
	}()

	return hold(ctx, opts, func(ctx context.Context) error {
		err := p.extend(ctx, key, token, opts.TTL)
		if err != nil {
			logger.Error("[Lease] Lost lease", "key", key, "token", token, "err", err)
		}
		return err
	}, fn)
}

// current returns the live holder of the lease of key, if any.
func (p *Postgres) current(ctx context.Context, key string) (holder, bool, error) {
	var h holder
	err := p.db.QueryRow(ctx, currentSQL, key).Scan(&h.token, &h.acquiredAt, &h.expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return holder{}, false, nil
	}
	if err != nil {
		return holder{}, false, err
	}
	return h, true, nil
}

func (p *Postgres) claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var got string
	err := p.db.QueryRow(ctx, claimSQL, key, token, ttl.Seconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got == token, nil
}

// extend pushes the expiry of a held lease forward. Transient database
// errors are retried; a lease that is no longer ours is ErrLost at once.
func (p *Postgres) extend(ctx context.Context, key, token string, ttl time.Duration) error {
	var lost bool
	err := util.RetryErrWithContext(ctx, p.extendTries, p.extendBackoff, func(ctx context.Context) error {
		if lost {
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, p.extendTimeout)
		defer cancel()
		tag, err := p.db.Exec(ctx, extendSQL, key, token, ttl.Seconds())
		if err != nil {
			return err
		}
		lost = tag.RowsAffected() == 0
		return nil
	})
	if err != nil {
		return err
	}
	if lost {
		return ErrLost
	}
	return nil
}

func (p *Postgres) free(ctx context.Context, key, token string) error {
	_, err := p.db.Exec(ctx, freeSQL, key, token)
	return err
}

const claimSQL = `
INSERT INTO linkage_leases AS l (lease_key, holder, acquired_at, expires_at)
VALUES ($1, $2, now(), now() + make_interval(secs => $3))
ON CONFLICT (lease_key) DO UPDATE
   SET holder      = EXCLUDED.holder,
       acquired_at = EXCLUDED.acquired_at,
       expires_at  = EXCLUDED.expires_at
 WHERE l.expires_at <= now()
RETURNING holder;
`

const extendSQL = `
UPDATE linkage_leases
   SET expires_at = now() + make_interval(secs => $3)
 WHERE lease_key = $1
   AND holder = $2
   AND expires_at > now();
`

const freeSQL = `
DELETE FROM linkage_leases WHERE lease_key = $1 AND holder = $2;
`

const currentSQL = `
SELECT holder, acquired_at, expires_at
  FROM linkage_leases
 WHERE lease_key = $1 AND expires_at > now();
`
