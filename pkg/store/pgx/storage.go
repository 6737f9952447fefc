// Package pgx implements store.LegislationStorage on PostgreSQL.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/lexlink/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// LegislationDBStorage stores records in the records table and edges in
// affecting_laws. Edge upserts go through the affecting_laws_natural_key
// constraint.
type LegislationDBStorage struct {
	conn      pgxIConn
	pool      *pgxpool.Pool
	batchSize int
}

type Option func(*LegislationDBStorage)

// WithBatchSize sets how many edges are sent per batch round trip.
func WithBatchSize(n int) Option {
	return func(s *LegislationDBStorage) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewWithConnection uses an existing pool or connection. The caller keeps
// ownership of conn.
func NewWithConnection(conn pgxIConn, opts ...Option) *LegislationDBStorage {
	s := &LegislationDBStorage{conn: conn, batchSize: 500}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Open connects a new pool. Close releases it.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*LegislationDBStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := NewWithConnection(pool, opts...)
	s.pool = pool
	return s, nil
}

// Pool returns the pool opened by Open, or nil.
func (s *LegislationDBStorage) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *LegislationDBStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *LegislationDBStorage) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &dbTx{tx: pgTx, batchSize: s.batchSize}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapErr(err))
	}
	return nil
}

// mapErr translates constraint violations into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
	}
	return err
}
