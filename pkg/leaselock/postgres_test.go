package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		}
	}
	return nil
}

// fakeDB answers the lease statements from canned results, in order.
type fakeDB struct {
	execs []func() (pgconn.CommandTag, error)
	rows  map[string]fakeRow

	execCalls int
}

func (f *fakeDB) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	i := f.execCalls
	f.execCalls++
	if i >= len(f.execs) {
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return f.execs[i]()
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	return f.rows[sql]
}

func testPostgres(db *fakeDB) *Postgres {
	p := newPostgres(db)
	p.extendBackoff = time.Millisecond
	return p
}

func TestPostgres_ExtendRetriesTransientErrors(t *testing.T) {
	db := &fakeDB{execs: []func() (pgconn.CommandTag, error){
		func() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, errors.New("connection reset") },
		func() (pgconn.CommandTag, error) { return pgconn.NewCommandTag("UPDATE 1"), nil },
	}}

	err := testPostgres(db).extend(context.Background(), "linkage:CL", "tok", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, db.execCalls)
}

func TestPostgres_ExtendReportsTakenLease(t *testing.T) {
	db := &fakeDB{execs: []func() (pgconn.CommandTag, error){
		func() (pgconn.CommandTag, error) { return pgconn.NewCommandTag("UPDATE 0"), nil },
	}}

	err := testPostgres(db).extend(context.Background(), "linkage:CL", "tok", time.Minute)
	assert.ErrorIs(t, err, ErrLost)
	assert.Equal(t, 1, db.execCalls, "a lease held by someone else is not retried")
}

func TestPostgres_BusyNamesHolder(t *testing.T) {
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: map[string]fakeRow{
		claimSQL:   {err: pgx.ErrNoRows},
		currentSQL: {vals: []any{"worker-7", expires.Add(-time.Minute), expires}},
	}}

	called := false
	err := WithCountry(context.Background(), testPostgres(db), common.Jordan, Options{}, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "linkage:JO held by worker-7")
	assert.Contains(t, err.Error(), "2026-03-01T12:00:00Z")
	assert.False(t, called)
	assert.Zero(t, db.execCalls, "nothing is released when nothing was acquired")
}

func TestPostgres_RunsAndReleases(t *testing.T) {
	db := &fakeDB{rows: map[string]fakeRow{}}
	p := testPostgres(db)
	p.db = &claimingDB{fakeDB: db}

	err := p.WithLease(context.Background(), CountryKey(common.USA), Options{TokenPrefix: "w1-"}, func(ctx context.Context) error {
		assert.NoError(t, ctx.Err())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, db.execCalls, "the lease is released once")
}

// claimingDB grants every claim to the token that asks for it.
type claimingDB struct {
	*fakeDB
}

func (c *claimingDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if sql == claimSQL {
		return fakeRow{vals: []any{args[1].(string)}}
	}
	return c.fakeDB.QueryRow(context.Background(), sql, args...)
}
