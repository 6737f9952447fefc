package graph

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
	"github.com/OFFIS-RIT/lexlink/pkg/store/memory"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func law(canonical string) *common.Record {
	return &common.Record{
		Country:        common.Chile,
		IdentifierText: "Ley " + canonical,
		CanonicalID:    ptr(canonical),
		Status:         common.StatusPassed,
	}
}

func stages(n int) []common.Stage {
	out := make([]common.Stage, n)
	for i := range out {
		out[i] = common.Stage{Name: "tramite", Index: ptr(i + 1), Date: ptr(day(2020, 1, i+1))}
	}
	return out
}

func seed(t *testing.T, s store.LegislationStorage, records ...*common.Record) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, r := range records {
			if err := tx.SaveRecord(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newClient(t *testing.T, s store.LegislationStorage, ex extract.Extractor, opts ...func(*NewGraphClientParams)) *GraphClient {
	t.Helper()
	p := country.Chile()
	p.Extractor = ex
	params := NewGraphClientParams{
		Store:       s,
		Profiles:    country.NewRegistry(p),
		PageSize:    2,
		Workers:     2,
		PageRetries: 2,
	}
	for _, o := range opts {
		o(&params)
	}
	c, err := NewGraphClient(params)
	require.NoError(t, err)
	return c
}

// allEdges returns every edge of the given owners ordered by natural key.
func allEdges(t *testing.T, s store.LegislationStorage, owners ...*common.Record) []common.Edge {
	t.Helper()
	var out []common.Edge
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, r := range owners {
			edges, err := tx.EdgesByRecord(ctx, r.ID)
			if err != nil {
				return err
			}
			out = append(out, edges...)
		}
		return nil
	})
	require.NoError(t, err)
	slices.SortFunc(out, func(a, b common.Edge) int {
		ka, kb := a.Key(), b.Key()
		return cmp.Or(
			cmp.Compare(ka.RecordID, kb.RecordID),
			cmp.Compare(ka.Role, kb.Role),
			cmp.Compare(ka.TargetLawID, kb.TargetLawID),
			cmp.Compare(ka.AffectingArticle, kb.AffectingArticle),
			cmp.Compare(ka.ModifiedArticle, kb.ModifiedArticle),
			cmp.Compare(ka.AffectingDate, kb.AffectingDate),
		)
	})
	return out
}

func get(t *testing.T, s store.LegislationStorage, id int64) common.Record {
	t.Helper()
	var rec common.Record
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, id)
		return err
	})
	require.NoError(t, err)
	return rec
}

func exists(t *testing.T, s store.LegislationStorage, id int64) bool {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetRecord(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

// faultyStore wraps the memory store and injects write failures. With poison
// set, a failed write also fails the surrounding transaction the way an
// aborted database transaction would.
type faultyStore struct {
	*memory.Store
	poison       bool
	saveEdges    func(edges []common.Edge) error
	deleteRecord func(id int64) error
}

func (s *faultyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var failed error
		if err := fn(ctx, &faultyTx{Tx: tx, s: s, failed: &failed}); err != nil {
			return err
		}
		if s.poison {
			return failed
		}
		return nil
	})
}

type faultyTx struct {
	store.Tx
	s      *faultyStore
	failed *error
}

func (t *faultyTx) SaveEdges(ctx context.Context, edges []common.Edge) (int, error) {
	if t.s.saveEdges != nil {
		if err := t.s.saveEdges(edges); err != nil {
			*t.failed = err
			return 0, err
		}
	}
	return t.Tx.SaveEdges(ctx, edges)
}

func (t *faultyTx) DeleteRecord(ctx context.Context, id int64) error {
	if t.s.deleteRecord != nil {
		if err := t.s.deleteRecord(id); err != nil {
			*t.failed = err
			return err
		}
	}
	return t.Tx.DeleteRecord(ctx, id)
}

func (t *faultyTx) Nested(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return t.Tx.Nested(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, s: t.s, failed: t.failed})
	})
}

// lossyLocker grants every lease and lets a test revoke it with lose.
type lossyLocker struct {
	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

func (l *lossyLocker) WithLease(ctx context.Context, _ string, _ leaselock.Options, fn func(ctx context.Context) error) error {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	return fn(leaseCtx)
}

func (l *lossyLocker) lose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel(leaselock.ErrLost)
	}
}

type countingRecorder struct {
	runs       atomic.Int32
	reconciles atomic.Int32
}

func (r *countingRecorder) RunFinished(RunReport)             { r.runs.Add(1) }
func (r *countingRecorder) ReconcileFinished(ReconcileReport) { r.reconciles.Add(1) }

type logEntry struct {
	level string
	msg   string
	kv    map[string]any
}

// captureLog routes the global logger into memory for the rest of the test.
type captureLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func newCaptureLog(t *testing.T) *captureLog {
	t.Helper()
	c := &captureLog{}
	logger.Init(c)
	t.Cleanup(func() { logger.Init() })
	return c
}

func (c *captureLog) add(level, msg string, keyvals []any) {
	kv := make(map[string]any, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); ok {
			kv[k] = keyvals[i+1]
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (c *captureLog) find(msg string) []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []logEntry
	for _, e := range c.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureLog) Log(msg string, kv ...any)   { c.add("log", msg, kv) }
func (c *captureLog) Debug(msg string, kv ...any) { c.add("debug", msg, kv) }
func (c *captureLog) Info(msg string, kv ...any)  { c.add("info", msg, kv) }
func (c *captureLog) Warn(msg string, kv ...any)  { c.add("warn", msg, kv) }
func (c *captureLog) Error(msg string, kv ...any) { c.add("error", msg, kv) }
func (c *captureLog) Fatal(msg string, kv ...any) { c.add("fatal", msg, kv) }
