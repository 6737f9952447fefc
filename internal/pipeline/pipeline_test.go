package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/graph"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
	"github.com/OFFIS-RIT/lexlink/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePasses struct {
	mu      sync.Mutex
	calls   []string
	failRun common.Country
	stopRun common.Country
}

func (f *fakePasses) Run(_ context.Context, c common.Country) (graph.RunReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "run:"+string(c))
	f.mu.Unlock()
	if c == f.failRun {
		return graph.RunReport{Country: c}, errors.New("database down")
	}
	return graph.RunReport{Country: c, Stopped: c == f.stopRun}, nil
}

func (f *fakePasses) Reconcile(_ context.Context, c common.Country) (graph.ReconcileReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "reconcile:"+string(c))
	f.mu.Unlock()
	return graph.ReconcileReport{Country: c}, nil
}

func TestParseOperation(t *testing.T) {
	for in, want := range map[string]Operation{"run": Run, " Resolve ": Resolve, "RECONCILE": Reconcile, "": Run} {
		got, err := ParseOperation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseOperation("drop")
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestExecute_FailingCountryDoesNotStopOthers(t *testing.T) {
	f := &fakePasses{failRun: common.Colombia, stopRun: common.USA}
	results, err := Execute(context.Background(), f, []common.Country{common.Chile, common.Colombia, common.USA}, Run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database down")

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Reconcile)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Reconcile, "no reconciliation after a failed run")
	assert.Nil(t, results[2].Reconcile, "no reconciliation after a stopped run")

	assert.ElementsMatch(t, []string{"run:CL", "reconcile:CL", "run:CO", "run:US"}, f.calls)
}

func TestExecute_SinglePass(t *testing.T) {
	f := &fakePasses{}
	_, err := Execute(context.Background(), f, []common.Country{common.Chile}, Reconcile)
	require.NoError(t, err)
	assert.Equal(t, []string{"reconcile:CL"}, f.calls)

	f = &fakePasses{}
	_, err = Execute(context.Background(), f, []common.Country{common.Chile}, Resolve)
	require.NoError(t, err)
	assert.Equal(t, []string{"run:CL"}, f.calls)
}

func TestExecute_WithGraphClient(t *testing.T) {
	s := memory.New()
	canonical := func(id string) *string { return &id }
	a := &common.Record{Country: common.Chile, CanonicalID: canonical("Law-1"), Status: common.StatusPassed}
	b1 := &common.Record{Country: common.Chile, CanonicalID: canonical("Law-2"), Status: common.StatusPassed}
	b2 := &common.Record{Country: common.Chile, CanonicalID: canonical("Law-2"), Status: common.StatusPassed, HasText: true}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, r := range []*common.Record{a, b1, b2} {
			if err := tx.SaveRecord(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))

	p := country.Chile()
	p.Extractor = extract.Static{a.ID: {{TargetIdentifierText: "Ley 2", Role: common.Modifies}}}
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Store: s, Profiles: country.NewRegistry(p)})
	require.NoError(t, err)

	results, err := Execute(context.Background(), FromClient(client), []common.Country{common.Chile}, Run)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Run.EdgesInserted)
	assert.Equal(t, 1, results[0].Reconcile.Merged)

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		edges, err := tx.EdgesByTarget(ctx, b2.ID)
		require.NoError(t, err)
		assert.Len(t, edges, 1, "the edge follows the kept duplicate")
		kept, err := tx.GetRecord(ctx, b2.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, *kept.Metrics.AffectingLawsCount)
		return nil
	}))
}
