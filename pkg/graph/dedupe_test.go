package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
	"github.com/OFFIS-RIT/lexlink/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveEdges(t *testing.T, s store.LegislationStorage, edges ...common.Edge) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.SaveEdges(ctx, edges)
		return err
	})
	require.NoError(t, err)
}

func modifies(owner, target *common.Record) common.Edge {
	return common.Edge{
		RecordID: owner.ID, Country: common.Chile, SourceLawID: owner.Canonical(), Role: common.Modifies,
		TargetLawID: target.Canonical(), TargetID: &target.ID, DateState: common.DateAbsent,
	}
}

func TestReconcile_KeepsMostCompleteRecord(t *testing.T) {
	s := memory.New()
	r1, r2, r3 := law("Law-5"), law("Law-5"), law("Law-5")
	r1.Stages = stages(2)
	r2.Stages, r2.CommitteeCount = stages(5), 3
	r3.Stages, r3.CommitteeCount = stages(5), 7
	other := law("Law-8")
	seed(t, s, r1, r2, r3, other)

	// other was resolved to the lowest id; r2 and r3 were collected from
	// the same source and carry the same outgoing edge.
	saveEdges(t, s, modifies(other, r1), modifies(r2, other), modifies(r3, other))

	client := newClient(t, s, extract.Static{})
	ctx := context.Background()

	report, err := client.Reconciler.Reconcile(ctx, common.Chile)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 2, report.RecordsDeleted)
	assert.Equal(t, 1, report.EdgesRepointed)
	assert.Equal(t, 1, report.EdgesCollapsed)
	assert.Zero(t, report.Skipped)

	assert.False(t, exists(t, s, r1.ID))
	assert.False(t, exists(t, s, r2.ID))
	kept := get(t, s, r3.ID)
	assert.Equal(t, 7, kept.CommitteeCount)

	edges := allEdges(t, s, other)
	require.Len(t, edges, 1)
	assert.Equal(t, r3.ID, *edges[0].TargetID, "edges to a discarded duplicate point at the kept record")

	own := allEdges(t, s, &kept)
	require.Len(t, own, 1, "identical edges of duplicates collapse into one")
	assert.Equal(t, other.ID, *own[0].TargetID)

	assert.Equal(t, 1, *kept.Metrics.AffectingLawsCount)
	assert.Equal(t, []string{"Law-8"}, kept.Metrics.ModifiedLaws)
	assert.Equal(t, []string{"Law-5"}, get(t, s, other.ID).Metrics.ModifiedLaws)

	again, err := client.Reconciler.Reconcile(ctx, common.Chile)
	require.NoError(t, err)
	assert.Zero(t, again.Groups)
	assert.Zero(t, again.Merged)
	assert.Equal(t, edges, allEdges(t, s, other))
	assert.Equal(t, kept, get(t, s, r3.ID))
}

func TestReconcile_MovesDistinctEdgesAndDropsSelfLoops(t *testing.T) {
	s := memory.New()
	keep, dup := law("Law-5"), law("Law-5")
	keep.HasText = true
	a, b := law("Law-1"), law("Law-2")
	seed(t, s, keep, dup, a, b)

	// dup owns an edge to keep, which becomes a self loop, and one to b.
	saveEdges(t, s, modifies(dup, keep), modifies(dup, b), modifies(keep, a))
	mb := modifies(keep, dup)
	mb.Role = common.ModifiedBy
	saveEdges(t, s, mb)

	report, err := newClient(t, s, extract.Static{}).Reconciler.Reconcile(context.Background(), common.Chile)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordsDeleted)
	assert.Equal(t, 2, report.SelfLoops)
	assert.Equal(t, 1, report.EdgesMoved)

	own := allEdges(t, s, keep)
	require.Len(t, own, 2)
	for _, e := range own {
		assert.Equal(t, keep.ID, e.RecordID)
		assert.Equal(t, "Law-5", e.SourceLawID)
		assert.NotEqual(t, keep.ID, *e.TargetID)
	}
	assert.Equal(t, 1, *get(t, s, b.ID).Metrics.AffectingLawsCount)
}

func TestReconcile_SkipsFailingGroup(t *testing.T) {
	x1, x2 := law("Law-1"), law("Law-1")
	y1, y2 := law("Law-2"), law("Law-2")
	s := &faultyStore{Store: memory.New()}
	seed(t, s, x1, x2, y1, y2)
	s.deleteRecord = func(id int64) error {
		if id == x2.ID {
			return errors.New("still referenced")
		}
		return nil
	}

	report, err := newClient(t, s, extract.Static{}).Reconciler.Reconcile(context.Background(), common.Chile)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Groups)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Merged)

	assert.True(t, exists(t, s, x1.ID))
	assert.True(t, exists(t, s, x2.ID), "a failed group is rolled back")
	assert.True(t, exists(t, s, y1.ID))
	assert.False(t, exists(t, s, y2.ID))
}

func TestReconcile_LeaseLostFails(t *testing.T) {
	x1, x2 := law("Law-1"), law("Law-1")
	y1, y2 := law("Law-2"), law("Law-2")
	s := &faultyStore{Store: memory.New()}
	seed(t, s, x1, x2, y1, y2)

	locker := &lossyLocker{}
	rec := &countingRecorder{}
	s.deleteRecord = func(id int64) error {
		if id == x2.ID {
			locker.lose()
		}
		return nil
	}
	client := newClient(t, s, extract.Static{}, func(p *NewGraphClientParams) {
		p.Locker = locker
		p.Recorder = rec
	})

	report, err := client.Reconciler.Reconcile(context.Background(), common.Chile)
	require.Error(t, err)
	assert.ErrorIs(t, err, leaselock.ErrLost)
	assert.False(t, report.Stopped, "a lost lease is not a clean stop")
	assert.Zero(t, rec.reconciles.Load(), "a failed reconciliation is not recorded")

	assert.False(t, exists(t, s, x2.ID), "the group in flight when the lease was lost is committed")
	assert.True(t, exists(t, s, y2.ID), "no group is merged after the lease is lost")
}

func TestReconcile_HonorsLease(t *testing.T) {
	s := memory.New()
	client := newClient(t, s, extract.Static{})

	err := client.Runner.locker.WithLease(context.Background(), "linkage:CL", client.Runner.leaseOpts, func(ctx context.Context) error {
		_, err := client.Reconciler.Reconcile(ctx, common.Chile)
		return err
	})
	assert.Error(t, err, "reconciliation must not overlap a run of the same country")
}
