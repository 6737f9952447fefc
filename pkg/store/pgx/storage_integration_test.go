//go:build integration

package pgx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/testutil/containers"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StorageSuite struct {
	suite.Suite
	pg *containers.PostgresContainer
	s  *LegislationDBStorage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.s = NewWithConnection(s.pg.Pool, WithBatchSize(2))
}

func (s *StorageSuite) SetupTest() {
	s.pg.Truncate(s.T())
}

func ptr[T any](v T) *T { return &v }

func (s *StorageSuite) seed(records ...*common.Record) {
	err := s.s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, r := range records {
			if err := tx.SaveRecord(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)
}

func (s *StorageSuite) TestRecordRoundTrip() {
	idx := 1
	d := time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC)
	r := &common.Record{
		Country: common.Chile, IdentifierText: "Ley N° 5\x00", CanonicalID: ptr("Law-5"),
		Status: common.StatusPassed, Stages: []common.Stage{{Name: "camara", Index: &idx, Date: &d}},
		HasText: true, CommitteeCount: 2,
	}
	s.seed(r)
	s.NotZero(r.ID)

	err := s.s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		first := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(s.T(), tx.SaveMetrics(ctx, r.ID, common.Metrics{
			AffectingLawsCount: ptr(2), ModifiedLawsCount: ptr(1), ModifiedLaws: []string{"Law-9"},
			AffectingLawsFirstDate: &first,
		}))

		got, err := tx.GetRecord(ctx, r.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), "Ley N° 5", got.IdentifierText)
		assert.Equal(s.T(), 1, got.DatedStages())
		assert.True(s.T(), got.HasText)
		assert.Equal(s.T(), 2, *got.Metrics.AffectingLawsCount)
		assert.Equal(s.T(), []string{"Law-9"}, got.Metrics.ModifiedLaws)
		assert.True(s.T(), first.Equal(*got.Metrics.AffectingLawsFirstDate))

		_, err = tx.GetRecord(ctx, r.ID+100)
		assert.True(s.T(), errors.Is(err, store.ErrNotFound))
		return nil
	})
	s.Require().NoError(err)
}

func (s *StorageSuite) TestEligiblePagingAndGroups() {
	a := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-1"), Status: common.StatusPassed}
	b := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-1"), Status: common.StatusPassed}
	c := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-2"), Status: common.StatusOngoing}
	d := &common.Record{Country: common.Chile, Status: common.StatusPassed}
	s.seed(a, b, c, d)

	err := s.s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		page, err := tx.FindAllEligible(ctx, common.Chile, true, store.Page{Limit: 1})
		require.NoError(s.T(), err)
		require.Len(s.T(), page, 1)
		assert.Equal(s.T(), a.ID, page[0].ID)

		page, err = tx.FindAllEligible(ctx, common.Chile, true, store.Page{AfterID: a.ID, Limit: 10})
		require.NoError(s.T(), err)
		require.Len(s.T(), page, 1)
		assert.Equal(s.T(), b.ID, page[0].ID)

		all, err := tx.FindAllEligible(ctx, common.Chile, false, store.Page{})
		require.NoError(s.T(), err)
		assert.Len(s.T(), all, 3)

		groups, err := tx.FindDuplicateGroups(ctx, common.Chile)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []string{"Law-1"}, groups)

		first, err := tx.FindByCountryAndCanonicalID(ctx, common.Chile, "Law-1")
		require.NoError(s.T(), err)
		assert.Equal(s.T(), a.ID, first.ID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StorageSuite) TestEdgeUpsertRetargetAndDelete() {
	a := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-1")}
	b := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-2")}
	c := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-2")}
	s.seed(a, b, c)

	dangling := common.Edge{RecordID: a.ID, Country: common.Chile, SourceLawID: "Law-1", Role: common.Modifies,
		TargetLawID: "Law-2", DateState: common.DateAbsent}
	other := common.Edge{RecordID: a.ID, Country: common.Chile, SourceLawID: "Law-1", Role: common.ModifiedBy,
		TargetLawID: "Law-7", AffectingDate: ptr(time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)), DateState: common.DateKnown}

	ctx := context.Background()
	err := s.s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.SaveEdges(ctx, []common.Edge{dangling, other, dangling})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), 2, n)

		owners, err := tx.BindDangling(ctx, common.Chile, "Law-2", c.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []int64{a.ID}, owners)

		n, err = tx.SaveEdges(ctx, []common.Edge{dangling})
		require.NoError(s.T(), err)
		assert.Zero(s.T(), n)

		owners, err = tx.RetargetEdges(ctx, c.ID, b.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), []int64{a.ID}, owners)

		incoming, err := tx.EdgesByTarget(ctx, b.ID)
		require.NoError(s.T(), err)
		require.Len(s.T(), incoming, 1)
		assert.Equal(s.T(), dangling.Key(), incoming[0].Key())

		require.NoError(s.T(), tx.DeleteEdge(ctx, other.Key()))
		assert.True(s.T(), errors.Is(tx.DeleteEdge(ctx, other.Key()), store.ErrNotFound))

		require.NoError(s.T(), tx.DeleteRecord(ctx, b.ID))
		edges, err := tx.EdgesByRecord(ctx, a.ID)
		require.NoError(s.T(), err)
		require.Len(s.T(), edges, 1)
		assert.Nil(s.T(), edges[0].TargetID)
		return nil
	})
	s.Require().NoError(err)
}

func (s *StorageSuite) TestNestedSavepoint() {
	a := &common.Record{Country: common.Chile, CanonicalID: ptr("Law-1")}
	s.seed(a)

	err := s.s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		nestedErr := tx.Nested(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.SaveEdges(ctx, []common.Edge{{RecordID: a.ID + 99, Country: common.Chile, Role: common.Modifies, TargetLawID: "Law-3", DateState: common.DateAbsent}})
			return err
		})
		assert.True(s.T(), errors.Is(nestedErr, store.ErrNotFound), "foreign key violation maps to not found: %v", nestedErr)

		_, err := tx.SaveEdges(ctx, []common.Edge{{RecordID: a.ID, Country: common.Chile, Role: common.Modifies, TargetLawID: "Law-3", DateState: common.DateAbsent}})
		return err
	})
	s.Require().NoError(err)
}
