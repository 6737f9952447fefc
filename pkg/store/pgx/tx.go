package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

type dbTx struct {
	tx        pgxv5.Tx
	batchSize int
}

func (t *dbTx) Nested(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	if err := fn(ctx, &dbTx{tx: sp, batchSize: t.batchSize}); err != nil {
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", mapErr(err))
	}
	return nil
}

const recordColumns = `id, country, identifier_text, canonical_id, status, stages, source_key,
	has_text, has_votes, committee_count, amendment_count,
	affecting_laws_count, modified_laws_count, modified_laws, affecting_laws_first_date`

func scanRecord(row pgxv5.CollectableRow) (common.Record, error) {
	var (
		r                        common.Record
		country, status          string
		stages                   []byte
		affecting, modifiedCount *int32
	)
	err := row.Scan(
		&r.ID, &country, &r.IdentifierText, &r.CanonicalID, &status, &stages, &r.SourceKey,
		&r.HasText, &r.HasVotes, &r.CommitteeCount, &r.AmendmentCount,
		&affecting, &modifiedCount, &r.Metrics.ModifiedLaws, &r.Metrics.AffectingLawsFirstDate,
	)
	if err != nil {
		return common.Record{}, err
	}
	r.Country = common.Country(country)
	r.Status = common.Status(status)
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &r.Stages); err != nil {
			return common.Record{}, fmt.Errorf("decode stages of record %d: %w", r.ID, err)
		}
	}
	r.Metrics.AffectingLawsCount = intPtr(affecting)
	r.Metrics.ModifiedLawsCount = intPtr(modifiedCount)
	return r, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (t *dbTx) queryRecords(ctx context.Context, sql string, args ...any) ([]common.Record, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, scanRecord)
}

func (t *dbTx) GetRecord(ctx context.Context, id int64) (common.Record, error) {
	rows, err := t.queryRecords(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	if err != nil {
		return common.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	if len(rows) == 0 {
		return common.Record{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return rows[0], nil
}

func (t *dbTx) FindByCountryAndCanonicalID(ctx context.Context, country common.Country, canonicalID string) (common.Record, error) {
	rows, err := t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE country = $1 AND canonical_id = $2
		ORDER BY id
		LIMIT 1`, string(country), canonicalID)
	if err != nil {
		return common.Record{}, fmt.Errorf("find record %s/%s: %w", country, canonicalID, err)
	}
	if len(rows) == 0 {
		return common.Record{}, fmt.Errorf("record %s/%s: %w", country, canonicalID, store.ErrNotFound)
	}
	return rows[0], nil
}

func (t *dbTx) FindAllByCountryAndCanonicalID(ctx context.Context, country common.Country, canonicalID string) ([]common.Record, error) {
	rows, err := t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE country = $1 AND canonical_id = $2
		ORDER BY id`, string(country), canonicalID)
	if err != nil {
		return nil, fmt.Errorf("find records %s/%s: %w", country, canonicalID, err)
	}
	return rows, nil
}

func (t *dbTx) FindAllEligible(ctx context.Context, country common.Country, requirePassed bool, page store.Page) ([]common.Record, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE country = $1
		  AND canonical_id IS NOT NULL AND canonical_id <> ''
		  AND ($2 = FALSE OR status = 'passed')
		  AND id > $3
		ORDER BY id
		LIMIT CASE WHEN $4::int < 0 THEN NULL ELSE $4::int END`,
		string(country), requirePassed, page.AfterID, limit)
	if err != nil {
		return nil, fmt.Errorf("find eligible records %s after %d: %w", country, page.AfterID, err)
	}
	return rows, nil
}

func (t *dbTx) FindDuplicateGroups(ctx context.Context, country common.Country) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT canonical_id FROM records
		WHERE country = $1 AND canonical_id IS NOT NULL AND canonical_id <> ''
		GROUP BY canonical_id
		HAVING count(*) > 1`, string(country))
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups %s: %w", country, err)
	}
	ids, err := pgxv5.CollectRows(rows, pgxv5.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups %s: %w", country, err)
	}
	// byte order, independent of the database collation
	slices.Sort(ids)
	return ids, nil
}

func (t *dbTx) SaveRecord(ctx context.Context, r *common.Record) error {
	stages, err := json.Marshal(r.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	if r.Stages == nil {
		stages = []byte("[]")
	}

	if r.ID == 0 {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO records (country, identifier_text, canonical_id, status, stages, source_key,
				has_text, has_votes, committee_count, amendment_count,
				affecting_laws_count, modified_laws_count, modified_laws, affecting_laws_first_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id`,
			string(r.Country), store.SanitizeText(r.IdentifierText), r.CanonicalID, string(r.Status), stages, r.SourceKey,
			r.HasText, r.HasVotes, r.CommitteeCount, r.AmendmentCount,
			r.Metrics.AffectingLawsCount, r.Metrics.ModifiedLawsCount, r.Metrics.ModifiedLaws,
			store.DateOnly(r.Metrics.AffectingLawsFirstDate),
		).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("insert record: %w", mapErr(err))
		}
		return nil
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE records
		SET country = $2, identifier_text = $3, canonical_id = $4, status = $5, stages = $6,
			source_key = $7, has_text = $8, has_votes = $9, committee_count = $10,
			amendment_count = $11, updated_at = now()
		WHERE id = $1`,
		r.ID, string(r.Country), store.SanitizeText(r.IdentifierText), r.CanonicalID, string(r.Status), stages,
		r.SourceKey, r.HasText, r.HasVotes, r.CommitteeCount, r.AmendmentCount)
	if err != nil {
		return fmt.Errorf("update record %d: %w", r.ID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (t *dbTx) SaveMetrics(ctx context.Context, id int64, m common.Metrics) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE records
		SET affecting_laws_count = $2, modified_laws_count = $3, modified_laws = $4,
			affecting_laws_first_date = $5, updated_at = now()
		WHERE id = $1`,
		id, m.AffectingLawsCount, m.ModifiedLawsCount, m.ModifiedLaws, store.DateOnly(m.AffectingLawsFirstDate))
	if err != nil {
		return fmt.Errorf("save metrics of record %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (t *dbTx) DeleteRecord(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	return nil
}

const upsertEdgeSQL = `
INSERT INTO affecting_laws (record_id, country, source_law_id, role, target_law_id, target_id,
	affecting_article, modified_article, affecting_date, date_state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT ON CONSTRAINT affecting_laws_natural_key DO UPDATE
SET country       = EXCLUDED.country,
    source_law_id = EXCLUDED.source_law_id,
    target_id     = COALESCE(EXCLUDED.target_id, affecting_laws.target_id),
    date_state    = EXCLUDED.date_state
RETURNING (xmax = 0) AS inserted
`

func (t *dbTx) SaveEdges(ctx context.Context, edges []common.Edge) (int, error) {
	edges = store.DedupeEdges(edges)
	inserted := 0
	err := store.ChunkRange(len(edges), t.batchSize, func(start, end int) error {
		batch := &pgxv5.Batch{}
		for _, e := range edges[start:end] {
			batch.Queue(upsertEdgeSQL,
				e.RecordID, string(e.Country), e.SourceLawID, string(e.Role), e.TargetLawID, e.TargetID,
				store.SanitizeText(e.AffectingArticle), store.SanitizeText(e.ModifiedArticle), store.DateOnly(e.AffectingDate), string(e.DateState))
		}
		br := t.tx.SendBatch(ctx, batch)
		defer br.Close()
		for range end - start {
			var isNew bool
			if err := br.QueryRow().Scan(&isNew); err != nil {
				return mapErr(err)
			}
			if isNew {
				inserted++
			}
		}
		return br.Close()
	})
	if err != nil {
		return inserted, fmt.Errorf("save edges: %w", err)
	}
	return inserted, nil
}

const edgeColumns = `id, record_id, country, source_law_id, role, target_law_id, target_id,
	affecting_article, modified_article, affecting_date, date_state`

func scanEdge(row pgxv5.CollectableRow) (common.Edge, error) {
	var (
		e                        common.Edge
		country, role, dateState string
		date                     *time.Time
	)
	err := row.Scan(&e.ID, &e.RecordID, &country, &e.SourceLawID, &role, &e.TargetLawID, &e.TargetID,
		&e.AffectingArticle, &e.ModifiedArticle, &date, &dateState)
	if err != nil {
		return common.Edge{}, err
	}
	e.Country = common.Country(country)
	e.Role = common.Role(role)
	e.DateState = common.DateState(dateState)
	e.AffectingDate = store.DateOnly(date)
	return e, nil
}

func (t *dbTx) queryEdges(ctx context.Context, sql string, args ...any) ([]common.Edge, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgxv5.CollectRows(rows, scanEdge)
}

func (t *dbTx) EdgesByRecord(ctx context.Context, recordID int64) ([]common.Edge, error) {
	edges, err := t.queryEdges(ctx, `SELECT `+edgeColumns+` FROM affecting_laws WHERE record_id = $1 ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("edges of record %d: %w", recordID, err)
	}
	return edges, nil
}

func (t *dbTx) EdgesByTarget(ctx context.Context, targetID int64) ([]common.Edge, error) {
	edges, err := t.queryEdges(ctx, `SELECT `+edgeColumns+` FROM affecting_laws WHERE target_id = $1 ORDER BY id`, targetID)
	if err != nil {
		return nil, fmt.Errorf("edges targeting record %d: %w", targetID, err)
	}
	return edges, nil
}

func (t *dbTx) DeleteEdge(ctx context.Context, key common.EdgeKey) error {
	var date *time.Time
	if key.AffectingDate != "" {
		d, err := time.Parse(time.DateOnly, key.AffectingDate)
		if err != nil {
			return fmt.Errorf("edge key date %q: %w", key.AffectingDate, err)
		}
		date = &d
	}
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM affecting_laws
		WHERE record_id = $1 AND role = $2 AND target_law_id = $3
		  AND affecting_article = $4 AND modified_article = $5
		  AND affecting_date IS NOT DISTINCT FROM $6::date`,
		key.RecordID, string(key.Role), key.TargetLawID, key.AffectingArticle, key.ModifiedArticle, date)
	if err != nil {
		return fmt.Errorf("delete edge of record %d: %w", key.RecordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("edge %+v: %w", key, store.ErrNotFound)
	}
	return nil
}

func (t *dbTx) RetargetEdges(ctx context.Context, from, to int64) ([]int64, error) {
	owners, err := t.updateOwners(ctx, `
		UPDATE affecting_laws SET target_id = $2
		WHERE target_id = $1
		RETURNING record_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("retarget edges %d -> %d: %w", from, to, err)
	}
	return owners, nil
}

func (t *dbTx) BindDangling(ctx context.Context, country common.Country, canonicalID string, targetID int64) ([]int64, error) {
	owners, err := t.updateOwners(ctx, `
		UPDATE affecting_laws SET target_id = $3
		WHERE country = $1 AND target_law_id = $2 AND target_id IS NULL
		RETURNING record_id`, string(country), canonicalID, targetID)
	if err != nil {
		return nil, fmt.Errorf("bind dangling edges %s/%s: %w", country, canonicalID, err)
	}
	return owners, nil
}

func (t *dbTx) updateOwners(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	owners, err := pgxv5.CollectRows(rows, pgxv5.RowTo[int64])
	if err != nil {
		return nil, mapErr(err)
	}
	return store.DedupeIDs(owners), nil
}
