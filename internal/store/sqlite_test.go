package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratesync/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func factBatch(names []string, rates []float64) []model.FactRecord {
	records := make([]model.FactRecord, len(names))
	for i, name := range names {
		records[i] = model.FactRecord{
			FacilityName: name,
			Rate:         rates[i],
			RateType:     "total",
			SourceFile:   "rates.xlsx",
			IngestMethod: "compiled",
		}
	}
	return records
}

var (
	period1 = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	period2 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
)

// --- LoadPeriod ---

func TestSQLite_LoadPeriod_FirstLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center", "Maplewood Manor"}, []float64{245.50, 198.25}), period1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Closed)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Skipped)

	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "Maplewood Manor", facts[0].FacilityName) // facility name order
	assert.True(t, facts[0].Open())
	assert.Equal(t, period1, facts[0].EffectiveDate)
}

func TestSQLite_LoadPeriod_ClosesPriorVersion(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center", "Maplewood Manor"}, []float64{245.50, 198.25}), period1)
	require.NoError(t, err)

	res, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center", "Maplewood Manor"}, []float64{251.00, 200.00}), period2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	assert.Equal(t, 2, res.Inserted)

	// Only the new period is open.
	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.True(t, f.Open())
		assert.Equal(t, period2, f.EffectiveDate)
	}

	// The prior version is closed at the new effective date, not deleted.
	history, err := st.History(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, period2, history[0].EffectiveDate)
	assert.Nil(t, history[0].EndDate)
	assert.Equal(t, period1, history[1].EffectiveDate)
	require.NotNil(t, history[1].EndDate)
	assert.Equal(t, period2, *history[1].EndDate)
}

func TestSQLite_LoadPeriod_SameDateReload(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{245.50}), period1)
	require.NoError(t, err)

	// Reloading the same period (a correction) closes the open rows
	// same-day and inserts fresh ones; no in-place edit.
	res, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{247.00}), period1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 1, res.Inserted)

	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.True(t, facts[0].Open())
	assert.Equal(t, period1, facts[0].EffectiveDate)
	assert.InDelta(t, 247.00, facts[0].Rate, 0.001)

	// Both versions survive as history under the shared effective date.
	history, err := st.History(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, period1, history[0].EffectiveDate)
	assert.Equal(t, 2, history[0].Facilities)
}

func TestSQLite_LoadPeriod_IsolatedByJurisdiction(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{245.50}), period1)
	require.NoError(t, err)
	res, err := st.LoadPeriod(ctx, "GA", factBatch([]string{"Peachtree Manor"}, []float64{210.00}), period1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Closed) // FL facts untouched

	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	assert.Len(t, facts, 1)

	jurisdictions, err := st.Jurisdictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FL", "GA"}, jurisdictions)
}

func TestSQLite_LoadPeriod_EmptyBatchRejected(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LoadPeriod(context.Background(), "FL", nil, period1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty batch")
}

func TestSQLite_History_Aggregates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"A", "B", "C"}, []float64{100, 200, 300}), period1)
	require.NoError(t, err)

	history, err := st.History(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].Facilities)
	assert.Equal(t, 100.0, history[0].MinRate)
	assert.Equal(t, 200.0, history[0].AvgRate)
	assert.Equal(t, 300.0, history[0].MaxRate)
}

// --- Registry and matching ---

func seedRegistry(t *testing.T, st *SQLiteStore) []model.RegistryEntity {
	t.Helper()
	n, err := st.ImportRegistry(context.Background(), []model.RegistryEntity{
		{Jurisdiction: "FL", Name: "Sunrise Care Center", ExternalID: "105001", City: "Tampa"},
		{Jurisdiction: "FL", Name: "Maplewood Manor", ExternalID: "105002", City: "Orlando"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	entities, err := st.ListEntities(context.Background(), "FL")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	return entities
}

func TestSQLite_ImportRegistry_UpsertByName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedRegistry(t, st)

	// Re-import with a changed city updates in place.
	_, err := st.ImportRegistry(ctx, []model.RegistryEntity{
		{Jurisdiction: "FL", Name: "Sunrise Care Center", ExternalID: "105001", City: "St. Petersburg"},
	})
	require.NoError(t, err)

	entities, err := st.ListEntities(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "St. Petersburg", entities[0].City)
}

func TestSQLite_LinkFact_AndUnmatched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	entities := seedRegistry(t, st)

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center", "Maplewood Manor"}, []float64{245.50, 198.25}), period1)
	require.NoError(t, err)

	unmatched, err := st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, unmatched, 2)

	require.NoError(t, st.LinkFact(ctx, unmatched[0].ID, entities[0].ID, 100))

	unmatched, err = st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, unmatched, 1)

	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	var linked *model.VersionedFact
	for i := range facts {
		if facts[i].EntityID != nil {
			linked = &facts[i]
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, entities[0].ID, *linked.EntityID)
	require.NotNil(t, linked.MatchScore)
	assert.Equal(t, 100, *linked.MatchScore)
}

func TestSQLite_LinkFact_VerifiedNotOverwritten(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	entities := seedRegistry(t, st)

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{245.50}), period1)
	require.NoError(t, err)
	unmatched, err := st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	factID := unmatched[0].ID

	require.NoError(t, st.LinkFact(ctx, factID, entities[0].ID, 96))
	_, err = st.db.Exec(`UPDATE rate_facts SET match_verified = 1 WHERE id = ?`, factID)
	require.NoError(t, err)

	// Relinking a verified fact is a no-op, not an error.
	require.NoError(t, st.LinkFact(ctx, factID, entities[1].ID, 88))

	facts, err := st.Current(ctx, "FL")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.NotNil(t, facts[0].EntityID)
	assert.Equal(t, entities[0].ID, *facts[0].EntityID)
	require.NotNil(t, facts[0].MatchScore)
	assert.Equal(t, 96, *facts[0].MatchScore)
}

func TestSQLite_LinkFact_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.LinkFact(context.Background(), 9999, 1, 90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: fact not found")
}

func TestSQLite_MatchSummary(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	entities := seedRegistry(t, st)

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center", "Maplewood Manor"}, []float64{245.50, 198.25}), period1)
	require.NoError(t, err)
	unmatched, err := st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	require.NoError(t, st.LinkFact(ctx, unmatched[0].ID, entities[0].ID, 100))

	summary, err := st.MatchSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "FL", summary[0].Jurisdiction)
	assert.Equal(t, 2, summary[0].OpenFacts)
	assert.Equal(t, 1, summary[0].Matched)
	assert.Equal(t, 1, summary[0].Unmatched)
	assert.InDelta(t, 50.0, summary[0].MatchedPct, 0.01)
}

func TestSQLite_Changes_AdjacentPeriods(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	entities := seedRegistry(t, st)

	_, err := st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{100}), period1)
	require.NoError(t, err)
	unmatched, err := st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	require.NoError(t, st.LinkFact(ctx, unmatched[0].ID, entities[0].ID, 100))

	_, err = st.LoadPeriod(ctx, "FL", factBatch([]string{"Sunrise Care Center"}, []float64{110}), period2)
	require.NoError(t, err)
	unmatched, err = st.UnmatchedFacts(ctx, "FL")
	require.NoError(t, err)
	require.NoError(t, st.LinkFact(ctx, unmatched[0].ID, entities[0].ID, 100))

	changes, err := st.Changes(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "FL", changes[0].Jurisdiction)
	assert.Equal(t, 1, changes[0].Facilities)
	assert.InDelta(t, 10.0, changes[0].AvgChangeDollar, 0.01)
	assert.InDelta(t, 10.0, changes[0].AvgChangePct, 0.01)
	assert.Equal(t, 1, changes[0].Increases)
	assert.Equal(t, 0, changes[0].Decreases)
	assert.Equal(t, 0, changes[0].Unchanged)
}

// --- Collection log ---

func TestSQLite_CollectionLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordCollection(ctx, model.CollectionEntry{
		BatchID:       "batch-1",
		Jurisdiction:  "FL",
		Status:        model.CollectionSuccess,
		FilesFound:    1,
		RecordsLoaded: 120,
	}))
	require.NoError(t, st.RecordCollection(ctx, model.CollectionEntry{
		Jurisdiction: "GA",
		Status:       model.CollectionFailed,
		Error:        "no rate column detected",
	}))

	entries, err := st.RecentCollections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "GA", entries[0].Jurisdiction)
	assert.Equal(t, model.CollectionFailed, entries[0].Status)
	assert.Equal(t, "no rate column detected", entries[0].Error)
	assert.NotEmpty(t, entries[0].BatchID) // generated when absent

	assert.Equal(t, "batch-1", entries[1].BatchID)
	assert.Equal(t, 120, entries[1].RecordsLoaded)
}

func TestSQLite_RecentCollections_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordCollection(ctx, model.CollectionEntry{
			Jurisdiction: "FL",
			Status:       model.CollectionSuccess,
		}))
	}

	entries, err := st.RecentCollections(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in the helper; a second run must not error.
	require.NoError(t, st.Migrate(context.Background()))
}
