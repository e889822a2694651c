package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ratesync/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var loadDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func TestPostgresStore_LoadPeriod_EmptyBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.LoadPeriod(context.Background(), "FL", nil, loadDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadPeriod_CopyFastPath(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []model.FactRecord{
		{FacilityName: "Sunrise Care Center", Rate: 245.50, RateType: "total"},
		{FacilityName: "Maplewood Manor", Rate: 198.25, RateType: "total"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("ratesync:FL").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`UPDATE rate_facts SET end_date`).
		WithArgs(loadDate, "FL").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectBegin() // savepoint around COPY
	mock.ExpectCopyFrom(pgx.Identifier{"rate_facts"}, factInsertColumns).WillReturnResult(2)
	mock.ExpectCommit()
	mock.ExpectCommit()

	res, err := s.LoadPeriod(context.Background(), "FL", records, loadDate)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Closed)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadPeriod_RowwiseFallbackSkipsBadRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []model.FactRecord{
		{FacilityName: "Sunrise Care Center", Rate: 245.50, RateType: "total"},
		{FacilityName: "Maplewood Manor", Rate: 198.25, RateType: "total"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("ratesync:FL").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`UPDATE rate_facts SET end_date`).
		WithArgs(loadDate, "FL").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	// COPY fails and rolls back to its savepoint.
	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"rate_facts"}, factInsertColumns).
		WillReturnError(fmt.Errorf("invalid byte sequence"))
	mock.ExpectRollback()

	// Row-wise fallback: first row lands, second fails and is skipped.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO rate_facts`).
		WithArgs("FL", "Sunrise Care Center", nil, 245.50, "total", loadDate, nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO rate_facts`).
		WithArgs("FL", "Maplewood Manor", nil, 198.25, "total", loadDate, nil, nil).
		WillReturnError(fmt.Errorf("value too long"))
	mock.ExpectRollback()

	mock.ExpectCommit()

	res, err := s.LoadPeriod(context.Background(), "FL", records, loadDate)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadPeriod_AllRowsFailRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []model.FactRecord{
		{FacilityName: "Sunrise Care Center", Rate: 245.50, RateType: "total"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("ratesync:FL").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`UPDATE rate_facts SET end_date`).
		WithArgs(loadDate, "FL").
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"rate_facts"}, factInsertColumns).
		WillReturnError(fmt.Errorf("invalid byte sequence"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO rate_facts`).
		WithArgs("FL", "Sunrise Care Center", nil, 245.50, "total", loadDate, nil, nil).
		WillReturnError(fmt.Errorf("value too long"))
	mock.ExpectRollback()

	// Nothing inserted: the close must not survive.
	mock.ExpectRollback()

	_, err := s.LoadPeriod(context.Background(), "FL", records, loadDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rows inserted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func i64ptr(v int64) *int64 { return &v }
func iptr(v int) *int       { return &v }

var factRowColumns = []string{
	"id", "jurisdiction", "facility_name", "external_id", "rate", "rate_type",
	"effective_date", "end_date", "source_file", "ingest_method",
	"registry_entity_id", "match_score", "match_verified",
}

func TestPostgresStore_Current(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM rate_facts WHERE jurisdiction = \$1 AND end_date IS NULL ORDER BY facility_name`).
		WithArgs("FL").
		WillReturnRows(pgxmock.NewRows(factRowColumns).
			AddRow(int64(1), "FL", "Maplewood Manor", "100456", 198.25, "total", loadDate, nil, "rates.xlsx", "compiled", nil, nil, false).
			AddRow(int64(2), "FL", "Sunrise Care Center", "100123", 245.50, "total", loadDate, nil, "rates.xlsx", "compiled", i64ptr(7), iptr(95), false))

	facts, err := s.Current(context.Background(), "FL")
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, "Maplewood Manor", facts[0].FacilityName)
	assert.True(t, facts[0].Open())
	assert.Nil(t, facts[0].EntityID)

	require.NotNil(t, facts[1].EntityID)
	assert.Equal(t, int64(7), *facts[1].EntityID)
	require.NotNil(t, facts[1].MatchScore)
	assert.Equal(t, 95, *facts[1].MatchScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnmatchedFacts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`registry_entity_id IS NULL ORDER BY id`).
		WithArgs("FL").
		WillReturnRows(pgxmock.NewRows(factRowColumns).
			AddRow(int64(3), "FL", "Riverside Manor", "", 150.00, "total", loadDate, nil, "", "", nil, nil, false))

	facts, err := s.UnmatchedFacts(context.Background(), "FL")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(3), facts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_History(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	older := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`GROUP BY effective_date ORDER BY effective_date DESC`).
		WithArgs("FL").
		WillReturnRows(pgxmock.NewRows([]string{"effective_date", "end_date", "count", "min", "avg", "max"}).
			AddRow(loadDate, nil, 120, 98.50, 212.40, 450.00).
			AddRow(older, &loadDate, 118, 95.00, 205.10, 440.00))

	history, err := s.History(context.Background(), "FL")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Nil(t, history[0].EndDate)
	assert.Equal(t, 120, history[0].Facilities)
	require.NotNil(t, history[1].EndDate)
	assert.Equal(t, loadDate, *history[1].EndDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Changes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`LAG\(rate\) OVER`).
		WillReturnRows(pgxmock.NewRows([]string{"jurisdiction", "facilities", "avg_dollar", "avg_pct", "inc", "dec", "unch"}).
			AddRow("FL", 110, 6.25, 2.9, 80, 20, 10))

	changes, err := s.Changes(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "FL", changes[0].Jurisdiction)
	assert.Equal(t, 80, changes[0].Increases)
	assert.InDelta(t, 6.25, changes[0].AvgChangeDollar, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkFact_Updates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE rate_facts SET registry_entity_id`).
		WithArgs(int64(7), 95, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.LinkFact(context.Background(), 3, 7, 95)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkFact_VerifiedLeftAlone(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE rate_facts SET registry_entity_id`).
		WithArgs(int64(7), 95, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT match_verified FROM rate_facts`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"match_verified"}).AddRow(true))

	err := s.LinkFact(context.Background(), 3, 7, 95)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkFact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE rate_facts SET registry_entity_id`).
		WithArgs(int64(7), 95, int64(9999)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT match_verified FROM rate_facts`).
		WithArgs(int64(9999)).
		WillReturnError(pgx.ErrNoRows)

	err := s.LinkFact(context.Background(), 9999, 7, 95)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: fact not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MatchSummary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`COUNT\(registry_entity_id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"jurisdiction", "open", "matched"}).
			AddRow("FL", 10, 7).
			AddRow("GA", 4, 0))

	summary, err := s.MatchSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, 3, summary[0].Unmatched)
	assert.InDelta(t, 70.0, summary[0].MatchedPct, 0.001)
	assert.InDelta(t, 0.0, summary[1].MatchedPct, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEntities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM facility_registry WHERE jurisdiction = \$1 ORDER BY id`).
		WithArgs("FL").
		WillReturnRows(pgxmock.NewRows([]string{"id", "jurisdiction", "name", "external_id", "city", "zip"}).
			AddRow(int64(1), "FL", "Sunrise Care Center", "105001", "Tampa", "33601"))

	entities, err := s.ListEntities(context.Background(), "FL")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Sunrise Care Center", entities[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCollection_GeneratesBatchID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO collection_log`).
		WithArgs(pgxmock.AnyArg(), "FL", "success", 1, 120, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCollection(context.Background(), model.CollectionEntry{
		Jurisdiction:  "FL",
		Status:        model.CollectionSuccess,
		FilesFound:    1,
		RecordsLoaded: 120,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS facility_registry`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
