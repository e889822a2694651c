package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ratesync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves local and
// test deployments; production runs on PostgresStore.
type SQLiteStore struct {
	db *sql.DB

	// SQLite has a single writer. The mutex serializes same-process loads
	// so two concurrent LoadPeriod calls cannot interleave close and
	// insert for the same jurisdiction.
	loadMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facility_registry (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	jurisdiction TEXT NOT NULL,
	name        TEXT NOT NULL,
	external_id TEXT,
	city        TEXT,
	zip         TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (jurisdiction, name)
);

CREATE INDEX IF NOT EXISTS idx_facility_registry_jurisdiction ON facility_registry(jurisdiction);

CREATE TABLE IF NOT EXISTS rate_facts (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	jurisdiction       TEXT NOT NULL,
	facility_name      TEXT NOT NULL,
	external_id        TEXT,
	rate               REAL NOT NULL,
	rate_type          TEXT NOT NULL DEFAULT 'total',
	effective_date     TEXT NOT NULL,
	end_date           TEXT,
	source_file        TEXT,
	ingest_method      TEXT,
	registry_entity_id INTEGER REFERENCES facility_registry(id),
	match_score        INTEGER,
	match_verified     INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rate_facts_open ON rate_facts(jurisdiction) WHERE end_date IS NULL;
CREATE INDEX IF NOT EXISTS idx_rate_facts_period ON rate_facts(jurisdiction, effective_date);
CREATE INDEX IF NOT EXISTS idx_rate_facts_entity ON rate_facts(registry_entity_id);

CREATE TABLE IF NOT EXISTS collection_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id       TEXT NOT NULL,
	jurisdiction   TEXT NOT NULL,
	status         TEXT NOT NULL,
	files_found    INTEGER NOT NULL DEFAULT 0,
	records_loaded INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_collection_log_created_at ON collection_log(created_at DESC);
`

// Dates are stored as ISO text so grouping and range comparisons stay
// lexicographic regardless of driver time handling.
const sqliteDateLayout = "2006-01-02"

func sqliteDate(t time.Time) string {
	return t.Format(sqliteDateLayout)
}

func parseSQLiteDate(s string) (time.Time, error) {
	return time.Parse(sqliteDateLayout, s)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadPeriod closes every open fact for the jurisdiction and inserts the
// batch as the new open version, in one transaction. Rows that fail to
// insert are logged and skipped; a batch where nothing inserts rolls back.
func (s *SQLiteStore) LoadPeriod(ctx context.Context, jurisdiction string, records []model.FactRecord, effectiveDate time.Time) (*model.LoadResult, error) {
	if len(records) == 0 {
		return nil, eris.Errorf("sqlite: %s: refusing to close open facts for an empty batch", jurisdiction)
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	log := zap.L().With(
		zap.String("component", "store"),
		zap.String("jurisdiction", jurisdiction),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: begin load", jurisdiction)
	}
	defer tx.Rollback()

	tag, err := tx.ExecContext(ctx,
		`UPDATE rate_facts SET end_date = ? WHERE jurisdiction = ? AND end_date IS NULL`,
		sqliteDate(effectiveDate), jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: close open facts", jurisdiction)
	}
	closed, err := tag.RowsAffected()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: close open facts", jurisdiction)
	}
	res := &model.LoadResult{Closed: int(closed)}

	for i := range records {
		rec := &records[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rate_facts (jurisdiction, facility_name, external_id, rate, rate_type, effective_date, source_file, ingest_method) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			jurisdiction, rec.FacilityName, nullIfEmpty(rec.ExternalID), rec.Rate, rec.RateType, sqliteDate(effectiveDate), nullIfEmpty(rec.SourceFile), nullIfEmpty(rec.IngestMethod),
		)
		if err != nil {
			res.Skipped++
			log.Warn("fact insert failed, skipping row",
				zap.String("facility", rec.FacilityName),
				zap.Error(err),
			)
			continue
		}
		res.Inserted++
	}

	if res.Inserted == 0 {
		return nil, eris.Errorf("sqlite: %s: no rows inserted, rolling back close of %d facts", jurisdiction, res.Closed)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: commit load", jurisdiction)
	}

	log.Info("period loaded",
		zap.Time("effective_date", effectiveDate),
		zap.Int("closed", res.Closed),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

const sqliteFactColumns = `id, jurisdiction, facility_name, COALESCE(external_id, ''), rate, rate_type, effective_date, end_date, COALESCE(source_file, ''), COALESCE(ingest_method, ''), registry_entity_id, match_score, match_verified`

func (s *SQLiteStore) Current(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteFactColumns+` FROM rate_facts WHERE jurisdiction = ? AND end_date IS NULL ORDER BY facility_name`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: query open facts", jurisdiction)
	}
	defer rows.Close()
	return scanSQLiteFacts(rows, jurisdiction)
}

func (s *SQLiteStore) UnmatchedFacts(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteFactColumns+` FROM rate_facts WHERE jurisdiction = ? AND end_date IS NULL AND registry_entity_id IS NULL ORDER BY id`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: query unmatched facts", jurisdiction)
	}
	defer rows.Close()
	return scanSQLiteFacts(rows, jurisdiction)
}

func scanSQLiteFacts(rows *sql.Rows, jurisdiction string) ([]model.VersionedFact, error) {
	var facts []model.VersionedFact
	for rows.Next() {
		var f model.VersionedFact
		var effectiveDate string
		var endDate sql.NullString
		var entityID, matchScore sql.NullInt64
		if err := rows.Scan(
			&f.ID, &f.Jurisdiction, &f.FacilityName, &f.ExternalID,
			&f.Rate, &f.RateType, &effectiveDate, &endDate,
			&f.SourceFile, &f.IngestMethod,
			&entityID, &matchScore, &f.MatchVerified,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: scan fact", jurisdiction)
		}
		var err error
		if f.EffectiveDate, err = parseSQLiteDate(effectiveDate); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: parse effective date", jurisdiction)
		}
		if endDate.Valid {
			d, err := parseSQLiteDate(endDate.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: %s: parse end date", jurisdiction)
			}
			f.EndDate = &d
		}
		if entityID.Valid {
			id := entityID.Int64
			f.EntityID = &id
		}
		if matchScore.Valid {
			score := int(matchScore.Int64)
			f.MatchScore = &score
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: iterate facts", jurisdiction)
	}
	return facts, nil
}

func (s *SQLiteStore) History(ctx context.Context, jurisdiction string) ([]model.PeriodSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT effective_date, MAX(end_date), COUNT(*), MIN(rate), AVG(rate), MAX(rate) FROM rate_facts WHERE jurisdiction = ? GROUP BY effective_date ORDER BY effective_date DESC`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: query history", jurisdiction)
	}
	defer rows.Close()

	var periods []model.PeriodSummary
	for rows.Next() {
		var p model.PeriodSummary
		var effectiveDate string
		var endDate sql.NullString
		if err := rows.Scan(&effectiveDate, &endDate, &p.Facilities, &p.MinRate, &p.AvgRate, &p.MaxRate); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: scan period", jurisdiction)
		}
		var err error
		if p.EffectiveDate, err = parseSQLiteDate(effectiveDate); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: parse period date", jurisdiction)
		}
		if endDate.Valid {
			d, err := parseSQLiteDate(endDate.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: %s: parse period end date", jurisdiction)
			}
			p.EndDate = &d
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: iterate history", jurisdiction)
	}
	return periods, nil
}

func (s *SQLiteStore) Changes(ctx context.Context) ([]model.RateChange, error) {
	rows, err := s.db.QueryContext(ctx, `
WITH linked AS (
	SELECT jurisdiction, rate,
	       LAG(rate) OVER (PARTITION BY jurisdiction, registry_entity_id ORDER BY effective_date) AS prior_rate
	FROM rate_facts
	WHERE registry_entity_id IS NOT NULL
)
SELECT jurisdiction,
       COUNT(*),
       AVG(rate - prior_rate),
       AVG((rate - prior_rate) / prior_rate * 100),
       COUNT(*) FILTER (WHERE rate > prior_rate),
       COUNT(*) FILTER (WHERE rate < prior_rate),
       COUNT(*) FILTER (WHERE rate = prior_rate)
FROM linked
WHERE prior_rate IS NOT NULL AND prior_rate > 0
GROUP BY jurisdiction
ORDER BY jurisdiction`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query changes")
	}
	defer rows.Close()

	var changes []model.RateChange
	for rows.Next() {
		var c model.RateChange
		if err := rows.Scan(&c.Jurisdiction, &c.Facilities, &c.AvgChangeDollar, &c.AvgChangePct, &c.Increases, &c.Decreases, &c.Unchanged); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate changes")
	}
	return changes, nil
}

func (s *SQLiteStore) Jurisdictions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT jurisdiction FROM rate_facts ORDER BY jurisdiction`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query jurisdictions")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var j string
		if err := rows.Scan(&j); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan jurisdiction")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate jurisdictions")
	}
	return out, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, jurisdiction string) ([]model.RegistryEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, jurisdiction, name, COALESCE(external_id, ''), COALESCE(city, ''), COALESCE(zip, '') FROM facility_registry WHERE jurisdiction = ? ORDER BY id`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: query registry", jurisdiction)
	}
	defer rows.Close()

	var entities []model.RegistryEntity
	for rows.Next() {
		var e model.RegistryEntity
		if err := rows.Scan(&e.ID, &e.Jurisdiction, &e.Name, &e.ExternalID, &e.City, &e.Zip); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s: scan entity", jurisdiction)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s: iterate registry", jurisdiction)
	}
	return entities, nil
}

func (s *SQLiteStore) ImportRegistry(ctx context.Context, entities []model.RegistryEntity) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import registry: begin")
	}
	defer tx.Rollback()

	var n int64
	for _, e := range entities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO facility_registry (jurisdiction, name, external_id, city, zip) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (jurisdiction, name) DO UPDATE SET external_id = excluded.external_id, city = excluded.city, zip = excluded.zip`,
			e.Jurisdiction, e.Name, nullIfEmpty(e.ExternalID), nullIfEmpty(e.City), nullIfEmpty(e.Zip),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import registry: upsert %s", e.Name)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import registry: commit")
	}
	return n, nil
}

func (s *SQLiteStore) LinkFact(ctx context.Context, factID, entityID int64, score int) error {
	tag, err := s.db.ExecContext(ctx,
		`UPDATE rate_facts SET registry_entity_id = ?, match_score = ? WHERE id = ? AND match_verified = 0`,
		entityID, score, factID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link fact %d", factID)
	}
	affected, err := tag.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: link fact %d", factID)
	}
	if affected > 0 {
		return nil
	}

	var verified bool
	err = s.db.QueryRowContext(ctx, `SELECT match_verified FROM rate_facts WHERE id = ?`, factID).Scan(&verified)
	if err == sql.ErrNoRows {
		return eris.Errorf("sqlite: fact not found: %d", factID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: check fact %d", factID)
	}
	// Verified link left in place.
	return nil
}

func (s *SQLiteStore) MatchSummary(ctx context.Context) ([]MatchSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction, COUNT(*), COUNT(registry_entity_id) FROM rate_facts WHERE end_date IS NULL GROUP BY jurisdiction ORDER BY jurisdiction`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query match summary")
	}
	defer rows.Close()

	var out []MatchSummaryRow
	for rows.Next() {
		var r MatchSummaryRow
		if err := rows.Scan(&r.Jurisdiction, &r.OpenFacts, &r.Matched); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match summary")
		}
		r.Unmatched = r.OpenFacts - r.Matched
		if r.OpenFacts > 0 {
			r.MatchedPct = float64(r.Matched) / float64(r.OpenFacts) * 100
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate match summary")
	}
	return out, nil
}

func (s *SQLiteStore) RecordCollection(ctx context.Context, entry model.CollectionEntry) error {
	if entry.BatchID == "" {
		entry.BatchID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_log (batch_id, jurisdiction, status, files_found, records_loaded, error_message) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.BatchID, entry.Jurisdiction, string(entry.Status), entry.FilesFound, entry.RecordsLoaded, nullIfEmpty(entry.Error),
	)
	return eris.Wrapf(err, "sqlite: %s: record collection", entry.Jurisdiction)
}

func (s *SQLiteStore) RecentCollections(ctx context.Context, limit int) ([]model.CollectionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, jurisdiction, status, files_found, records_loaded, COALESCE(error_message, ''), created_at FROM collection_log ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query collection log")
	}
	defer rows.Close()

	var entries []model.CollectionEntry
	for rows.Next() {
		var e model.CollectionEntry
		var status string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Jurisdiction, &status, &e.FilesFound, &e.RecordsLoaded, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan collection entry")
		}
		e.Status = model.CollectionStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate collection log")
	}
	return entries, nil
}
