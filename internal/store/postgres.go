package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ratesync/internal/db"
	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_fact": insertFactSQL,
	"close_facts": closeFactsSQL,
	"open_facts":  openFactsSQL,
	"link_fact":   linkFactSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS facility_registry (
	id          BIGSERIAL PRIMARY KEY,
	jurisdiction TEXT NOT NULL,
	name        TEXT NOT NULL,
	external_id TEXT,
	city        TEXT,
	zip         TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (jurisdiction, name)
);

CREATE INDEX IF NOT EXISTS idx_facility_registry_jurisdiction ON facility_registry(jurisdiction);

CREATE TABLE IF NOT EXISTS rate_facts (
	id                 BIGSERIAL PRIMARY KEY,
	jurisdiction       TEXT NOT NULL,
	facility_name      TEXT NOT NULL,
	external_id        TEXT,
	rate               NUMERIC(12,2) NOT NULL,
	rate_type          TEXT NOT NULL DEFAULT 'total',
	effective_date     DATE NOT NULL,
	end_date           DATE,
	source_file        TEXT,
	ingest_method      TEXT,
	registry_entity_id BIGINT REFERENCES facility_registry(id),
	match_score        INTEGER,
	match_verified     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rate_facts_open ON rate_facts(jurisdiction) WHERE end_date IS NULL;
CREATE INDEX IF NOT EXISTS idx_rate_facts_period ON rate_facts(jurisdiction, effective_date);
CREATE INDEX IF NOT EXISTS idx_rate_facts_entity ON rate_facts(registry_entity_id);

CREATE TABLE IF NOT EXISTS collection_log (
	id             BIGSERIAL PRIMARY KEY,
	batch_id       TEXT NOT NULL,
	jurisdiction   TEXT NOT NULL,
	status         TEXT NOT NULL,
	files_found    INTEGER NOT NULL DEFAULT 0,
	records_loaded INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_collection_log_created_at ON collection_log(created_at DESC);
`

const (
	insertFactSQL = `INSERT INTO rate_facts (jurisdiction, facility_name, external_id, rate, rate_type, effective_date, source_file, ingest_method) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	closeFactsSQL = `UPDATE rate_facts SET end_date = $1 WHERE jurisdiction = $2 AND end_date IS NULL`

	openFactsSQL = `SELECT id, jurisdiction, facility_name, COALESCE(external_id, ''), rate, rate_type, effective_date, end_date, COALESCE(source_file, ''), COALESCE(ingest_method, ''), registry_entity_id, match_score, match_verified FROM rate_facts WHERE jurisdiction = $1 AND end_date IS NULL ORDER BY facility_name`

	linkFactSQL = `UPDATE rate_facts SET registry_entity_id = $1, match_score = $2 WHERE id = $3 AND match_verified = FALSE`
)

// factInsertColumns matches the column order of insertFactSQL for COPY.
var factInsertColumns = []string{
	"jurisdiction", "facility_name", "external_id", "rate",
	"rate_type", "effective_date", "source_file", "ingest_method",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// loadRetryConfig retries a failed load once when the failure looks
// transient. The whole transaction re-runs, which is safe because a failed
// load rolls back entirely.
func loadRetryConfig(operation string) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 200 * time.Millisecond,
		OnRetry:        resilience.RetryLogger("postgres", operation),
	}
}

// LoadPeriod closes every open fact for the jurisdiction and inserts the
// batch as the new open version, in one transaction. Closing happens before
// inserting so at most one open version exists per facility at any point.
//
// The insert half is best-effort: a COPY of the whole batch is attempted
// first, and if it fails the rows are inserted one at a time under
// savepoints, with failing rows logged and skipped. A batch where nothing
// inserts rolls back, so a jurisdiction is never left with zero open facts.
func (s *PostgresStore) LoadPeriod(ctx context.Context, jurisdiction string, records []model.FactRecord, effectiveDate time.Time) (*model.LoadResult, error) {
	if len(records) == 0 {
		return nil, eris.Errorf("postgres: %s: refusing to close open facts for an empty batch", jurisdiction)
	}

	var res *model.LoadResult
	err := resilience.Do(ctx, loadRetryConfig("load_period"), func(ctx context.Context) error {
		r, err := s.loadPeriodTx(ctx, jurisdiction, records, effectiveDate)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PostgresStore) loadPeriodTx(ctx context.Context, jurisdiction string, records []model.FactRecord, effectiveDate time.Time) (*model.LoadResult, error) {
	log := zap.L().With(
		zap.String("component", "store"),
		zap.String("jurisdiction", jurisdiction),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: begin load", jurisdiction)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent loads for the same jurisdiction.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "ratesync:"+jurisdiction); err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: acquire jurisdiction lock", jurisdiction)
	}

	tag, err := tx.Exec(ctx, closeFactsSQL, effectiveDate, jurisdiction)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: close open facts", jurisdiction)
	}
	res := &model.LoadResult{Closed: int(tag.RowsAffected())}

	inserted, copyErr := copyFacts(ctx, tx, jurisdiction, records, effectiveDate)
	if copyErr == nil {
		res.Inserted = int(inserted)
	} else {
		log.Warn("bulk copy failed, falling back to row-wise inserts", zap.Error(copyErr))
		if err := insertFactsRowwise(ctx, tx, log, jurisdiction, records, effectiveDate, res); err != nil {
			return nil, err
		}
	}

	if res.Inserted == 0 {
		return nil, eris.Errorf("postgres: %s: no rows inserted, rolling back close of %d facts", jurisdiction, res.Closed)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: commit load", jurisdiction)
	}

	log.Info("period loaded",
		zap.Time("effective_date", effectiveDate),
		zap.Int("closed", res.Closed),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// copyFacts COPYs the whole batch under a savepoint so a failure leaves the
// enclosing transaction usable for the row-wise fallback.
func copyFacts(ctx context.Context, tx pgx.Tx, jurisdiction string, records []model.FactRecord, effectiveDate time.Time) (int64, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: %s: begin savepoint", jurisdiction)
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = factInsertRow(jurisdiction, rec, effectiveDate)
	}

	n, err := db.CopyFrom(ctx, sp, "rate_facts", factInsertColumns, rows)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "postgres: %s: release savepoint", jurisdiction)
	}
	return n, nil
}

// insertFactsRowwise inserts each row under its own savepoint. A failing row
// is logged and skipped without poisoning the enclosing transaction.
func insertFactsRowwise(ctx context.Context, tx pgx.Tx, log *zap.Logger, jurisdiction string, records []model.FactRecord, effectiveDate time.Time, res *model.LoadResult) error {
	for i := range records {
		rec := &records[i]

		sp, err := tx.Begin(ctx)
		if err != nil {
			return eris.Wrapf(err, "postgres: %s: begin savepoint", jurisdiction)
		}
		if _, err := sp.Exec(ctx, insertFactSQL, factInsertRow(jurisdiction, *rec, effectiveDate)...); err != nil {
			_ = sp.Rollback(ctx)
			res.Skipped++
			log.Warn("fact insert failed, skipping row",
				zap.String("facility", rec.FacilityName),
				zap.Error(err),
			)
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return eris.Wrapf(err, "postgres: %s: release savepoint", jurisdiction)
		}
		res.Inserted++
	}
	return nil
}

func factInsertRow(jurisdiction string, rec model.FactRecord, effectiveDate time.Time) []any {
	return []any{
		jurisdiction,
		rec.FacilityName,
		nullIfEmpty(rec.ExternalID),
		rec.Rate,
		rec.RateType,
		effectiveDate,
		nullIfEmpty(rec.SourceFile),
		nullIfEmpty(rec.IngestMethod),
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Current returns the open facts for a jurisdiction ordered by facility name.
func (s *PostgresStore) Current(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error) {
	rows, err := s.pool.Query(ctx, openFactsSQL, jurisdiction)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: query open facts", jurisdiction)
	}
	defer rows.Close()
	return scanFacts(rows, jurisdiction)
}

// UnmatchedFacts returns the open facts for a jurisdiction that carry no
// registry link yet, in insertion order.
func (s *PostgresStore) UnmatchedFacts(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, jurisdiction, facility_name, COALESCE(external_id, ''), rate, rate_type, effective_date, end_date, COALESCE(source_file, ''), COALESCE(ingest_method, ''), registry_entity_id, match_score, match_verified FROM rate_facts WHERE jurisdiction = $1 AND end_date IS NULL AND registry_entity_id IS NULL ORDER BY id`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: query unmatched facts", jurisdiction)
	}
	defer rows.Close()
	return scanFacts(rows, jurisdiction)
}

func scanFacts(rows pgx.Rows, jurisdiction string) ([]model.VersionedFact, error) {
	var facts []model.VersionedFact
	for rows.Next() {
		var f model.VersionedFact
		if err := rows.Scan(
			&f.ID, &f.Jurisdiction, &f.FacilityName, &f.ExternalID,
			&f.Rate, &f.RateType, &f.EffectiveDate, &f.EndDate,
			&f.SourceFile, &f.IngestMethod,
			&f.EntityID, &f.MatchScore, &f.MatchVerified,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: %s: scan fact", jurisdiction)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: iterate facts", jurisdiction)
	}
	return facts, nil
}

// History aggregates every effective period for a jurisdiction, most recent
// first.
func (s *PostgresStore) History(ctx context.Context, jurisdiction string) ([]model.PeriodSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT effective_date, MAX(end_date), COUNT(*), MIN(rate), AVG(rate), MAX(rate) FROM rate_facts WHERE jurisdiction = $1 GROUP BY effective_date ORDER BY effective_date DESC`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: query history", jurisdiction)
	}
	defer rows.Close()

	var periods []model.PeriodSummary
	for rows.Next() {
		var p model.PeriodSummary
		if err := rows.Scan(&p.EffectiveDate, &p.EndDate, &p.Facilities, &p.MinRate, &p.AvgRate, &p.MaxRate); err != nil {
			return nil, eris.Wrapf(err, "postgres: %s: scan period", jurisdiction)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: iterate history", jurisdiction)
	}
	return periods, nil
}

// Changes aggregates period-over-period rate movement per jurisdiction,
// comparing adjacent versions of facts linked to the same registry entity.
func (s *PostgresStore) Changes(ctx context.Context) ([]model.RateChange, error) {
	rows, err := s.pool.Query(ctx, `
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
		return nil, eris.Wrap(err, "postgres: query changes")
	}
	defer rows.Close()

	var changes []model.RateChange
	for rows.Next() {
		var c model.RateChange
		if err := rows.Scan(&c.Jurisdiction, &c.Facilities, &c.AvgChangeDollar, &c.AvgChangePct, &c.Increases, &c.Decreases, &c.Unchanged); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate changes")
	}
	return changes, nil
}

// Jurisdictions lists every jurisdiction with at least one fact.
func (s *PostgresStore) Jurisdictions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT jurisdiction FROM rate_facts ORDER BY jurisdiction`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query jurisdictions")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var j string
		if err := rows.Scan(&j); err != nil {
			return nil, eris.Wrap(err, "postgres: scan jurisdiction")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate jurisdictions")
	}
	return out, nil
}

// ListEntities returns the registry entities for a jurisdiction in id order,
// so matching passes see a stable candidate order.
func (s *PostgresStore) ListEntities(ctx context.Context, jurisdiction string) ([]model.RegistryEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, jurisdiction, name, COALESCE(external_id, ''), COALESCE(city, ''), COALESCE(zip, '') FROM facility_registry WHERE jurisdiction = $1 ORDER BY id`,
		jurisdiction,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: query registry", jurisdiction)
	}
	defer rows.Close()

	var entities []model.RegistryEntity
	for rows.Next() {
		var e model.RegistryEntity
		if err := rows.Scan(&e.ID, &e.Jurisdiction, &e.Name, &e.ExternalID, &e.City, &e.Zip); err != nil {
			return nil, eris.Wrapf(err, "postgres: %s: scan entity", jurisdiction)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: %s: iterate registry", jurisdiction)
	}
	return entities, nil
}

// LinkFact records an accepted match on a fact. Facts whose link a human has
// verified are never overwritten; relinking one is a no-op.
func (s *PostgresStore) LinkFact(ctx context.Context, factID, entityID int64, score int) error {
	tag, err := s.pool.Exec(ctx, linkFactSQL, entityID, score, factID)
	if err != nil {
		return eris.Wrapf(err, "postgres: link fact %d", factID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var verified bool
	err = s.pool.QueryRow(ctx, `SELECT match_verified FROM rate_facts WHERE id = $1`, factID).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("postgres: fact not found: %d", factID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check fact %d", factID)
	}
	// Verified link left in place.
	return nil
}

// MatchSummary reports registry-link coverage of open facts per jurisdiction.
func (s *PostgresStore) MatchSummary(ctx context.Context) ([]MatchSummaryRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT jurisdiction, COUNT(*), COUNT(registry_entity_id) FROM rate_facts WHERE end_date IS NULL GROUP BY jurisdiction ORDER BY jurisdiction`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query match summary")
	}
	defer rows.Close()

	var out []MatchSummaryRow
	for rows.Next() {
		var r MatchSummaryRow
		if err := rows.Scan(&r.Jurisdiction, &r.OpenFacts, &r.Matched); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match summary")
		}
		r.Unmatched = r.OpenFacts - r.Matched
		if r.OpenFacts > 0 {
			r.MatchedPct = float64(r.Matched) / float64(r.OpenFacts) * 100
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate match summary")
	}
	return out, nil
}

// ImportRegistry upserts entities into the facility registry, keyed by
// (jurisdiction, name).
func (s *PostgresStore) ImportRegistry(ctx context.Context, entities []model.RegistryEntity) (int64, error) {
	rows := make([][]any, len(entities))
	for i, e := range entities {
		rows[i] = []any{e.Jurisdiction, e.Name, nullIfEmpty(e.ExternalID), nullIfEmpty(e.City), nullIfEmpty(e.Zip)}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "facility_registry",
		Columns:      []string{"jurisdiction", "name", "external_id", "city", "zip"},
		ConflictKeys: []string{"jurisdiction", "name"},
	}, rows)
}

// RecordCollection appends one row to the collection log. A missing batch id
// gets generated.
func (s *PostgresStore) RecordCollection(ctx context.Context, entry model.CollectionEntry) error {
	if entry.BatchID == "" {
		entry.BatchID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collection_log (batch_id, jurisdiction, status, files_found, records_loaded, error_message) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.BatchID, entry.Jurisdiction, string(entry.Status), entry.FilesFound, entry.RecordsLoaded, nullIfEmpty(entry.Error),
	)
	return eris.Wrapf(err, "postgres: %s: record collection", entry.Jurisdiction)
}

// RecentCollections returns the latest collection log entries, newest first.
func (s *PostgresStore) RecentCollections(ctx context.Context, limit int) ([]model.CollectionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, jurisdiction, status, files_found, records_loaded, COALESCE(error_message, ''), created_at FROM collection_log ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query collection log")
	}
	defer rows.Close()

	var entries []model.CollectionEntry
	for rows.Next() {
		var e model.CollectionEntry
		var status string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Jurisdiction, &status, &e.FilesFound, &e.RecordsLoaded, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collection entry")
		}
		e.Status = model.CollectionStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate collection log")
	}
	return entries, nil
}
