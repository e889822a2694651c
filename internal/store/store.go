// Package store persists versioned rate facts. Facts are append-only: a new
// period for a jurisdiction closes the open version of every fact and
// inserts the batch as the new open version, so history is never rewritten.
package store

import (
	"context"
	"time"

	"github.com/sells-group/ratesync/internal/model"
)

// MatchSummaryRow reports registry-link coverage of open facts for one
// jurisdiction.
type MatchSummaryRow struct {
	Jurisdiction string  `json:"jurisdiction"`
	OpenFacts    int     `json:"open_facts"`
	Matched      int     `json:"matched"`
	Unmatched    int     `json:"unmatched"`
	MatchedPct   float64 `json:"matched_pct"`
}

// Store defines the persistence interface for the rate pipeline.
type Store interface {
	// Versioned facts
	LoadPeriod(ctx context.Context, jurisdiction string, records []model.FactRecord, effectiveDate time.Time) (*model.LoadResult, error)
	Current(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error)
	History(ctx context.Context, jurisdiction string) ([]model.PeriodSummary, error)
	Changes(ctx context.Context) ([]model.RateChange, error)
	Jurisdictions(ctx context.Context) ([]string, error)

	// Registry
	UnmatchedFacts(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error)
	ListEntities(ctx context.Context, jurisdiction string) ([]model.RegistryEntity, error)
	ImportRegistry(ctx context.Context, entities []model.RegistryEntity) (int64, error)
	LinkFact(ctx context.Context, factID, entityID int64, score int) error
	MatchSummary(ctx context.Context) ([]MatchSummaryRow, error)

	// Collection log
	RecordCollection(ctx context.Context, entry model.CollectionEntry) error
	RecentCollections(ctx context.Context, limit int) ([]model.CollectionEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
