package model

import "time"

// FactRecord is one normalized rate observation for a facility, produced by
// the record normalizer and persisted as a VersionedFact.
type FactRecord struct {
	Jurisdiction  string    `json:"jurisdiction"`
	FacilityName  string    `json:"facility_name"`
	ExternalID    string    `json:"external_id,omitempty"`
	Rate          float64   `json:"rate"`
	RateType      string    `json:"rate_type"`
	EffectiveDate time.Time `json:"effective_date"`
	SourceFile    string    `json:"source_file"`
	IngestMethod  string    `json:"ingest_method"`

	// Registry link, set by the resolver after loading. EntityID is nil
	// until a match is accepted.
	EntityID      *int64 `json:"entity_id,omitempty"`
	MatchScore    *int   `json:"match_score,omitempty"`
	MatchVerified bool   `json:"match_verified"`
}

// VersionedFact is a FactRecord with its validity interval. EndDate is nil
// while the fact is the currently-effective version for its facility.
type VersionedFact struct {
	ID int64 `json:"id"`
	FactRecord
	EndDate *time.Time `json:"end_date,omitempty"`
}

// Open reports whether the fact is the currently-effective version.
func (f *VersionedFact) Open() bool {
	return f.EndDate == nil
}

// LoadResult summarizes a LoadPeriod call.
type LoadResult struct {
	Closed   int `json:"closed"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // rows that failed to persist inside the batch
}

// PeriodSummary aggregates one effective-date period for a jurisdiction.
type PeriodSummary struct {
	EffectiveDate time.Time  `json:"effective_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Facilities    int        `json:"facilities"`
	MinRate       float64    `json:"min_rate"`
	AvgRate       float64    `json:"avg_rate"`
	MaxRate       float64    `json:"max_rate"`
}

// RateChange aggregates period-over-period movement for one jurisdiction,
// computed over facts linked to the same registry entity in adjacent periods.
type RateChange struct {
	Jurisdiction    string  `json:"jurisdiction"`
	Facilities      int     `json:"facilities"`
	AvgChangeDollar float64 `json:"avg_change_dollar"`
	AvgChangePct    float64 `json:"avg_change_pct"`
	Increases       int     `json:"increases"`
	Decreases       int     `json:"decreases"`
	Unchanged       int     `json:"unchanged"`
}

// CollectionStatus is the outcome recorded for one load attempt.
type CollectionStatus string

const (
	CollectionSuccess CollectionStatus = "success"
	CollectionFailed  CollectionStatus = "failed"
)

// CollectionEntry is one row in the collection log.
type CollectionEntry struct {
	ID            int64            `json:"id"`
	BatchID       string           `json:"batch_id"`
	Jurisdiction  string           `json:"jurisdiction"`
	Status        CollectionStatus `json:"status"`
	FilesFound    int              `json:"files_found"`
	RecordsLoaded int              `json:"records_loaded"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
