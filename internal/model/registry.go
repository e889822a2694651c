package model

// RegistryEntity is one canonical facility in the master registry. The
// registry is owned by the master-data service; this pipeline only reads it
// as the match target for entity resolution.
type RegistryEntity struct {
	ID           int64  `json:"id"`
	Jurisdiction string `json:"jurisdiction"`
	Name         string `json:"name"`
	ExternalID   string `json:"external_id,omitempty"` // e.g. CCN
	City         string `json:"city,omitempty"`
	Zip          string `json:"zip,omitempty"`
}

// MatchTier classifies the confidence of a resolved match.
type MatchTier string

const (
	TierExact     MatchTier = "exact"
	TierHigh      MatchTier = "high-confidence"
	TierLow       MatchTier = "low-confidence"
	TierUnmatched MatchTier = "unmatched"
)

// MatchResult is the resolver's decision for one fact record. Entity is nil
// when Tier is TierUnmatched.
type MatchResult struct {
	Entity *RegistryEntity `json:"entity,omitempty"`
	Score  int             `json:"score"`
	Tier   MatchTier       `json:"tier"`
}

// Matched reports whether the result carries a registry link.
func (r MatchResult) Matched() bool {
	return r.Tier != TierUnmatched && r.Entity != nil
}

// MatchInfo describes one accepted match for reporting.
type MatchInfo struct {
	FactID     int64     `json:"fact_id"`
	FactName   string    `json:"fact_name"`
	EntityID   int64     `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	ExternalID string    `json:"external_id,omitempty"`
	Score      int       `json:"score"`
	Tier       MatchTier `json:"tier"`
}

// MatchStats summarizes a matching pass over one jurisdiction.
type MatchStats struct {
	Jurisdiction   string      `json:"jurisdiction"`
	TotalUnmatched int         `json:"total_unmatched"`
	TotalEntities  int         `json:"total_entities"`
	Matched        int         `json:"matched"`
	HighConfidence int         `json:"high_confidence"`
	LowConfidence  int         `json:"low_confidence"`
	Unmatched      int         `json:"unmatched"`
	Matches        []MatchInfo `json:"matches,omitempty"`
}
