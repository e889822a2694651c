// Package resolve links normalized fact records to canonical registry
// entities by name, using exact, fuzzy, and token-overlap strategies with
// tiered confidence.
package resolve

import (
	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/normalize"
)

// Params holds the matching policy thresholds. These are tuning constants,
// not algorithmic requirements; they come from configuration.
type Params struct {
	Threshold       int     // minimum fuzzy score to accept a match
	HighThreshold   int     // score at or above which a match is high-confidence
	TokenOverlapMin float64 // minimum token-overlap ratio for the fallback
}

// DefaultParams returns the production matching thresholds.
func DefaultParams() Params {
	return Params{Threshold: 85, HighThreshold: 95, TokenOverlapMin: 0.6}
}

// Resolve matches a facility name against the registry entities of its
// jurisdiction, short-circuiting in order:
//
//  1. Exact normalized-name equality (score 100, tier exact)
//  2. Fuzzy: max of token-sort and partial ratios per entity; accepted at
//     Threshold, tiered high at HighThreshold
//  3. Token-set overlap at TokenOverlapMin, always low-confidence
//
// Ties resolve to the first entity in the supplied slice order, so callers
// get a deterministic match for identical inputs.
func Resolve(name string, entities []model.RegistryEntity, p Params) model.MatchResult {
	normName := normalize.Name(name)
	if normName == "" || len(entities) == 0 {
		return model.MatchResult{Tier: model.TierUnmatched}
	}

	normEntities := make([]string, len(entities))
	for i := range entities {
		normEntities[i] = normalize.Name(entities[i].Name)
	}

	// Pass 1: exact normalized equality.
	for i := range entities {
		if normEntities[i] != "" && normEntities[i] == normName {
			return model.MatchResult{Entity: &entities[i], Score: 100, Tier: model.TierExact}
		}
	}

	// Pass 2: fuzzy scoring, best entity wins; strict > keeps the first of
	// a tie.
	bestScore := -1
	bestIdx := -1
	for i := range entities {
		if normEntities[i] == "" {
			continue
		}
		score := TokenSortRatio(normName, normEntities[i])
		if partial := PartialRatio(normName, normEntities[i]); partial > score {
			score = partial
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 && bestScore >= p.Threshold {
		tier := model.TierLow
		if bestScore >= p.HighThreshold {
			tier = model.TierHigh
		}
		return model.MatchResult{Entity: &entities[bestIdx], Score: bestScore, Tier: tier}
	}

	// Pass 3: token-overlap fallback.
	factTokens := normalize.Tokens(name)
	bestOverlap := 0.0
	bestIdx = -1
	for i := range entities {
		overlap := normalize.TokenOverlap(factTokens, normalize.Tokens(entities[i].Name))
		if overlap > bestOverlap {
			bestOverlap = overlap
			bestIdx = i
		}
	}
	if bestIdx >= 0 && bestOverlap >= p.TokenOverlapMin {
		return model.MatchResult{
			Entity: &entities[bestIdx],
			Score:  toScore(bestOverlap),
			Tier:   model.TierLow,
		}
	}

	return model.MatchResult{Tier: model.TierUnmatched}
}
