package resolve

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ratesync/internal/model"
)

// FactStore is the persistence surface the matcher needs: open facts
// without a registry link, the jurisdiction's registry slice, and the
// single-row link write.
type FactStore interface {
	UnmatchedFacts(ctx context.Context, jurisdiction string) ([]model.VersionedFact, error)
	ListEntities(ctx context.Context, jurisdiction string) ([]model.RegistryEntity, error)
	LinkFact(ctx context.Context, factID, entityID int64, score int) error
}

// MatcherConfig configures a matching pass.
type MatcherConfig struct {
	Params  Params
	Workers int  // concurrent resolutions; default 8
	Preview bool // resolve and report without writing links
}

// Matcher runs entity resolution over the unmatched facts of a
// jurisdiction.
type Matcher struct {
	store FactStore
	cfg   MatcherConfig
}

// NewMatcher creates a Matcher.
func NewMatcher(store FactStore, cfg MatcherConfig) *Matcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	return &Matcher{store: store, cfg: cfg}
}

// MatchJurisdiction resolves every unmatched open fact in the jurisdiction
// against its registry entities. Resolution is read-only and fans out across
// workers; accepted links are written one row at a time after each decision
// is final. Link writes never touch facts whose link was verified by an
// operator.
func (m *Matcher) MatchJurisdiction(ctx context.Context, jurisdiction string) (*model.MatchStats, error) {
	log := zap.L().With(
		zap.String("component", "matcher"),
		zap.String("jurisdiction", jurisdiction),
	)

	facts, err := m.store.UnmatchedFacts(ctx, jurisdiction)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: unmatched facts for %s", jurisdiction)
	}

	entities, err := m.store.ListEntities(ctx, jurisdiction)
	if err != nil {
		return nil, eris.Wrapf(err, "matcher: registry entities for %s", jurisdiction)
	}

	stats := &model.MatchStats{
		Jurisdiction:   jurisdiction,
		TotalUnmatched: len(facts),
		TotalEntities:  len(entities),
	}

	if len(facts) == 0 {
		log.Info("no unmatched facts")
		return stats, nil
	}
	if len(entities) == 0 {
		log.Warn("no registry entities for jurisdiction")
		stats.Unmatched = len(facts)
		return stats, nil
	}

	log.Info("matching facts against registry",
		zap.Int("facts", len(facts)),
		zap.Int("entities", len(entities)),
	)

	results := make([]model.MatchResult, len(facts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range facts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Resolve(facts[i].FacilityName, entities, m.cfg.Params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "matcher: resolve %s", jurisdiction)
	}

	for i := range facts {
		res := results[i]
		if !res.Matched() {
			stats.Unmatched++
			continue
		}

		stats.Matched++
		switch res.Tier {
		case model.TierHigh, model.TierExact:
			stats.HighConfidence++
		default:
			stats.LowConfidence++
		}

		stats.Matches = append(stats.Matches, model.MatchInfo{
			FactID:     facts[i].ID,
			FactName:   facts[i].FacilityName,
			EntityID:   res.Entity.ID,
			EntityName: res.Entity.Name,
			ExternalID: res.Entity.ExternalID,
			Score:      res.Score,
			Tier:       res.Tier,
		})

		if m.cfg.Preview {
			continue
		}
		if err := m.store.LinkFact(ctx, facts[i].ID, res.Entity.ID, res.Score); err != nil {
			return nil, eris.Wrapf(err, "matcher: link fact %d in %s", facts[i].ID, jurisdiction)
		}
	}

	log.Info("matching complete",
		zap.Int("matched", stats.Matched),
		zap.Int("high_confidence", stats.HighConfidence),
		zap.Int("low_confidence", stats.LowConfidence),
		zap.Int("unmatched", stats.Unmatched),
		zap.Bool("preview", m.cfg.Preview),
	)

	return stats, nil
}
