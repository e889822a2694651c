// Package schema discovers which raw columns of a jurisdiction's rate file
// back each canonical field, using per-jurisdiction synonym lists instead of
// hand-coded column indices.
package schema

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/resolve"
	"github.com/sells-group/ratesync/internal/source"
)

// DefaultMinScore is the minimum fuzzy score for synonym matching when the
// caller passes 0.
const DefaultMinScore = 80

// DetectColumns resolves the canonical fields against the raw column
// headers of one file. Resolution per field tries, in order: exact
// case-insensitive match, substring containment in either direction, then
// fuzzy partial-ratio scoring against the jurisdiction's synonyms.
//
// The rate field gets one extra strategy: when no named rate column
// resolves and some headers parse as dates, the most recent date-valued
// header becomes the rate column and its date the literal effective date.
// Agencies publishing cumulative listings label rate columns this way.
//
// Facility name and rate are required; a missing one is a structural error
// naming the jurisdiction and field, and the file must not be loaded.
func DetectColumns(jurisdiction string, cfg source.Config, columns []model.RawCell, minScore int) (*FieldMap, error) {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	fm := newFieldMap()
	fm.NameCol = findColumn(columns, cfg.NameColumns, minScore)
	fm.IDCol = findColumn(columns, cfg.IDColumns, minScore)
	fm.DateCol = findColumn(columns, cfg.DateColumns, minScore)

	fm.RateCol = findColumn(columns, cfg.RateColumns, minScore)
	if fm.RateCol == NoColumn {
		if idx, d, ok := mostRecentDateColumn(columns); ok {
			fm.RateCol = idx
			fm.RateDate = &d
		}
	}

	// A source flagged as date-headed normally resolves its rate through
	// the fallback; a named rate column winning instead suggests a stale
	// flag or a changed file layout worth a look.
	if cfg.DateHeaders && fm.RateDate == nil && fm.RateCol != NoColumn {
		zap.L().Warn("date-header source resolved a named rate column",
			zap.String("component", "schema"),
			zap.String("jurisdiction", jurisdiction),
			zap.String("rate_header", columns[fm.RateCol].String()),
		)
	}

	if fm.NameCol == NoColumn {
		return nil, eris.Errorf("schema: %s: no facility name column detected among %v",
			jurisdiction, headerStrings(columns))
	}
	if fm.RateCol == NoColumn {
		return nil, eris.Errorf("schema: %s: no rate column detected among %v",
			jurisdiction, headerStrings(columns))
	}

	return fm, nil
}

// findColumn resolves the best raw column for one synonym list, or NoColumn.
func findColumn(columns []model.RawCell, synonyms []string, minScore int) int {
	if len(synonyms) == 0 {
		return NoColumn
	}

	// Text headers only; date-valued headers never match by name.
	type candidate struct {
		idx  int
		norm string
	}
	var cands []candidate
	for i, col := range columns {
		if col.Kind != model.CellText {
			continue
		}
		norm := strings.ToLower(strings.TrimSpace(col.Text))
		if norm == "" {
			continue
		}
		cands = append(cands, candidate{idx: i, norm: norm})
	}
	if len(cands) == 0 {
		return NoColumn
	}

	for _, syn := range synonyms {
		want := strings.ToLower(strings.TrimSpace(syn))

		// Priority 1: exact match.
		for _, c := range cands {
			if c.norm == want {
				return c.idx
			}
		}

		// Priority 2: containment either direction.
		for _, c := range cands {
			if strings.Contains(c.norm, want) || strings.Contains(want, c.norm) {
				return c.idx
			}
		}
	}

	// Priority 3: fuzzy partial-ratio against the joined synonym list.
	joined := strings.ToLower(strings.Join(synonyms, " "))
	bestScore := 0
	bestIdx := NoColumn
	for _, c := range cands {
		if score := resolve.PartialRatio(c.norm, joined); score > bestScore {
			bestScore = score
			bestIdx = c.idx
		}
	}
	if bestScore >= minScore {
		return bestIdx
	}

	return NoColumn
}

// mostRecentDateColumn picks the latest date-valued header, preferring
// native date cells and falling back to parseable date strings.
func mostRecentDateColumn(columns []model.RawCell) (int, time.Time, bool) {
	bestIdx := NoColumn
	var best time.Time
	for i, col := range columns {
		var d time.Time
		switch col.Kind {
		case model.CellDate:
			d = col.Date
		case model.CellText:
			parsed, ok := ParseHeaderDate(col.Text)
			if !ok {
				continue
			}
			d = parsed
		default:
			continue
		}
		if bestIdx == NoColumn || d.After(best) {
			bestIdx = i
			best = d
		}
	}
	return bestIdx, best, bestIdx != NoColumn
}

var (
	slashDateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{2,4}$`)
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dashDateRe  = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
)

// ParseHeaderDate parses a column header as a date under the accepted
// formats: MM/DD/YY, MM/DD/YYYY, YYYY-MM-DD, MM-DD-YYYY.
func ParseHeaderDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	switch {
	case slashDateRe.MatchString(s):
		layout := "01/02/2006"
		if len(s[strings.LastIndex(s, "/")+1:]) == 2 {
			layout = "01/02/06"
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	case isoDateRe.MatchString(s):
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, true
		}
	case dashDateRe.MatchString(s):
		if t, err := time.Parse("01-02-2006", s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func headerStrings(columns []model.RawCell) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.String()
	}
	return out
}
