package ingest

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/normalize"
	"github.com/sells-group/ratesync/internal/schema"
)

// RowStats counts what happened to each raw row so drops are reported, not
// silently discarded.
type RowStats struct {
	Total             int `json:"total"`
	Kept              int `json:"kept"`
	EmptyName         int `json:"empty_name"`
	BadRate           int `json:"bad_rate"`
	DuplicatesDropped int `json:"duplicates_dropped"`
}

// currencyStripper removes dollar signs and grouping separators before
// numeric parsing.
var currencyStripper = strings.NewReplacer("$", "", ",", "", " ", "")

// NormalizeRecords converts the raw rows of one table into validated fact
// records using the detected field map.
//
// Per row: the facility name is trimmed (empty rejects the row), the rate
// is parsed as a positive decimal after currency stripping (anything else
// rejects the row), and the effective date resolves from the field map's
// literal header date, else the row's date cell, else the ingestion
// timestamp.
//
// Rows surviving validation are deduplicated on the normalized facility
// name: the first occurrence in input order wins and later ones are
// counted as dropped. Output preserves input order.
func NormalizeRecords(table *model.RawTable, fm *schema.FieldMap, sourceTag string, now time.Time) ([]model.FactRecord, RowStats) {
	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("jurisdiction", table.Jurisdiction),
	)

	stats := RowStats{Total: len(table.Rows)}
	seen := make(map[string]struct{}, len(table.Rows))
	records := make([]model.FactRecord, 0, len(table.Rows))

	for i := range table.Rows {
		name := cellText(table.Cell(i, fm.NameCol))
		if name == "" {
			stats.EmptyName++
			continue
		}

		rate, ok := parseRate(table.Cell(i, fm.RateCol))
		if !ok {
			stats.BadRate++
			continue
		}

		key := table.Jurisdiction + "\x00" + normalize.Name(name)
		if _, dup := seen[key]; dup {
			stats.DuplicatesDropped++
			log.Debug("duplicate facility row dropped",
				zap.String("facility", name),
				zap.Int("row", i),
			)
			continue
		}
		seen[key] = struct{}{}

		rec := model.FactRecord{
			Jurisdiction:  table.Jurisdiction,
			FacilityName:  name,
			Rate:          rate,
			RateType:      "total",
			EffectiveDate: effectiveDate(table, fm, i, now),
			SourceFile:    table.SourceFile,
			IngestMethod:  sourceTag,
		}
		if fm.HasID() {
			rec.ExternalID = cellText(table.Cell(i, fm.IDCol))
		}

		records = append(records, rec)
		stats.Kept++
	}

	if stats.Kept < stats.Total {
		log.Info("rows dropped during normalization",
			zap.Int("total", stats.Total),
			zap.Int("kept", stats.Kept),
			zap.Int("empty_name", stats.EmptyName),
			zap.Int("bad_rate", stats.BadRate),
			zap.Int("duplicates", stats.DuplicatesDropped),
		)
	}

	return records, stats
}

// effectiveDate resolves a row's effective date: the literal header date
// when the rate column was itself a date, else the row's date cell, else
// the ingestion timestamp.
func effectiveDate(table *model.RawTable, fm *schema.FieldMap, row int, now time.Time) time.Time {
	if fm.RateDate != nil {
		return *fm.RateDate
	}
	if fm.DateCol != schema.NoColumn {
		cell := table.Cell(row, fm.DateCol)
		switch cell.Kind {
		case model.CellDate:
			return cell.Date
		case model.CellText:
			if d, ok := schema.ParseHeaderDate(cell.Text); ok {
				return d
			}
		}
	}
	return now
}

// parseRate extracts a positive rate from a cell, stripping currency
// formatting from text cells.
func parseRate(cell model.RawCell) (float64, bool) {
	var v float64
	switch cell.Kind {
	case model.CellNumber:
		v = cell.Number
	case model.CellText:
		parsed, err := strconv.ParseFloat(currencyStripper.Replace(cell.Text), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// cellText renders a cell for a string field, trimming whitespace.
func cellText(cell model.RawCell) string {
	return strings.TrimSpace(cell.String())
}
