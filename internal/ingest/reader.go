// Package ingest turns raw rate files into typed fact records: readers
// produce the parser-agnostic RawTable, and the record normalizer validates
// and cleans rows against a detected field map.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/schema"
	"github.com/sells-group/ratesync/internal/source"
)

// ReadTable reads a rate file into a RawTable according to the
// jurisdiction's source config. The format is chosen by cfg.FileType,
// falling back to the file extension.
func ReadTable(path, jurisdiction string, cfg source.Config) (*model.RawTable, error) {
	fileType := cfg.FileType
	if fileType == "" {
		if strings.HasSuffix(strings.ToLower(path), ".csv") {
			fileType = "csv"
		} else {
			fileType = "xlsx"
		}
	}

	var rows [][]string
	var err error
	switch fileType {
	case "xlsx":
		rows, err = readXLSXRows(path, cfg)
	case "csv":
		rows, err = readCSVRows(path, cfg.SkipRows)
	default:
		return nil, eris.Errorf("ingest: %s: unsupported file type %q (pdf extraction runs upstream)", jurisdiction, fileType)
	}
	if err != nil {
		return nil, err
	}

	return TableFromRows(jurisdiction, path, rows)
}

// readXLSXRows reads all rows of the configured sheet as strings, skipping
// the configured header-offset rows.
func readXLSXRows(path string, cfg source.Config) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open xlsx %s", path)
	}

	var sheet *xlsx.Sheet
	if cfg.Sheet != "" {
		s, ok := f.Sheet[cfg.Sheet]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found in %s", cfg.Sheet, path)
		}
		sheet = s
	} else {
		if cfg.SheetIndex >= len(f.Sheets) {
			return nil, eris.Errorf("ingest: sheet index %d out of range (%s has %d sheets)",
				cfg.SheetIndex, path, len(f.Sheets))
		}
		sheet = f.Sheets[cfg.SheetIndex]
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < cfg.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// readCSVRows reads all CSV records, tolerating ragged rows.
func readCSVRows(path string, skipRows int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open csv %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv %s row %d", path, i+1)
		}
		if i < skipRows {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// TableFromRows builds a RawTable from string rows: the first row becomes
// the column headers, the rest the data rows. Cells are tagged by content
// so downstream code branches on kind instead of probing strings.
func TableFromRows(jurisdiction, sourceFile string, rows [][]string) (*model.RawTable, error) {
	if len(rows) == 0 {
		return nil, eris.Errorf("ingest: %s: %s has no rows", jurisdiction, sourceFile)
	}

	header := make([]model.RawCell, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = classifyCell(h)
	}

	data := make([][]model.RawCell, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]model.RawCell, len(row))
		for i, v := range row {
			cells[i] = classifyCell(v)
		}
		data = append(data, cells)
	}

	return &model.RawTable{
		Jurisdiction: jurisdiction,
		SourceFile:   sourceFile,
		Columns:      header,
		Rows:         data,
	}, nil
}

// classifyCell tags one raw string cell: empty, date, number, or text.
func classifyCell(s string) model.RawCell {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return model.RawCell{Kind: model.CellEmpty}
	}
	if d, ok := schema.ParseHeaderDate(trimmed); ok {
		return model.DateCell(d)
	}
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return model.NumberCell(v)
	}
	return model.TextCell(trimmed)
}
