package model

import (
	"strconv"
	"time"
)

// CellKind tags the variant held by a RawCell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDate
)

// RawCell is one untyped spreadsheet/PDF cell, tagged by kind so downstream
// code branches explicitly instead of probing value types.
type RawCell struct {
	Kind   CellKind
	Text   string
	Number float64
	Date   time.Time
}

// TextCell builds a text cell, mapping blank strings to CellEmpty.
func TextCell(s string) RawCell {
	if s == "" {
		return RawCell{Kind: CellEmpty}
	}
	return RawCell{Kind: CellText, Text: s}
}

// NumberCell builds a numeric cell.
func NumberCell(v float64) RawCell {
	return RawCell{Kind: CellNumber, Number: v}
}

// DateCell builds a date-valued cell.
func DateCell(t time.Time) RawCell {
	return RawCell{Kind: CellDate, Date: t}
}

// String renders the cell for display and header matching. Dates render as
// ISO so date-valued column headers stay parseable downstream.
func (c RawCell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDate:
		return c.Date.Format("2006-01-02")
	default:
		return ""
	}
}

// Empty reports whether the cell holds no value.
func (c RawCell) Empty() bool {
	return c.Kind == CellEmpty
}

// RawTable is the parser-agnostic tabular input handed to schema detection:
// ordered column headers plus ordered rows of cells.
type RawTable struct {
	Jurisdiction string
	SourceFile   string
	Columns      []RawCell
	Rows         [][]RawCell
}

// Cell returns the cell at (row, col), or an empty cell when the row is
// ragged and col falls past its end.
func (t *RawTable) Cell(row, col int) RawCell {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return RawCell{Kind: CellEmpty}
	}
	return t.Rows[row][col]
}
