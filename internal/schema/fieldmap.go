package schema

import "time"

// NoColumn marks a canonical field with no resolved raw column.
const NoColumn = -1

// FieldMap is the result of column detection for one raw column set: the
// raw column index backing each canonical field. RateDate is set instead of
// a named date column when the rate column's own header was a date (the
// cumulative-listing format).
type FieldMap struct {
	NameCol int
	RateCol int
	IDCol   int
	DateCol int

	RateDate *time.Time
}

// newFieldMap returns a FieldMap with every field unresolved.
func newFieldMap() *FieldMap {
	return &FieldMap{NameCol: NoColumn, RateCol: NoColumn, IDCol: NoColumn, DateCol: NoColumn}
}

// HasID reports whether an external-id column resolved.
func (m *FieldMap) HasID() bool { return m.IDCol != NoColumn }

// HasDate reports whether a date source resolved, either a named column or
// a literal header date.
func (m *FieldMap) HasDate() bool { return m.RateDate != nil || m.DateCol != NoColumn }
