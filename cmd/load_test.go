package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ratesync/internal/ingest"
	"github.com/sells-group/ratesync/internal/model"
)

func TestBatchEffectiveDate_PicksMostRecent(t *testing.T) {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []model.FactRecord{
		{EffectiveDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{EffectiveDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)},
		{EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	got := batchEffectiveDate(records, now)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestBatchEffectiveDate_EmptyFallsBackToNow(t *testing.T) {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now, batchEffectiveDate(nil, now))
}

func TestFormatLoadResult(t *testing.T) {
	var buf bytes.Buffer
	stats := ingest.RowStats{Total: 10, Kept: 7, EmptyName: 1, BadRate: 1, DuplicatesDropped: 1}
	res := &model.LoadResult{Closed: 5, Inserted: 7}

	formatLoadResult(&buf, "FL", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), stats, res)

	out := buf.String()
	assert.Contains(t, out, "FL")
	assert.Contains(t, out, "2025-07-01")
	assert.Contains(t, out, "Closed:")
	assert.Contains(t, out, "Duplicates:")
	assert.NotContains(t, out, "Skipped:")
}

func TestFormatLoadResult_ShowsSkipped(t *testing.T) {
	var buf bytes.Buffer
	res := &model.LoadResult{Closed: 0, Inserted: 3, Skipped: 2}

	formatLoadResult(&buf, "OH", time.Now(), ingest.RowStats{Total: 5, Kept: 5}, res)
	assert.Contains(t, buf.String(), "Skipped:")
}
