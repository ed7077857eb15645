package pricedata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dca-grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `open_time,open,high,low,close,volume
1704153600000,100.5,105.0,99.0,104.0,12345
1704240000000,104.0,110.0,103.5,109.5,23456
1704326400000,109.5,112.0,108.0,111.0,34567
`

func writeCSV(t *testing.T, dir, symbol, content string) string {
	t.Helper()
	path := filepath.Join(dir, symbol+".csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCSVParsesDailyBars(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "AAPL", sampleCSV)

	bars, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	first := bars[0]
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 100.5, first.Open)
	assert.Equal(t, 105.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 104.0, first.Close)

	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bars[2].Date)
}

func TestLoadCSVRejectsMalformedRows(t *testing.T) {
	dir := t.TempDir()

	path := writeCSV(t, dir, "BAD1", "open_time,open,high,low,close,volume\nnot-a-number,1,2,3,4,5\n")
	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open_time")

	path = writeCSV(t, dir, "BAD2", "open_time,open,high,low,close,volume\n1704153600000,1,2,3\n")
	_, err = LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}

func TestCSVProviderSlicesToRange(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL", sampleCSV)

	p := NewCSVProvider(dir)
	start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	bars, err := p.DailyBars(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, start, bars[0].Date)

	_, err = p.DailyBars(context.Background(), "MISSING", start, end)
	assert.Error(t, err)
}

func TestCheckRangeDetectsGaps(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.Bar{
		{Date: start, Close: 100},
		{Date: start.AddDate(0, 0, 1), Close: 101},
	}

	// A Friday series checked through the following Monday is fine.
	assert.NoError(t, CheckRange("AAPL", bars, start, start.AddDate(0, 0, 4)))

	// A week past the last bar is a gap.
	err := CheckRange("AAPL", bars, start, start.AddDate(0, 0, 10))
	var gap *DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "AAPL", gap.Symbol)
	assert.Equal(t, bars[1].Date, gap.LastBar)

	// Empty series.
	require.ErrorAs(t, CheckRange("AAPL", nil, start, start), &gap)
}

func TestCheckRangeRejectsUnorderedSeries(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []models.Bar{
		{Date: start.AddDate(0, 0, 1), Close: 100},
		{Date: start, Close: 101},
	}
	err := CheckRange("AAPL", bars, start, start.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ordered")
}

func TestSliceIsInclusive(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	var bars []models.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, models.Bar{Date: start.AddDate(0, 0, i)})
	}

	out := Slice(bars, start.AddDate(0, 0, 2), start.AddDate(0, 0, 5))
	require.Len(t, out, 4)
	assert.Equal(t, start.AddDate(0, 0, 2), out[0].Date)
	assert.Equal(t, start.AddDate(0, 0, 5), out[3].Date)

	assert.Empty(t, Slice(bars, start.AddDate(0, 0, 20), start.AddDate(0, 0, 25)))
}
