package pricedata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dca-grid-backtest-go/internal/models"
)

// CSV column layout shared with the downloader's cache files:
// open_time (unix millis), open, high, low, close, volume.
const (
	colOpenTime = 0
	colOpen     = 1
	colHigh     = 2
	colLow      = 3
	colClose    = 4
	csvColumns  = 6
)

// LoadCSV reads daily bars from a cache file.
func LoadCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Header row.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", path, line, err)
		}
		if len(record) < csvColumns {
			return nil, fmt.Errorf("%s line %d: expected at least %d columns, got %d", path, line, csvColumns, len(record))
		}
		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(record []string) (models.Bar, error) {
	openTime, err := strconv.ParseInt(record[colOpenTime], 10, 64)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bad open_time %q: %w", record[colOpenTime], err)
	}
	fields := [4]float64{}
	for i, col := range []int{colOpen, colHigh, colLow, colClose} {
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("bad price %q: %w", record[col], err)
		}
		fields[i] = v
	}
	return models.Bar{
		Date:  time.UnixMilli(openTime).UTC().Truncate(24 * time.Hour),
		Open:  fields[0],
		High:  fields[1],
		Low:   fields[2],
		Close: fields[3],
	}, nil
}

// CSVProvider serves bars from cached CSV files in a data directory, one
// file per symbol named SYMBOL.csv.
type CSVProvider struct {
	Dir string
}

// NewCSVProvider creates a provider over the given data directory.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

// DailyBars loads the symbol's cache file and slices it to [start, end].
func (p *CSVProvider) DailyBars(_ context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	bars, err := LoadCSV(filepath.Join(p.Dir, symbol+".csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to load bars for %s: %w", symbol, err)
	}
	return Slice(bars, start, end), nil
}
