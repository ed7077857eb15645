package pricedata

import (
	"context"
	"fmt"
	"time"

	"dca-grid-backtest-go/internal/models"
)

// Provider supplies ordered, gap-free daily bars for a symbol and range.
type Provider interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)
}

// gapToleranceDays covers weekends and market holidays at the end of a
// requested range before a missing tail counts as a data gap.
const gapToleranceDays = 4

// DataGapError reports a price series that ends before the requested end
// date. It is surfaced explicitly; silent truncation requires an explicit
// opt-in from the caller.
type DataGapError struct {
	Symbol  string
	LastBar time.Time
	WantEnd time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("price series for %s ends at %s, before requested end %s",
		e.Symbol, e.LastBar.Format("2006-01-02"), e.WantEnd.Format("2006-01-02"))
}

// CheckRange validates that bars is non-empty, strictly ordered by date, and
// reaches the requested end date (within the weekend/holiday tolerance).
func CheckRange(symbol string, bars []models.Bar, start, end time.Time) error {
	if len(bars) == 0 {
		return &DataGapError{Symbol: symbol, WantEnd: end}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return fmt.Errorf("price series for %s is not strictly ordered at %s",
				symbol, bars[i].Date.Format("2006-01-02"))
		}
	}
	last := bars[len(bars)-1].Date
	if last.Before(end.AddDate(0, 0, -gapToleranceDays)) {
		return &DataGapError{Symbol: symbol, LastBar: last, WantEnd: end}
	}
	return nil
}

// Slice returns the bars inside [start, end], inclusive.
func Slice(bars []models.Bar, start, end time.Time) []models.Bar {
	var out []models.Bar
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
