package engine

import (
	"testing"

	"dca-grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmptyLedgerIsNeutral(t *testing.T) {
	c := Classify(nil, 100, 10000)
	assert.Equal(t, models.StatusNeutral, c.Status)
	assert.Zero(t, c.UnrealizedPNL)
	assert.Equal(t, 1000.0, c.Threshold)

	c = Classify(NewLedger("AAPL"), 100, 10000)
	assert.Equal(t, models.StatusNeutral, c.Status)
}

func TestClassifyThresholdIsTenthOfLotSize(t *testing.T) {
	l := NewLedger("AAPL")
	l.ApplyBuy(models.SideLong, 100, 100, 10000, day(2024, 1, 2), 0)

	// +$500 on a $10k lot stays inside the $1000 neutral band.
	c := Classify(l, 105, 10000)
	assert.Equal(t, models.StatusNeutral, c.Status)
	assert.InDelta(t, 500, c.UnrealizedPNL, 1e-9)

	// +$2500 clears the band.
	c = Classify(l, 125, 10000)
	assert.Equal(t, models.StatusWinning, c.Status)

	c = Classify(l, 75, 10000)
	assert.Equal(t, models.StatusLosing, c.Status)

	// Exactly at the band edge stays neutral.
	c = Classify(l, 110, 10000)
	assert.Equal(t, models.StatusNeutral, c.Status)
}

func TestClassifyIsPure(t *testing.T) {
	l := NewLedger("AAPL")
	l.ApplyBuy(models.SideLong, 100, 100, 10000, day(2024, 1, 2), 0)

	first := Classify(l, 125, 10000)
	second := Classify(l, 125, 10000)
	assert.Equal(t, first, second)
	assert.Len(t, l.Lots, 1)
}

func TestClassifyShortSide(t *testing.T) {
	l := NewLedger("TSLA")
	l.ApplyBuy(models.SideShort, 100, 100, 10000, day(2024, 1, 2), 120)

	c := Classify(l, 80, 10000)
	assert.Equal(t, models.StatusWinning, c.Status)

	c = Classify(l, 120, 10000)
	assert.Equal(t, models.StatusLosing, c.Status)
}

func TestClassifyNonPositivePriceIsNeutral(t *testing.T) {
	l := NewLedger("AAPL")
	l.ApplyBuy(models.SideLong, 100, 100, 10000, day(2024, 1, 2), 0)
	c := Classify(l, 0, 10000)
	assert.Equal(t, models.StatusNeutral, c.Status)
	assert.Zero(t, c.UnrealizedPNL)
}
