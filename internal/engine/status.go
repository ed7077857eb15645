package engine

import "dca-grid-backtest-go/internal/models"

// statusThresholdFraction of the lot size separates neutral from winning or
// losing. Fixed, not configurable.
const statusThresholdFraction = 0.10

// Classification is the result of classifying a symbol's unrealized P/L.
type Classification struct {
	Status        models.PositionStatus
	UnrealizedPNL float64
	Threshold     float64
}

// Classify grades a ledger's unrealized P/L against a tenth of the lot size.
// It is a pure function of its arguments: a ledger with no open lots is
// always neutral with zero unrealized P/L.
func Classify(ledger *Ledger, currentPrice, lotSizeUSD float64) Classification {
	c := Classification{
		Status:    models.StatusNeutral,
		Threshold: lotSizeUSD * statusThresholdFraction,
	}
	if ledger == nil || !ledger.HasLots() || currentPrice <= 0 {
		return c
	}
	c.UnrealizedPNL = ledger.UnrealizedPNL(currentPrice)
	switch {
	case c.UnrealizedPNL > c.Threshold:
		c.Status = models.StatusWinning
	case c.UnrealizedPNL < -c.Threshold:
		c.Status = models.StatusLosing
	}
	return c
}
