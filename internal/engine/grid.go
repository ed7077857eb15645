package engine

import (
	"math"

	"dca-grid-backtest-go/internal/models"
)

// EffectiveGridSize returns the grid spacing required for the next entry
// after consecutiveCount same-direction entries. Without the consecutive
// increment the base interval applies; with it the grid widens per entry,
// capped at the configured maximum.
func EffectiveGridSize(cfg models.StrategyConfig, consecutiveCount int) float64 {
	size := cfg.GridIntervalPercent
	if cfg.EnableConsecutiveIncrementalBuyGrid && consecutiveCount > 0 {
		size += float64(consecutiveCount) * cfg.GridConsecutiveIncrement
		if cfg.MaxGridIntervalPercent > 0 && size > cfg.MaxGridIntervalPercent {
			size = cfg.MaxGridIntervalPercent
		}
	}
	return size
}

// BuyAllowed decides whether a candidate buy at price keeps enough distance
// from the existing holdings. The first buy of an empty ledger is always
// allowed.
//
// With the consecutive increment enabled, the next eligible price derives
// from the last buy: lastBuyPrice * (1 - gridSize(i)). Otherwise either
// every open lot (per-lot mode) or the average cost (average mode) must be
// at least the base interval away.
func BuyAllowed(ledger *Ledger, price float64, cfg models.StrategyConfig) bool {
	if price <= 0 {
		return false
	}
	if !ledger.HasLots() {
		return true
	}
	if ledger.Side == models.SideShort {
		return false
	}

	if cfg.EnableConsecutiveIncrementalBuyGrid {
		last := ledger.Lots[len(ledger.Lots)-1]
		size := EffectiveGridSize(cfg, ledger.ConsecutiveBuys)
		return price <= last.Price*(1-size)
	}

	if cfg.EnableAverageBasedGrid {
		avg, ok := ledger.AverageCost()
		if !ok {
			return true
		}
		return math.Abs(price-avg)/avg >= cfg.GridIntervalPercent
	}

	for _, lot := range ledger.Lots {
		if math.Abs(price-lot.Price)/lot.Price < cfg.GridIntervalPercent {
			return false
		}
	}
	return true
}

// ShortAllowed decides whether a candidate short at price is far enough from
// the existing short lots. Consecutive shorts must step strictly down: each
// new short entry undercuts every held short lot by at least the grid
// interval. The first short of an empty ledger is always allowed.
func ShortAllowed(ledger *Ledger, price float64, cfg models.StrategyConfig) bool {
	if price <= 0 {
		return false
	}
	if !ledger.HasLots() {
		return true
	}
	if ledger.Side == models.SideLong {
		return false
	}
	lowest, _ := ledger.LowestPriceHeld()
	if price >= lowest {
		return false
	}
	for _, lot := range ledger.Lots {
		if math.Abs(price-lot.Price)/lot.Price < cfg.GridIntervalPercent {
			return false
		}
	}
	return true
}
