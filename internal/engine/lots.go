package engine

import (
	"sort"
	"time"

	"dca-grid-backtest-go/internal/models"
)

// Ledger owns the open lots for one symbol, its deployed capital, and the
// consecutive trade counters. All lots in a ledger share one side: the
// strategy never holds long and short lots for the same symbol at once.
type Ledger struct {
	Symbol           string
	Side             models.Side
	Lots             []models.Lot
	CapitalDeployed  float64
	ConsecutiveBuys  int
	ConsecutiveSells int
}

// SellResult describes the lots consumed by one sell or cover.
type SellResult struct {
	Shares    float64
	CostBasis float64
	Proceeds  float64
	PNL       float64
	Lots      int
}

// NewLedger creates an empty ledger for a symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{Symbol: symbol}
}

// HasLots reports whether any lot is open.
func (l *Ledger) HasLots() bool { return len(l.Lots) > 0 }

// LowestPriceHeld returns the lowest entry price over the open lots.
// The second return is false when no lots are held.
func (l *Ledger) LowestPriceHeld() (float64, bool) {
	if len(l.Lots) == 0 {
		return 0, false
	}
	lowest := l.Lots[0].Price
	for _, lot := range l.Lots[1:] {
		if lot.Price < lowest {
			lowest = lot.Price
		}
	}
	return lowest, true
}

// AverageCost returns the share-weighted average entry price.
// The second return is false when no lots are held.
func (l *Ledger) AverageCost() (float64, bool) {
	var shares float64
	for _, lot := range l.Lots {
		shares += lot.Shares
	}
	if shares <= 0 {
		return 0, false
	}
	return l.CapitalDeployed / shares, true
}

// TotalShares returns the share count over all open lots.
func (l *Ledger) TotalShares() float64 {
	var shares float64
	for _, lot := range l.Lots {
		shares += lot.Shares
	}
	return shares
}

// UnrealizedPNL marks the open lots against price. Short lots gain as the
// price falls.
func (l *Ledger) UnrealizedPNL(price float64) float64 {
	var pnl float64
	for _, lot := range l.Lots {
		if l.Side == models.SideShort {
			pnl += (lot.Price - price) * lot.Shares
		} else {
			pnl += (price - lot.Price) * lot.Shares
		}
	}
	return pnl
}

// MarketValue returns the current liquidation value of the open lots:
// cost basis plus unrealized P/L for both sides.
func (l *Ledger) MarketValue(price float64) float64 {
	if len(l.Lots) == 0 {
		return 0
	}
	return l.CapitalDeployed + l.UnrealizedPNL(price)
}

// ApplyBuy appends a lot and updates deployed capital and the consecutive
// counters. The caller is responsible for upstream eligibility checks; a
// positive price and share count never fail here. A non-zero peak records
// the reference high for short lots.
func (l *Ledger) ApplyBuy(side models.Side, price, shares, value float64, date time.Time, peak float64) {
	lot := models.Lot{Price: price, Shares: shares, Date: date}
	if side == models.SideShort {
		lot.PeakPriceAtEntry = peak
	}
	l.Side = side
	l.Lots = append(l.Lots, lot)
	l.CapitalDeployed += value
	l.ConsecutiveBuys++
	l.ConsecutiveSells = 0
}

// sellableIndices returns the indices of lots eligible for an exit at price,
// ordered by descending lot price. In average-based mode eligibility is
// decided once against the average cost and every lot is a candidate.
func (l *Ledger) sellableIndices(price, profitRequirement float64, averageBased bool) []int {
	var idx []int
	if averageBased {
		avg, ok := l.AverageCost()
		if !ok || !l.exitProfitable(price, avg, profitRequirement) {
			return nil
		}
		for i := range l.Lots {
			idx = append(idx, i)
		}
	} else {
		for i, lot := range l.Lots {
			if l.exitProfitable(price, lot.Price, profitRequirement) {
				idx = append(idx, i)
			}
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return l.Lots[idx[a]].Price > l.Lots[idx[b]].Price
	})
	return idx
}

// exitProfitable reports whether an exit at price clears the profit
// requirement against the given cost reference, for the ledger's side.
func (l *Ledger) exitProfitable(price, ref, profitRequirement float64) bool {
	if ref <= 0 {
		return false
	}
	if l.Side == models.SideShort {
		return price < ref*(1-profitRequirement)
	}
	return price > ref*(1+profitRequirement)
}

// ApplySell consumes up to maxLots eligible lots at price, highest entry
// price first, and returns what was sold. The second return is false when no
// lot is eligible. Deployed capital always decreases by the exact cost basis
// of the removed lots so that the ledger's conservation invariant
// (CapitalDeployed == sum of lot values) holds to the cent; in average-based
// mode the average cost is only the eligibility reference.
func (l *Ledger) ApplySell(price float64, maxLots int, profitRequirement float64, averageBased bool) (SellResult, bool) {
	idx := l.sellableIndices(price, profitRequirement, averageBased)
	if len(idx) == 0 {
		return SellResult{}, false
	}
	if maxLots > 0 && len(idx) > maxLots {
		idx = idx[:maxLots]
	}

	var res SellResult
	remove := make(map[int]bool, len(idx))
	for _, i := range idx {
		lot := l.Lots[i]
		res.Shares += lot.Shares
		res.CostBasis += lot.Value()
		if l.Side == models.SideShort {
			res.PNL += (lot.Price - price) * lot.Shares
		} else {
			res.PNL += (price - lot.Price) * lot.Shares
		}
		remove[i] = true
	}
	res.Proceeds = res.CostBasis + res.PNL
	res.Lots = len(idx)

	kept := l.Lots[:0]
	for i, lot := range l.Lots {
		if !remove[i] {
			kept = append(kept, lot)
		}
	}
	l.Lots = kept
	l.CapitalDeployed -= res.CostBasis
	l.ConsecutiveSells++
	l.ConsecutiveBuys = 0
	if len(l.Lots) == 0 {
		l.Side = models.SideFlat
		l.CapitalDeployed = 0 // clamp away float dust
	}
	return res, true
}

// RemoveLots consumes the given lot indices unconditionally at price, used
// for forced exits (emergency covers and liquidations) that bypass the
// profit requirement. The consecutive counters are reset: a forced exit ends
// the current accumulation cycle.
func (l *Ledger) RemoveLots(price float64, indices []int) SellResult {
	var res SellResult
	remove := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(l.Lots) || remove[i] {
			continue
		}
		lot := l.Lots[i]
		res.Shares += lot.Shares
		res.CostBasis += lot.Value()
		if l.Side == models.SideShort {
			res.PNL += (lot.Price - price) * lot.Shares
		} else {
			res.PNL += (price - lot.Price) * lot.Shares
		}
		remove[i] = true
		res.Lots++
	}
	res.Proceeds = res.CostBasis + res.PNL

	kept := l.Lots[:0]
	for i, lot := range l.Lots {
		if !remove[i] {
			kept = append(kept, lot)
		}
	}
	l.Lots = kept
	l.CapitalDeployed -= res.CostBasis
	l.ConsecutiveBuys = 0
	l.ConsecutiveSells = 0
	if len(l.Lots) == 0 {
		l.Side = models.SideFlat
		l.CapitalDeployed = 0
	}
	return res
}

// AllIndices returns every open lot index, for full-position forced exits.
func (l *Ledger) AllIndices() []int {
	idx := make([]int, len(l.Lots))
	for i := range l.Lots {
		idx[i] = i
	}
	return idx
}
