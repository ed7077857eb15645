package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// CentEpsilon is the numerical tolerance for every capital comparison:
// accounting must hold to the cent.
const CentEpsilon = 0.01

// Capital is the surface a simulation needs from the portfolio's capital
// ledger.
type Capital interface {
	// CanBuy reports whether the cash reserve covers a buy of value.
	CanBuy(value float64) bool
	// ApplyBuy moves value from cash into the symbol's deployed capital.
	ApplyBuy(symbol string, value float64) error
	// ApplySell returns proceeds to cash and releases the cost basis from
	// the symbol's deployed capital.
	ApplySell(symbol string, costBasis, proceeds float64) error
}

// CapitalViolationError is fatal: the capital-conservation or margin-floor
// invariant failed after a transaction, so the accounting can no longer be
// trusted and no partial results are returned.
type CapitalViolationError struct {
	DeployedTotal float64
	CashReserve   float64
	TotalCapital  float64
	MarginAmount  float64
	Shortfall     float64
	PerSymbol     map[string]float64
	Detail        string
}

func (e *CapitalViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "capital invariant violated: %s (deployed=%.2f cash=%.2f total=%.2f margin=%.2f shortfall=%.2f)",
		e.Detail, e.DeployedTotal, e.CashReserve, e.TotalCapital, e.MarginAmount, e.Shortfall)
	syms := make([]string, 0, len(e.PerSymbol))
	for s := range e.PerSymbol {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, s := range syms {
		fmt.Fprintf(&b, " %s=%.2f", s, e.PerSymbol[s])
	}
	return b.String()
}

// Allocator owns the portfolio's total capital, cash reserve, and per-symbol
// deployed capital. Every buy and sell flows through it, and after each one
// it re-checks two laws:
//
// Exact conservation: cash + deployed - total == cumulative realized P/L, to
// the cent, always. Any drift is a bookkeeping bug, not a trading loss.
//
// Margin floor: cash + deployed >= total * (1 - marginPercent), which
// tolerates legitimate losses up to the margin before aborting the run.
type Allocator struct {
	TotalCapital  float64
	CashReserve   float64
	MarginPercent float64

	deployed map[string]float64
	realized float64
}

// NewAllocator creates an allocator with all capital in cash.
func NewAllocator(totalCapital, marginPercent float64) *Allocator {
	return &Allocator{
		TotalCapital:  totalCapital,
		CashReserve:   totalCapital,
		MarginPercent: marginPercent,
		deployed:      make(map[string]float64),
	}
}

// CanBuy reports whether the cash reserve covers a buy of value.
func (a *Allocator) CanBuy(value float64) bool {
	return value > 0 && a.CashReserve+CentEpsilon >= value
}

// ApplyBuy moves value from cash into the symbol's deployed capital.
func (a *Allocator) ApplyBuy(symbol string, value float64) error {
	a.CashReserve -= value
	a.deployed[symbol] += value
	return a.check(fmt.Sprintf("after buy of %.2f in %s", value, symbol))
}

// ApplySell returns proceeds to cash, releases costBasis from the symbol's
// deployed capital, and books proceeds-costBasis as realized P/L.
func (a *Allocator) ApplySell(symbol string, costBasis, proceeds float64) error {
	a.CashReserve += proceeds
	a.deployed[symbol] -= costBasis
	a.realized += proceeds - costBasis
	if math.Abs(a.deployed[symbol]) < CentEpsilon {
		a.deployed[symbol] = 0
	}
	return a.check(fmt.Sprintf("after sell of basis %.2f in %s", costBasis, symbol))
}

// Deployed returns the capital deployed in one symbol.
func (a *Allocator) Deployed(symbol string) float64 { return a.deployed[symbol] }

// TotalDeployed returns the capital deployed across all symbols.
func (a *Allocator) TotalDeployed() float64 {
	var total float64
	for _, v := range a.deployed {
		total += v
	}
	return total
}

// RealizedPNL returns the cumulative realized profit and loss.
func (a *Allocator) RealizedPNL() float64 { return a.realized }

// DeployedBySymbol returns a copy of the per-symbol deployed capital map.
func (a *Allocator) DeployedBySymbol() map[string]float64 {
	cpy := make(map[string]float64, len(a.deployed))
	for k, v := range a.deployed {
		cpy[k] = v
	}
	return cpy
}

func (a *Allocator) violation(detail string, shortfall float64) error {
	return &CapitalViolationError{
		DeployedTotal: a.TotalDeployed(),
		CashReserve:   a.CashReserve,
		TotalCapital:  a.TotalCapital,
		MarginAmount:  a.TotalCapital * a.MarginPercent,
		Shortfall:     shortfall,
		PerSymbol:     a.DeployedBySymbol(),
		Detail:        detail,
	}
}

func (a *Allocator) check(context string) error {
	deployed := a.TotalDeployed()

	drift := a.CashReserve + deployed - a.TotalCapital - a.realized
	if math.Abs(drift) > CentEpsilon {
		return a.violation(fmt.Sprintf("%s: accounting drift %.4f", context, drift), drift)
	}

	floor := a.TotalCapital * (1 - a.MarginPercent)
	if a.CashReserve+deployed < floor-CentEpsilon {
		shortfall := floor - (a.CashReserve + deployed)
		return a.violation(fmt.Sprintf("%s: below margin floor", context), shortfall)
	}
	return nil
}
