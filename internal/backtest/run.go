package backtest

import (
	"errors"
	"time"

	"dca-grid-backtest-go/internal/config"
	"dca-grid-backtest-go/internal/engine"
	"dca-grid-backtest-go/internal/logger"
	"dca-grid-backtest-go/internal/models"
	"dca-grid-backtest-go/internal/pricedata"
)

// Request describes one single-symbol backtest.
type Request struct {
	Symbol            string
	Start             time.Time
	End               time.Time
	Config            models.StrategyConfig
	AllowPartialRange bool              // opt-in: truncate at the last bar instead of failing on a gap
	Beta              engine.BetaLookup // optional external beta source
}

// Result is the outcome of a single-symbol run.
type Result struct {
	Symbol       string
	Start, End   time.Time
	Config       models.StrategyConfig // effective config the run used
	Scaling      *engine.ScalingResult // nil when beta scaling was disabled
	Transactions []models.Transaction
	EquityCurve  []models.EquityPoint
	FinalLots    []models.Lot
	FinalSide    models.Side
	Cash         float64
	Deployed     float64
	RealizedPNL  float64
	TotalCapital float64
	Warnings     []string
}

// Run replays the bars in chronological order against a fresh session.
// The run's working capital is lot size times max lots, all starting in
// cash; since a single-symbol run has no portfolio margin the floor check is
// disabled (margin 1.0) and only the exact conservation law is enforced.
func Run(req Request, bars []models.Bar) (*Result, error) {
	if err := config.ValidateStrategy(req.Config); err != nil {
		return nil, err
	}
	if req.Symbol == "" {
		return nil, &models.ParameterError{Field: "symbol", Reason: "must not be empty"}
	}
	if !req.Start.Before(req.End) {
		return nil, &models.ParameterError{Field: "start_date", Reason: "must be before end_date"}
	}

	res := &Result{
		Symbol: req.Symbol,
		Start:  req.Start,
		End:    req.End,
		Config: req.Config,
	}

	window := pricedata.Slice(bars, req.Start, req.End)
	if err := pricedata.CheckRange(req.Symbol, window, req.Start, req.End); err != nil {
		var gap *pricedata.DataGapError
		if errors.As(err, &gap) && req.AllowPartialRange && len(window) > 0 {
			res.Warnings = append(res.Warnings, gap.Error()+" (partial range accepted)")
		} else {
			return nil, err
		}
	}

	effective, scaling, warnings, err := EffectiveConfig(req.Symbol, req.Config, req.Beta)
	if err != nil {
		return nil, err
	}
	res.Config = effective
	res.Scaling = scaling
	res.Warnings = append(res.Warnings, warnings...)

	book := engine.NewAllocator(effective.LotSizeUSD*float64(effective.MaxLots), 1.0)
	res.TotalCapital = book.TotalCapital
	session := NewSession(req.Symbol, effective, scaling)

	for _, bar := range window {
		txs, err := session.Step(bar, book)
		if err != nil {
			return nil, err
		}
		res.Transactions = append(res.Transactions, txs...)
		res.EquityCurve = append(res.EquityCurve, models.EquityPoint{
			Date:     bar.Date,
			Equity:   book.CashReserve + session.MarketValue(bar.Close),
			Cash:     book.CashReserve,
			Deployed: book.TotalDeployed(),
		})
	}

	res.FinalLots = append(res.FinalLots, session.Ledger.Lots...)
	res.FinalSide = session.Ledger.Side
	res.Cash = book.CashReserve
	res.Deployed = book.TotalDeployed()
	res.RealizedPNL = book.RealizedPNL()
	logger.S().Infof("Backtest %s: %d transactions, realized PNL %.2f", req.Symbol, len(res.Transactions), res.RealizedPNL)
	return res, nil
}

// EffectiveConfig resolves beta and applies scaling when enabled, returning
// the effective per-symbol config.
func EffectiveConfig(symbol string, base models.StrategyConfig, lookup engine.BetaLookup) (models.StrategyConfig, *engine.ScalingResult, []string, error) {
	if !base.EnableBetaScaling {
		return base, nil, nil, nil
	}
	var warnings []string
	beta, source, warning := engine.ResolveBeta(symbol, base.ManualBeta, lookup)
	if warning != "" {
		warnings = append(warnings, warning)
	}
	scaling, err := engine.ApplyScaling(base, beta, base.Coefficient)
	if err != nil {
		return base, nil, nil, err
	}
	scaling.Source = source
	warnings = append(warnings, scaling.Warnings...)
	if !scaling.Valid {
		warnings = append(warnings, "beta-scaled parameters are internally inconsistent; run flagged invalid")
		logger.S().Warnf("Beta scaling for %s produced an inconsistent parameter set", symbol)
	}
	return scaling.Adjusted, scaling, warnings, nil
}
