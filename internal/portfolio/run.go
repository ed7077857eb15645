package portfolio

import (
	"errors"
	"sort"
	"time"

	"dca-grid-backtest-go/internal/backtest"
	"dca-grid-backtest-go/internal/config"
	"dca-grid-backtest-go/internal/engine"
	"dca-grid-backtest-go/internal/logger"
	"dca-grid-backtest-go/internal/models"
	"dca-grid-backtest-go/internal/pricedata"
)

// Request describes one portfolio backtest over a shared capital pool.
type Request struct {
	Symbols           []string
	Start             time.Time
	End               time.Time
	TotalCapitalUSD   float64
	MarginPercent     float64
	Base              models.StrategyConfig
	Overrides         map[string]models.StrategyConfig
	Liquidations      map[string]time.Time // symbol -> forced liquidation date
	AllowPartialRange bool
	Beta              engine.BetaLookup
}

// Snapshot is the final capital state of a portfolio run.
type Snapshot struct {
	TotalCapital     float64                 `json:"total_capital"`
	CashReserve      float64                 `json:"cash_reserve"`
	MarginPercent    float64                 `json:"margin_percent"`
	RealizedPNL      float64                 `json:"realized_pnl"`
	TotalDeployed    float64                 `json:"total_deployed"`
	DeployedBySymbol map[string]float64      `json:"deployed_by_symbol"`
	Lots             map[string][]models.Lot `json:"lots"`
}

// Result is the outcome of a portfolio run.
type Result struct {
	Start, End   time.Time
	Transactions []models.Transaction
	EquityCurve  []models.EquityPoint
	Final        Snapshot
	Scaling      map[string]*engine.ScalingResult
	Warnings     []string
}

// Run replays every trading day across the portfolio. Within a day all
// forced liquidations complete first (Phase 1) and only then does normal
// trading run (Phase 2), so liquidation proceeds are in the cash reserve
// before any same-day trade is checked against it. Within each phase,
// symbols are processed in lexicographic order: two runs with identical
// inputs produce identical transaction logs.
func Run(req Request, series map[string][]models.Bar) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	res := &Result{
		Start:   req.Start,
		End:     req.End,
		Scaling: make(map[string]*engine.ScalingResult),
	}

	symbols := append([]string(nil), req.Symbols...)
	sort.Strings(symbols)

	book := engine.NewAllocator(req.TotalCapitalUSD, req.MarginPercent)
	sessions := make(map[string]*backtest.Session, len(symbols))
	windows := make(map[string]map[time.Time]models.Bar, len(symbols))
	var calendar []time.Time
	seenDay := make(map[time.Time]bool)

	for _, sym := range symbols {
		cfg := req.Base
		if override, ok := req.Overrides[sym]; ok {
			cfg = override
		}

		window := pricedata.Slice(series[sym], req.Start, req.End)
		if err := pricedata.CheckRange(sym, window, req.Start, req.End); err != nil {
			var gap *pricedata.DataGapError
			if errors.As(err, &gap) && req.AllowPartialRange && len(window) > 0 {
				res.Warnings = append(res.Warnings, gap.Error()+" (partial range accepted)")
			} else {
				return nil, err
			}
		}

		effective, scaling, warnings, err := backtest.EffectiveConfig(sym, cfg, req.Beta)
		if err != nil {
			return nil, err
		}
		res.Warnings = append(res.Warnings, warnings...)
		if scaling != nil {
			res.Scaling[sym] = scaling
		}

		sessions[sym] = backtest.NewSession(sym, effective, scaling)
		byDay := make(map[time.Time]models.Bar, len(window))
		for _, bar := range window {
			byDay[bar.Date] = bar
			if !seenDay[bar.Date] {
				seenDay[bar.Date] = true
				calendar = append(calendar, bar.Date)
			}
		}
		windows[sym] = byDay
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })

	liquidated := make(map[string]bool)
	lastClose := make(map[string]float64)

	for _, day := range calendar {
		// Phase 1: every forced liquidation, fully applied.
		for _, sym := range symbols {
			if liquidated[sym] {
				continue
			}
			due, scheduled := req.Liquidations[sym]
			if !scheduled || day.Before(due) {
				continue
			}
			bar, ok := windows[sym][day]
			if !ok {
				continue // no bar today; liquidate on the next traded day
			}
			tx, err := sessions[sym].Liquidate(bar, book)
			if err != nil {
				return nil, err
			}
			liquidated[sym] = true
			lastClose[sym] = bar.Close
			if tx != nil {
				res.Transactions = append(res.Transactions, *tx)
				logger.S().Infof("Liquidated %s on %s: PNL %.2f", sym, day.Format("2006-01-02"), *tx.PNL)
			}
		}

		// Phase 2: normal trading against the post-liquidation cash balance.
		for _, sym := range symbols {
			if liquidated[sym] {
				continue
			}
			bar, ok := windows[sym][day]
			if !ok {
				continue
			}
			lastClose[sym] = bar.Close
			txs, err := sessions[sym].Step(bar, book)
			if err != nil {
				return nil, err
			}
			res.Transactions = append(res.Transactions, txs...)
		}

		var market float64
		for _, sym := range symbols {
			market += sessions[sym].MarketValue(lastClose[sym])
		}
		res.EquityCurve = append(res.EquityCurve, models.EquityPoint{
			Date:     day,
			Equity:   book.CashReserve + market,
			Cash:     book.CashReserve,
			Deployed: book.TotalDeployed(),
		})
	}

	res.Final = Snapshot{
		TotalCapital:     book.TotalCapital,
		CashReserve:      book.CashReserve,
		MarginPercent:    book.MarginPercent,
		RealizedPNL:      book.RealizedPNL(),
		TotalDeployed:    book.TotalDeployed(),
		DeployedBySymbol: book.DeployedBySymbol(),
		Lots:             make(map[string][]models.Lot, len(symbols)),
	}
	for _, sym := range symbols {
		if lots := sessions[sym].Ledger.Lots; len(lots) > 0 {
			res.Final.Lots[sym] = append([]models.Lot(nil), lots...)
		}
	}
	logger.S().Infof("Portfolio backtest: %d symbols, %d transactions, realized PNL %.2f",
		len(symbols), len(res.Transactions), res.Final.RealizedPNL)
	return res, nil
}

func validate(req Request) error {
	if !req.Start.Before(req.End) {
		return &models.ParameterError{Field: "start_date", Reason: "must be before end_date"}
	}
	pcfg := models.PortfolioConfig{
		TotalCapitalUSD: req.TotalCapitalUSD,
		MarginPercent:   req.MarginPercent,
		Symbols:         req.Symbols,
		Overrides:       req.Overrides,
	}
	if err := config.ValidatePortfolio(pcfg); err != nil {
		return err
	}
	if err := config.ValidateStrategy(req.Base); err != nil {
		return err
	}
	for sym := range req.Liquidations {
		found := false
		for _, s := range req.Symbols {
			if s == sym {
				found = true
				break
			}
		}
		if !found {
			return &models.ParameterError{Field: "liquidations", Reason: "liquidation for unknown symbol " + sym}
		}
	}
	return nil
}
