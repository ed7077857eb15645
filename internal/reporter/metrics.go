package reporter

import (
	"math"
	"time"

	"dca-grid-backtest-go/internal/models"

	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252

// Metrics holds the performance figures derived from a run's equity curve
// and transaction log.
type Metrics struct {
	InitialCapital     float64
	FinalEquity        float64
	TotalProfit        float64
	ProfitPercentage   float64
	CAGR               float64
	SharpeRatio        float64
	SortinoRatio       float64
	MaxDrawdown        float64 // fraction, 0.25 = 25%
	TotalTrades        int
	ClosedTrades       int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64 // percent
	CapitalUtilization float64 // mean deployed / total capital
	StartTime          time.Time
	EndTime            time.Time
}

// Compute derives the metrics from an equity curve and transaction log.
// Win/loss counts consider only closing transactions (those carrying a
// realized P/L).
func Compute(equity []models.EquityPoint, txs []models.Transaction, initialCapital float64, start, end time.Time) *Metrics {
	m := &Metrics{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		TotalTrades:    len(txs),
		StartTime:      start,
		EndTime:        end,
	}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}
	m.TotalProfit = m.FinalEquity - m.InitialCapital
	if m.InitialCapital != 0 {
		m.ProfitPercentage = m.TotalProfit / m.InitialCapital * 100
	}

	for _, tx := range txs {
		if tx.PNL == nil {
			continue
		}
		m.ClosedTrades++
		if *tx.PNL > 0 {
			m.WinningTrades++
		} else {
			m.LosingTrades++
		}
	}
	if m.ClosedTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades) * 100
	}

	m.MaxDrawdown = maxDrawdown(equity)
	m.CAGR = cagr(m.InitialCapital, m.FinalEquity, start, end)
	m.SharpeRatio, m.SortinoRatio = riskAdjusted(equity)
	m.CapitalUtilization = utilization(equity, initialCapital)
	return m
}

func maxDrawdown(equity []models.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0].Equity
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func cagr(initial, final float64, start, end time.Time) float64 {
	years := end.Sub(start).Hours() / 24 / 365.25
	if initial <= 0 || final <= 0 || years <= 0 {
		return 0
	}
	return math.Pow(final/initial, 1/years) - 1
}

// riskAdjusted computes annualized Sharpe and Sortino ratios over the daily
// returns of the equity curve, with a zero risk-free rate.
func riskAdjusted(equity []models.EquityPoint) (sharpe, sortino float64) {
	if len(equity) < 3 {
		return 0, 0
	}
	returns := make([]float64, 0, len(equity)-1)
	var downside []float64
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		r := equity[i].Equity/prev - 1
		returns = append(returns, r)
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(returns) < 2 {
		return 0, 0
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std > 0 {
		sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}
	if len(downside) >= 2 {
		downStd := stat.StdDev(downside, nil)
		if downStd > 0 {
			sortino = mean / downStd * math.Sqrt(tradingDaysPerYear)
		}
	}
	return sharpe, sortino
}

func utilization(equity []models.EquityPoint, totalCapital float64) float64 {
	if len(equity) == 0 || totalCapital <= 0 {
		return 0
	}
	deployed := make([]float64, len(equity))
	for i, p := range equity {
		deployed[i] = p.Deployed
	}
	return stat.Mean(deployed, nil) / totalCapital
}
