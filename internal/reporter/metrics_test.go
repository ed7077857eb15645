package reporter

import (
	"bytes"
	"testing"
	"time"

	"dca-grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equityCurve(start time.Time, values ...float64) []models.EquityPoint {
	points := make([]models.EquityPoint, len(values))
	for i, v := range values {
		points[i] = models.EquityPoint{Date: start.AddDate(0, 0, i), Equity: v, Cash: v, Deployed: 0}
	}
	return points
}

func pnl(v float64) *float64 { return &v }

func TestComputeProfitAndWinRate(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 101000, 103000, 102000, 105000)
	txs := []models.Transaction{
		{Type: models.TxBuy},
		{Type: models.TxSell, PNL: pnl(1500)},
		{Type: models.TxBuy},
		{Type: models.TxSell, PNL: pnl(-500)},
		{Type: models.TxSell, PNL: pnl(2000)},
	}

	m := Compute(equity, txs, 100000, start, start.AddDate(0, 0, 4))
	assert.Equal(t, 100000.0, m.InitialCapital)
	assert.Equal(t, 105000.0, m.FinalEquity)
	assert.InDelta(t, 5000, m.TotalProfit, 1e-9)
	assert.InDelta(t, 5.0, m.ProfitPercentage, 1e-9)
	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, 3, m.ClosedTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 66.667, m.WinRate, 0.001)
}

func TestMaxDrawdownTracksThePeak(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	// Peak 120000, trough 90000: a 25% drawdown, despite the recovery.
	equity := equityCurve(start, 100000, 120000, 90000, 110000, 115000)

	m := Compute(equity, nil, 100000, start, start.AddDate(0, 0, 4))
	assert.InDelta(t, 0.25, m.MaxDrawdown, 1e-9)
}

func TestComputeMonotonicCurveHasNoDrawdown(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 101000, 102000, 103000)

	m := Compute(equity, nil, 100000, start, start.AddDate(0, 0, 3))
	assert.Zero(t, m.MaxDrawdown)
	assert.Positive(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio) // no downside days
}

func TestComputeEmptyInputs(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	m := Compute(nil, nil, 100000, start, start.AddDate(0, 0, 1))
	assert.Equal(t, 100000.0, m.FinalEquity)
	assert.Zero(t, m.TotalProfit)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.CapitalUtilization)
}

func TestCAGRAnnualizes(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(2, 0, 0)
	equity := []models.EquityPoint{
		{Date: start, Equity: 100000},
		{Date: end, Equity: 144000},
	}
	m := Compute(equity, nil, 100000, start, end)
	// 44% over two years is ~20% a year.
	assert.InDelta(t, 0.20, m.CAGR, 0.005)
}

func TestCapitalUtilization(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	equity := []models.EquityPoint{
		{Date: start, Equity: 100000, Deployed: 0},
		{Date: start.AddDate(0, 0, 1), Equity: 100000, Deployed: 50000},
		{Date: start.AddDate(0, 0, 2), Equity: 100000, Deployed: 100000},
	}
	m := Compute(equity, nil, 100000, start, start.AddDate(0, 0, 2))
	assert.InDelta(t, 0.5, m.CapitalUtilization, 1e-9)
}

func TestPrintReportRendersMetrics(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	equity := equityCurve(start, 100000, 105000)
	m := Compute(equity, nil, 100000, start, start.AddDate(0, 0, 1))

	var buf bytes.Buffer
	PrintReport(&buf, "Backtest AAPL", m)
	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "Backtest AAPL")
	assert.Contains(t, out, "105")
}

func TestPrintTransactionsRendersRows(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		{Date: start, Symbol: "AAPL", Type: models.TxBuy, Price: 100, Shares: 100, Value: 10000},
		{Date: start.AddDate(0, 0, 5), Symbol: "AAPL", Type: models.TxSell, Price: 111, Shares: 100, Value: 11100, PNL: pnl(1100)},
	}

	var buf bytes.Buffer
	PrintTransactions(&buf, txs)
	out := buf.String()
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "SELL")
}
