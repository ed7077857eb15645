package backtest

import (
	"testing"
	"time"

	"dca-grid-backtest-go/internal/models"
	"dca-grid-backtest-go/internal/pricedata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkBars builds one daily bar per price, starting at start.
func mkBars(start time.Time, prices ...float64) []models.Bar {
	bars := make([]models.Bar, len(prices))
	for i, p := range prices {
		bars[i] = models.Bar{
			Date:  start.AddDate(0, 0, i),
			Open:  p,
			High:  p,
			Low:   p,
			Close: p,
		}
	}
	return bars
}

// immediateConfig reacts on the first reversal tick: zero trailing percents
// activate at the anchor and trigger on the first non-adverse price.
func immediateConfig() models.StrategyConfig {
	cfg := models.DefaultStrategyConfig()
	cfg.LotSizeUSD = 10000
	cfg.MaxLots = 3
	cfg.MaxLotsToSell = 1
	cfg.GridIntervalPercent = 0.10
	cfg.ProfitRequirement = 0.10
	cfg.TrailingBuyActivationPercent = 0
	cfg.TrailingBuyReboundPercent = 0
	cfg.TrailingSellActivationPercent = 0
	cfg.TrailingSellPullbackPercent = 0
	return cfg
}

func TestRunSellsOnlyAboveProfitRequirement(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	// The 109 pullback fires the sell trail but 109 does not clear the 10%
	// profit requirement over the 100 entry; the trigger is consumed without
	// a trade and the sell waits for the next cycle.
	bars := mkBars(start, 100, 100, 110, 109, 112, 111)

	res, err := Run(Request{
		Symbol: "AAPL",
		Start:  start,
		End:    bars[len(bars)-1].Date,
		Config: immediateConfig(),
	}, bars)
	require.NoError(t, err)

	require.Len(t, res.Transactions, 2)
	buy, sell := res.Transactions[0], res.Transactions[1]

	assert.Equal(t, models.TxBuy, buy.Type)
	assert.Equal(t, 100.0, buy.Price)
	assert.Equal(t, bars[1].Date, buy.Date)
	assert.Nil(t, buy.PNL)

	assert.Equal(t, models.TxSell, sell.Type)
	assert.Equal(t, 111.0, sell.Price)
	assert.Equal(t, bars[5].Date, sell.Date)
	require.NotNil(t, sell.PNL)
	assert.InDelta(t, 1100, *sell.PNL, 1e-6)

	assert.Empty(t, res.FinalLots)
	assert.InDelta(t, 31100, res.Cash, 0.01)
	assert.Zero(t, res.Deployed)
	assert.InDelta(t, 1100, res.RealizedPNL, 0.01)
	assert.Len(t, res.EquityCurve, len(bars))
	assert.InDelta(t, 31100, res.EquityCurve[len(bars)-1].Equity, 0.01)
}

func TestRunGridSpacingBlocksCloseEntries(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// 95 is only 5% under the held lot: the rebound trigger fires but the
	// grid rejects the entry.
	res, err := Run(Request{
		Symbol: "AAPL",
		Start:  start,
		End:    start.AddDate(0, 0, 3),
		Config: immediateConfig(),
	}, mkBars(start, 100, 100, 95, 95))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, models.TxBuy, res.Transactions[0].Type)

	// At 90 the spacing is exactly the interval and the entry passes.
	res, err = Run(Request{
		Symbol: "AAPL",
		Start:  start,
		End:    start.AddDate(0, 0, 3),
		Config: immediateConfig(),
	}, mkBars(start, 100, 100, 90, 90))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	second := res.Transactions[1]
	assert.Equal(t, models.TxBuy, second.Type)
	assert.Equal(t, 90.0, second.Price)
	assert.Equal(t, 2, second.ConsecutiveCount)
}

func TestRunShortCycleWithEmergencyCover(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cfg := immediateConfig()
	cfg.EnableShortSelling = true
	// Keep the long side out of the way.
	cfg.TrailingBuyActivationPercent = 0.50
	cfg.TrailingBuyReboundPercent = 0.20
	cfg.TrailingShortActivationPercent = 0
	cfg.TrailingShortPullbackPercent = 0
	cfg.TrailingCoverActivationPercent = 0.50
	cfg.TrailingCoverReboundPercent = 0.20

	bars := mkBars(start, 100, 105, 105, 106)
	res, err := Run(Request{
		Symbol: "TSLA",
		Start:  start,
		End:    bars[len(bars)-1].Date,
		Config: cfg,
	}, bars)
	require.NoError(t, err)

	require.Len(t, res.Transactions, 2)
	short, cover := res.Transactions[0], res.Transactions[1]

	assert.Equal(t, models.TxShort, short.Type)
	assert.Equal(t, 105.0, short.Price)

	// 106 breaches the stored peak reference and forces the cover at a loss.
	assert.Equal(t, models.TxEmergencyCover, cover.Type)
	assert.Equal(t, 106.0, cover.Price)
	require.NotNil(t, cover.PNL)
	assert.Negative(t, *cover.PNL)

	assert.Empty(t, res.FinalLots)
	assert.Equal(t, models.SideFlat, res.FinalSide)
}

func TestRunReportsDataGaps(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := mkBars(start, 100, 101, 102)

	_, err := Run(Request{
		Symbol: "AAPL",
		Start:  start,
		End:    end,
		Config: immediateConfig(),
	}, bars)
	var gap *pricedata.DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, "AAPL", gap.Symbol)

	// The same request succeeds with the explicit partial-range opt-in.
	res, err := Run(Request{
		Symbol:            "AAPL",
		Start:             start,
		End:               end,
		Config:            immediateConfig(),
		AllowPartialRange: true,
	}, bars)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)
	assert.Len(t, res.EquityCurve, len(bars))
}

func TestRunRejectsInvalidParameters(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cfg := immediateConfig()
	cfg.GridIntervalPercent = 0

	_, err := Run(Request{Symbol: "AAPL", Start: start, End: start.AddDate(0, 0, 1), Config: cfg}, nil)
	var paramErr *models.ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "grid_interval_percent", paramErr.Field)

	_, err = Run(Request{Symbol: "", Start: start, End: start.AddDate(0, 0, 1), Config: immediateConfig()}, nil)
	require.ErrorAs(t, err, &paramErr)

	_, err = Run(Request{Symbol: "AAPL", Start: start, End: start, Config: immediateConfig()}, nil)
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "start_date", paramErr.Field)
}

func TestRunAppliesManualBetaScaling(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cfg := immediateConfig()
	cfg.EnableBetaScaling = true
	manual := 2.0
	cfg.ManualBeta = &manual

	bars := mkBars(start, 100, 100, 100)
	res, err := Run(Request{
		Symbol: "AAPL",
		Start:  start,
		End:    bars[len(bars)-1].Date,
		Config: cfg,
	}, bars)
	require.NoError(t, err)

	require.NotNil(t, res.Scaling)
	assert.Equal(t, "manual", res.Scaling.Source)
	assert.Equal(t, 2.0, res.Scaling.BetaFactor)
	assert.InDelta(t, 0.20, res.Config.GridIntervalPercent, 1e-12)
}

func TestRunIsDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := mkBars(start, 100, 100, 90, 90, 110, 108, 115, 112)
	req := Request{Symbol: "AAPL", Start: start, End: bars[len(bars)-1].Date, Config: immediateConfig()}

	first, err := Run(req, bars)
	require.NoError(t, err)
	second, err := Run(req, bars)
	require.NoError(t, err)

	assert.Equal(t, first.Transactions, second.Transactions)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
}
