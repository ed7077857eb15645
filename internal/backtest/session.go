package backtest

import (
	"dca-grid-backtest-go/internal/engine"
	"dca-grid-backtest-go/internal/models"
)

// Session is one symbol's simulation state: its lot ledger, the four
// trailing stop machines, and the price anchors they trail from. A session
// processes exactly one bar per trading day, in chronological order, against
// a shared capital ledger.
type Session struct {
	Symbol  string
	Config  models.StrategyConfig // effective config, post beta scaling
	Scaling *engine.ScalingResult // nil when beta scaling is disabled

	Ledger *engine.Ledger
	Trails engine.TrailingSet

	lastBuyPrice   float64
	lastSellPrice  float64
	lastShortPrice float64
	recentHigh     float64 // highest close since the position last went flat
	recentLow      float64 // lowest close since the position last went flat
	tradeCount     int
}

// NewSession creates a session with an empty ledger.
func NewSession(symbol string, cfg models.StrategyConfig, scaling *engine.ScalingResult) *Session {
	return &Session{
		Symbol:  symbol,
		Config:  cfg,
		Scaling: scaling,
		Ledger:  engine.NewLedger(symbol),
	}
}

// MarketValue returns the liquidation value of the session's open lots at
// price.
func (s *Session) MarketValue(price float64) float64 {
	return s.Ledger.MarketValue(price)
}

// Step processes one daily bar: forced short covers first, then the exit
// trails (sell, cover), then the entry trails (buy, short). Exits run before
// entries so freed cash is available to the same day's entries. The returned
// transactions are in execution order. A capital violation from the book is
// fatal and returned as-is.
func (s *Session) Step(bar models.Bar, book engine.Capital) ([]models.Transaction, error) {
	price := bar.Close
	if price <= 0 {
		// Degenerate bar: nothing is applicable today.
		return nil, nil
	}
	s.observe(price)

	var out []models.Transaction

	if tx, err := s.emergencyCover(bar, book); err != nil {
		return out, err
	} else if tx != nil {
		out = append(out, *tx)
	}

	if tx, err := s.trySell(bar, book); err != nil {
		return out, err
	} else if tx != nil {
		out = append(out, *tx)
	}

	if tx, err := s.tryCover(bar, book); err != nil {
		return out, err
	} else if tx != nil {
		out = append(out, *tx)
	}

	if tx, err := s.tryBuy(bar, book); err != nil {
		return out, err
	} else if tx != nil {
		out = append(out, *tx)
	}

	if tx, err := s.tryShort(bar, book); err != nil {
		return out, err
	} else if tx != nil {
		out = append(out, *tx)
	}

	return out, nil
}

// observe updates the rolling extremes the entry trails anchor on.
func (s *Session) observe(price float64) {
	if s.recentHigh == 0 || price > s.recentHigh {
		s.recentHigh = price
	}
	if s.recentLow == 0 || price < s.recentLow {
		s.recentLow = price
	}
}

// resetCycle clears the anchors after the position goes flat, so the next
// cycle trails from current prices instead of stale ones.
func (s *Session) resetCycle(price float64) {
	if s.Ledger.HasLots() {
		return
	}
	s.recentHigh = price
	s.recentLow = price
	s.lastBuyPrice = 0
	s.lastShortPrice = 0
}

func (s *Session) classify(price float64) engine.Classification {
	return engine.Classify(s.Ledger, price, s.Config.LotSizeUSD)
}

// emergencyCover force-covers every short lot whose stored peak reference
// has been breached, independent of the cover trail's schedule.
func (s *Session) emergencyCover(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if s.Ledger.Side != models.SideShort {
		return nil, nil
	}
	price := bar.Close
	var breached []int
	for i, lot := range s.Ledger.Lots {
		if lot.PeakPriceAtEntry > 0 && price >= lot.PeakPriceAtEntry {
			breached = append(breached, i)
		}
	}
	if len(breached) == 0 {
		return nil, nil
	}

	cls := s.classify(price)
	res := s.Ledger.RemoveLots(price, breached)
	if err := book.ApplySell(s.Symbol, res.CostBasis, res.Proceeds); err != nil {
		return nil, err
	}
	s.tradeCount++
	s.resetCycle(price)
	pnl := res.PNL
	return &models.Transaction{
		Date:           bar.Date,
		Symbol:         s.Symbol,
		Type:           models.TxEmergencyCover,
		Price:          price,
		Shares:         res.Shares,
		Value:          res.Proceeds,
		PNL:            &pnl,
		PositionStatus: cls.Status,
		UnrealizedPNL:  cls.UnrealizedPNL,
	}, nil
}

// trySell steps the sell trail (anchored on the average cost) and, when it
// fires and the position gate honors it, sells the eligible lots.
func (s *Session) trySell(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if s.Ledger.Side != models.SideLong {
		return nil, nil
	}
	price := bar.Close
	anchor, _ := s.Ledger.AverageCost()
	cfg := engine.StopConfig{
		Activation: s.Config.TrailingSellActivationPercent,
		Reversal:   s.Config.TrailingSellPullbackPercent,
	}
	var fired bool
	s.Trails.Sell, fired = engine.StepUp(s.Trails.Sell, anchor, price, cfg)
	if !fired {
		return nil, nil
	}

	cls := s.classify(price)
	if s.Config.EnablePositionGatedTrailing &&
		!engine.SellTriggerHonored(price, s.lastSellPrice, cls.Status, s.tradeCount) {
		return nil, nil
	}

	res, ok := s.Ledger.ApplySell(price, s.Config.MaxLotsToSell, s.Config.ProfitRequirement, s.Config.EnableAverageBasedSell)
	if !ok {
		return nil, nil
	}
	if err := book.ApplySell(s.Symbol, res.CostBasis, res.Proceeds); err != nil {
		return nil, err
	}
	s.tradeCount++
	s.lastSellPrice = price
	s.resetCycle(price)
	pnl := res.PNL
	return &models.Transaction{
		Date:             bar.Date,
		Symbol:           s.Symbol,
		Type:             models.TxSell,
		Price:            price,
		Shares:           res.Shares,
		Value:            res.Proceeds,
		PNL:              &pnl,
		ConsecutiveCount: s.Ledger.ConsecutiveSells,
		PositionStatus:   cls.Status,
		UnrealizedPNL:    cls.UnrealizedPNL,
	}, nil
}

// tryCover steps the cover trail (anchored on the average short cost) and
// covers the eligible short lots on a fire.
func (s *Session) tryCover(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if s.Ledger.Side != models.SideShort {
		return nil, nil
	}
	price := bar.Close
	anchor, _ := s.Ledger.AverageCost()
	cfg := engine.StopConfig{
		Activation: s.Config.TrailingCoverActivationPercent,
		Reversal:   s.Config.TrailingCoverReboundPercent,
	}
	var fired bool
	s.Trails.Cover, fired = engine.StepDown(s.Trails.Cover, anchor, price, cfg)
	if !fired {
		return nil, nil
	}

	cls := s.classify(price)
	res, ok := s.Ledger.ApplySell(price, s.Config.MaxLotsToSell, s.Config.ProfitRequirement, s.Config.EnableAverageBasedSell)
	if !ok {
		return nil, nil
	}
	if err := book.ApplySell(s.Symbol, res.CostBasis, res.Proceeds); err != nil {
		return nil, err
	}
	s.tradeCount++
	s.resetCycle(price)
	pnl := res.PNL
	return &models.Transaction{
		Date:             bar.Date,
		Symbol:           s.Symbol,
		Type:             models.TxCover,
		Price:            price,
		Shares:           res.Shares,
		Value:            res.Proceeds,
		PNL:              &pnl,
		ConsecutiveCount: s.Ledger.ConsecutiveSells,
		PositionStatus:   cls.Status,
		UnrealizedPNL:    cls.UnrealizedPNL,
	}, nil
}

// tryBuy steps the buy trail (anchored on the last buy, or the recent high
// for a fresh entry) and buys one lot when the trigger is honored, the grid
// spacing allows it, and the book can afford it.
func (s *Session) tryBuy(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if s.Ledger.Side == models.SideShort {
		return nil, nil
	}
	if len(s.Ledger.Lots) >= s.Config.MaxLots {
		return nil, nil
	}
	price := bar.Close
	anchor := s.lastBuyPrice
	if anchor == 0 {
		anchor = s.recentHigh
	}
	cfg := engine.StopConfig{
		Activation: s.Config.TrailingBuyActivationPercent,
		Reversal:   s.Config.TrailingBuyReboundPercent,
	}
	var fired bool
	s.Trails.Buy, fired = engine.StepDown(s.Trails.Buy, anchor, price, cfg)
	if !fired {
		return nil, nil
	}

	cls := s.classify(price)
	if s.Config.EnablePositionGatedTrailing &&
		!engine.BuyTriggerHonored(price, s.lastBuyPrice, cls.Status, s.tradeCount) {
		return nil, nil
	}
	if !engine.BuyAllowed(s.Ledger, price, s.Config) {
		return nil, nil
	}
	value := s.Config.LotSizeUSD
	if !book.CanBuy(value) {
		return nil, nil
	}

	gridUsed := engine.EffectiveGridSize(s.Config, s.Ledger.ConsecutiveBuys)
	shares := value / price
	if err := book.ApplyBuy(s.Symbol, value); err != nil {
		return nil, err
	}
	s.Ledger.ApplyBuy(models.SideLong, price, shares, value, bar.Date, 0)
	s.tradeCount++
	s.lastBuyPrice = price
	return &models.Transaction{
		Date:             bar.Date,
		Symbol:           s.Symbol,
		Type:             models.TxBuy,
		Price:            price,
		Shares:           shares,
		Value:            value,
		ConsecutiveCount: s.Ledger.ConsecutiveBuys,
		GridSizeUsed:     gridUsed,
		PositionStatus:   cls.Status,
		UnrealizedPNL:    cls.UnrealizedPNL,
	}, nil
}

// tryShort steps the short trail (anchored on the last short, or the recent
// low for a fresh entry) and opens one short lot on a fire. The recent high
// is stored on the lot as the emergency-cover reference.
func (s *Session) tryShort(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if !s.Config.EnableShortSelling {
		return nil, nil
	}
	if s.Ledger.Side == models.SideLong {
		return nil, nil
	}
	if len(s.Ledger.Lots) >= s.Config.MaxLots {
		return nil, nil
	}
	price := bar.Close
	anchor := s.lastShortPrice
	if anchor == 0 {
		anchor = s.recentLow
	}
	cfg := engine.StopConfig{
		Activation: s.Config.TrailingShortActivationPercent,
		Reversal:   s.Config.TrailingShortPullbackPercent,
	}
	var fired bool
	s.Trails.Short, fired = engine.StepUp(s.Trails.Short, anchor, price, cfg)
	if !fired {
		return nil, nil
	}

	cls := s.classify(price)
	if !engine.ShortAllowed(s.Ledger, price, s.Config) {
		return nil, nil
	}
	value := s.Config.LotSizeUSD
	if !book.CanBuy(value) {
		return nil, nil
	}

	gridUsed := engine.EffectiveGridSize(s.Config, s.Ledger.ConsecutiveBuys)
	shares := value / price
	if err := book.ApplyBuy(s.Symbol, value); err != nil {
		return nil, err
	}
	s.Ledger.ApplyBuy(models.SideShort, price, shares, value, bar.Date, s.recentHigh)
	s.tradeCount++
	s.lastShortPrice = price
	return &models.Transaction{
		Date:             bar.Date,
		Symbol:           s.Symbol,
		Type:             models.TxShort,
		Price:            price,
		Shares:           shares,
		Value:            value,
		ConsecutiveCount: s.Ledger.ConsecutiveBuys,
		GridSizeUsed:     gridUsed,
		PositionStatus:   cls.Status,
		UnrealizedPNL:    cls.UnrealizedPNL,
	}, nil
}

// Liquidate force-closes the whole position at the bar's close, bypassing
// profit requirements and trailing schedules. It returns nil when the
// session holds nothing.
func (s *Session) Liquidate(bar models.Bar, book engine.Capital) (*models.Transaction, error) {
	if !s.Ledger.HasLots() {
		return nil, nil
	}
	price := bar.Close
	if price <= 0 {
		return nil, nil
	}
	cls := s.classify(price)
	res := s.Ledger.RemoveLots(price, s.Ledger.AllIndices())
	if err := book.ApplySell(s.Symbol, res.CostBasis, res.Proceeds); err != nil {
		return nil, err
	}
	s.tradeCount++
	s.resetCycle(price)
	pnl := res.PNL
	return &models.Transaction{
		Date:           bar.Date,
		Symbol:         s.Symbol,
		Type:           models.TxLiquidation,
		Price:          price,
		Shares:         res.Shares,
		Value:          res.Proceeds,
		PNL:            &pnl,
		PositionStatus: cls.Status,
		UnrealizedPNL:  cls.UnrealizedPNL,
	}, nil
}
