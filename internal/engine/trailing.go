package engine

import "dca-grid-backtest-go/internal/models"

// Phase is the state of one trailing stop machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActivated
)

// StopState is the full state of one direction's trailing stop. A zero
// value is a valid idle machine.
type StopState struct {
	Phase            Phase   `json:"phase"`
	ReferenceExtreme float64 `json:"reference_extreme,omitempty"`  // best price seen while activated
	LastTriggerPrice float64 `json:"last_trigger_price,omitempty"` // price of the most recent trigger
}

// StopConfig holds the two percentages driving one machine: how far the
// price must move from the anchor to activate, and how far it must reverse
// from the recorded extreme to trigger.
type StopConfig struct {
	Activation float64
	Reversal   float64 // rebound (down-favoring) or pullback (up-favoring)
}

// TrailingSet bundles the four independent per-direction machines of one
// symbol.
type TrailingSet struct {
	Buy   StopState `json:"buy"`
	Sell  StopState `json:"sell"`
	Short StopState `json:"short"`
	Cover StopState `json:"cover"`
}

// StepDown advances a machine whose favorable direction is down (buy and
// cover trails): it activates when price falls below the anchor by the
// activation percent, ratchets the extreme to the lowest price seen, and
// triggers when price rebounds off the extreme by the reversal percent.
//
// A non-positive anchor or price keeps the machine idle; the extreme is
// only ever set from a live price, so no division by zero can occur.
// Triggering resets the machine to idle.
func StepDown(st StopState, anchor, price float64, cfg StopConfig) (StopState, bool) {
	if price <= 0 {
		return st, false
	}
	switch st.Phase {
	case PhaseIdle:
		if anchor <= 0 {
			return st, false
		}
		if price <= anchor*(1-cfg.Activation) {
			st.Phase = PhaseActivated
			st.ReferenceExtreme = price
		}
		return st, false
	case PhaseActivated:
		if price < st.ReferenceExtreme {
			st.ReferenceExtreme = price
			return st, false
		}
		if price >= st.ReferenceExtreme*(1+cfg.Reversal) {
			return StopState{Phase: PhaseIdle, LastTriggerPrice: price}, true
		}
		return st, false
	}
	return st, false
}

// StepUp advances a machine whose favorable direction is up (sell and short
// trails): it activates when price rises above the anchor by the activation
// percent, ratchets the extreme to the highest price seen, and triggers when
// price pulls back from the extreme by the reversal percent.
func StepUp(st StopState, anchor, price float64, cfg StopConfig) (StopState, bool) {
	if price <= 0 {
		return st, false
	}
	switch st.Phase {
	case PhaseIdle:
		if anchor <= 0 {
			return st, false
		}
		if price >= anchor*(1+cfg.Activation) {
			st.Phase = PhaseActivated
			st.ReferenceExtreme = price
		}
		return st, false
	case PhaseActivated:
		if price > st.ReferenceExtreme {
			st.ReferenceExtreme = price
			return st, false
		}
		if price <= st.ReferenceExtreme*(1-cfg.Reversal) {
			return StopState{Phase: PhaseIdle, LastTriggerPrice: price}, true
		}
		return st, false
	}
	return st, false
}

// BuyTriggerHonored applies the position-gated policy to a buy trigger.
// An uptrend buy (price above the last buy) demands a winning position; a
// downtrend buy is honored unless the position is already winning. The first
// trade of a symbol is always honored so the initial entry cannot deadlock.
func BuyTriggerHonored(price, lastBuyPrice float64, status models.PositionStatus, tradeCount int) bool {
	if tradeCount == 0 {
		return true
	}
	if lastBuyPrice > 0 && price > lastBuyPrice {
		return status == models.StatusWinning
	}
	return status != models.StatusWinning
}

// SellTriggerHonored applies the position-gated policy to a sell trigger.
// A downtrend sell (price below the last sell) demands a losing position; an
// uptrend sell is honored unless the position is losing. The first trade of
// a symbol is always honored.
func SellTriggerHonored(price, lastSellPrice float64, status models.PositionStatus, tradeCount int) bool {
	if tradeCount == 0 {
		return true
	}
	if lastSellPrice > 0 && price < lastSellPrice {
		return status == models.StatusLosing
	}
	return status != models.StatusLosing
}
