package models

import "time"

// Bar is one daily OHLC bar.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Side marks the direction of an open position.
type Side string

const (
	SideFlat  Side = ""
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TransactionType enumerates every kind of executed transaction.
type TransactionType string

const (
	TxBuy            TransactionType = "BUY"
	TxSell           TransactionType = "SELL"
	TxShort          TransactionType = "SHORT"
	TxCover          TransactionType = "COVER"
	TxEmergencyCover TransactionType = "EMERGENCY_COVER"
	TxLiquidation    TransactionType = "LIQUIDATION"
)

// PositionStatus classifies a symbol's unrealized P/L against the
// classifier threshold.
type PositionStatus string

const (
	StatusWinning PositionStatus = "WINNING"
	StatusLosing  PositionStatus = "LOSING"
	StatusNeutral PositionStatus = "NEUTRAL"
)

// Lot is one discrete purchase (or short sale), tracked individually until
// fully consumed. PeakPriceAtEntry anchors the emergency-cover logic for
// short lots and is zero for long lots.
type Lot struct {
	Price            float64   `json:"price"`
	Shares           float64   `json:"shares"`
	Date             time.Time `json:"date"`
	PeakPriceAtEntry float64   `json:"peak_price_at_entry,omitempty"`
}

// Value returns the lot's cost basis.
func (l Lot) Value() float64 { return l.Price * l.Shares }

// Transaction is one immutable entry of the backtest's audit trail.
type Transaction struct {
	Date             time.Time       `json:"date"`
	Symbol           string          `json:"symbol"`
	Type             TransactionType `json:"type"`
	Price            float64         `json:"price"`
	Shares           float64         `json:"shares"`
	Value            float64         `json:"value"`
	PNL              *float64        `json:"pnl,omitempty"` // nil for entries, set for exits
	ConsecutiveCount int             `json:"consecutive_count"`
	GridSizeUsed     float64         `json:"grid_size_used"`
	PositionStatus   PositionStatus  `json:"position_status_at_execution"`
	UnrealizedPNL    float64         `json:"unrealized_pnl_at_execution"`
}

// EquityPoint is one day's mark of the equity curve.
type EquityPoint struct {
	Date     time.Time `json:"date"`
	Equity   float64   `json:"equity"`
	Cash     float64   `json:"cash"`
	Deployed float64   `json:"deployed"`
}

// RunResult is the persisted record of a completed backtest run.
type RunResult struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"` // "single" or "portfolio"
	Symbols      []string      `json:"symbols"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	CreatedAt    time.Time     `json:"created_at"`
	Transactions []Transaction `json:"transactions"`
	EquityCurve  []EquityPoint `json:"equity_curve"`
	FinalEquity  float64       `json:"final_equity"`
	Warnings     []string      `json:"warnings,omitempty"`
}
