package models

import "fmt"

// AppConfig is the top-level structure of the JSON config file.
type AppConfig struct {
	DataDir   string          `json:"data_dir"`  // directory holding cached daily bar CSV files
	DBPath    string          `json:"db_path"`   // badger database path for saved run results
	LogConfig LogConfig       `json:"log"`       // logging configuration
	Strategy  StrategyConfig  `json:"strategy"`  // base strategy parameters
	Portfolio PortfolioConfig `json:"portfolio"` // portfolio mode parameters
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level      string `json:"level"`       // log level, e.g. "debug", "info", "warn", "error"
	Output     string `json:"output"`      // output mode: "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // max size of a single log file (MB)
	MaxBackups int    `json:"max_backups"` // max number of rotated files to keep
	MaxAge     int    `json:"max_age"`     // max age of rotated files (days)
	Compress   bool   `json:"compress"`    // compress rotated files
}

// StrategyConfig holds every per-symbol strategy parameter. It is treated as
// an immutable value: the engine never mutates a config, beta scaling returns
// an adjusted copy.
type StrategyConfig struct {
	LotSizeUSD          float64 `json:"lot_size_usd"`          // dollar value of one lot
	MaxLots             int     `json:"max_lots"`              // max open lots per symbol
	MaxLotsToSell       int     `json:"max_lots_to_sell"`      // max lots consumed by one sell
	GridIntervalPercent float64 `json:"grid_interval_percent"` // min spacing between entries, e.g. 0.10 = 10%
	ProfitRequirement   float64 `json:"profit_requirement"`    // min gain over cost before a lot may be sold

	TrailingBuyActivationPercent  float64 `json:"trailing_buy_activation_percent"`
	TrailingBuyReboundPercent     float64 `json:"trailing_buy_rebound_percent"`
	TrailingSellActivationPercent float64 `json:"trailing_sell_activation_percent"`
	TrailingSellPullbackPercent   float64 `json:"trailing_sell_pullback_percent"`

	// Short side. Shorts trail like sells (ride the high, fire on the
	// pullback), covers trail like buys (ride the low, fire on the rebound).
	EnableShortSelling             bool    `json:"enable_short_selling"`
	TrailingShortActivationPercent float64 `json:"trailing_short_activation_percent"`
	TrailingShortPullbackPercent   float64 `json:"trailing_short_pullback_percent"`
	TrailingCoverActivationPercent float64 `json:"trailing_cover_activation_percent"`
	TrailingCoverReboundPercent    float64 `json:"trailing_cover_rebound_percent"`

	EnableAverageBasedGrid              bool    `json:"enable_average_based_grid"`
	EnableAverageBasedSell              bool    `json:"enable_average_based_sell"`
	EnableConsecutiveIncrementalBuyGrid bool    `json:"enable_consecutive_incremental_buy_grid"`
	GridConsecutiveIncrement            float64 `json:"grid_consecutive_increment"`
	MaxGridIntervalPercent              float64 `json:"max_grid_interval_percent"` // cap for the widened grid, 0 = uncapped

	EnablePositionGatedTrailing bool `json:"enable_position_gated_trailing"`

	EnableBetaScaling bool     `json:"enable_beta_scaling"`
	Coefficient       float64  `json:"coefficient"`
	ManualBeta        *float64 `json:"manual_beta,omitempty"` // overrides any external beta lookup
}

// PortfolioConfig holds the portfolio-mode parameters.
type PortfolioConfig struct {
	TotalCapitalUSD float64                   `json:"total_capital_usd"`
	MarginPercent   float64                   `json:"margin_percent"` // tolerated loss fraction before the run aborts
	Symbols         []string                  `json:"symbols"`
	Overrides       map[string]StrategyConfig `json:"overrides,omitempty"`    // per-symbol strategy overrides
	Liquidations    map[string]string         `json:"liquidations,omitempty"` // symbol -> forced liquidation date (YYYY-MM-DD)
}

// DefaultStrategyConfig returns the baseline parameter set used when the
// strategy block is absent from the config file.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		LotSizeUSD:                    10000,
		MaxLots:                       10,
		MaxLotsToSell:                 1,
		GridIntervalPercent:           0.10,
		ProfitRequirement:             0.05,
		TrailingBuyActivationPercent:  0.05,
		TrailingBuyReboundPercent:     0.02,
		TrailingSellActivationPercent: 0.05,
		TrailingSellPullbackPercent:   0.02,
		Coefficient:                   1.0,
	}
}

// ParameterError reports a malformed or out-of-range input parameter.
// It is always raised before a simulation starts and names the offending field.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}
