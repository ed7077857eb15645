package config

import (
	"encoding/json"
	"fmt"
	"os"

	"dca-grid-backtest-go/internal/models"
)

// Load reads the JSON config file at path and validates it.
func Load(path string) (*models.AppConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.AppConfig{
		Strategy: models.DefaultStrategyConfig(),
	}
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateStrategy checks every strategy parameter and reports the first
// offending field. Strategy validation always runs before a simulation starts.
func ValidateStrategy(cfg models.StrategyConfig) error {
	if cfg.LotSizeUSD <= 0 {
		return &models.ParameterError{Field: "lot_size_usd", Reason: "must be positive"}
	}
	if cfg.MaxLots < 1 {
		return &models.ParameterError{Field: "max_lots", Reason: "must be at least 1"}
	}
	if cfg.MaxLotsToSell < 1 {
		return &models.ParameterError{Field: "max_lots_to_sell", Reason: "must be at least 1"}
	}
	if cfg.GridIntervalPercent <= 0 || cfg.GridIntervalPercent > 1 {
		return &models.ParameterError{Field: "grid_interval_percent", Reason: "must be in (0, 1]"}
	}
	if cfg.ProfitRequirement < 0 {
		return &models.ParameterError{Field: "profit_requirement", Reason: "must not be negative"}
	}
	if cfg.TrailingBuyActivationPercent < 0 {
		return &models.ParameterError{Field: "trailing_buy_activation_percent", Reason: "must not be negative"}
	}
	if cfg.TrailingBuyReboundPercent < 0 {
		return &models.ParameterError{Field: "trailing_buy_rebound_percent", Reason: "must not be negative"}
	}
	if cfg.TrailingSellActivationPercent < 0 {
		return &models.ParameterError{Field: "trailing_sell_activation_percent", Reason: "must not be negative"}
	}
	if cfg.TrailingSellPullbackPercent < 0 {
		return &models.ParameterError{Field: "trailing_sell_pullback_percent", Reason: "must not be negative"}
	}
	if cfg.GridConsecutiveIncrement < 0 {
		return &models.ParameterError{Field: "grid_consecutive_increment", Reason: "must not be negative"}
	}
	if cfg.Coefficient <= 0 {
		return &models.ParameterError{Field: "coefficient", Reason: "must be positive"}
	}
	if cfg.ManualBeta != nil && *cfg.ManualBeta <= 0 {
		return &models.ParameterError{Field: "manual_beta", Reason: "must be positive when set"}
	}
	return nil
}

// ValidatePortfolio checks the portfolio-mode parameters.
func ValidatePortfolio(cfg models.PortfolioConfig) error {
	if cfg.TotalCapitalUSD < 1000 {
		return &models.ParameterError{Field: "total_capital_usd", Reason: "must be at least 1000"}
	}
	if cfg.MarginPercent < 0 || cfg.MarginPercent > 1 {
		return &models.ParameterError{Field: "margin_percent", Reason: "must be in [0, 1]"}
	}
	if len(cfg.Symbols) < 1 || len(cfg.Symbols) > 200 {
		return &models.ParameterError{Field: "symbols", Reason: "must list between 1 and 200 symbols"}
	}
	seen := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if s == "" {
			return &models.ParameterError{Field: "symbols", Reason: "symbol must not be empty"}
		}
		if seen[s] {
			return &models.ParameterError{Field: "symbols", Reason: fmt.Sprintf("duplicate symbol %s", s)}
		}
		seen[s] = true
	}
	for sym, override := range cfg.Overrides {
		if !seen[sym] {
			return &models.ParameterError{Field: "overrides", Reason: fmt.Sprintf("override for unknown symbol %s", sym)}
		}
		if err := ValidateStrategy(override); err != nil {
			return fmt.Errorf("override for %s: %w", sym, err)
		}
	}
	for sym := range cfg.Liquidations {
		if !seen[sym] {
			return &models.ParameterError{Field: "liquidations", Reason: fmt.Sprintf("liquidation for unknown symbol %s", sym)}
		}
	}
	return nil
}
