package engine

import (
	"fmt"
	"math"

	"dca-grid-backtest-go/internal/models"
)

// Recommended parameter ranges. Values outside them scale anyway but are
// reported as warnings.
const (
	minRecommendedCoefficient = 0.25
	maxRecommendedCoefficient = 3.0
	minRecommendedBeta        = 0.01
	maxRecommendedBeta        = 10.0
)

// BetaLookup resolves a volatility beta for a symbol from an external
// source.
type BetaLookup func(symbol string) (float64, error)

// ScalingResult records how the scalable parameters were adjusted for one
// symbol. Callers must check Valid before trusting Adjusted: an internally
// inconsistent scaled set (e.g. a rebound at or above its activation)
// downgrades Valid without failing the run.
type ScalingResult struct {
	Beta        float64               `json:"beta"`
	Coefficient float64               `json:"coefficient"`
	BetaFactor  float64               `json:"beta_factor"`
	Source      string                `json:"source"` // "manual", "lookup", or "default"
	Adjusted    models.StrategyConfig `json:"adjusted_parameters"`
	Warnings    []string              `json:"warnings,omitempty"`
	Valid       bool                  `json:"is_valid"`
}

// ResolveBeta picks the beta for a symbol. A manual override wins outright
// and skips any lookup. A failed or absent lookup degrades to 1.0 with a
// recorded warning instead of failing the run.
func ResolveBeta(symbol string, manual *float64, lookup BetaLookup) (beta float64, source string, warning string) {
	if manual != nil {
		return *manual, "manual", ""
	}
	if lookup == nil {
		return 1.0, "default", ""
	}
	beta, err := lookup(symbol)
	if err != nil || beta <= 0 || math.IsNaN(beta) {
		if err != nil {
			warning = fmt.Sprintf("beta lookup for %s failed (%v), using default 1.0", symbol, err)
		} else {
			warning = fmt.Sprintf("beta lookup for %s returned %v, using default 1.0", symbol, beta)
		}
		return 1.0, "default", warning
	}
	return beta, "lookup", ""
}

// ApplyScaling multiplies the scalable parameter set of base by
// beta * coefficient and returns the adjusted config. Parameters whose base
// value is exactly 0 stay 0, so disabled features stay disabled after
// scaling. Non-numeric or negative inputs are hard errors; merely
// out-of-range inputs produce warnings.
func ApplyScaling(base models.StrategyConfig, beta, coefficient float64) (*ScalingResult, error) {
	if math.IsNaN(coefficient) || math.IsInf(coefficient, 0) || coefficient <= 0 {
		return nil, &models.ParameterError{Field: "coefficient", Reason: "must be a positive number"}
	}
	if math.IsNaN(beta) || math.IsInf(beta, 0) || beta < 0 {
		return nil, &models.ParameterError{Field: "beta", Reason: "must be a non-negative number"}
	}

	res := &ScalingResult{
		Beta:        beta,
		Coefficient: coefficient,
		BetaFactor:  beta * coefficient,
		Adjusted:    base,
		Valid:       true,
	}
	if coefficient < minRecommendedCoefficient || coefficient > maxRecommendedCoefficient {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("coefficient %.4f is outside the recommended range [%.2f, %.2f]",
				coefficient, minRecommendedCoefficient, maxRecommendedCoefficient))
	}
	if beta < minRecommendedBeta || beta > maxRecommendedBeta {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("beta %.4f is outside the recommended range [%.2f, %.2f]",
				beta, minRecommendedBeta, maxRecommendedBeta))
	}

	scale := func(v float64) float64 {
		if v == 0 {
			return 0
		}
		return v * res.BetaFactor
	}
	adj := &res.Adjusted
	adj.GridIntervalPercent = scale(base.GridIntervalPercent)
	adj.ProfitRequirement = scale(base.ProfitRequirement)
	adj.GridConsecutiveIncrement = scale(base.GridConsecutiveIncrement)
	adj.MaxGridIntervalPercent = scale(base.MaxGridIntervalPercent)
	adj.TrailingBuyActivationPercent = scale(base.TrailingBuyActivationPercent)
	adj.TrailingBuyReboundPercent = scale(base.TrailingBuyReboundPercent)
	adj.TrailingSellActivationPercent = scale(base.TrailingSellActivationPercent)
	adj.TrailingSellPullbackPercent = scale(base.TrailingSellPullbackPercent)
	adj.TrailingShortActivationPercent = scale(base.TrailingShortActivationPercent)
	adj.TrailingShortPullbackPercent = scale(base.TrailingShortPullbackPercent)
	adj.TrailingCoverActivationPercent = scale(base.TrailingCoverActivationPercent)
	adj.TrailingCoverReboundPercent = scale(base.TrailingCoverReboundPercent)

	res.validate()
	return res, nil
}

// validate catches internally inconsistent scaled parameter sets. Findings
// downgrade Valid instead of aborting: the caller decides whether to run.
func (r *ScalingResult) validate() {
	check := func(name string, activation, reversal float64) {
		if activation > 0 && reversal >= activation {
			r.Valid = false
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("scaled %s reversal %.4f is not below its activation %.4f", name, reversal, activation))
		}
	}
	check("buy", r.Adjusted.TrailingBuyActivationPercent, r.Adjusted.TrailingBuyReboundPercent)
	check("sell", r.Adjusted.TrailingSellActivationPercent, r.Adjusted.TrailingSellPullbackPercent)
	check("short", r.Adjusted.TrailingShortActivationPercent, r.Adjusted.TrailingShortPullbackPercent)
	check("cover", r.Adjusted.TrailingCoverActivationPercent, r.Adjusted.TrailingCoverReboundPercent)
	if r.Adjusted.GridIntervalPercent > 1 {
		r.Valid = false
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("scaled grid interval %.4f exceeds 1.0", r.Adjusted.GridIntervalPercent))
	}
}
