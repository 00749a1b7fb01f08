package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProfileKey is the closed set of strategy profiles. Resolution happens once
// per evaluation cycle; there is no string-keyed rule lookup at runtime.
type ProfileKey string

const (
	ProfileOscillator ProfileKey = "oscillator"
	ProfileTrend      ProfileKey = "trend"
	ProfileBreakout   ProfileKey = "breakout"
)

// RiskMode scales the protective-order distances of a profile.
type RiskMode string

const (
	RiskConservative RiskMode = "conservative"
	RiskAggressive   RiskMode = "aggressive"
)

// StrategyProfile bundles the thresholds one evaluation cycle needs, fully
// resolved: profile defaults merged with the watchlist entry's overrides.
type StrategyProfile struct {
	Key      ProfileKey
	RiskMode RiskMode

	// Timeframe names the candle interval the indicators were computed on.
	// It participates in the dedup hash.
	Timeframe string

	// Oscillator bounds. BUY requires RSI at or below RSIBuyBelow, SELL
	// requires RSI at or above RSISellAbove.
	RSIBuyBelow  decimal.Decimal
	RSISellAbove decimal.Decimal

	// CheckTrend enables the moving-average relationship condition.
	CheckTrend bool

	// VolumeRatioMin gates on current/average volume; zero disables it.
	VolumeRatioMin decimal.Decimal

	// TargetProximityPct gates on distance to the snapshot target price;
	// zero disables it.
	TargetProximityPct decimal.Decimal

	// MinChangePct is the price-change threshold the throttle gate uses.
	MinChangePct decimal.Decimal

	// Protective order distances, percentages of the fill price.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
}

var profileDefaults = map[ProfileKey]StrategyProfile{
	ProfileOscillator: {
		Key:           ProfileOscillator,
		Timeframe:     "1h",
		RSIBuyBelow:   decimal.NewFromInt(30),
		RSISellAbove:  decimal.NewFromInt(70),
		CheckTrend:    false,
		MinChangePct:  decimal.NewFromFloat(0.5),
		StopLossPct:   decimal.NewFromInt(2),
		TakeProfitPct: decimal.NewFromInt(4),
	},
	ProfileTrend: {
		Key:            ProfileTrend,
		Timeframe:      "1h",
		RSIBuyBelow:    decimal.NewFromInt(40),
		RSISellAbove:   decimal.NewFromInt(60),
		CheckTrend:     true,
		VolumeRatioMin: decimal.NewFromFloat(1.2),
		MinChangePct:   decimal.NewFromFloat(0.8),
		StopLossPct:    decimal.NewFromFloat(1.5),
		TakeProfitPct:  decimal.NewFromInt(3),
	},
	ProfileBreakout: {
		Key:                ProfileBreakout,
		Timeframe:          "15m",
		RSIBuyBelow:        decimal.NewFromInt(50),
		RSISellAbove:       decimal.NewFromInt(50),
		CheckTrend:         true,
		VolumeRatioMin:     decimal.NewFromFloat(1.5),
		TargetProximityPct: decimal.NewFromInt(1),
		MinChangePct:       decimal.NewFromFloat(0.3),
		StopLossPct:        decimal.NewFromInt(1),
		TakeProfitPct:      decimal.NewFromInt(2),
	},
}

// ResolveProfile returns the resolved profile for an entry: closed-enum
// lookup, risk-mode scaling, then per-symbol overrides merged once.
func ResolveProfile(entry *WatchlistEntry) (StrategyProfile, error) {
	base, ok := profileDefaults[ProfileKey(entry.ProfileKey)]
	if !ok {
		return StrategyProfile{}, fmt.Errorf("unknown strategy profile %q", entry.ProfileKey)
	}

	switch RiskMode(entry.RiskMode) {
	case RiskConservative, RiskMode(""):
		base.RiskMode = RiskConservative
	case RiskAggressive:
		base.RiskMode = RiskAggressive
		// Aggressive mode widens the stop and the target by half.
		scale := decimal.NewFromFloat(1.5)
		base.StopLossPct = base.StopLossPct.Mul(scale)
		base.TakeProfitPct = base.TakeProfitPct.Mul(scale)
	default:
		return StrategyProfile{}, fmt.Errorf("unknown risk mode %q", entry.RiskMode)
	}

	if entry.MinChangePct.IsPositive() {
		base.MinChangePct = entry.MinChangePct
	}

	return base, nil
}
