package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

func trendProfile() model.StrategyProfile {
	return model.StrategyProfile{
		Key:            model.ProfileTrend,
		Timeframe:      "1h",
		RSIBuyBelow:    decimal.NewFromInt(40),
		RSISellAbove:   decimal.NewFromInt(60),
		CheckTrend:     true,
		VolumeRatioMin: decimal.NewFromFloat(1.2),
	}
}

func snapshotAt(rsi, smaFast, smaSlow, volumeRatio float64) *model.MarketSnapshot {
	return &model.MarketSnapshot{
		Symbol:      "BTCUSDT",
		Price:       decimal.NewFromInt(50000),
		RSI:         decimal.NewFromFloat(rsi),
		SMAFast:     decimal.NewFromFloat(smaFast),
		SMASlow:     decimal.NewFromFloat(smaSlow),
		VolumeRatio: decimal.NewFromFloat(volumeRatio),
		CapturedAt:  time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateBuyRequiresEveryCondition(t *testing.T) {
	profile := trendProfile()

	decision := Evaluate(snapshotAt(35, 50100, 50000, 1.5), profile)
	if decision.Action != ActionBuy {
		t.Fatalf("expected BUY, got %s (failed: %v)", decision.Action, decision.FailedConditions())
	}
	if decision.Strength != 100 {
		t.Fatalf("expected strength 100 on full agreement, got %d", decision.Strength)
	}
}

func TestEvaluateSingleFalseConditionForcesWait(t *testing.T) {
	profile := trendProfile()

	tests := []struct {
		name       string
		snapshot   *model.MarketSnapshot
		wantFailed string
	}{
		{
			name:       "oscillator above entry bound",
			snapshot:   snapshotAt(55, 50100, 50000, 1.5),
			wantFailed: ConditionOscillator,
		},
		{
			name:       "fast average below slow",
			snapshot:   snapshotAt(35, 49900, 50000, 1.5),
			wantFailed: ConditionTrend,
		},
		{
			name:       "volume below minimum",
			snapshot:   snapshotAt(35, 50100, 50000, 0.8),
			wantFailed: ConditionVolume,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Evaluate(tt.snapshot, profile)
			if decision.Action != ActionWait {
				t.Fatalf("expected WAIT, got %s", decision.Action)
			}

			failed := decision.FailedConditions()
			if len(failed) != 1 || failed[0] != tt.wantFailed {
				t.Fatalf("expected exactly [%s] failed, got %v", tt.wantFailed, failed)
			}
		})
	}
}

func TestEvaluateSellSide(t *testing.T) {
	profile := trendProfile()

	// RSI high, fast average under slow, volume confirming.
	decision := Evaluate(snapshotAt(72, 49900, 50000, 1.5), profile)
	if decision.Action != ActionSell {
		t.Fatalf("expected SELL, got %s (failed: %v)", decision.Action, decision.FailedConditions())
	}
}

func TestEvaluateDisabledConditionsExcluded(t *testing.T) {
	profile := model.StrategyProfile{
		Key:          model.ProfileOscillator,
		RSIBuyBelow:  decimal.NewFromInt(30),
		RSISellAbove: decimal.NewFromInt(70),
		// CheckTrend false, VolumeRatioMin zero: both excluded entirely.
	}

	// Trend and volume would both read false if they were counted.
	decision := Evaluate(snapshotAt(25, 49000, 50000, 0.1), profile)
	if decision.Action != ActionBuy {
		t.Fatalf("expected BUY with only oscillator evaluated, got %s", decision.Action)
	}
	if len(decision.Conditions) != 1 {
		t.Fatalf("expected 1 evaluated condition, got %d", len(decision.Conditions))
	}
}

func TestEvaluateTargetProximity(t *testing.T) {
	profile := model.StrategyProfile{
		Key:                model.ProfileBreakout,
		RSIBuyBelow:        decimal.NewFromInt(50),
		RSISellAbove:       decimal.NewFromInt(50),
		TargetProximityPct: decimal.NewFromInt(1),
	}

	near := snapshotAt(45, 0, 0, 0)
	near.TargetPrice = decimal.NewFromInt(50400) // 0.79% away
	if decision := Evaluate(near, profile); decision.Action != ActionBuy {
		t.Fatalf("expected BUY near target, got %s (failed: %v)", decision.Action, decision.FailedConditions())
	}

	far := snapshotAt(45, 0, 0, 0)
	far.TargetPrice = decimal.NewFromInt(52000) // 3.8% away
	if decision := Evaluate(far, profile); decision.Action != ActionWait {
		t.Fatalf("expected WAIT far from target, got %s", decision.Action)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	profile := trendProfile()
	snapshot := snapshotAt(35, 50100, 50000, 1.5)

	first := Evaluate(snapshot, profile)
	for i := 0; i < 10; i++ {
		again := Evaluate(snapshot, profile)
		if again.Action != first.Action || again.Strength != first.Strength {
			t.Fatalf("evaluation %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestStrengthIndexRounds(t *testing.T) {
	conditions := []ConditionResult{
		{Name: ConditionOscillator, Satisfied: true},
		{Name: ConditionTrend, Satisfied: true},
		{Name: ConditionVolume, Satisfied: false},
	}
	// 2/3 = 66.67 rounds to 67.
	if got := strengthIndex(conditions); got != 67 {
		t.Fatalf("expected strength 67, got %d", got)
	}
}
