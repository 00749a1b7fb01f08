package signal

import (
	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

// Action is the evaluator's verdict for one cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Condition names, stable identifiers used in logs and lifecycle events so a
// WAIT can always be attributed to its exact cause.
const (
	ConditionOscillator      = "oscillator"
	ConditionTrend           = "ma_trend"
	ConditionVolume          = "volume_ratio"
	ConditionTargetProximity = "target_proximity"
)

// ConditionResult is one evaluated boolean condition by name.
type ConditionResult struct {
	Name      string
	Satisfied bool
}

// Decision is the evaluator output for one (snapshot, profile) pair. It is
// recomputed every cycle and never persisted.
type Decision struct {
	Action     Action
	Conditions []ConditionResult

	// Strength is the rounded percentage of satisfied conditions over the
	// conditions actually evaluated.
	Strength int

	Price decimal.Decimal
}

// FailedConditions lists names of unsatisfied conditions, for audit reasons.
func (d Decision) FailedConditions() []string {
	var failed []string
	for _, c := range d.Conditions {
		if !c.Satisfied {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// Evaluate computes the decision for one snapshot under one resolved
// profile. Pure and deterministic: no I/O, no clock, no randomness.
//
// BUY requires every evaluated condition to hold; SELL analogously on the
// sell-side reading of each condition. Any false condition forces WAIT.
// Conditions the profile disables are excluded entirely, not counted false.
func Evaluate(snapshot *model.MarketSnapshot, profile model.StrategyProfile) Decision {
	buy := evaluateSide(snapshot, profile, true)
	if allSatisfied(buy) {
		return decisionFrom(ActionBuy, buy, snapshot.Price)
	}

	sell := evaluateSide(snapshot, profile, false)
	if allSatisfied(sell) {
		return decisionFrom(ActionSell, sell, snapshot.Price)
	}

	// WAIT reports the buy-side reading so a near-miss shows which
	// condition broke the entry.
	return decisionFrom(ActionWait, buy, snapshot.Price)
}

func evaluateSide(snapshot *model.MarketSnapshot, profile model.StrategyProfile, buySide bool) []ConditionResult {
	conditions := make([]ConditionResult, 0, 4)

	if buySide {
		conditions = append(conditions, ConditionResult{
			Name:      ConditionOscillator,
			Satisfied: snapshot.RSI.LessThanOrEqual(profile.RSIBuyBelow),
		})
	} else {
		conditions = append(conditions, ConditionResult{
			Name:      ConditionOscillator,
			Satisfied: snapshot.RSI.GreaterThanOrEqual(profile.RSISellAbove),
		})
	}

	if profile.CheckTrend {
		aboveSlow := snapshot.SMAFast.GreaterThan(snapshot.SMASlow)
		conditions = append(conditions, ConditionResult{
			Name:      ConditionTrend,
			Satisfied: aboveSlow == buySide,
		})
	}

	if profile.VolumeRatioMin.IsPositive() {
		conditions = append(conditions, ConditionResult{
			Name:      ConditionVolume,
			Satisfied: snapshot.VolumeRatio.GreaterThanOrEqual(profile.VolumeRatioMin),
		})
	}

	if profile.TargetProximityPct.IsPositive() && snapshot.TargetPrice.IsPositive() {
		conditions = append(conditions, ConditionResult{
			Name:      ConditionTargetProximity,
			Satisfied: withinTargetProximity(snapshot.Price, snapshot.TargetPrice, profile.TargetProximityPct),
		})
	}

	return conditions
}

func withinTargetProximity(price, target, proximityPct decimal.Decimal) bool {
	if target.IsZero() {
		return false
	}
	distancePct := price.Sub(target).Abs().
		Div(target).
		Mul(decimal.NewFromInt(100))
	return distancePct.LessThanOrEqual(proximityPct)
}

func allSatisfied(conditions []ConditionResult) bool {
	for _, c := range conditions {
		if !c.Satisfied {
			return false
		}
	}
	return len(conditions) > 0
}

func decisionFrom(action Action, conditions []ConditionResult, price decimal.Decimal) Decision {
	return Decision{
		Action:     action,
		Conditions: conditions,
		Strength:   strengthIndex(conditions),
		Price:      price,
	}
}

// strengthIndex is round(100 * satisfied / evaluated).
func strengthIndex(conditions []ConditionResult) int {
	if len(conditions) == 0 {
		return 0
	}
	satisfied := 0
	for _, c := range conditions {
		if c.Satisfied {
			satisfied++
		}
	}
	ratio := decimal.NewFromInt(int64(satisfied * 100)).
		Div(decimal.NewFromInt(int64(len(conditions))))
	return int(ratio.Round(0).IntPart())
}
