package admission

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalrunner/src/model"
	"signalrunner/src/signal"
)

// SkipReason is the machine-readable outcome of a failed gate. Skips are
// control flow, not errors: each one becomes a TRADE_BLOCKED event upstream.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipTradingDisabled SkipReason = "trading_disabled"
	SkipInvalidAmount   SkipReason = "invalid_amount"
	SkipNoAction        SkipReason = "no_action"
	SkipMaxPositions    SkipReason = "max_positions"
	SkipCooldownActive  SkipReason = "cooldown_active"
	SkipStaleData       SkipReason = "stale_market_data"
)

// Result is either an admission (Admitted true) or a typed skip.
type Result struct {
	Admitted bool
	Reason   SkipReason
	Detail   string
}

// PositionCounter reports open positions per base asset. The netting counter
// satisfies it.
type PositionCounter interface {
	OpenPositions(ctx context.Context, baseAsset string) (int, error)
}

// RecentOrderFinder locates the most recent primary order inside the
// cooldown window. OrderRepository satisfies it.
type RecentOrderFinder interface {
	FindLatestPrimarySince(ctx context.Context, symbol string, since time.Time) (*model.Order, error)
}

// Pipeline runs the ordered trade admission gates. Gates short-circuit on
// the first failure; later gates (and their queries) never run. Alerts do
// not pass through here, only order placement does.
type Pipeline struct {
	positions PositionCounter
	orders    RecentOrderFinder

	maxOpenPositions int
	cooldown         time.Duration
	stalenessCeiling time.Duration
	now              func() time.Time
}

func NewPipeline(
	positions PositionCounter,
	orders RecentOrderFinder,
	maxOpenPositions int,
	cooldown time.Duration,
	stalenessCeiling time.Duration,
) *Pipeline {
	return &Pipeline{
		positions:        positions,
		orders:           orders,
		maxOpenPositions: maxOpenPositions,
		cooldown:         cooldown,
		stalenessCeiling: stalenessCeiling,
		now:              time.Now,
	}
}

// Admit runs every gate in order and returns EXEC (Admitted) or the first
// failing gate's skip reason.
func (p *Pipeline) Admit(
	ctx context.Context,
	entry *model.WatchlistEntry,
	decision signal.Decision,
	snapshot *model.MarketSnapshot,
) (Result, error) {

	// Gate 1: trading switch.
	if !entry.TradingEnabled {
		return skip(SkipTradingDisabled, "automated trading disabled for instrument"), nil
	}

	// Gate 2: notional amount.
	if !entry.TradeAmount.IsPositive() {
		return skip(SkipInvalidAmount, fmt.Sprintf("trade amount %s is not positive", entry.TradeAmount)), nil
	}

	// Gate 3: actionable decision.
	if decision.Action == signal.ActionWait {
		return skip(SkipNoAction, "decision is WAIT"), nil
	}

	// Gate 4: open-position limit per base asset.
	open, err := p.positions.OpenPositions(ctx, entry.BaseAsset())
	if err != nil {
		return Result{}, fmt.Errorf("failed to count open positions: %w", err)
	}
	if open >= p.maxOpenPositions {
		return skip(SkipMaxPositions, fmt.Sprintf("%d open positions, limit %d", open, p.maxOpenPositions)), nil
	}

	// Gate 5: cooldown since the last primary order.
	now := p.now()
	recent, err := p.orders.FindLatestPrimarySince(ctx, entry.Symbol, now.Add(-p.cooldown))
	if err != nil {
		return Result{}, fmt.Errorf("failed to check order cooldown: %w", err)
	}
	if recent != nil {
		return skip(SkipCooldownActive, fmt.Sprintf("order %d placed at %s", recent.ID, recent.CreatedAt.UTC().Format(time.RFC3339))), nil
	}

	// Gate 6: market data freshness.
	if snapshot == nil || !snapshot.Price.IsPositive() {
		return skip(SkipStaleData, "no snapshot or missing price"), nil
	}
	if age := snapshot.Age(now); age > p.stalenessCeiling {
		return skip(SkipStaleData, fmt.Sprintf("snapshot is %s old, ceiling %s", age.Truncate(time.Second), p.stalenessCeiling)), nil
	}

	logger.WithFields(map[string]interface{}{
		"symbol": entry.Symbol,
		"action": decision.Action,
	}).Info("trade admitted")

	return Result{Admitted: true}, nil
}

func skip(reason SkipReason, detail string) Result {
	return Result{Admitted: false, Reason: reason, Detail: detail}
}
