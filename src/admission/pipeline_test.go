package admission

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
	"signalrunner/src/signal"
)

type spyPositions struct {
	open   int
	err    error
	called bool
}

func (s *spyPositions) OpenPositions(context.Context, string) (int, error) {
	s.called = true
	return s.open, s.err
}

type spyOrders struct {
	recent *model.Order
	called bool
}

func (s *spyOrders) FindLatestPrimarySince(context.Context, string, time.Time) (*model.Order, error) {
	s.called = true
	return s.recent, nil
}

var admitNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func tradableEntry() *model.WatchlistEntry {
	return &model.WatchlistEntry{
		ID:             1,
		Symbol:         "BTCUSDT",
		TradingEnabled: true,
		TradeAmount:    decimal.NewFromInt(100),
	}
}

func freshSnapshot() *model.MarketSnapshot {
	return &model.MarketSnapshot{
		Symbol:     "BTCUSDT",
		Price:      decimal.NewFromInt(50000),
		CapturedAt: admitNow.Add(-time.Minute),
	}
}

func buyDecision() signal.Decision {
	return signal.Decision{Action: signal.ActionBuy, Price: decimal.NewFromInt(50000)}
}

func testPipeline(positions *spyPositions, orders *spyOrders) *Pipeline {
	p := NewPipeline(positions, orders, 3, 30*time.Minute, 5*time.Minute)
	p.now = func() time.Time { return admitNow }
	return p
}

func TestAdmitAllGatesPass(t *testing.T) {
	positions := &spyPositions{open: 1}
	orders := &spyOrders{}
	p := testPipeline(positions, orders)

	result, err := p.Admit(context.Background(), tradableEntry(), buyDecision(), freshSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Admitted {
		t.Fatalf("expected admission, got %s (%s)", result.Reason, result.Detail)
	}
}

func TestAdmitGateOrderAndShortCircuit(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(entry *model.WatchlistEntry, decision *signal.Decision, positions *spyPositions, orders *spyOrders)
		snapshot   func() *model.MarketSnapshot
		wantReason SkipReason
		// gates past the failing one must not run
		wantPositionsCalled bool
		wantOrdersCalled    bool
	}{
		{
			name: "trading disabled stops before any query",
			mutate: func(entry *model.WatchlistEntry, _ *signal.Decision, _ *spyPositions, _ *spyOrders) {
				entry.TradingEnabled = false
			},
			snapshot:   freshSnapshot,
			wantReason: SkipTradingDisabled,
		},
		{
			name: "zero amount stops before any query",
			mutate: func(entry *model.WatchlistEntry, _ *signal.Decision, _ *spyPositions, _ *spyOrders) {
				entry.TradeAmount = decimal.Zero
			},
			snapshot:   freshSnapshot,
			wantReason: SkipInvalidAmount,
		},
		{
			name: "wait decision stops before any query",
			mutate: func(_ *model.WatchlistEntry, decision *signal.Decision, _ *spyPositions, _ *spyOrders) {
				decision.Action = signal.ActionWait
			},
			snapshot:   freshSnapshot,
			wantReason: SkipNoAction,
		},
		{
			name: "position limit stops before cooldown query",
			mutate: func(_ *model.WatchlistEntry, _ *signal.Decision, positions *spyPositions, _ *spyOrders) {
				positions.open = 3
			},
			snapshot:            freshSnapshot,
			wantReason:          SkipMaxPositions,
			wantPositionsCalled: true,
		},
		{
			name: "cooldown blocks after position check",
			mutate: func(_ *model.WatchlistEntry, _ *signal.Decision, _ *spyPositions, orders *spyOrders) {
				orders.recent = &model.Order{ID: 7, CreatedAt: admitNow.Add(-10 * time.Minute)}
			},
			snapshot:            freshSnapshot,
			wantReason:          SkipCooldownActive,
			wantPositionsCalled: true,
			wantOrdersCalled:    true,
		},
		{
			name:   "stale snapshot blocks last",
			mutate: func(*model.WatchlistEntry, *signal.Decision, *spyPositions, *spyOrders) {},
			snapshot: func() *model.MarketSnapshot {
				s := freshSnapshot()
				s.CapturedAt = admitNow.Add(-10 * time.Minute)
				return s
			},
			wantReason:          SkipStaleData,
			wantPositionsCalled: true,
			wantOrdersCalled:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := &spyPositions{open: 0}
			orders := &spyOrders{}
			entry := tradableEntry()
			decision := buyDecision()
			tt.mutate(entry, &decision, positions, orders)

			result, err := testPipeline(positions, orders).Admit(context.Background(), entry, decision, tt.snapshot())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Admitted {
				t.Fatal("expected a skip, got admission")
			}
			if result.Reason != tt.wantReason {
				t.Fatalf("expected reason %s, got %s (%s)", tt.wantReason, result.Reason, result.Detail)
			}
			if positions.called != tt.wantPositionsCalled {
				t.Fatalf("position gate called = %v, want %v", positions.called, tt.wantPositionsCalled)
			}
			if orders.called != tt.wantOrdersCalled {
				t.Fatalf("cooldown gate called = %v, want %v", orders.called, tt.wantOrdersCalled)
			}
		})
	}
}

func TestAdmitMissingSnapshotIsStale(t *testing.T) {
	p := testPipeline(&spyPositions{}, &spyOrders{})

	result, err := p.Admit(context.Background(), tradableEntry(), buyDecision(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Admitted || result.Reason != SkipStaleData {
		t.Fatalf("expected stale_market_data for nil snapshot, got %+v", result)
	}
}
