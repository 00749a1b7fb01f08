package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

func TestThrottleSetBypassBothResetsBaseline(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := (&ThrottleRepository{}).WithDB(db)

	sentAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, side := range []string{model.OrderSideBuy, model.OrderSideSell} {
		state := model.ThrottleState{
			Symbol:        "BTCUSDT",
			Side:          side,
			BaselinePrice: decimal.NewFromInt(50000),
			LastSentAt:    sentAt,
		}
		if err := repo.SaveState(ctx, &state); err != nil {
			t.Fatalf("failed to seed state: %v", err)
		}
	}

	if err := repo.SetBypassBoth(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, side := range []string{model.OrderSideBuy, model.OrderSideSell} {
		state, err := repo.GetState(ctx, "BTCUSDT", side)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state == nil {
			t.Fatalf("state for side %s disappeared", side)
		}
		if !state.Bypass {
			t.Fatalf("bypass not armed for side %s", side)
		}
		if !state.BaselinePrice.IsZero() {
			t.Fatalf("baseline not cleared for side %s: %s", side, state.BaselinePrice)
		}
		if !state.LastSentAt.IsZero() {
			t.Fatalf("timestamp not cleared for side %s: %v", side, state.LastSentAt)
		}
	}
}

func TestThrottleDedupRoundTripAndSweep(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := (&ThrottleRepository{}).WithDB(db)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DedupRecord{
		{Hash: "aaa", Symbol: "BTCUSDT", Side: model.OrderSideBuy, ExpiresAt: now.Add(5 * time.Minute)},
		{Hash: "bbb", Symbol: "BTCUSDT", Side: model.OrderSideSell, ExpiresAt: now.Add(-time.Minute)},
	}
	for i := range records {
		if err := repo.CreateDedup(ctx, &records[i]); err != nil {
			t.Fatalf("failed to seed record: %v", err)
		}
	}

	live, err := repo.FindDedup(ctx, "aaa", now)
	if err != nil || live == nil {
		t.Fatalf("expected unexpired record found, got %v %v", live, err)
	}
	expired, err := repo.FindDedup(ctx, "bbb", now)
	if err != nil || expired != nil {
		t.Fatalf("expired record must read as absent, got %v %v", expired, err)
	}

	removed, err := repo.DeleteExpiredDedup(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept record, got %d", removed)
	}
}
