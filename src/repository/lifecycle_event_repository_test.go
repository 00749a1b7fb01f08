package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// newTestDB opens a private in-memory database with the full schema. Each
// test gets its own database name so rows never leak across tests in the
// package.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func TestLifecycleEventSearchFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := (&LifecycleEventRepository{}).WithDB(db)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []model.LifecycleEvent{
		{Kind: model.EventOrderCreated, Symbol: "BTCUSDT", CorrelationID: "corr-1", CreatedAt: base},
		{Kind: model.EventOrderExecuted, Symbol: "BTCUSDT", CorrelationID: "corr-1", CreatedAt: base.Add(time.Minute)},
		{Kind: model.EventProtectiveCreate, Symbol: "BTCUSDT", CorrelationID: "corr-1", CreatedAt: base.Add(2 * time.Minute)},
		{Kind: model.EventOrderCreated, Symbol: "ETHUSDT", CorrelationID: "corr-2", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("failed to seed event: %v", err)
		}
	}

	// No filters: everything, newest first.
	all, err := repo.Search(ctx, EventSearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Symbol != "ETHUSDT" || all[3].Kind != model.EventOrderCreated {
		t.Fatalf("events not ordered newest first: %+v", all)
	}

	// Symbol filter.
	btc, err := repo.Search(ctx, EventSearchOptions{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(btc) != 3 {
		t.Fatalf("expected 3 BTCUSDT events, got %d", len(btc))
	}

	// Correlation filter reconstructs one evaluation cycle.
	cycle, err := repo.Search(ctx, EventSearchOptions{CorrelationID: "corr-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cycle) != 3 {
		t.Fatalf("expected 3 events for corr-1, got %d", len(cycle))
	}
	if cycle[0].Kind != model.EventProtectiveCreate || cycle[2].Kind != model.EventOrderCreated {
		t.Fatalf("cycle not ordered newest first: %+v", cycle)
	}

	// Time range plus limit.
	after := base.Add(30 * time.Second)
	before := base.Add(150 * time.Second)
	windowed, err := repo.Search(ctx, EventSearchOptions{
		CreatedAfter:  &after,
		CreatedBefore: &before,
		Limit:         1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windowed) != 1 {
		t.Fatalf("expected 1 event in window with limit, got %d", len(windowed))
	}
	if windowed[0].Kind != model.EventProtectiveCreate {
		t.Fatalf("expected newest event in window, got %s", windowed[0].Kind)
	}
}

func TestWatchlistFindActiveSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := (&WatchlistRepository{}).WithDB(db)

	entries := []model.WatchlistEntry{
		{Symbol: "BTCUSDT", TradingEnabled: true},
		{Symbol: "ETHUSDT"},
		{Symbol: "SOLUSDT"},
	}
	for i := range entries {
		if err := db.Create(&entries[i]).Error; err != nil {
			t.Fatalf("failed to seed entry: %v", err)
		}
	}

	if err := db.Delete(&entries[1]).Error; err != nil {
		t.Fatalf("failed to soft delete entry: %v", err)
	}

	active, err := repo.FindActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active entries, got %d", len(active))
	}
	if active[0].Symbol != "BTCUSDT" || active[1].Symbol != "SOLUSDT" {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestWatchlistThrottleResetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := (&WatchlistRepository{}).WithDB(db)

	entry := model.WatchlistEntry{Symbol: "BTCUSDT", ThrottleResetPending: true}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	if err := repo.ClearThrottleReset(ctx, entry.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.TouchLastOrder(ctx, entry.ID, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reloaded model.WatchlistEntry
	if err := db.First(&reloaded, entry.ID).Error; err != nil {
		t.Fatalf("failed to reload entry: %v", err)
	}
	if reloaded.ThrottleResetPending {
		t.Fatal("throttle reset flag still set after clear")
	}
	if reloaded.LastOrderAt == nil || !reloaded.LastOrderAt.Equal(at) {
		t.Fatalf("last order timestamp not written: %v", reloaded.LastOrderAt)
	}
}
