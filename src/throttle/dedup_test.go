package throttle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

func dedupProfile() model.StrategyProfile {
	return model.StrategyProfile{
		Key:          model.ProfileTrend,
		Timeframe:    "1h",
		MinChangePct: decimal.NewFromFloat(0.5),
	}
}

func TestContentHashStableForSameSignal(t *testing.T) {
	at := time.Date(2025, time.June, 1, 12, 0, 30, 0, time.UTC)
	price := decimal.NewFromInt(50000)

	first := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), price, at, 5*time.Minute)
	again := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), price, at.Add(90*time.Second), 5*time.Minute)
	if first != again {
		t.Fatalf("same signal inside one TTL window must hash equal")
	}
}

func TestContentHashVariesPerDimension(t *testing.T) {
	at := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(50000)
	base := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), price, at, 5*time.Minute)

	if got := ContentHash("ETHUSDT", model.OrderSideBuy, dedupProfile(), price, at, 5*time.Minute); got == base {
		t.Fatal("different symbol must hash differently")
	}
	if got := ContentHash("BTCUSDT", model.OrderSideSell, dedupProfile(), price, at, 5*time.Minute); got == base {
		t.Fatal("different side must hash differently")
	}

	other := dedupProfile()
	other.Key = model.ProfileBreakout
	other.Timeframe = "15m"
	if got := ContentHash("BTCUSDT", model.OrderSideBuy, other, price, at, 5*time.Minute); got == base {
		t.Fatal("different profile must hash differently")
	}

	if got := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), price, at.Add(6*time.Minute), 5*time.Minute); got == base {
		t.Fatal("next TTL window must hash differently")
	}
}

func TestContentHashPriceBands(t *testing.T) {
	at := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	base := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), decimal.NewFromInt(50000), at, 5*time.Minute)

	// +2%: several bands away, must differ.
	moved := ContentHash("BTCUSDT", model.OrderSideBuy, dedupProfile(), decimal.NewFromInt(51000), at, 5*time.Minute)
	if moved == base {
		t.Fatal("a price move past the threshold must change the hash")
	}
}

func TestPriceBucketMonotonic(t *testing.T) {
	pct := decimal.NewFromFloat(0.5)

	low := priceBucket(decimal.NewFromInt(50000), pct)
	high := priceBucket(decimal.NewFromInt(60000), pct)
	if low == high {
		t.Fatalf("distant prices must land in distinct buckets, both %s", low)
	}

	// Zero threshold degrades to the exact price.
	if got := priceBucket(decimal.NewFromInt(50000), decimal.Zero); got != "50000" {
		t.Fatalf("expected exact price for zero threshold, got %s", got)
	}
}
