package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is one row of computed indicators for a symbol at a point
// in time. The snapshot producer writes them; the evaluator only reads the
// freshest one per symbol.
type MarketSnapshot struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Symbol string `gorm:"size:50;not null;uniqueIndex:idx_snapshot_symbol_captured" json:"symbol"`

	Price decimal.Decimal `gorm:"type:numeric" json:"price"`
	RSI   decimal.Decimal `gorm:"type:numeric" json:"rsi"`

	SMAFast decimal.Decimal `gorm:"type:numeric;column:sma_fast" json:"sma_fast"`
	SMASlow decimal.Decimal `gorm:"type:numeric;column:sma_slow" json:"sma_slow"`

	// VolumeRatio is current volume over the trailing average.
	VolumeRatio decimal.Decimal `gorm:"type:numeric" json:"volume_ratio"`

	// TargetPrice is the breakout reference level; zero when not computed.
	TargetPrice decimal.Decimal `gorm:"type:numeric" json:"target_price"`

	// CapturedAt is the close time of the candle the indicators were
	// computed on, not the insert time.
	CapturedAt time.Time `gorm:"not null;uniqueIndex:idx_snapshot_symbol_captured" json:"captured_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (MarketSnapshot) TableName() string {
	return "market_snapshots"
}

// Age returns how stale the snapshot is relative to now.
func (s *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}
