package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ThrottleState is one row per (symbol, side): the price and time of the last
// allowed emission plus the one-shot bypass flag set on configuration change.
// Only the throttle gate mutates it, under the per-key lock.
type ThrottleState struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Symbol string `gorm:"size:50;not null;index:idx_throttle_symbol_side,unique" json:"symbol"`
	Side   string `gorm:"size:10;not null;index:idx_throttle_symbol_side,unique" json:"side"`

	BaselinePrice decimal.Decimal `gorm:"type:numeric" json:"baseline_price"`
	LastSentAt    time.Time       `json:"last_sent_at"`

	// Bypass allows exactly one emission regardless of the time and price
	// gates, then reverts to normal gating.
	Bypass bool `gorm:"not null;default:false" json:"bypass"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ThrottleState) TableName() string {
	return "throttle_states"
}

// DedupRecord suppresses duplicate emissions of one logical signal. The hash
// covers (symbol, side, profile, timeframe, price bucket, time bucket).
// Expired rows are removed by the TTL sweeper.
type DedupRecord struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Hash   string `gorm:"size:64;not null;uniqueIndex" json:"hash"`
	Symbol string `gorm:"size:50;not null;index" json:"symbol"`
	Side   string `gorm:"size:10;not null" json:"side"`

	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (DedupRecord) TableName() string {
	return "dedup_records"
}
