package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WatchlistEntry is one monitored instrument with its per-symbol settings.
// Operators edit these rows; the runner only writes ThrottleResetPending
// (consuming it) and LastOrderAt.
type WatchlistEntry struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Symbol string `gorm:"size:50;not null;uniqueIndex" json:"symbol"`

	AlertOnBuy     bool `gorm:"not null;default:true" json:"alert_on_buy"`
	AlertOnSell    bool `gorm:"not null;default:true" json:"alert_on_sell"`
	TradingEnabled bool `gorm:"not null;default:false" json:"trading_enabled"`

	// TradeAmount is the quote-currency notional per order.
	TradeAmount decimal.Decimal `gorm:"type:numeric" json:"trade_amount"`

	ProfileKey string `gorm:"size:30;not null;default:oscillator" json:"profile_key"`
	RiskMode   string `gorm:"size:30;not null;default:conservative" json:"risk_mode"`

	// MinChangePct overrides the profile's throttle threshold when positive.
	MinChangePct decimal.Decimal `gorm:"type:numeric" json:"min_change_pct"`

	// ThrottleResetPending is a one-shot operator flag: the next cycle arms
	// a throttle bypass for both sides, then clears it.
	ThrottleResetPending bool `gorm:"not null;default:false" json:"throttle_reset_pending"`

	LastOrderAt *time.Time `json:"last_order_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (WatchlistEntry) TableName() string {
	return "watchlist_entries"
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "EUR", "USD"}

// BaseAsset strips the quote suffix from the trading pair, e.g. BTCUSDT
// yields BTC. Position limits net per base asset across pairs.
func (e *WatchlistEntry) BaseAsset() string {
	return BaseAssetOf(e.Symbol)
}

func BaseAssetOf(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range knownQuotes {
		if len(upper) > len(quote) && strings.HasSuffix(upper, quote) {
			return upper[:len(upper)-len(quote)]
		}
	}
	return upper
}
