package model

import "time"

// Lifecycle event kinds. One event is written on every exit path of the
// orchestrator and the reconciler; together they are the ground truth for
// "what the system decided and why".
const (
	EventTradeBlocked     = "TRADE_BLOCKED"
	EventOrderCreated     = "ORDER_CREATED"
	EventOrderFailed      = "ORDER_FAILED"
	EventOrderExecuted    = "ORDER_EXECUTED"
	EventOrderCanceled    = "ORDER_CANCELED"
	EventProtectiveCreate = "PROTECTIVE_CREATED"
	EventProtectiveFailed = "PROTECTIVE_FAILED"
	EventBreakerOpened    = "BREAKER_OPENED"
	EventBreakerClosed    = "BREAKER_CLOSED"
	EventAlertSent        = "ALERT_SENT"
	EventAlertSuppressed  = "ALERT_SUPPRESSED"
)

// LifecycleEvent is an append-only audit record. Rows are write-once; there
// is no update path anywhere in the codebase.
type LifecycleEvent struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Kind   string `gorm:"size:40;not null;index" json:"kind"`
	Symbol string `gorm:"size:50;not null;index:idx_event_symbol_created" json:"symbol"`

	// CorrelationID ties every event of one evaluation cycle together.
	CorrelationID string `gorm:"size:64;index" json:"correlation_id"`

	OrderID *uint `gorm:"index" json:"order_id,omitempty"`

	Reason string `gorm:"size:512" json:"reason"`

	// Critical marks failures with capital already at risk, e.g. a filled
	// position left without its protective pair.
	Critical bool `gorm:"not null;default:false" json:"critical"`

	CreatedAt time.Time `gorm:"index:idx_event_symbol_created" json:"created_at"`
}

func (LifecycleEvent) TableName() string {
	return "lifecycle_events"
}
