package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides, mirrored from the exchange API.
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Order roles. A primary order opens the position; its protective pair
// (stop-loss + take-profit) references it through ParentOrderID.
const (
	OrderRolePrimary    = "primary"
	OrderRoleStopLoss   = "stop_loss"
	OrderRoleTakeProfit = "take_profit"
)

// Order statuses. NEW means the order was recorded locally but not yet
// acknowledged by the exchange. Terminal statuses (filled, canceled) are
// written only with a confirmation source; error marks placement failures
// that never reached the book.
const (
	OrderStatusNew             = "new"
	OrderStatusActive          = "active"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCanceled        = "canceled"
	OrderStatusError           = "error"
)

// ConfirmationSource records which exchange feed confirmed a terminal
// status. Absence from the open-order list is deliberately not a source:
// a terminal write without history corroboration must not type-check.
type ConfirmationSource string

const (
	SourceOpenOrders   ConfirmationSource = "open_orders"
	SourceOrderHistory ConfirmationSource = "order_history"
	SourceTradeHistory ConfirmationSource = "trade_history"
)

// IsTerminalStatus reports whether a status ends the order lifecycle.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusError:
		return true
	}
	return false
}

// Order is an exchange order tracked by the runner. The orchestrator creates
// it on placement; once the order leaves new, status transitions belong to
// the reconciliation service.
type Order struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ExchangeOrderID is the identifier returned by the exchange.
	ExchangeOrderID string `gorm:"size:255;index" json:"exchange_order_id"`
	// ClientOrderID is our idempotency key sent with the placement request.
	ClientOrderID string `gorm:"size:255;index" json:"client_order_id"`

	Symbol    string `gorm:"size:50;not null;index" json:"symbol"`
	BaseAsset string `gorm:"size:30;not null;index" json:"base_asset"`
	Side      string `gorm:"size:10;not null" json:"side"`
	Role      string `gorm:"size:20;not null;default:primary" json:"role"`
	OrderType string `gorm:"size:20;not null;default:market" json:"order_type"`

	Quantity    decimal.Decimal `gorm:"type:numeric" json:"quantity"`
	ExecutedQty decimal.Decimal `gorm:"type:numeric" json:"executed_qty"`
	Price       decimal.Decimal `gorm:"type:numeric" json:"price"`

	Status string `gorm:"size:30;not null;default:new" json:"status"`

	// ConfirmedBy names the history feed that confirmed the terminal status.
	ConfirmedBy string `gorm:"size:30" json:"confirmed_by,omitempty"`

	// ParentOrderID links protective orders to their primary order.
	ParentOrderID *uint  `gorm:"index" json:"parent_order_id,omitempty"`
	Parent        *Order `gorm:"foreignKey:ParentOrderID" json:"-"`

	// CorrelationID threads one evaluation cycle through orders and events.
	CorrelationID string `gorm:"size:64;index" json:"correlation_id"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return IsTerminalStatus(o.Status)
}

// IsProtective reports whether the order is a stop-loss or take-profit leg.
func (o *Order) IsProtective() bool {
	return o.Role == OrderRoleStopLoss || o.Role == OrderRoleTakeProfit
}
