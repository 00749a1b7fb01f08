package connectors

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange-reported order statuses.
const (
	ExchangeStatusNew             = "NEW"
	ExchangeStatusPartiallyFilled = "PARTIALLY_FILLED"
	ExchangeStatusFilled          = "FILLED"
	ExchangeStatusCanceled        = "CANCELED"
	ExchangeStatusRejected        = "REJECTED"
	ExchangeStatusExpired         = "EXPIRED"
)

// PlaceOrderRequest describes one order submission.
type PlaceOrderRequest struct {
	Symbol        string
	Side          string // BUY / SELL
	OrderType     string // MARKET / LIMIT / STOP_LOSS_LIMIT / TAKE_PROFIT_LIMIT
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	StopPrice     decimal.Decimal // trigger price for protective orders
	ClientOrderID string
}

// PlacedOrder is the exchange acknowledgement of a placement.
type PlacedOrder struct {
	ExchangeOrderID string
	ClientOrderID   string
	Status          string
	ExecutedQty     decimal.Decimal
	Price           decimal.Decimal
	TransactedAt    time.Time
}

// OrderRecord is one order as reported by the open-order or order-history
// endpoints.
type OrderRecord struct {
	ExchangeOrderID string
	ClientOrderID   string
	Symbol          string
	Side            string
	Status          string
	Quantity        decimal.Decimal
	ExecutedQty     decimal.Decimal
	Price           decimal.Decimal
	UpdatedAt       time.Time
}

// TradeFill is one execution from the trade-history endpoint.
type TradeFill struct {
	TradeID         string
	ExchangeOrderID string
	Symbol          string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	ExecutedAt      time.Time
}

// SymbolRules carries the quantity normalization metadata for one symbol.
type SymbolRules struct {
	Symbol      string
	StepSize    decimal.Decimal
	MinQuantity decimal.Decimal
	TickSize    decimal.Decimal
}

// NormalizeQuantity rounds a quantity down to the step size. Protective
// orders must never exceed the filled quantity, so rounding is always down.
func (r SymbolRules) NormalizeQuantity(qty decimal.Decimal) decimal.Decimal {
	if !r.StepSize.IsPositive() {
		return qty
	}
	return qty.Div(r.StepSize).Floor().Mul(r.StepSize)
}

// ExchangeConnector is the boundary to the exchange REST API. The lifecycle
// orchestrator and the reconciler depend on this interface, never on the
// concrete client.
type ExchangeConnector interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlacedOrder, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetOrder(ctx context.Context, symbol, exchangeOrderID string) (*OrderRecord, error)
	OpenOrders(ctx context.Context, symbol string) ([]OrderRecord, error)
	OrderHistory(ctx context.Context, symbol string, from, to time.Time) ([]OrderRecord, error)
	TradeHistory(ctx context.Context, symbol string, from, to time.Time) ([]TradeFill, error)
	SymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)
}
