package netting

import (
	"context"

	"github.com/shopspring/decimal"

	"signalrunner/src/model"
)

// FilledOrderSource returns filled orders for a base asset across all quote
// pairs, ordered by execution time. OrderRepository satisfies it.
type FilledOrderSource interface {
	FindFilledByBaseAsset(ctx context.Context, baseAsset string) ([]model.Order, error)
}

// Counter computes the true open-position count per base asset by netting
// filled sells against filled buys. Pending protective orders never reduce
// the count; only executed opposite-side fills do.
type Counter struct {
	orders FilledOrderSource
}

func NewCounter(orders FilledOrderSource) *Counter {
	return &Counter{orders: orders}
}

// OpenPositions nets filled quantities for the base asset and returns the
// number of buy lots with residual quantity. A lot counts as one position
// regardless of how small the residual is; fragmented exposure is
// over-counted rather than under-counted.
func (c *Counter) OpenPositions(ctx context.Context, baseAsset string) (int, error) {
	fills, err := c.orders.FindFilledByBaseAsset(ctx, baseAsset)
	if err != nil {
		return 0, err
	}

	var buys []decimal.Decimal
	sellTotal := decimal.Zero

	for _, order := range fills {
		qty := order.ExecutedQty
		if !qty.IsPositive() {
			continue
		}
		switch order.Side {
		case model.OrderSideBuy:
			buys = append(buys, qty)
		case model.OrderSideSell:
			sellTotal = sellTotal.Add(qty)
		}
	}

	return CountOpenLots(buys, sellTotal), nil
}

// CountOpenLots consumes the sell total against buy lots first-filled-first,
// and returns how many lots keep any residual quantity.
func CountOpenLots(buys []decimal.Decimal, sellTotal decimal.Decimal) int {
	open := 0
	remaining := sellTotal

	for _, lot := range buys {
		if remaining.GreaterThanOrEqual(lot) {
			remaining = remaining.Sub(lot)
			continue
		}
		// Partially consumed or untouched lot: still one open position.
		remaining = decimal.Zero
		open++
	}

	return open
}
