package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/connectors"
	"signalrunner/src/model"
	"signalrunner/src/retry"
	"signalrunner/src/signal"
)

// OrderStore is the order persistence the lifecycle needs.
// OrderRepository satisfies it.
type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	SetExchangeOrderID(ctx context.Context, orderID uint, exchangeOrderID string) error
	MarkFailed(ctx context.Context, orderID uint, reason string) error
	MarkTerminal(ctx context.Context, orderID uint, status string, source model.ConfirmationSource, executedQty decimal.Decimal, executedAt time.Time) error
	FindProtectiveByParent(ctx context.Context, parentID uint) ([]model.Order, error)
}

// FillState is the typed outcome of the bounded fill-confirmation poll.
type FillState int

const (
	FillConfirmed FillState = iota
	FillNotYet
	FillNotFound
)

// FillOutcome reports what the poll established. Qty is set only for
// FillConfirmed and is always a positive decimal; a zero or missing executed
// quantity never counts as a fill.
type FillOutcome struct {
	State FillState
	Qty   decimal.Decimal
	Price decimal.Decimal
}

// Lifecycle drives one order from placement through fill confirmation to
// the protective one-cancels-other pair. Every exit path appends a
// lifecycle event through the recorder.
type Lifecycle struct {
	exchange connectors.ExchangeConnector
	orders   OrderStore
	recorder *Recorder

	breaker     *retry.Breaker
	retryPolicy retry.Policy

	pollAttempts int
	pollInterval time.Duration

	now func() time.Time
}

func NewLifecycle(
	exchange connectors.ExchangeConnector,
	orders OrderStore,
	recorder *Recorder,
	breaker *retry.Breaker,
	retryPolicy retry.Policy,
	pollAttempts int,
	pollInterval time.Duration,
) *Lifecycle {
	return &Lifecycle{
		exchange:     exchange,
		orders:       orders,
		recorder:     recorder,
		breaker:      breaker,
		retryPolicy:  retryPolicy,
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// callExchange routes one exchange call through the circuit breaker and the
// bounded retry wrapper.
func (l *Lifecycle) callExchange(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, l.retryPolicy, name, fn)
	})
}

// ExecuteSignal places the primary order for an admitted decision and walks
// it through fill confirmation and protective-order creation.
func (l *Lifecycle) ExecuteSignal(
	ctx context.Context,
	entry *model.WatchlistEntry,
	profile model.StrategyProfile,
	decision signal.Decision,
	correlationID string,
) error {

	rules, err := l.symbolRules(ctx, entry.Symbol)
	if err != nil {
		return l.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventOrderFailed,
			Symbol:        entry.Symbol,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("failed to load symbol rules: %v", err),
		})
	}

	quantity := rules.NormalizeQuantity(entry.TradeAmount.Div(decision.Price))
	if !quantity.IsPositive() || quantity.LessThan(rules.MinQuantity) {
		return l.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventOrderFailed,
			Symbol:        entry.Symbol,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("quantity %s below exchange minimum %s", quantity, rules.MinQuantity),
		})
	}

	order := &model.Order{
		ClientOrderID: clientOrderID(correlationID, "p"),
		Symbol:        entry.Symbol,
		BaseAsset:     entry.BaseAsset(),
		Side:          string(decision.Action),
		Role:          model.OrderRolePrimary,
		OrderType:     "MARKET",
		Quantity:      quantity,
		Price:         decision.Price,
		Status:        model.OrderStatusNew,
		CorrelationID: correlationID,
	}
	if err := l.orders.Create(ctx, order); err != nil {
		return fmt.Errorf("failed to persist new order: %w", err)
	}

	var placed *connectors.PlacedOrder
	err = l.callExchange(ctx, "place_order", func(ctx context.Context) error {
		var placeErr error
		placed, placeErr = l.exchange.PlaceOrder(ctx, connectors.PlaceOrderRequest{
			Symbol:        order.Symbol,
			Side:          order.Side,
			OrderType:     order.OrderType,
			Quantity:      order.Quantity,
			ClientOrderID: order.ClientOrderID,
		})
		return placeErr
	})
	if err != nil {
		_ = l.orders.MarkFailed(ctx, order.ID, err.Error())
		return l.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventOrderFailed,
			Symbol:        order.Symbol,
			CorrelationID: correlationID,
			OrderID:       &order.ID,
			Reason:        fmt.Sprintf("order placement failed: %v", err),
		})
	}

	if err := l.orders.SetExchangeOrderID(ctx, order.ID, placed.ExchangeOrderID); err != nil {
		return fmt.Errorf("failed to store exchange order id: %w", err)
	}
	order.ExchangeOrderID = placed.ExchangeOrderID

	if err := l.recorder.Record(ctx, &model.LifecycleEvent{
		Kind:          model.EventOrderCreated,
		Symbol:        order.Symbol,
		CorrelationID: correlationID,
		OrderID:       &order.ID,
		Reason:        fmt.Sprintf("%s %s %s placed, exchange order %s", order.Side, order.Quantity, order.Symbol, placed.ExchangeOrderID),
	}); err != nil {
		return err
	}

	outcome := l.confirmFill(ctx, order, placed)
	switch outcome.State {
	case FillNotYet:
		// Not an error: the reconciler will resolve it from history.
		logger.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"symbol":   order.Symbol,
		}).Warn("fill not confirmed within poll budget, leaving order active")
		return nil

	case FillNotFound:
		logger.WithFields(map[string]interface{}{
			"order_id":          order.ID,
			"exchange_order_id": order.ExchangeOrderID,
		}).Warn("exchange reports no such order, deferring to reconciliation")
		return nil
	}

	if err := l.orders.MarkTerminal(ctx, order.ID, model.OrderStatusFilled, model.SourceOpenOrders, outcome.Qty, l.now()); err != nil {
		return fmt.Errorf("failed to mark order filled: %w", err)
	}
	if err := l.recorder.Record(ctx, &model.LifecycleEvent{
		Kind:          model.EventOrderExecuted,
		Symbol:        order.Symbol,
		CorrelationID: correlationID,
		OrderID:       &order.ID,
		Reason:        fmt.Sprintf("filled %s at %s", outcome.Qty, outcome.Price),
	}); err != nil {
		return err
	}

	return l.placeProtectivePair(ctx, order, profile, rules, outcome)
}

// confirmFill polls the order until the exchange reports FILLED with a
// positive executed quantity, the attempt budget runs out, or the order
// disappears. Bounded by attempts and interval; blocks only this order.
func (l *Lifecycle) confirmFill(ctx context.Context, order *model.Order, placed *connectors.PlacedOrder) FillOutcome {
	if placed.Status == connectors.ExchangeStatusFilled && placed.ExecutedQty.IsPositive() {
		return FillOutcome{State: FillConfirmed, Qty: placed.ExecutedQty, Price: fillPrice(placed.Price, order.Price)}
	}

	for attempt := 1; attempt <= l.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return FillOutcome{State: FillNotYet}
		case <-time.After(l.pollInterval):
		}

		var record *connectors.OrderRecord
		err := l.callExchange(ctx, "get_order", func(ctx context.Context) error {
			var getErr error
			record, getErr = l.exchange.GetOrder(ctx, order.Symbol, order.ExchangeOrderID)
			return getErr
		})
		if err != nil {
			if connectors.IsNoSuchOrder(err) {
				return FillOutcome{State: FillNotFound}
			}
			logger.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"attempt":  attempt,
			}).WithError(err).Warn("fill poll attempt failed")
			continue
		}

		if record.Status == connectors.ExchangeStatusFilled && record.ExecutedQty.IsPositive() {
			return FillOutcome{State: FillConfirmed, Qty: record.ExecutedQty, Price: fillPrice(record.Price, order.Price)}
		}
	}

	return FillOutcome{State: FillNotYet}
}

// placeProtectivePair creates the stop-loss/take-profit pair for a confirmed
// fill. Idempotent: an existing unresolved pair for the parent skips
// creation entirely.
func (l *Lifecycle) placeProtectivePair(
	ctx context.Context,
	parent *model.Order,
	profile model.StrategyProfile,
	rules *connectors.SymbolRules,
	fill FillOutcome,
) error {

	existing, err := l.orders.FindProtectiveByParent(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("failed to check existing protective pair: %w", err)
	}
	if len(existing) > 0 {
		logger.WithFields(map[string]interface{}{
			"parent_order_id": parent.ID,
			"existing":        len(existing),
		}).Info("protective pair already exists, skipping creation")
		return nil
	}

	exitSide := model.OrderSideSell
	if parent.Side == model.OrderSideSell {
		exitSide = model.OrderSideBuy
	}

	qty := rules.NormalizeQuantity(fill.Qty)
	stopPrice := protectivePrice(fill.Price, profile.StopLossPct, parent.Side == model.OrderSideSell, rules.TickSize)
	targetPrice := protectivePrice(fill.Price, profile.TakeProfitPct, parent.Side == model.OrderSideBuy, rules.TickSize)

	legs := []struct {
		role      string
		orderType string
		price     decimal.Decimal
		suffix    string
	}{
		{role: model.OrderRoleStopLoss, orderType: "STOP_LOSS_LIMIT", price: stopPrice, suffix: "sl"},
		{role: model.OrderRoleTakeProfit, orderType: "TAKE_PROFIT_LIMIT", price: targetPrice, suffix: "tp"},
	}

	var placedLegs []*model.Order
	for _, leg := range legs {
		child := &model.Order{
			ClientOrderID: clientOrderID(parent.CorrelationID, leg.suffix),
			Symbol:        parent.Symbol,
			BaseAsset:     parent.BaseAsset,
			Side:          exitSide,
			Role:          leg.role,
			OrderType:     leg.orderType,
			Quantity:      qty,
			Price:         leg.price,
			Status:        model.OrderStatusNew,
			ParentOrderID: &parent.ID,
			CorrelationID: parent.CorrelationID,
		}
		if err := l.orders.Create(ctx, child); err != nil {
			return fmt.Errorf("failed to persist protective order: %w", err)
		}

		var placed *connectors.PlacedOrder
		err := l.callExchange(ctx, "place_protective", func(ctx context.Context) error {
			var placeErr error
			placed, placeErr = l.exchange.PlaceOrder(ctx, connectors.PlaceOrderRequest{
				Symbol:        child.Symbol,
				Side:          child.Side,
				OrderType:     child.OrderType,
				Quantity:      child.Quantity,
				Price:         child.Price,
				StopPrice:     child.Price,
				ClientOrderID: child.ClientOrderID,
			})
			return placeErr
		})
		if err != nil {
			_ = l.orders.MarkFailed(ctx, child.ID, err.Error())
			l.cancelPlacedLegs(ctx, placedLegs)

			// The position is open and unprotected: critical, surfaced
			// immediately, never only logged.
			return l.recorder.Record(ctx, &model.LifecycleEvent{
				Kind:          model.EventProtectiveFailed,
				Symbol:        parent.Symbol,
				CorrelationID: parent.CorrelationID,
				OrderID:       &parent.ID,
				Reason:        fmt.Sprintf("%s placement failed, position unprotected: %v", leg.role, err),
				Critical:      true,
			})
		}

		if err := l.orders.SetExchangeOrderID(ctx, child.ID, placed.ExchangeOrderID); err != nil {
			return fmt.Errorf("failed to store protective exchange order id: %w", err)
		}
		child.ExchangeOrderID = placed.ExchangeOrderID
		placedLegs = append(placedLegs, child)
	}

	return l.recorder.Record(ctx, &model.LifecycleEvent{
		Kind:          model.EventProtectiveCreate,
		Symbol:        parent.Symbol,
		CorrelationID: parent.CorrelationID,
		OrderID:       &parent.ID,
		Reason:        fmt.Sprintf("stop-loss at %s and take-profit at %s for %s", stopPrice, targetPrice, qty),
	})
}

// cancelPlacedLegs best-effort cancels already-placed protective legs when
// the sibling failed, so the pair never ends up half-armed.
func (l *Lifecycle) cancelPlacedLegs(ctx context.Context, legs []*model.Order) {
	for _, leg := range legs {
		err := l.callExchange(ctx, "cancel_protective", func(ctx context.Context) error {
			return l.exchange.CancelOrder(ctx, leg.Symbol, leg.ExchangeOrderID)
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"order_id": leg.ID,
				"role":     leg.Role,
			}).WithError(err).Error("failed to cancel orphaned protective leg")
		}
	}
}

func (l *Lifecycle) symbolRules(ctx context.Context, symbol string) (*connectors.SymbolRules, error) {
	var rules *connectors.SymbolRules
	err := l.callExchange(ctx, "symbol_rules", func(ctx context.Context) error {
		var rulesErr error
		rules, rulesErr = l.exchange.SymbolRules(ctx, symbol)
		return rulesErr
	})
	return rules, err
}

// protectivePrice offsets the fill price by pct, upward when above is true,
// and rounds to the tick size.
func protectivePrice(fillPrice, pct decimal.Decimal, above bool, tickSize decimal.Decimal) decimal.Decimal {
	offset := fillPrice.Mul(pct).Div(decimal.NewFromInt(100))
	price := fillPrice.Sub(offset)
	if above {
		price = fillPrice.Add(offset)
	}
	if tickSize.IsPositive() {
		price = price.Div(tickSize).Floor().Mul(tickSize)
	}
	return price
}

func fillPrice(reported, requested decimal.Decimal) decimal.Decimal {
	if reported.IsPositive() {
		return reported
	}
	return requested
}

func clientOrderID(correlationID, suffix string) string {
	id := correlationID
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("sr-%s-%s", id, suffix)
}
