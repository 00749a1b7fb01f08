package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/connectors"
	"signalrunner/src/model"
	"signalrunner/src/retry"
)

// OrderStore is the order persistence the reconciler needs.
// OrderRepository satisfies it.
type OrderStore interface {
	FindNonTerminal(ctx context.Context) ([]model.Order, error)
	FindProtectiveByParent(ctx context.Context, parentID uint) ([]model.Order, error)
	UpdateStatus(ctx context.Context, orderID uint, status string) error
	MarkTerminal(ctx context.Context, orderID uint, status string, source model.ConfirmationSource, executedQty decimal.Decimal, executedAt time.Time) error
	SetExchangeOrderID(ctx context.Context, orderID uint, exchangeOrderID string) error
}

// EventRecorder appends lifecycle events. The orchestrator's Recorder
// satisfies it.
type EventRecorder interface {
	Record(ctx context.Context, event *model.LifecycleEvent) error
}

// Service periodically resolves the true state of every non-terminal order
// against the exchange's own records. An order missing from the open-order
// list is never inferred canceled: only order history, and trade history for
// fills, justify a terminal write.
type Service struct {
	config   Config
	orders   OrderStore
	exchange connectors.ExchangeConnector
	recorder EventRecorder

	breaker     *retry.Breaker
	retryPolicy retry.Policy

	now func() time.Time
}

func NewService(
	config Config,
	orders OrderStore,
	exchange connectors.ExchangeConnector,
	recorder EventRecorder,
	breaker *retry.Breaker,
	retryPolicy retry.Policy,
) *Service {
	return &Service{
		config:      config,
		orders:      orders,
		exchange:    exchange,
		recorder:    recorder,
		breaker:     breaker,
		retryPolicy: retryPolicy,
		now:         time.Now,
	}
}

// Run blocks until the context is canceled, syncing on a fixed interval.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	logger.WithField("interval", s.config.SyncInterval).Info("reconciliation loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciliation loop stopped")
			return nil
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				logger.WithError(err).Error("reconciliation pass failed")
			}
		}
	}
}

// SyncOnce runs one full reconciliation pass over all non-terminal orders.
func (s *Service) SyncOnce(ctx context.Context) error {
	orders, err := s.orders.FindNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("failed to load non-terminal orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	openBySymbol := make(map[string]map[string]connectors.OrderRecord)

	for i := range orders {
		order := &orders[i]

		open, ok := openBySymbol[order.Symbol]
		if !ok {
			open, err = s.fetchOpenOrders(ctx, order.Symbol)
			if err != nil {
				logger.WithError(err).WithField("symbol", order.Symbol).
					Warn("open-orders fetch failed, deferring symbol to next pass")
				continue
			}
			openBySymbol[order.Symbol] = open
		}

		if err := s.reconcileOrder(ctx, order, open); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"order_id": order.ID,
				"symbol":   order.Symbol,
			}).Error("failed to reconcile order")
		}
	}

	return nil
}

func (s *Service) fetchOpenOrders(ctx context.Context, symbol string) (map[string]connectors.OrderRecord, error) {
	var records []connectors.OrderRecord
	err := s.callExchange(ctx, "open_orders", func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = s.exchange.OpenOrders(ctx, symbol)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	open := make(map[string]connectors.OrderRecord, len(records))
	for _, r := range records {
		open[r.ExchangeOrderID] = r
	}
	return open, nil
}

func (s *Service) reconcileOrder(ctx context.Context, order *model.Order, open map[string]connectors.OrderRecord) error {
	// Orders that never got an exchange identifier (crash between local
	// create and the placement acknowledgement) are re-identified through
	// history by client order ID.
	if order.ExchangeOrderID == "" {
		return s.adoptFromHistory(ctx, order)
	}

	if live, ok := open[order.ExchangeOrderID]; ok {
		// Still on the book: track partial fills, nothing terminal.
		if live.Status == connectors.ExchangeStatusPartiallyFilled && order.Status != model.OrderStatusPartiallyFilled {
			return s.orders.UpdateStatus(ctx, order.ID, model.OrderStatusPartiallyFilled)
		}
		return nil
	}

	// Absent from the open-order list. That fact alone proves nothing;
	// resolve through order history.
	record, err := s.lookupOrderHistory(ctx, order)
	if err != nil {
		return err
	}
	if record == nil {
		logger.WithFields(map[string]interface{}{
			"order_id":          order.ID,
			"exchange_order_id": order.ExchangeOrderID,
		}).Warn("order absent from open orders but not yet in history, keeping non-terminal")
		return nil
	}

	switch record.Status {
	case connectors.ExchangeStatusFilled:
		return s.resolveFilled(ctx, order, record)
	case connectors.ExchangeStatusCanceled, connectors.ExchangeStatusRejected, connectors.ExchangeStatusExpired:
		return s.resolveCanceled(ctx, order, record)
	default:
		// History shows it still working; the open-orders snapshot was
		// likely taken mid-transition.
		return nil
	}
}

// adoptFromHistory matches an unacknowledged order to history by client
// order ID. No match keeps it non-terminal.
func (s *Service) adoptFromHistory(ctx context.Context, order *model.Order) error {
	records, err := s.orderHistory(ctx, order.Symbol, order.CreatedAt)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ClientOrderID == order.ClientOrderID {
			logger.WithFields(map[string]interface{}{
				"order_id":          order.ID,
				"exchange_order_id": records[i].ExchangeOrderID,
			}).Info("re-identified unacknowledged order from history")
			return s.orders.SetExchangeOrderID(ctx, order.ID, records[i].ExchangeOrderID)
		}
	}
	return nil
}

func (s *Service) lookupOrderHistory(ctx context.Context, order *model.Order) (*connectors.OrderRecord, error) {
	records, err := s.orderHistory(ctx, order.Symbol, order.CreatedAt)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ExchangeOrderID == order.ExchangeOrderID {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *Service) orderHistory(ctx context.Context, symbol string, createdAt time.Time) ([]connectors.OrderRecord, error) {
	from := createdAt.Add(-time.Minute)
	if floor := s.now().Add(-s.config.HistoryLookback); from.Before(floor) {
		from = floor
	}

	var records []connectors.OrderRecord
	err := s.callExchange(ctx, "order_history", func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = s.exchange.OrderHistory(ctx, symbol, from, s.now())
		return fetchErr
	})
	return records, err
}

// resolveFilled confirms a fill through trade history before writing the
// terminal status. Trade rows give the executed quantity and fill time; if
// they have not landed yet, the order-history record itself confirms,
// provided it carries a positive executed quantity.
func (s *Service) resolveFilled(ctx context.Context, order *model.Order, record *connectors.OrderRecord) error {
	var fills []connectors.TradeFill
	err := s.callExchange(ctx, "trade_history", func(ctx context.Context) error {
		var fetchErr error
		fills, fetchErr = s.exchange.TradeHistory(ctx, order.Symbol, order.CreatedAt.Add(-time.Minute), s.now())
		return fetchErr
	})
	if err != nil {
		return err
	}

	executed := decimal.Zero
	executedAt := record.UpdatedAt
	source := model.SourceOrderHistory

	for _, fill := range fills {
		if fill.ExchangeOrderID != order.ExchangeOrderID {
			continue
		}
		executed = executed.Add(fill.Quantity)
		if fill.ExecutedAt.After(executedAt) {
			executedAt = fill.ExecutedAt
		}
		source = model.SourceTradeHistory
	}

	if source == model.SourceOrderHistory {
		if !record.ExecutedQty.IsPositive() {
			logger.WithField("order_id", order.ID).
				Warn("history reports filled but executed quantity is not positive, keeping non-terminal")
			return nil
		}
		executed = record.ExecutedQty
	}

	if err := s.orders.MarkTerminal(ctx, order.ID, model.OrderStatusFilled, source, executed, executedAt); err != nil {
		return err
	}
	if err := s.recorder.Record(ctx, &model.LifecycleEvent{
		Kind:          model.EventOrderExecuted,
		Symbol:        order.Symbol,
		CorrelationID: order.CorrelationID,
		OrderID:       &order.ID,
		Reason:        fmt.Sprintf("reconciled as filled %s, confirmed by %s", executed, source),
	}); err != nil {
		return err
	}

	if order.IsProtective() {
		return s.cancelSibling(ctx, order)
	}
	return nil
}

func (s *Service) resolveCanceled(ctx context.Context, order *model.Order, record *connectors.OrderRecord) error {
	if err := s.orders.MarkTerminal(ctx, order.ID, model.OrderStatusCanceled, model.SourceOrderHistory, decimal.Zero, record.UpdatedAt); err != nil {
		return err
	}
	return s.recorder.Record(ctx, &model.LifecycleEvent{
		Kind:          model.EventOrderCanceled,
		Symbol:        order.Symbol,
		CorrelationID: order.CorrelationID,
		OrderID:       &order.ID,
		Reason:        fmt.Sprintf("reconciled as %s, confirmed by order history", record.Status),
	})
}

// cancelSibling enforces one-cancels-other: a filled protective leg cancels
// the surviving leg of the same parent. The sibling's terminal status is
// then confirmed by history on a later pass, not assumed from the cancel
// call succeeding.
func (s *Service) cancelSibling(ctx context.Context, filled *model.Order) error {
	if filled.ParentOrderID == nil {
		return nil
	}

	siblings, err := s.orders.FindProtectiveByParent(ctx, *filled.ParentOrderID)
	if err != nil {
		return err
	}

	for i := range siblings {
		sibling := &siblings[i]
		if sibling.ID == filled.ID || sibling.IsTerminal() || sibling.ExchangeOrderID == "" {
			continue
		}

		err := s.callExchange(ctx, "cancel_order", func(ctx context.Context) error {
			return s.exchange.CancelOrder(ctx, sibling.Symbol, sibling.ExchangeOrderID)
		})
		if err != nil {
			if connectors.IsNoSuchOrder(err) {
				continue
			}
			return fmt.Errorf("failed to cancel protective sibling %d: %w", sibling.ID, err)
		}

		if err := s.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventOrderCanceled,
			Symbol:        sibling.Symbol,
			CorrelationID: sibling.CorrelationID,
			OrderID:       &sibling.ID,
			Reason:        fmt.Sprintf("one-cancels-other: sibling canceled after fill of order %s", filled.ExchangeOrderID),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) callExchange(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, s.retryPolicy, name, fn)
	})
}
