package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main
// read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order. The given order is updated with the generated
// ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "Create",
		"symbol": order.Symbol,
		"side":   order.Side,
		"role":   order.Role,
		"qty":    order.Quantity,
	}).Debug("Creating new order")

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")
		return err
	}

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindNonTerminal returns every order that has not reached a final state,
// oldest first. The reconciler walks this list on every tick.
func (r *OrderRepository) FindNonTerminal(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{
			model.OrderStatusNew,
			model.OrderStatusActive,
			model.OrderStatusPartiallyFilled,
		}).
		Order("created_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindNonTerminal",
		}).WithError(err).Error("Failed to fetch non-terminal orders")
		return nil, err
	}
	return orders, nil
}

// FindLatestPrimarySince returns the most recent primary order for a symbol
// created after the given instant, or (nil, nil). The admission pipeline's
// cooldown gate uses it.
func (r *OrderRepository) FindLatestPrimarySince(ctx context.Context, symbol string, since time.Time) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND role = ? AND created_at > ?", symbol, model.OrderRolePrimary, since).
		Order("created_at DESC, id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindFilledByBaseAsset returns all filled orders for a base asset across
// every quote pair, ordered by execution time. Input for position netting.
func (r *OrderRepository) FindFilledByBaseAsset(ctx context.Context, baseAsset string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("base_asset = ? AND status = ?", baseAsset, model.OrderStatusFilled).
		Order("executed_at ASC, id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "OrderRepository",
			"op":         "FindFilledByBaseAsset",
			"base_asset": baseAsset,
		}).WithError(err).Error("Failed to fetch filled orders")
		return nil, err
	}
	return orders, nil
}

// FindProtectiveByParent returns the unresolved protective legs for a primary
// order. An empty slice means no live protective pair exists.
func (r *OrderRepository) FindProtectiveByParent(ctx context.Context, parentID uint) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("parent_order_id = ? AND role IN ? AND status NOT IN ?",
			parentID,
			[]string{model.OrderRoleStopLoss, model.OrderRoleTakeProfit},
			[]string{model.OrderStatusCanceled, model.OrderStatusError},
		).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus writes a non-terminal status transition (new -> active,
// active -> partially_filled). Terminal statuses must go through
// MarkTerminal so the confirmation source is never omitted.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uint, status string) error {
	if model.IsTerminalStatus(status) {
		return fmt.Errorf("status %q is terminal, use MarkTerminal", status)
	}

	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

// MarkTerminal resolves an order to filled or canceled. The confirmation
// source is mandatory: only the exchange's own records justify a terminal
// write, never absence from the open-order list.
func (r *OrderRepository) MarkTerminal(
	ctx context.Context,
	orderID uint,
	status string,
	source model.ConfirmationSource,
	executedQty decimal.Decimal,
	executedAt time.Time,
) error {
	if status != model.OrderStatusFilled && status != model.OrderStatusCanceled {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	if source == "" {
		return errors.New("terminal status requires a confirmation source")
	}

	updates := map[string]interface{}{
		"status":       status,
		"confirmed_by": string(source),
	}
	if status == model.OrderStatusFilled {
		updates["executed_qty"] = executedQty
		updates["executed_at"] = executedAt
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "MarkTerminal",
		"order_id": orderID,
		"status":   status,
		"source":   source,
	}).Info("Writing terminal order status")

	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// MarkFailed records a placement failure. The order never reached the book,
// so no confirmation source applies.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID uint, reason string) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "MarkFailed",
		"order_id": orderID,
		"reason":   reason,
	}).Warn("Marking order as failed")

	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("status", model.OrderStatusError).Error
}

// SetExchangeOrderID stores the identifier the exchange returned for a
// freshly placed order and moves it to active.
func (r *OrderRepository) SetExchangeOrderID(ctx context.Context, orderID uint, exchangeOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"exchange_order_id": exchangeOrderID,
			"status":            model.OrderStatusActive,
		}).Error
}
