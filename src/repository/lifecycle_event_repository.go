package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// LifecycleEventRepository appends and queries the audit event stream.
// Events are write-once; there is intentionally no update method.
type LifecycleEventRepository struct {
	db *gorm.DB
}

func NewLifecycleEventRepository() *LifecycleEventRepository {
	return &LifecycleEventRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *LifecycleEventRepository) WithDB(db *gorm.DB) *LifecycleEventRepository {
	return &LifecycleEventRepository{db: db}
}

// Create appends one event to the stream.
func (r *LifecycleEventRepository) Create(ctx context.Context, event *model.LifecycleEvent) error {
	logger.WithFields(map[string]interface{}{
		"repo":           "LifecycleEventRepository",
		"op":             "Create",
		"kind":           event.Kind,
		"symbol":         event.Symbol,
		"correlation_id": event.CorrelationID,
		"reason":         event.Reason,
	}).Debug("Appending lifecycle event")

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LifecycleEventRepository",
			"op":   "Create",
			"kind": event.Kind,
		}).WithError(err).Error("Failed to append lifecycle event")
		return err
	}
	return nil
}

// EventSearchOptions narrows a Search call. Zero values mean "no filter".
type EventSearchOptions struct {
	Symbol        string
	CorrelationID string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
}

// Search returns events newest first, filtered by symbol and time range.
// This backs the observability API; dashboards must treat the result as the
// sole source of truth for past decisions.
func (r *LifecycleEventRepository) Search(ctx context.Context, opts EventSearchOptions) ([]model.LifecycleEvent, error) {
	tx := r.db.WithContext(ctx).Model(&model.LifecycleEvent{})

	if opts.Symbol != "" {
		tx = tx.Where("symbol = ?", opts.Symbol)
	}
	if opts.CorrelationID != "" {
		tx = tx.Where("correlation_id = ?", opts.CorrelationID)
	}
	if opts.CreatedAfter != nil {
		tx = tx.Where("created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		tx = tx.Where("created_at <= ?", *opts.CreatedBefore)
	}

	tx = tx.Order("created_at DESC, id DESC")
	if opts.Limit > 0 {
		tx = tx.Limit(opts.Limit)
	}

	var events []model.LifecycleEvent
	if err := tx.Find(&events).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "LifecycleEventRepository",
			"op":     "Search",
			"symbol": opts.Symbol,
		}).WithError(err).Error("Failed to search lifecycle events")
		return nil, err
	}
	return events, nil
}
