package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// WatchlistRepository reads the instrument configuration and writes back the
// two fields this service owns.
type WatchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepository() *WatchlistRepository {
	return &WatchlistRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *WatchlistRepository) WithDB(db *gorm.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// FindActive returns every non-deleted watchlist entry.
func (r *WatchlistRepository) FindActive(ctx context.Context) ([]model.WatchlistEntry, error) {
	var entries []model.WatchlistEntry
	err := r.db.WithContext(ctx).
		Order("symbol ASC").
		Find(&entries).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WatchlistRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch watchlist")
		return nil, err
	}
	return entries, nil
}

// ClearThrottleReset consumes the one-shot reset flag after the throttle
// gate has applied it to both sides.
func (r *WatchlistRepository) ClearThrottleReset(ctx context.Context, entryID uint) error {
	return r.db.WithContext(ctx).
		Model(&model.WatchlistEntry{}).
		Where("id = ?", entryID).
		Update("throttle_reset_pending", false).Error
}

// TouchLastOrder records when the most recent order for this entry was
// placed. The cooldown gate compares against it.
func (r *WatchlistRepository) TouchLastOrder(ctx context.Context, entryID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.WatchlistEntry{}).
		Where("id = ?", entryID).
		Update("last_order_at", at).Error
}
