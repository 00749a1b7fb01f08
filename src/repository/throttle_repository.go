package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// ThrottleRepository persists throttle baselines and dedup records so gating
// survives a process restart. The in-process keyed locks live in the throttle
// package; this type only does storage.
type ThrottleRepository struct {
	db *gorm.DB
}

func NewThrottleRepository() *ThrottleRepository {
	return &ThrottleRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ThrottleRepository) WithDB(db *gorm.DB) *ThrottleRepository {
	return &ThrottleRepository{db: db}
}

// GetState returns the throttle state for (symbol, side), or (nil, nil) when
// no emission has ever happened for the pair.
func (r *ThrottleRepository) GetState(ctx context.Context, symbol, side string) (*model.ThrottleState, error) {
	var state model.ThrottleState
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND side = ?", symbol, side).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// SaveState upserts a throttle state row keyed by (symbol, side).
func (r *ThrottleRepository) SaveState(ctx context.Context, state *model.ThrottleState) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "side"}},
		DoUpdates: clause.AssignmentColumns([]string{"baseline_price", "last_sent_at", "bypass", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ThrottleRepository",
			"op":     "SaveState",
			"symbol": state.Symbol,
			"side":   state.Side,
		}).WithError(err).Error("Failed to save throttle state")
	}
	return err
}

// SetBypassBoth arms the one-shot bypass for both sides of a symbol after a
// configuration change, clearing the baseline price and timestamp in the
// same write. Missing rows are left missing: a first-ever signal passes
// anyway.
func (r *ThrottleRepository) SetBypassBoth(ctx context.Context, symbol string) error {
	return r.db.WithContext(ctx).
		Model(&model.ThrottleState{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"bypass":         true,
			"baseline_price": decimal.Zero,
			"last_sent_at":   time.Time{},
		}).Error
}

// FindDedup returns the unexpired dedup record for a hash, or (nil, nil).
func (r *ThrottleRepository) FindDedup(ctx context.Context, hash string, now time.Time) (*model.DedupRecord, error) {
	var record model.DedupRecord
	err := r.db.WithContext(ctx).
		Where("hash = ? AND expires_at > ?", hash, now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateDedup records one emitted event hash with its expiry.
func (r *ThrottleRepository) CreateDedup(ctx context.Context, record *model.DedupRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// DeleteExpiredDedup removes dedup records past their TTL and returns how
// many rows went away. The sweeper calls this on its own interval.
func (r *ThrottleRepository) DeleteExpiredDedup(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.DedupRecord{})
	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ThrottleRepository",
			"op":   "DeleteExpiredDedup",
		}).WithError(result.Error).Error("Failed to sweep dedup records")
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
