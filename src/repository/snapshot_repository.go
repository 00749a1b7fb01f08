package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalrunner/src/database"
	"signalrunner/src/model"
)

// SnapshotRepository stores and serves market snapshots.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Latest returns the freshest snapshot for a symbol, or (nil, nil) when no
// snapshot exists yet.
func (r *SnapshotRepository) Latest(ctx context.Context, symbol string) (*model.MarketSnapshot, error) {
	var snapshot model.MarketSnapshot
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("captured_at DESC, id DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "SnapshotRepository",
			"op":     "Latest",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch latest snapshot")
		return nil, err
	}
	return &snapshot, nil
}

// TouchPrice overwrites the price of the freshest snapshot for a symbol.
// The websocket ticker calls it between kline refreshes; indicators stay as
// computed, only the spot price moves.
func (r *SnapshotRepository) TouchPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	latest, err := r.Latest(ctx, symbol)
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.MarketSnapshot{}).
		Where("id = ?", latest.ID).
		Update("price", price).Error
}

// Upsert inserts a snapshot, updating indicator columns when a row for the
// same (symbol, captured_at) already exists. The snapshot producer re-runs
// over overlapping kline windows, so conflicts are routine.
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *model.MarketSnapshot) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "captured_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "rsi", "sma_fast", "sma_slow", "volume_ratio", "target_price"}),
	}).Create(snapshot).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SnapshotRepository",
			"op":     "Upsert",
			"symbol": snapshot.Symbol,
		}).WithError(err).Error("Failed to upsert snapshot")
		return err
	}
	return nil
}
