package throttle

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Sweeper removes expired dedup records on a fixed interval so the store
// never grows without bound.
type Sweeper struct {
	store    Store
	interval time.Duration
}

func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval}
}

// Run blocks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("dedup sweeper stopped")
			return
		case <-ticker.C:
			removed, err := s.store.DeleteExpiredDedup(ctx, time.Now())
			if err != nil {
				logger.WithError(err).Error("dedup sweep failed")
				continue
			}
			if removed > 0 {
				logger.WithField("removed", removed).Debug("dedup records swept")
			}
		}
	}
}
