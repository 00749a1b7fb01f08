package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/admission"
	"signalrunner/src/connectors"
	"signalrunner/src/model"
	"signalrunner/src/retry"
	"signalrunner/src/signal"
	"signalrunner/src/throttle"
)

// WatchlistStore is the watchlist access the loop needs.
type WatchlistStore interface {
	FindActive(ctx context.Context) ([]model.WatchlistEntry, error)
	ClearThrottleReset(ctx context.Context, entryID uint) error
	TouchLastOrder(ctx context.Context, entryID uint, at time.Time) error
}

// SnapshotStore serves the latest market snapshot per symbol.
type SnapshotStore interface {
	Latest(ctx context.Context, symbol string) (*model.MarketSnapshot, error)
}

// ExceptionSink captures unexpected failures. ExceptionRepository satisfies it.
type ExceptionSink interface {
	Capture(ctx context.Context, service, module, method, level string, err error, contextData map[string]interface{})
}

// Orchestrator evaluates every watchlist entry on a fixed interval and
// drives each admitted signal through the order lifecycle. Instruments run
// concurrently; the throttle gate serializes per (symbol, side).
type Orchestrator struct {
	config     Config
	watchlist  WatchlistStore
	snapshots  SnapshotStore
	gate       *throttle.Gate
	pipeline   *admission.Pipeline
	lifecycle  *Lifecycle
	notifier   connectors.Notifier
	recorder   *Recorder
	exceptions ExceptionSink
	now        func() time.Time
}

func New(
	config Config,
	watchlist WatchlistStore,
	snapshots SnapshotStore,
	gate *throttle.Gate,
	pipeline *admission.Pipeline,
	lifecycle *Lifecycle,
	notifier connectors.Notifier,
	recorder *Recorder,
	exceptions ExceptionSink,
) *Orchestrator {
	return &Orchestrator{
		config:     config,
		watchlist:  watchlist,
		snapshots:  snapshots,
		gate:       gate,
		pipeline:   pipeline,
		lifecycle:  lifecycle,
		notifier:   notifier,
		recorder:   recorder,
		exceptions: exceptions,
		now:        time.Now,
	}
}

// Run blocks until the context is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.EvalInterval)
	defer ticker.Stop()

	logger.WithField("interval", o.config.EvalInterval).Info("orchestrator loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("orchestrator loop stopped")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs one evaluation cycle over the whole watchlist, one goroutine
// per instrument.
func (o *Orchestrator) tick(ctx context.Context) {
	entries, err := o.watchlist.FindActive(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to load watchlist, skipping cycle")
		return
	}

	var wg sync.WaitGroup
	for i := range entries {
		entry := entries[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.recoverEntry(ctx, entry.Symbol)
			o.processEntry(ctx, &entry)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) recoverEntry(ctx context.Context, symbol string) {
	if r := recover(); r != nil {
		o.exceptions.Capture(ctx, "signalrunner", "orchestrator", "processEntry", "error",
			fmt.Errorf("panic: %+v", r), map[string]interface{}{"symbol": symbol})
	}
}

// processEntry runs one instrument through evaluate -> throttle/dedup ->
// notify -> admit -> place. The gate callback holds the per-key lock across
// the whole emission.
func (o *Orchestrator) processEntry(ctx context.Context, entry *model.WatchlistEntry) {
	log := logger.WithField("symbol", entry.Symbol)

	profile, err := model.ResolveProfile(entry)
	if err != nil {
		log.WithError(err).Error("unresolvable strategy profile, skipping instrument")
		return
	}

	if entry.ThrottleResetPending {
		if err := o.gate.ArmBypass(ctx, entry.Symbol); err != nil {
			log.WithError(err).Error("failed to arm throttle bypass")
			return
		}
		if err := o.watchlist.ClearThrottleReset(ctx, entry.ID); err != nil {
			log.WithError(err).Error("failed to clear throttle reset flag")
			return
		}
		log.Info("configuration change detected, throttle bypass armed for both sides")
	}

	snapshot, err := o.snapshots.Latest(ctx, entry.Symbol)
	if err != nil {
		log.WithError(err).Error("failed to load snapshot")
		return
	}
	if snapshot == nil {
		log.Debug("no snapshot yet, skipping cycle")
		return
	}

	decision := signal.Evaluate(snapshot, profile)
	if decision.Action == signal.ActionWait {
		log.WithFields(map[string]interface{}{
			"strength": decision.Strength,
			"failed":   decision.FailedConditions(),
		}).Debug("no actionable signal")
		return
	}

	correlationID := uuid.NewString()
	log = log.WithFields(map[string]interface{}{
		"action":         decision.Action,
		"strength":       decision.Strength,
		"correlation_id": correlationID,
	})
	log.Info("actionable signal")

	outcome, err := o.gate.Emit(ctx, throttle.Request{
		Symbol:  entry.Symbol,
		Side:    string(decision.Action),
		Price:   decision.Price,
		Profile: profile,
	}, func(ctx context.Context) error {
		return o.emit(ctx, entry, profile, decision, snapshot, correlationID)
	})
	if err != nil {
		o.exceptions.Capture(ctx, "signalrunner", "orchestrator", "gate.Emit", "error", err,
			map[string]interface{}{"symbol": entry.Symbol, "side": decision.Action})
		return
	}

	if !outcome.Allowed {
		if err := o.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventAlertSuppressed,
			Symbol:        entry.Symbol,
			CorrelationID: correlationID,
			Reason:        string(outcome.Reason),
		}); err != nil {
			log.WithError(err).Error("failed to record suppression event")
		}
		log.WithField("reason", outcome.Reason).Info("emission suppressed")
	}
}

// emit runs under the (symbol, side) lock: alert first, then the trade
// admission pipeline, then order placement. Alerting is never blocked by
// admission; the two share only the decision.
func (o *Orchestrator) emit(
	ctx context.Context,
	entry *model.WatchlistEntry,
	profile model.StrategyProfile,
	decision signal.Decision,
	snapshot *model.MarketSnapshot,
	correlationID string,
) error {

	if o.alertEnabled(entry, decision.Action) {
		origin := connectors.OriginLive
		if o.config.DryRun {
			origin = connectors.OriginTest
		}
		alert := connectors.Alert{
			Symbol:     entry.Symbol,
			Side:       string(decision.Action),
			Price:      decision.Price,
			ProfileKey: string(profile.Key),
			Strength:   decision.Strength,
			Origin:     origin,
			SentAt:     o.now(),
		}
		if err := o.notifier.SendAlert(ctx, alert); err != nil {
			return fmt.Errorf("alert delivery failed: %w", err)
		}
		if err := o.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventAlertSent,
			Symbol:        entry.Symbol,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("%s alert at %s, strength %d%%", decision.Action, decision.Price, decision.Strength),
		}); err != nil {
			return err
		}
	}

	result, err := o.pipeline.Admit(ctx, entry, decision, snapshot)
	if err != nil {
		return fmt.Errorf("admission pipeline failed: %w", err)
	}
	if !result.Admitted {
		return o.recorder.Record(ctx, &model.LifecycleEvent{
			Kind:          model.EventTradeBlocked,
			Symbol:        entry.Symbol,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("%s: %s", result.Reason, result.Detail),
		})
	}

	if err := o.lifecycle.ExecuteSignal(ctx, entry, profile, decision, correlationID); err != nil {
		return err
	}

	if err := o.watchlist.TouchLastOrder(ctx, entry.ID, o.now()); err != nil {
		logger.WithError(err).WithField("symbol", entry.Symbol).Error("failed to touch last order timestamp")
	}
	return nil
}

func (o *Orchestrator) alertEnabled(entry *model.WatchlistEntry, action signal.Action) bool {
	switch action {
	case signal.ActionBuy:
		return entry.AlertOnBuy
	case signal.ActionSell:
		return entry.AlertOnSell
	}
	return false
}

// BreakerEventHook turns circuit breaker transitions into lifecycle events.
// Opening and closing are audit-worthy; half-open probes are not.
func BreakerEventHook(recorder *Recorder) func(name string, from, to retry.BreakerState) {
	return func(name string, from, to retry.BreakerState) {
		var kind string
		switch to {
		case retry.StateOpen:
			kind = model.EventBreakerOpened
		case retry.StateClosed:
			kind = model.EventBreakerClosed
		default:
			return
		}

		event := &model.LifecycleEvent{
			Kind:   kind,
			Symbol: "*",
			Reason: fmt.Sprintf("dependency %s moved %s -> %s", name, from, to),
		}
		if err := recorder.Record(context.Background(), event); err != nil {
			logger.WithError(err).Error("failed to record breaker transition")
		}
	}
}
