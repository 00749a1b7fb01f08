package orchestrator

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"signalrunner/src/connectors"
	"signalrunner/src/model"
)

// EventStore persists lifecycle events. LifecycleEventRepository satisfies it.
type EventStore interface {
	Create(ctx context.Context, event *model.LifecycleEvent) error
}

// Recorder writes lifecycle events and forwards the order-family ones to the
// notification channel. Critical events are always forwarded.
type Recorder struct {
	events   EventStore
	notifier connectors.Notifier
}

func NewRecorder(events EventStore, notifier connectors.Notifier) *Recorder {
	return &Recorder{events: events, notifier: notifier}
}

var notifiedKinds = map[string]bool{
	model.EventOrderCreated:     true,
	model.EventOrderFailed:      true,
	model.EventOrderExecuted:    true,
	model.EventOrderCanceled:    true,
	model.EventProtectiveCreate: true,
	model.EventProtectiveFailed: true,
}

// Record appends the event and pushes it to the notification channel where
// the kind warrants it. A notification failure never loses the event: the
// append happens first and its error is the one that propagates.
func (r *Recorder) Record(ctx context.Context, event *model.LifecycleEvent) error {
	if err := r.events.Create(ctx, event); err != nil {
		return err
	}

	if r.notifier != nil && (event.Critical || notifiedKinds[event.Kind]) {
		if err := r.notifier.SendLifecycle(ctx, event); err != nil {
			logger.WithFields(map[string]interface{}{
				"kind":   event.Kind,
				"symbol": event.Symbol,
			}).WithError(err).Error("failed to deliver lifecycle notification")
		}
	}

	return nil
}
