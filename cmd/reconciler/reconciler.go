package reconciler

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"signalrunner/src/connectors"
	"signalrunner/src/database"
	"signalrunner/src/orchestrator"
	"signalrunner/src/reconcile"
	"signalrunner/src/repository"
	"signalrunner/src/retry"
)

// Reconciler runs the exchange reconciliation loop standalone, without the
// evaluation side. Useful next to a runner in dry-run, or to drain order
// state after the runner was stopped.
type Reconciler struct{}

func (t *Reconciler) Start() error {
	config := orchestrator.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	orderRepo := repository.NewOrderRepository()
	eventRepo := repository.NewLifecycleEventRepository()

	// The notifier breaker's own transitions are persisted without being
	// pushed back through the channel that just failed.
	eventOnly := orchestrator.NewRecorder(eventRepo, nil)
	notifierBreaker := retry.NewBreaker(
		"notifier",
		config.BreakerFailureThreshold,
		config.BreakerWindow,
		config.BreakerCooldown,
		orchestrator.BreakerEventHook(eventOnly),
	)
	notifier := connectors.NewResilientNotifier(
		connectors.NewWebhookNotifier(config.WebhookURL, config.WebhookToken),
		notifierBreaker,
		retry.DefaultPolicy(),
	)
	recorder := orchestrator.NewRecorder(eventRepo, notifier)

	breaker := retry.NewBreaker(
		"exchange",
		config.BreakerFailureThreshold,
		config.BreakerWindow,
		config.BreakerCooldown,
		orchestrator.BreakerEventHook(recorder),
	)

	exchange := connectors.NewClient(config.APIKey, config.APISecret, config.ExchangeBaseURL)

	service := reconcile.NewService(
		reconcile.GetConfig(),
		orderRepo,
		exchange,
		recorder,
		breaker,
		retry.DefaultPolicy(),
	)

	return service.Run(ctx)
}
