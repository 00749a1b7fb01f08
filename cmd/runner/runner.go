package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"signalrunner/cmd/snapshots"
	"signalrunner/src/admission"
	"signalrunner/src/connectors"
	"signalrunner/src/database"
	"signalrunner/src/netting"
	"signalrunner/src/orchestrator"
	"signalrunner/src/reconcile"
	"signalrunner/src/repository"
	"signalrunner/src/retry"
	"signalrunner/src/server"
	"signalrunner/src/throttle"
)

// Runner is the all-in-one service: snapshot producer, evaluation loop,
// reconciler, dedup sweeper, price stream and the HTTP API in one process.
type Runner struct{}

func (t *Runner) Start() error {
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
	watchlistRepo := repository.NewWatchlistRepository()
	snapshotRepo := repository.NewSnapshotRepository()
	throttleRepo := repository.NewThrottleRepository()
	exceptionRepo := repository.NewExceptionRepository()

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

	lifecycle := orchestrator.NewLifecycle(
		exchange,
		orderRepo,
		recorder,
		breaker,
		retry.DefaultPolicy(),
		config.FillPollAttempts,
		config.FillPollInterval,
	)

	pipeline := admission.NewPipeline(
		netting.NewCounter(orderRepo),
		orderRepo,
		config.MaxOpenPositions,
		config.OrderCooldown,
		config.StalenessCeiling,
	)

	gate := throttle.NewGate(throttleRepo, config.ThrottleMinInterval, config.DedupTTL)

	orch := orchestrator.New(
		config,
		watchlistRepo,
		snapshotRepo,
		gate,
		pipeline,
		lifecycle,
		notifier,
		recorder,
		exceptionRepo,
	)

	reconciler := reconcile.NewService(
		reconcile.GetConfig(),
		orderRepo,
		exchange,
		recorder,
		breaker,
		retry.DefaultPolicy(),
	)

	sweeper := throttle.NewSweeper(throttleRepo, config.DedupSweepInterval)
	producer := snapshots.NewProducer(watchlistRepo, snapshotRepo)

	go sweeper.Run(ctx)
	go func() {
		if err := producer.Run(ctx); err != nil {
			logger.WithError(err).Error("snapshot producer stopped")
		}
	}()
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.WithError(err).Error("reconciler stopped")
		}
	}()
	go func() {
		if err := orch.Run(ctx); err != nil {
			logger.WithError(err).Error("orchestrator stopped")
		}
	}()

	startPriceStream(ctx, config.ExchangeWSURL, watchlistRepo, snapshotRepo)

	// Blocks until SIGINT or SIGTERM.
	server.StartServer(ctx, server.GetConfig().Port, eventRepo)
	return nil
}

// startPriceStream subscribes the ticker feed for every watched symbol and
// writes each update through to the freshest snapshot.
func startPriceStream(
	ctx context.Context,
	wsURL string,
	watchlistRepo *repository.WatchlistRepository,
	snapshotRepo *repository.SnapshotRepository,
) {
	entries, err := watchlistRepo.FindActive(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to load watchlist for price stream, continuing without it")
		return
	}

	symbols := make([]string, 0, len(entries))
	for i := range entries {
		symbols = append(symbols, entries[i].Symbol)
	}
	if len(symbols) == 0 {
		logger.Warn("empty watchlist, price stream not started")
		return
	}

	stream := connectors.NewPriceStream(wsURL, symbols, func(update connectors.PriceUpdate) {
		if err := snapshotRepo.TouchPrice(ctx, update.Symbol, update.Price); err != nil {
			logger.WithError(err).WithField("symbol", update.Symbol).Warn("failed to apply price update")
		}
	})
	go stream.Run(ctx)
}
