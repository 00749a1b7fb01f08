package orchestrator

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EvalInterval time.Duration `envconfig:"EVAL_INTERVAL" default:"60s"`

	// Throttle and dedup are system-wide constants, not per symbol.
	ThrottleMinInterval time.Duration `envconfig:"THROTTLE_MIN_INTERVAL" default:"15m"`
	DedupTTL            time.Duration `envconfig:"DEDUP_TTL" default:"5m"`
	DedupSweepInterval  time.Duration `envconfig:"DEDUP_SWEEP_INTERVAL" default:"1m"`

	MaxOpenPositions int           `envconfig:"MAX_OPEN_POSITIONS" default:"3"`
	OrderCooldown    time.Duration `envconfig:"ORDER_COOLDOWN" default:"30m"`
	StalenessCeiling time.Duration `envconfig:"STALENESS_CEILING" default:"5m"`

	FillPollAttempts int           `envconfig:"FILL_POLL_ATTEMPTS" default:"10"`
	FillPollInterval time.Duration `envconfig:"FILL_POLL_INTERVAL" default:"3s"`

	BreakerFailureThreshold int           `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerWindow           time.Duration `envconfig:"BREAKER_WINDOW" default:"2m"`
	BreakerCooldown         time.Duration `envconfig:"BREAKER_COOLDOWN" default:"1m"`

	ExchangeBaseURL string `envconfig:"EXCHANGE_BASE_URL" default:"https://testnet.binance.vision"`
	ExchangeWSURL   string `envconfig:"EXCHANGE_WS_URL" default:"wss://stream.testnet.binance.vision"`
	APIKey          string `envconfig:"EXCHANGE_API_KEY"`
	APISecret       string `envconfig:"EXCHANGE_API_SECRET"`

	WebhookURL   string `envconfig:"NOTIFY_WEBHOOK_URL"`
	WebhookToken string `envconfig:"NOTIFY_WEBHOOK_TOKEN"`

	// DryRun tags alerts as "test" and keeps orders off the live account.
	DryRun bool `envconfig:"DRY_RUN" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
