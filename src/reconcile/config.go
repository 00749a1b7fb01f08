package reconcile

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SyncInterval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`
	HistoryLookback time.Duration `envconfig:"RECONCILE_HISTORY_LOOKBACK" default:"24h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
