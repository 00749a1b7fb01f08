package snapshots

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Interval between refreshes when running as a loop; the one-shot
	// subcommand ignores it.
	Interval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"60s"`

	// Kline window fetched per symbol. Must cover the slow SMA plus the
	// RSI warmup.
	Limit int `envconfig:"SNAPSHOT_KLINE_LIMIT" default:"120"`

	RSIPeriod     int `envconfig:"SNAPSHOT_RSI_PERIOD" default:"14"`
	SMAFastPeriod int `envconfig:"SNAPSHOT_SMA_FAST" default:"9"`
	SMASlowPeriod int `envconfig:"SNAPSHOT_SMA_SLOW" default:"21"`
	VolumeWindow  int `envconfig:"SNAPSHOT_VOLUME_WINDOW" default:"20"`

	// BreakoutWindow is the lookback for the target price level.
	BreakoutWindow int `envconfig:"SNAPSHOT_BREAKOUT_WINDOW" default:"50"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
