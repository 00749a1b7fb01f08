package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the listen settings for the observability API.
type Config struct {
	Port string `envconfig:"PORT" default:"8086"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing server env config: %w", err))
	}
	return &config
}
