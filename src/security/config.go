package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// APITokenHash is a bcrypt hash of the bearer token accepted by the
	// observability endpoints. Empty disables those endpoints entirely.
	APITokenHash string `envconfig:"API_TOKEN_HASH" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
