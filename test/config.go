package test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_TEST_DEBUG_JSON dumps every received frame as JSON
	DebugJSON bool `envconfig:"RELAY_TEST_DEBUG_JSON" default:"false"`
	// RELAY_TEST_COLOURS enables colorized step headers
	Colours bool `envconfig:"RELAY_TEST_COLOURS" default:"true"`
	// RELAY_TEST_WAIT bounds every wait for a realtime frame
	Wait time.Duration `envconfig:"RELAY_TEST_WAIT" default:"3s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
