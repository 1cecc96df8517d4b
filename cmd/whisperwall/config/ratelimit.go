package config

import (
	"time"

	"github.com/pkg/errors"
)

type rateLimitConf struct {
	// Max attempts per client address per window on the credential routes.
	Max int `yaml:"max"`
	// Window is the sliding window length.
	Window duration `yaml:"window"`
}

func (c *rateLimitConf) validate() error {
	if c.Max < 0 {
		return errors.New("error in rate_limit conf: max must not be negative")
	}
	return nil
}

var defaultRateLimitConf = rateLimitConf{
	Max:    100,
	Window: duration(15 * time.Minute),
}
