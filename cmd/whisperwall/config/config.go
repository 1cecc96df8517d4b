package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/fileutils"
	"gopkg.in/yaml.v3"

	"github.com/whisperwall/whisperwall"
)

// Config holds the complete application configuration, loaded once at startup.
type Config struct {
	Server     whisperwall.ServerConf `yaml:"server"`
	Storage    storageConf            `yaml:"storage"`
	Sessions   sessionsConf           `yaml:"sessions"`
	Google     googleConf             `yaml:"google"`
	Encryption encryptionConf         `yaml:"encryption"`
	RateLimit  rateLimitConf          `yaml:"rate_limit"`
	Logging    loggingConf            `yaml:"logging"`
}

var conf *Config

// Get returns the Config
func Get() *Config {
	return conf
}

var possibleConfigLocations = []string{
	"config.yaml",
	"/etc/whisperwall/config.yaml",
}

// Load reads the configuration from the passed file, or from the default
// locations if the passed path is empty, and validates it. Any problem is
// fatal: the process must not come up half-configured.
func Load(file string) {
	if file == "" {
		for _, loc := range possibleConfigLocations {
			if fileutils.FileExists(loc) {
				file = loc
				break
			}
		}
	}
	if file == "" {
		log.Fatal("no config file found")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.WithError(err).Fatal("could not read config file")
	}
	c := defaultConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		log.WithError(err).Fatal("could not parse config file")
	}
	if err = c.validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	conf = c
}

func defaultConfig() *Config {
	return &Config{
		Server: whisperwall.ServerConf{
			Port: 3000,
		},
		Storage:   defaultStorageConf,
		Sessions:  defaultSessionsConf,
		RateLimit: defaultRateLimitConf,
		Logging:   defaultLoggingConf,
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Sessions.validate(); err != nil {
		return err
	}
	if err := c.Google.validate(); err != nil {
		return err
	}
	if err := c.Encryption.validate(); err != nil {
		return err
	}
	if err := c.RateLimit.validate(); err != nil {
		return err
	}
	return c.Logging.validate()
}

// duration wraps time.Duration so yaml values like "15m" or "24h" parse.
type duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration '%s'", s)
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the value as a time.Duration
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}
