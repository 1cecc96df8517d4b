package config

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall"
	"github.com/whisperwall/whisperwall/storage"
)

type sessionBackendType string

const (
	// SessionBackendMemory keeps sessions in process memory (lost on restart)
	SessionBackendMemory sessionBackendType = "memory"
	// SessionBackendBadger keeps sessions in an on-disk badger database
	SessionBackendBadger sessionBackendType = "badger"
	// SessionBackendRedis keeps sessions in a redis server
	SessionBackendRedis sessionBackendType = "redis"
)

type redisConf struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type sessionsConf struct {
	Backend    sessionBackendType `yaml:"backend"`
	DataDir    string             `yaml:"data_dir"`
	Redis      redisConf          `yaml:"redis"`
	CookieName string             `yaml:"cookie_name"`
	Expiry     duration           `yaml:"expiry"`
}

func (c *sessionsConf) validate() error {
	switch c.Backend {
	case SessionBackendMemory:
	case SessionBackendBadger:
		if c.DataDir == "" {
			return errors.New("error in sessions conf: data_dir must be specified for the badger backend")
		}
	case SessionBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("error in sessions conf: redis.addr must be specified for the redis backend")
		}
	default:
		return errors.Errorf("unsupported session backend '%s'", c.Backend)
	}
	return nil
}

var defaultSessionsConf = sessionsConf{
	Backend:    SessionBackendBadger,
	CookieName: "whisperwall_session",
	Expiry:     duration(24 * time.Hour),
}

// LoadSessionStorage returns the fiber.Storage backing sessions and the rate
// limiter, per the configured backend. A nil return means in-process memory.
func LoadSessionStorage(c sessionsConf) (fiber.Storage, error) {
	switch c.Backend {
	case SessionBackendBadger:
		s, err := storage.NewBadgerStorage(c.DataDir)
		if err != nil {
			return nil, err
		}
		log.Info("Loaded badger session storage")
		return s, nil
	case SessionBackendRedis:
		s, err := storage.NewRedisStorage(c.Redis.Addr, c.Redis.Password, c.Redis.DB)
		if err != nil {
			return nil, err
		}
		log.Info("Loaded redis session storage")
		return s, nil
	default:
		log.Info("Using in-memory session storage")
		return nil, nil
	}
}

// SessionConf maps the yaml conf onto the application's session configuration.
func (c sessionsConf) SessionConf(tlsEnabled bool) whisperwall.SessionConf {
	return whisperwall.SessionConf{
		CookieName:   c.CookieName,
		Expiry:       c.Expiry.Duration(),
		CookieSecure: tlsEnabled,
	}
}
