// Package config loads the CLI and server configuration from ROUTEFLOW_*
// environment variables.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the process configuration. Cobra flags override it.
type Config struct {
	LogLevel  string `env:"ROUTEFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ROUTEFLOW_LOG_FORMAT" envDefault:"text"`

	Store    string `env:"ROUTEFLOW_STORE" envDefault:"file"`
	StoreDir string `env:"ROUTEFLOW_STORE_DIR" envDefault:".routeflow/routes"`

	RedisAddr     string        `env:"ROUTEFLOW_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"ROUTEFLOW_REDIS_PASSWORD"`
	RedisDB       int           `env:"ROUTEFLOW_REDIS_DB" envDefault:"0"`
	RedisPrefix   string        `env:"ROUTEFLOW_REDIS_PREFIX" envDefault:"routeflow:route:"`
	RouteTTL      time.Duration `env:"ROUTEFLOW_ROUTE_TTL" envDefault:"0s"`
	LockTTL       time.Duration `env:"ROUTEFLOW_LOCK_TTL" envDefault:"30s"`

	// EncryptionKey enables at-rest encryption: 32 bytes, hex or base64.
	EncryptionKey string   `env:"ROUTEFLOW_ENCRYPTION_KEY"`
	FallbackKeys  []string `env:"ROUTEFLOW_ENCRYPTION_FALLBACK_KEYS" envSeparator:","`

	HTTPAddr string `env:"ROUTEFLOW_HTTP_ADDR" envDefault:":8080"`

	APIURL     string `env:"ROUTEFLOW_API_URL" envDefault:"https://li.quest/v1"`
	APIKey     string `env:"ROUTEFLOW_API_KEY"`
	Integrator string `env:"ROUTEFLOW_INTEGRATOR" envDefault:"routeflow"`

	ChainsFile string `env:"ROUTEFLOW_CHAINS_FILE"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q (memory, file, redis)", c.Store)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	if _, _, err := c.Keys(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Keys decodes the encryption keys. active is nil when encryption is off.
func (c Config) Keys() (active []byte, fallbacks [][]byte, err error) {
	if c.EncryptionKey == "" {
		if len(c.FallbackKeys) > 0 {
			return nil, nil, fmt.Errorf("fallback keys need ROUTEFLOW_ENCRYPTION_KEY")
		}
		return nil, nil, nil
	}
	active, err = decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}
	for i, k := range c.FallbackKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		fb, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallbacks = append(fallbacks, fb)
	}
	return active, fallbacks, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("must be 32 bytes encoded as hex or base64")
}
