package app

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the portal gateway.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	IdentityURL     string        `envconfig:"IDENTITY_URL" default:"http://127.0.0.1:8081"`
	IdentityTimeout time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"10s"`

	IdleTimeout      time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	WarningWindow    time.Duration `envconfig:"SESSION_WARNING_WINDOW" default:"2m"`
	RefreshInterval  time.Duration `envconfig:"TOKEN_REFRESH_INTERVAL" default:"5m"`
	RefreshThreshold time.Duration `envconfig:"TOKEN_REFRESH_THRESHOLD" default:"10m"`
	StateTTL         time.Duration `envconfig:"CLIENT_STATE_TTL" default:"24h"`

	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
