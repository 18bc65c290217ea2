package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"EscrowLedger"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Whole-second overrides kept for existing deployments.
	ShutdownSeconds       int `env:"SHUTDOWN_TIMEOUT_SECONDS"`
	IdempotencyTTLSeconds int `env:"IDEMPOTENCY_TTL_SECONDS"`

	DefaultCurrency        string        `env:"DEFAULT_CURRENCY" envDefault:"XAF"`
	EscrowDefaultTTL       time.Duration `env:"ESCROW_DEFAULT_TTL" envDefault:"168h"`
	ReaperInterval         time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
	ReaperBatchSize        int           `env:"REAPER_BATCH_SIZE" envDefault:"100"`
	ReaperEnabled          bool          `env:"REAPER_ENABLED" envDefault:"true"`
	CommissionScheduleFile string        `env:"COMMISSION_SCHEDULE_FILE"`
	RetryMaxAttempts       uint          `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	MutationRatePerMin     int           `env:"MUTATION_RATE_PER_MIN" envDefault:"120"`
	NotifyChannel          string        `env:"NOTIFY_CHANNEL" envDefault:"escrowledger:notifications"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))

	if cfg.ShutdownSeconds > 0 {
		cfg.ShutdownPeriod = time.Duration(cfg.ShutdownSeconds) * time.Second
	}
	if cfg.IdempotencyTTLSeconds > 0 {
		cfg.IdempotencyTTL = time.Duration(cfg.IdempotencyTTLSeconds) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	switch {
	case c.EscrowDefaultTTL <= 0:
		return fmt.Errorf("ESCROW_DEFAULT_TTL must be positive")
	case c.ReaperInterval <= 0:
		return fmt.Errorf("REAPER_INTERVAL must be positive")
	case c.ReaperBatchSize <= 0:
		return fmt.Errorf("REAPER_BATCH_SIZE must be positive")
	case c.RetryMaxAttempts == 0:
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	case len(c.DefaultCurrency) != 3:
		return fmt.Errorf("DEFAULT_CURRENCY must be a three-letter code")
	}
	return nil
}

// IsDev reports whether the in-memory fallbacks are allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
