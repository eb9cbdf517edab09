// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
	// DSN for postgres. Loaded from environment.
	DSN          string `yaml:"-"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type BookingConfig struct {
	SeriesMinOccurrences int           `yaml:"series_min_occurrences"`
	SeriesMaxOccurrences int           `yaml:"series_max_occurrences"`
	FetchConcurrency     int           `yaml:"fetch_concurrency"`
	QueryTimeout         time.Duration `yaml:"query_timeout"`
	PhoneRegion          string        `yaml:"phone_region"`
}

type SchedulerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SweepCron string `yaml:"sweep_cron"`
}

type RateLimitConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Booking   BookingConfig   `yaml:"booking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.Database.DSN = os.Getenv("DATABASE_DSN")

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
	if c.Booking.SeriesMinOccurrences == 0 {
		c.Booking.SeriesMinOccurrences = 2
	}
	if c.Booking.SeriesMaxOccurrences == 0 {
		c.Booking.SeriesMaxOccurrences = 8
	}
	if c.Booking.FetchConcurrency == 0 {
		c.Booking.FetchConcurrency = 4
	}
	if c.Booking.QueryTimeout == 0 {
		c.Booking.QueryTimeout = 5 * time.Second
	}
	if c.Booking.PhoneRegion == "" {
		c.Booking.PhoneRegion = "US"
	}
	if c.Scheduler.SweepCron == "" {
		c.Scheduler.SweepCron = "*/5 * * * *"
	}
	if c.RateLimit.MaxAttempts == 0 {
		c.RateLimit.MaxAttempts = 30
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// Deployments may narrow the series bounds but never widen them.
	if c.Booking.SeriesMinOccurrences < 2 {
		return fmt.Errorf("booking series_min_occurrences must be at least 2")
	}
	if c.Booking.SeriesMaxOccurrences > 8 {
		return fmt.Errorf("booking series_max_occurrences must be at most 8")
	}
	if c.Booking.SeriesMaxOccurrences < c.Booking.SeriesMinOccurrences {
		return fmt.Errorf("booking series_max_occurrences must be >= series_min_occurrences")
	}
	if c.Booking.FetchConcurrency < 1 {
		return fmt.Errorf("booking fetch_concurrency must be at least 1")
	}
	if c.Booking.QueryTimeout < 0 {
		return fmt.Errorf("booking query_timeout must not be negative")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.SweepCron); err != nil {
			return fmt.Errorf("scheduler sweep_cron %q: %w", c.Scheduler.SweepCron, err)
		}
	}

	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("ratelimit max_attempts must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit window must be positive")
	}

	return nil
}
