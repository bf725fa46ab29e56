// Package config defines all configuration for the trading core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// fields overridable via CHRONOS_* environment variables; a local .env
// file is loaded first if present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Trading TradingConfig `mapstructure:"trading"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend.
//
//   - Backend "postgres" uses DatabaseURL, optionally wrapped with a
//     Redis read-through cache when RedisURL is set.
//   - Backend "sqlite" persists to SQLitePath (single-node).
//   - Backend "memory" keeps everything in process (testing only).
type StoreConfig struct {
	Backend     string        `mapstructure:"backend"`
	DatabaseURL string        `mapstructure:"database_url"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
}

// TradingConfig tunes order validation.
//
//   - SlippageTolerance: fractional worst-case drift allowed between
//     quote and fill (0.10 = 10%).
type TradingConfig struct {
	SlippageTolerance float64 `mapstructure:"slippage_tolerance"`
}

// RiskConfig sets exposure limits enforced before execution.
//
//   - MaxPerMarket: max cost-basis exposure in any single market.
//   - MaxCorrelated: max aggregate exposure across markets sharing a
//     category tag.
type RiskConfig struct {
	MaxPerMarket  float64 `mapstructure:"max_per_market"`
	MaxCorrelated float64 `mapstructure:"max_correlated"`
}

// CacheConfig controls the market state poller.
type CacheConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// GatewayConfig selects the execution gateway.
//
//   - Mode "sim" executes in process against the store.
//   - Mode "remote" submits to VenueURL, rate-limited to VenueRPS
//     requests per second.
type GatewayConfig struct {
	Mode     string  `mapstructure:"mode"`
	VenueURL string  `mapstructure:"venue_url"`
	VenueRPS float64 `mapstructure:"venue_rps"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides
// (CHRONOS_STORE_DATABASE_URL, CHRONOS_SERVER_PORT, ...). A missing
// config file is not an error; defaults and env vars apply.
func Load(path string) (*Config, error) {
	// Local development convenience; ignore if absent.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CHRONOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Connection strings usually come from the environment.
	if url := os.Getenv("CHRONOS_DATABASE_URL"); url != "" {
		cfg.Store.DatabaseURL = url
	}
	if url := os.Getenv("CHRONOS_REDIS_URL"); url != "" {
		cfg.Store.RedisURL = url
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_ttl", 30*time.Second)
	v.SetDefault("store.sqlite_path", "chronos.db")

	v.SetDefault("trading.slippage_tolerance", 0.10)

	v.SetDefault("risk.max_per_market", 1000)
	v.SetDefault("risk.max_correlated", 5000)

	v.SetDefault("cache.poll_interval", 2*time.Second)
	v.SetDefault("cache.fetch_timeout", 5*time.Second)

	v.SetDefault("gateway.mode", "sim")
	v.SetDefault("gateway.venue_rps", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend (set CHRONOS_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.backend must be one of: memory, sqlite, postgres")
	}
	if c.Trading.SlippageTolerance <= 0 || c.Trading.SlippageTolerance >= 1 {
		return fmt.Errorf("trading.slippage_tolerance must be in (0, 1)")
	}
	if c.Risk.MaxPerMarket <= 0 {
		return fmt.Errorf("risk.max_per_market must be > 0")
	}
	if c.Risk.MaxCorrelated < c.Risk.MaxPerMarket {
		return fmt.Errorf("risk.max_correlated must be >= risk.max_per_market")
	}
	switch c.Gateway.Mode {
	case "sim":
	case "remote":
		if c.Gateway.VenueURL == "" {
			return fmt.Errorf("gateway.venue_url is required for the remote gateway")
		}
	default:
		return fmt.Errorf("gateway.mode must be one of: sim, remote")
	}
	return nil
}
