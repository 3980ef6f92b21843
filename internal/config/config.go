package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the cepbridge service
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	NATS       NATSConfig        `mapstructure:"nats"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Dispatcher DispatcherConfig  `mapstructure:"dispatcher"`
	Feed       FeedConfig        `mapstructure:"feed"`
	Statements []StatementConfig `mapstructure:"statements"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RedisConfig holds Redis configuration for registry persistence
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// DispatcherConfig holds outbound delivery configuration
type DispatcherConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Jitter          float64       `mapstructure:"jitter"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace"`
	// SinkRateLimit is requests per second per sink; 0 disables limiting.
	SinkRateLimit float64 `mapstructure:"sink_rate_limit"`
	SinkRateBurst int     `mapstructure:"sink_rate_burst"`
}

// FeedConfig holds context feed configuration
type FeedConfig struct {
	Subject    string `mapstructure:"subject"`
	QueueGroup string `mapstructure:"queue_group"`
	// NGSINotify enables the POST /ngsi/notify endpoint.
	NGSINotify bool `mapstructure:"ngsi_notify"`
}

// StatementConfig declares one sliding-window count statement
type StatementConfig struct {
	ID        string        `mapstructure:"id"`
	Window    time.Duration `mapstructure:"window"`
	Threshold int           `mapstructure:"threshold"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("dispatcher.queue_size", 256)
	v.SetDefault("dispatcher.max_attempts", 5)
	v.SetDefault("dispatcher.initial_interval", "1s")
	v.SetDefault("dispatcher.multiplier", 2.0)
	v.SetDefault("dispatcher.max_interval", "30s")
	v.SetDefault("dispatcher.jitter", 0.0)
	v.SetDefault("dispatcher.request_timeout", "10s")
	v.SetDefault("dispatcher.shutdown_grace", "10s")
	v.SetDefault("dispatcher.sink_rate_limit", 0.0)
	v.SetDefault("dispatcher.sink_rate_burst", 1)

	v.SetDefault("feed.subject", "context.attributes.changed")
	v.SetDefault("feed.queue_group", "cepbridge-feed")
	v.SetDefault("feed.ngsi_notify", true)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cepbridge")
	}

	// Environment variables override (CEPBRIDGE_SERVER_PORT, etc.)
	v.SetEnvPrefix("CEPBRIDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would make the service misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Dispatcher.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.max_attempts must be at least 1"))
	}
	if c.Dispatcher.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("dispatcher.initial_interval must be positive"))
	}
	if c.Dispatcher.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("dispatcher.multiplier must be >= 1"))
	}
	if c.Dispatcher.MaxInterval < c.Dispatcher.InitialInterval {
		errs = append(errs, fmt.Errorf("dispatcher.max_interval must be >= initial_interval"))
	}
	if c.Dispatcher.Jitter < 0 || c.Dispatcher.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("dispatcher.jitter must be in [0, 1)"))
	}
	if c.Dispatcher.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.queue_size must not be negative"))
	}
	if c.Dispatcher.SinkRateLimit < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.sink_rate_limit must not be negative"))
	}

	seen := make(map[string]bool, len(c.Statements))
	for i, st := range c.Statements {
		switch {
		case st.ID == "":
			errs = append(errs, fmt.Errorf("statements[%d]: id is required", i))
		case seen[st.ID]:
			errs = append(errs, fmt.Errorf("statements[%d]: duplicate id %q", i, st.ID))
		}
		seen[st.ID] = true
		if st.Window <= 0 {
			errs = append(errs, fmt.Errorf("statements[%d]: window must be positive", i))
		}
		if st.Threshold < 1 {
			errs = append(errs, fmt.Errorf("statements[%d]: threshold must be at least 1", i))
		}
	}

	return errors.Join(errs...)
}
