// Package config loads process configuration from the environment, optionally
// overlaid by a YAML file named in RISKACCEPT_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server      Server      `yaml:"server"`
	Database    Database    `yaml:"database"`
	Redis       RedisConfig `yaml:"redis"`
	Kafka       Kafka       `yaml:"kafka"`
	Directories Directories `yaml:"directories"`
	Expiry      Expiry      `yaml:"expiry"`
	Logging     Logging     `yaml:"logging"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JWTSigningKey   string        `yaml:"jwt_signing_key"`
}

// Database is empty when the in-memory store should be used.
type Database struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
}

// RedisConfig configures the directory cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// Kafka configures event delivery. No brokers means events are only logged.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Directories locates the risk, user and action tracker services. A fixtures
// file replaces all three with an in-memory directory.
type Directories struct {
	RiskURL   string        `yaml:"risk_url"`
	UserURL   string        `yaml:"user_url"`
	ActionURL string        `yaml:"action_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Fixtures  string        `yaml:"fixtures"`
}

type Expiry struct {
	Interval time.Duration `yaml:"interval"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			// Development default; override in production.
			JWTSigningKey: "dev-secret-key-change-in-production",
		},
		Database: Database{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
			TxTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			CacheTTL:     5 * time.Minute,
		},
		Kafka: Kafka{
			Topic: "risk-acceptance-events",
		},
		Directories: Directories{
			Timeout: 2 * time.Second,
		},
		Expiry: Expiry{
			Interval: 24 * time.Hour,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named in
// RISKACCEPT_CONFIG, then environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("RISKACCEPT_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.overlayEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) overlayEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	str("RISKACCEPT_ADDR", &c.Server.Addr)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("JWT_SIGNING_KEY", &c.Server.JWTSigningKey)

	str("DATABASE_URL", &c.Database.URL)
	num("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	num("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	dur("DATABASE_TX_TIMEOUT", &c.Database.TxTimeout)

	str("REDIS_URL", &c.Redis.URL)
	num("REDIS_POOL_SIZE", &c.Redis.PoolSize)
	dur("REDIS_CACHE_TTL", &c.Redis.CacheTTL)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)

	str("RISK_DIRECTORY_URL", &c.Directories.RiskURL)
	str("USER_DIRECTORY_URL", &c.Directories.UserURL)
	str("ACTION_TRACKER_URL", &c.Directories.ActionURL)
	dur("DIRECTORY_TIMEOUT", &c.Directories.Timeout)
	str("DIRECTORY_FIXTURES", &c.Directories.Fixtures)

	dur("EXPIRY_INTERVAL", &c.Expiry.Interval)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if c.Expiry.Interval <= 0 {
		return fmt.Errorf("expiry interval must be positive")
	}
	if c.Directories.Fixtures == "" && (c.Directories.RiskURL == "" || c.Directories.UserURL == "") {
		return fmt.Errorf("either directory fixtures or risk and user directory URLs are required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
