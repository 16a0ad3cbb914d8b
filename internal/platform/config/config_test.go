package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestOverlayEnv(t *testing.T) {
	t.Run("values override defaults", func(t *testing.T) {
		cfg := Default()
		err := cfg.overlayEnv(envMap(map[string]string{
			"RISKACCEPT_ADDR":    ":9090",
			"DATABASE_URL":       "postgres://localhost/ra",
			"REDIS_CACHE_TTL":    "90s",
			"KAFKA_BROKERS":      "a:9092, b:9092,,",
			"EXPIRY_INTERVAL":    "1h",
			"REDIS_POOL_SIZE":    "25",
			"DIRECTORY_FIXTURES": "fixtures.yaml",
		}))
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, "postgres://localhost/ra", cfg.Database.URL)
		assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, time.Hour, cfg.Expiry.Interval)
		assert.Equal(t, 25, cfg.Redis.PoolSize)
		assert.Equal(t, "fixtures.yaml", cfg.Directories.Fixtures)
	})

	t.Run("empty values keep defaults", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.overlayEnv(envMap(map[string]string{"RISKACCEPT_ADDR": ""})))
		assert.Equal(t, ":8080", cfg.Server.Addr)
	})

	t.Run("malformed values are reported together", func(t *testing.T) {
		cfg := Default()
		err := cfg.overlayEnv(envMap(map[string]string{
			"EXPIRY_INTERVAL": "daily",
			"REDIS_POOL_SIZE": "many",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EXPIRY_INTERVAL")
		assert.Contains(t, err.Error(), "REDIS_POOL_SIZE")
	})
}

func TestOverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskaccept.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7070"
kafka:
  brokers: ["broker:9092"]
  topic: acceptances
directories:
  risk_url: http://risks
  user_url: http://users
  timeout: 500ms
expiry:
  interval: 6h
`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.overlayFile(path))

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"broker:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "acceptances", cfg.Kafka.Topic)
	assert.Equal(t, 500*time.Millisecond, cfg.Directories.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Expiry.Interval)
	assert.Equal(t, "dev-secret-key-change-in-production", cfg.Server.JWTSigningKey, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestOverlayFileMissing(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.overlayFile(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Directories.Fixtures = "fixtures.yaml"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no address", func(c *Config) { c.Server.Addr = "" }},
		{"no signing key", func(c *Config) { c.Server.JWTSigningKey = "" }},
		{"zero interval", func(c *Config) { c.Expiry.Interval = 0 }},
		{"no directories", func(c *Config) { c.Directories.Fixtures = "" }},
		{"brokers without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"b:9092"}
			c.Kafka.Topic = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
