package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER_NAME", "clover")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3004, cfg.Port)
	assert.Equal(t, "clover:", cfg.RedisKeyPrefix)
	assert.Equal(t, "ledger-changes", cfg.KafkaTriggerTopic)
	assert.Equal(t, 2*time.Minute, cfg.RebuildLockTTL)
	assert.Equal(t, time.Second, cfg.RebuildRetryDelay)
	assert.Equal(t, 10, cfg.RebuildRetryAttempts)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
	assert.False(t, cfg.InterestsEnabled())
}

func TestLoadMissingLedgerHost(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_USER_NAME", "clover")

	_, err := Load()
	require.Error(t, err)

	var configErr *clovererrors.ConfigurationError
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, "DB_HOST", configErr.Field)
	assert.Equal(t, clovererrors.KindConfiguration, clovererrors.KindOf(err))
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseHost:         "db",
		DatabaseUserName:     "clover",
		GraphDBHost:          "graph",
		RedisHost:            "redis",
		RebuildWorkers:       4,
		RebuildRetryAttempts: 3,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"no workers", func(c *Config) { c.RebuildWorkers = 0 }, "REBUILD_WORKERS"},
		{"no retry attempts", func(c *Config) { c.RebuildRetryAttempts = 0 }, "REBUILD_RETRY_ATTEMPTS"},
		{"no graph host", func(c *Config) { c.GraphDBHost = "" }, "GRAPH_DB_HOST"},
		{"no redis host", func(c *Config) { c.RedisHost = "" }, "REDIS_HOST"},
		{"kafka without brokers", func(c *Config) { c.KafkaConsumerEnabled = true }, "KAFKA_BROKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			var configErr *clovererrors.ConfigurationError
			require.True(t, errors.As(cfg.Validate(), &configErr))
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := Config{
		DatabaseHost:     "db",
		DatabasePort:     "5432",
		DatabaseUserName: "clover",
		DatabasePassword: "secret",
		DatabaseName:     "ledger",
		DatabaseSSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=clover password=secret dbname=ledger sslmode=disable", cfg.DatabaseDSN())
}

func TestInterestsEnabled(t *testing.T) {
	assert.True(t, Config{MongoURI: "mongodb://localhost:27017"}.InterestsEnabled())
}
