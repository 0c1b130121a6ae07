package app

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/viewstore"
)

func TestNewLogger(t *testing.T) {
	logger, sync, err := NewLogger("debug", true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	sync()

	_, _, err = NewLogger("loud", false)
	assert.Error(t, err)
}

func TestBuildServicesWithoutOptionalStores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client := viewstore.NewClientFromRedis(rdb, logger)

	a := New(config.Config{RebuildWorkers: 2, StartupMaxAttempts: 1}, logger)
	a.Redis = client
	a.View = viewstore.NewStore(client, "clover:", logger)
	a.Locker = viewstore.NewLocker(client, "clover-lock:")

	a.buildServices()

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Coordinator)
	assert.NotNil(t, a.Ingest)
}
