package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteInMemory(t *testing.T) {
	t.Parallel()

	cfg := DefaultPoolConfig()
	cfg.Driver = "sqlite"
	cfg.DSN = ":memory:"

	pm, err := Open(cfg, nil)
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Ping(context.Background()))
	assert.NotNil(t, pm.DB())
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := DefaultPoolConfig()
	cfg.Driver = "oracle"

	_, err := Open(cfg, nil)
	assert.Error(t, err)
}

func TestPoolManager_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := DefaultPoolConfig()
	cfg.Driver = "sqlite"
	cfg.DSN = ":memory:"

	pm, err := Open(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())
	assert.Error(t, pm.Ping(context.Background()))
}
