package app

import (
	"context"
	"path/filepath"
	"testing"

	"governance-sync/internal/config"
	"governance-sync/internal/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.RPCURL = "http://127.0.0.1:1"
	cfg.Storage.JSON.Path = filepath.Join(t.TempDir(), "proposals.json")
	cfg.Retry = config.RetryConfig{Attempts: 1, DelayMS: 1}
	return cfg
}

func TestNew_InvalidAddressFailsFirst(t *testing.T) {
	cfg := testConfig(t)
	cfg.Contract.Address = "0x0000000000000000000000000000000000000000"
	cfg.Storage.Type = "unknown"

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, record.ErrInvalidContractAddress)
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, config.DefaultAddress, a.Engine.Address())

	st, err := a.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, record.Genesis(config.DefaultGenesisBlock), st)
}
