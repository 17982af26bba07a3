package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

func TestFileConfigStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, types.FileStore, store.GetType())

	data, err := store.GetData(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	config := types.Config{
		ExplorerURL:                  "http://localhost:3000",
		Network:                      "regtest",
		StopGap:                      20,
		ParallelRequests:             3,
		ExplorerTrackingPollInterval: 5 * time.Second,
	}
	require.NoError(t, store.AddData(ctx, config))

	loaded, err := store.GetData(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, config, *loaded)

	require.NoError(t, store.CleanData(ctx))
	cleaned, err := store.GetData(ctx)
	require.NoError(t, err)
	require.Nil(t, cleaned)
}
