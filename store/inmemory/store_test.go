package inmemorystore

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

func TestInMemoryWalletStore(t *testing.T) {
	ctx := context.Background()
	store := NewWalletStore()
	require.Equal(t, types.InMemoryStore, store.GetType())

	initial, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.True(t, initial.IsEmpty())

	var hash chainhash.Hash
	hash[0] = 0x01
	delta := types.NewChangeSet("regtest")
	delta.Checkpoints = []types.BlockId{{Height: 10, Hash: hash}}
	require.NoError(t, store.Persist(ctx, delta))

	loaded, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "regtest", loaded.Network)
	require.Len(t, loaded.Checkpoints, 1)

	// Mutating the snapshot must not leak back into the store.
	loaded.Checkpoints[0].Height = 99
	again, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(10), again.Checkpoints[0].Height)

	require.NoError(t, store.Clean(ctx))
	cleaned, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.True(t, cleaned.IsEmpty())
}

func TestReadOnlyWalletStore(t *testing.T) {
	ctx := context.Background()

	seed := types.NewChangeSet("regtest")
	seed.Checkpoints = []types.BlockId{{Height: 10}}
	store := NewWalletStoreFrom(seed, WithReadOnly())

	loaded, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Checkpoints, 1)

	// Writes are silently discarded.
	delta := types.NewChangeSet("regtest")
	delta.Checkpoints = []types.BlockId{{Height: 11}}
	require.NoError(t, store.Persist(ctx, delta))
	require.NoError(t, store.Clean(ctx))

	again, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Len(t, again.Checkpoints, 1)
	require.Equal(t, uint32(10), again.Checkpoints[0].Height)
}
