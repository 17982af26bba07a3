package account

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	inmemorystore "github.com/ProtonWallet/andromeda-sub000/store/inmemory"
	"github.com/ProtonWallet/andromeda-sub000/syncer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

type stubDeriver struct{}

func (stubDeriver) ScriptPubKey(keychain types.KeychainKind, index uint32) ([]byte, error) {
	spk := make([]byte, 22)
	spk[0] = 0x00
	spk[1] = 0x14
	spk[2] = byte(keychain) + 1
	spk[3] = byte(index) + 1
	return spk, nil
}

func (stubDeriver) Address(types.KeychainKind, uint32) (btcutil.Address, error) {
	return nil, fmt.Errorf("not supported")
}

// flakyStore fails Persist on demand.
type flakyStore struct {
	types.WalletStore
	fail bool
}

func (s *flakyStore) Persist(ctx context.Context, delta *types.ChangeSet) error {
	if s.fail {
		return fmt.Errorf("disk full")
	}
	return s.WalletStore.Persist(ctx, delta)
}

func genesis() types.BlockId {
	var hash chainhash.Hash
	hash[0] = 'g'
	return types.BlockId{Height: 0, Hash: hash}
}

func fundingUpdate(t *testing.T, w *wallet.Wallet) *wallet.Update {
	t.Helper()
	script, err := stubDeriver{}.ScriptPubKey(types.KeychainExternal, 0)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	var prevHash chainhash.Hash
	prevHash[0] = 'f'
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(1000, script))

	txUpdate := wallet.NewTxUpdate()
	txUpdate.Txs = append(txUpdate.Txs, tx)
	txUpdate.Seen = append(txUpdate.Seen, wallet.SeenTx{Txid: tx.TxHash(), SeenAt: 100})

	return &wallet.Update{
		TxUpdate: *txUpdate,
		LastActiveIndices: map[types.KeychainKind]uint32{
			types.KeychainExternal: 0,
		},
	}
}

func TestPersistFailureKeepsDeltaStaged(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{WalletStore: inmemorystore.NewWalletStore()}

	w := wallet.New("regtest", stubDeriver{}, genesis())
	acc, err := New(ctx, w, store)
	require.NoError(t, err)

	store.fail = true
	err = acc.ApplyUpdate(ctx, fundingUpdate(t, w))
	var persistErr *syncer.PersistError
	require.ErrorAs(t, err, &persistErr)

	// The update is applied in memory despite the failed write.
	require.Equal(t, btcutil.Amount(1000), acc.Balance().Total())

	store.fail = false
	require.NoError(t, acc.Persist(ctx))

	persisted, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Len(t, persisted.Txs, 1)
	require.Equal(t, uint32(0), persisted.LastRevealed[types.KeychainExternal])
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := inmemorystore.NewWalletStore()

	w := wallet.New("regtest", stubDeriver{}, genesis())
	acc, err := New(ctx, w, store)
	require.NoError(t, err)
	require.NoError(t, acc.ApplyUpdate(ctx, fundingUpdate(t, w)))

	reloaded, err := Load(ctx, stubDeriver{}, store)
	require.NoError(t, err)
	require.Equal(t, acc.Balance(), reloaded.Balance())
	require.Equal(t, acc.LatestCheckpoint(), reloaded.LatestCheckpoint())
}

func TestRevealNextAddressPersists(t *testing.T) {
	ctx := context.Background()
	store := inmemorystore.NewWalletStore()

	w := wallet.New("regtest", stubDeriver{}, genesis())
	acc, err := New(ctx, w, store)
	require.NoError(t, err)

	key, _, err := acc.RevealNextAddress(ctx, types.KeychainExternal)
	require.NoError(t, err)
	require.Equal(t, uint32(0), key.Index)

	key, _, err = acc.RevealNextAddress(ctx, types.KeychainExternal)
	require.NoError(t, err)
	require.Equal(t, uint32(1), key.Index)

	persisted, err := store.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1), persisted.LastRevealed[types.KeychainExternal])
}
