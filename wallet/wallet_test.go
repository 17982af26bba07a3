package wallet

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ProtonWallet/andromeda-sub000/types"
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

func spk(t *testing.T, keychain types.KeychainKind, index uint32) []byte {
	script, err := stubDeriver{}.ScriptPubKey(keychain, index)
	require.NoError(t, err)
	return script
}

func paymentTx(op wire.OutPoint, value int64, script []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: op, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(wire.NewTxOut(value, script))
	return tx
}

func fundedWallet(t *testing.T) (*Wallet, *wire.MsgTx) {
	w := New("regtest", stubDeriver{}, blockId(0, 'g'))

	confirmed := paymentTx(outpoint('f', 0), 1000, spk(t, types.KeychainExternal, 0))
	change := paymentTx(outpoint('f', 1), 500, spk(t, types.KeychainInternal, 0))
	pending := paymentTx(outpoint('f', 2), 700, spk(t, types.KeychainExternal, 1))

	chainTip, err := NewCheckPoint(blockId(0, 'g')).Extend(blockId(10, 'a'))
	require.NoError(t, err)

	txUpdate := NewTxUpdate()
	txUpdate.Txs = []*wire.MsgTx{confirmed, change, pending}
	txUpdate.Anchors[confirmed.TxHash()] = types.Anchor{
		BlockId: blockId(10, 'a'), ConfirmationTime: 1234,
	}
	txUpdate.Seen = []SeenTx{
		{Txid: change.TxHash(), SeenAt: 100},
		{Txid: pending.TxHash(), SeenAt: 100},
	}

	update := &Update{
		TxUpdate: *txUpdate,
		ChainTip: chainTip,
		LastActiveIndices: map[types.KeychainKind]uint32{
			types.KeychainExternal: 1,
			types.KeychainInternal: 0,
		},
	}

	_, err = w.ApplyUpdate(update)
	require.NoError(t, err)
	return w, confirmed
}

func TestWalletBalanceTrustLevels(t *testing.T) {
	w, _ := fundedWallet(t)

	balance := w.Balance()
	require.Equal(t, btcutil.Amount(1000), balance.Confirmed)
	require.Equal(t, btcutil.Amount(500), balance.TrustedPending)
	require.Equal(t, btcutil.Amount(700), balance.UntrustedPending)
	require.Equal(t, btcutil.Amount(2200), balance.Total())
	require.Equal(t, btcutil.Amount(1500), balance.Spendable())

	require.Len(t, w.ListUnspent(), 3)
	require.Len(t, w.UnconfirmedTxids(), 2)
}

func TestWalletSpendRemovesUtxo(t *testing.T) {
	w, confirmed := fundedWallet(t)

	spend := paymentTx(
		wire.OutPoint{Hash: confirmed.TxHash(), Index: 0},
		900, []byte{0x00, 0x14, 0xff},
	)
	update := NewTxUpdate()
	update.Txs = append(update.Txs, spend)
	update.Seen = append(update.Seen, SeenTx{Txid: spend.TxHash(), SeenAt: 200})

	_, err := w.ApplyUpdate(&Update{TxUpdate: *update})
	require.NoError(t, err)

	balance := w.Balance()
	require.Equal(t, btcutil.Amount(0), balance.Confirmed)
	require.Len(t, w.ListUnspent(), 2)

	var found bool
	for _, detail := range w.ListTransactions() {
		if detail.Txid == spend.TxHash() {
			found = true
			require.Equal(t, btcutil.Amount(1000), detail.Sent)
			require.Equal(t, btcutil.Amount(100), detail.Fee)
		}
	}
	require.True(t, found)
}

func TestWalletReorgDemotesConfirmed(t *testing.T) {
	w, confirmed := fundedWallet(t)
	require.Equal(t, btcutil.Amount(1000), w.Balance().Confirmed)

	// A competing branch replaces block 10; the anchor block is gone.
	reorged, err := NewCheckPoint(blockId(0, 'g')).Extend(blockId(10, 'b'), blockId(11, 'b'))
	require.NoError(t, err)
	_, err = w.ApplyUpdate(&Update{TxUpdate: *NewTxUpdate(), ChainTip: reorged})
	require.NoError(t, err)

	balance := w.Balance()
	require.Equal(t, btcutil.Amount(0), balance.Confirmed)
	require.Equal(t, btcutil.Amount(500), balance.TrustedPending)
	require.Equal(t, btcutil.Amount(1700), balance.UntrustedPending)

	require.Contains(t, w.UnconfirmedTxids(), confirmed.TxHash())
	for _, utxo := range w.ListUnspent() {
		require.False(t, utxo.Confirmed)
	}
	for _, detail := range w.ListTransactions() {
		if detail.Txid == confirmed.TxHash() {
			require.False(t, detail.Confirmed)
		}
	}
}

func TestWalletDeltaRoundTrip(t *testing.T) {
	w, _ := fundedWallet(t)

	state := types.NewChangeSet("regtest")
	state.Checkpoints = w.LatestCheckpoint().Blocks()

	// Replay the same update against a fresh wallet to capture the delta.
	fresh := New("regtest", stubDeriver{}, blockId(0, 'g'))
	confirmed := paymentTx(outpoint('f', 0), 1000, spk(t, types.KeychainExternal, 0))
	chainTip, err := NewCheckPoint(blockId(0, 'g')).Extend(blockId(10, 'a'))
	require.NoError(t, err)
	update := NewTxUpdate()
	update.Txs = append(update.Txs, confirmed)
	update.Anchors[confirmed.TxHash()] = types.Anchor{
		BlockId: blockId(10, 'a'), ConfirmationTime: 1234,
	}
	delta, err := fresh.ApplyUpdate(&Update{
		TxUpdate: *update,
		ChainTip: chainTip,
		LastActiveIndices: map[types.KeychainKind]uint32{
			types.KeychainExternal: 0,
		},
	})
	require.NoError(t, err)

	state.Merge(delta)
	loaded, err := Load(stubDeriver{}, state)
	require.NoError(t, err)
	require.Equal(t, fresh.Balance(), loaded.Balance())
	require.Equal(t, fresh.LatestCheckpoint().Block(), loaded.LatestCheckpoint().Block())
}

func TestWalletRevealNextAddress(t *testing.T) {
	w := New("regtest", stubDeriver{}, blockId(0, 'g'))

	key, script, err := w.RevealNextAddress(types.KeychainExternal)
	require.NoError(t, err)
	require.Equal(t, uint32(0), key.Index)
	require.Equal(t, spk(t, types.KeychainExternal, 0), script)

	key, _, err = w.RevealNextAddress(types.KeychainExternal)
	require.NoError(t, err)
	require.Equal(t, uint32(1), key.Index)

	last, ok := w.LastRevealedIndex(types.KeychainExternal)
	require.True(t, ok)
	require.Equal(t, uint32(1), last)
}
