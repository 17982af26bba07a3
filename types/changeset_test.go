package types

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testDelta() *ChangeSet {
	var txid, blockHash chainhash.Hash
	txid[0] = 0x01
	blockHash[0] = 0x02

	delta := NewChangeSet("regtest")
	delta.Txs = []TxRecord{{Txid: txid, Raw: []byte{0xaa}}}
	delta.Anchors[txid] = Anchor{
		BlockId:          BlockId{Height: 10, Hash: blockHash},
		ConfirmationTime: 100,
	}
	delta.LastSeen[txid] = 50
	delta.Prevouts = []PrevoutRecord{{
		Outpoint: wire.OutPoint{Hash: txid, Index: 1}, Value: 1000,
	}}
	delta.Checkpoints = []BlockId{{Height: 10, Hash: blockHash}}
	delta.LastRevealed[KeychainExternal] = 3
	return delta
}

func TestChangeSetMergeIdempotent(t *testing.T) {
	state := NewChangeSet("regtest")
	delta := testDelta()

	state.Merge(delta)
	once := *state
	state.Merge(delta)

	require.Equal(t, once.Txs, state.Txs)
	require.Equal(t, once.Anchors, state.Anchors)
	require.Equal(t, once.LastSeen, state.LastSeen)
	require.Equal(t, once.Prevouts, state.Prevouts)
	require.Equal(t, once.Checkpoints, state.Checkpoints)
	require.Equal(t, once.LastRevealed, state.LastRevealed)
}

func TestChangeSetMergeMonotonic(t *testing.T) {
	state := NewChangeSet("regtest")
	state.Merge(testDelta())

	var txid chainhash.Hash
	txid[0] = 0x01

	t.Run("last seen never moves backwards", func(t *testing.T) {
		older := NewChangeSet("regtest")
		older.LastSeen[txid] = 10
		state.Merge(older)
		require.Equal(t, int64(50), state.LastSeen[txid])

		newer := NewChangeSet("regtest")
		newer.LastSeen[txid] = 99
		state.Merge(newer)
		require.Equal(t, int64(99), state.LastSeen[txid])
	})

	t.Run("revealed indices never move backwards", func(t *testing.T) {
		older := NewChangeSet("regtest")
		older.LastRevealed[KeychainExternal] = 1
		state.Merge(older)
		require.Equal(t, uint32(3), state.LastRevealed[KeychainExternal])
	})

	t.Run("checkpoints replace per height", func(t *testing.T) {
		var newHash chainhash.Hash
		newHash[0] = 0xff
		reorg := NewChangeSet("regtest")
		reorg.Checkpoints = []BlockId{{Height: 10, Hash: newHash}}
		state.Merge(reorg)

		require.Len(t, state.Checkpoints, 1)
		require.Equal(t, newHash, state.Checkpoints[0].Hash)
	})

	t.Run("anchors replace per txid", func(t *testing.T) {
		var newHash chainhash.Hash
		newHash[0] = 0xff
		reanchor := NewChangeSet("regtest")
		reanchor.Anchors[txid] = Anchor{
			BlockId: BlockId{Height: 11, Hash: newHash}, ConfirmationTime: 200,
		}
		state.Merge(reanchor)
		require.Equal(t, uint32(11), state.Anchors[txid].Height)
	})
}

func TestChangeSetIsEmpty(t *testing.T) {
	require.True(t, NewChangeSet("regtest").IsEmpty())
	require.False(t, testDelta().IsEmpty())
}

func TestTxRecordRoundTrip(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x00, 0x14}))

	record, err := NewTxRecord(tx)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), record.Txid)

	decoded, err := record.Decode()
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), decoded.TxHash())
}
