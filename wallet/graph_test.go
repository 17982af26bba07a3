package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

func outpoint(tag byte, index uint32) wire.OutPoint {
	var hash chainhash.Hash
	hash[0] = tag
	return wire.OutPoint{Hash: hash, Index: index}
}

func spendingTx(op wire.OutPoint, value int64, sequence uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: op, Sequence: sequence})
	tx.AddTxOut(wire.NewTxOut(value, []byte{0x00, 0x14}))
	return tx
}

func TestTxGraphInsertIdempotent(t *testing.T) {
	graph := NewTxGraph()
	tx := spendingTx(outpoint('a', 0), 1000, wire.MaxTxInSequenceNum)

	require.True(t, graph.InsertTx(tx))
	require.False(t, graph.InsertTx(tx))
	require.Len(t, graph.Txids(), 1)

	anchor := types.Anchor{BlockId: types.BlockId{Height: 10}, ConfirmationTime: 99}
	require.True(t, graph.InsertAnchor(tx.TxHash(), anchor))
	require.False(t, graph.InsertAnchor(tx.TxHash(), anchor))

	require.True(t, graph.InsertSeen(tx.TxHash(), 100))
	require.False(t, graph.InsertSeen(tx.TxHash(), 100))
	require.False(t, graph.InsertSeen(tx.TxHash(), 50))
	require.True(t, graph.InsertSeen(tx.TxHash(), 200))
}

func TestTxGraphSpenderConflict(t *testing.T) {
	graph := NewTxGraph()
	op := outpoint('a', 0)

	older := spendingTx(op, 1000, 1)
	newer := spendingTx(op, 2000, 2)
	require.True(t, graph.InsertTx(older))
	require.True(t, graph.InsertTx(newer))
	graph.InsertSeen(older.TxHash(), 100)
	graph.InsertSeen(newer.TxHash(), 200)

	t.Run("most recently seen wins among unanchored", func(t *testing.T) {
		spender, ok := graph.Spender(op)
		require.True(t, ok)
		require.Equal(t, newer.TxHash(), spender)
		require.True(t, graph.IsCanonical(newer.TxHash()))
		require.False(t, graph.IsCanonical(older.TxHash()))
	})

	t.Run("anchored always wins", func(t *testing.T) {
		graph.InsertAnchor(older.TxHash(), types.Anchor{
			BlockId: types.BlockId{Height: 5}, ConfirmationTime: 1,
		})
		spender, ok := graph.Spender(op)
		require.True(t, ok)
		require.Equal(t, older.TxHash(), spender)
		require.True(t, graph.IsCanonical(older.TxHash()))
		require.False(t, graph.IsCanonical(newer.TxHash()))
	})
}

func TestTxGraphTxOut(t *testing.T) {
	graph := NewTxGraph()
	tx := spendingTx(outpoint('a', 0), 1000, wire.MaxTxInSequenceNum)
	graph.InsertTx(tx)

	t.Run("resolves outputs of held txs", func(t *testing.T) {
		txOut, ok := graph.TxOut(wire.OutPoint{Hash: tx.TxHash(), Index: 0})
		require.True(t, ok)
		require.Equal(t, int64(1000), txOut.Value)

		_, ok = graph.TxOut(wire.OutPoint{Hash: tx.TxHash(), Index: 7})
		require.False(t, ok)
	})

	t.Run("falls back to floating prevouts", func(t *testing.T) {
		op := outpoint('b', 1)
		_, ok := graph.TxOut(op)
		require.False(t, ok)

		require.True(t, graph.InsertPrevout(op, wire.NewTxOut(500, nil)))
		txOut, ok := graph.TxOut(op)
		require.True(t, ok)
		require.Equal(t, int64(500), txOut.Value)
	})
}

func TestTxGraphAnchorHeights(t *testing.T) {
	graph := NewTxGraph()
	a := spendingTx(outpoint('a', 0), 1, wire.MaxTxInSequenceNum)
	b := spendingTx(outpoint('b', 0), 2, wire.MaxTxInSequenceNum)
	graph.InsertTx(a)
	graph.InsertTx(b)
	graph.InsertAnchor(a.TxHash(), types.Anchor{BlockId: types.BlockId{Height: 10}})
	graph.InsertAnchor(b.TxHash(), types.Anchor{BlockId: types.BlockId{Height: 10}})

	heights := graph.AnchorHeights()
	require.Len(t, heights, 1)
	_, ok := heights[10]
	require.True(t, ok)
}
