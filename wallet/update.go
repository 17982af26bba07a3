package wallet

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// ScriptIterator yields the script pubkey at a derivation index. Iterators
// are unbounded, the scanner decides when to stop.
type ScriptIterator func(index uint32) ([]byte, error)

// FullScanRequest is the input of a discovery scan: the local tip for
// reconciliation plus one unbounded script iterator per keychain.
type FullScanRequest struct {
	Tip       *CheckPoint
	Keychains map[types.KeychainKind]ScriptIterator
}

// SyncRequest is the input of a partial sync: the local tip plus the exact
// items to recheck.
type SyncRequest struct {
	Tip       *CheckPoint
	Spks      [][]byte
	Txids     []chainhash.Hash
	Outpoints []wire.OutPoint
}

// SeenTx is an unanchored transaction paired with the time it was observed.
type SeenTx struct {
	Txid   chainhash.Hash
	SeenAt int64
}

// TxUpdate carries new graph data gathered from the explorer.
type TxUpdate struct {
	Txs      []*wire.MsgTx
	Anchors  map[chainhash.Hash]types.Anchor
	Prevouts map[wire.OutPoint]*wire.TxOut
	Seen     []SeenTx
}

func NewTxUpdate() *TxUpdate {
	return &TxUpdate{
		Anchors:  make(map[chainhash.Hash]types.Anchor),
		Prevouts: make(map[wire.OutPoint]*wire.TxOut),
	}
}

// Extend appends the content of other into u.
func (u *TxUpdate) Extend(other *TxUpdate) {
	if other == nil {
		return
	}
	u.Txs = append(u.Txs, other.Txs...)
	u.Seen = append(u.Seen, other.Seen...)
	for txid, anchor := range other.Anchors {
		u.Anchors[txid] = anchor
	}
	for op, txOut := range other.Prevouts {
		u.Prevouts[op] = txOut
	}
}

// Update is the combined result of a sync or full scan, applied to the
// wallet as a single unit.
type Update struct {
	TxUpdate
	// ChainTip is the reconciled update chain, nil when chain data was not
	// fetched.
	ChainTip *CheckPoint
	// LastActiveIndices holds the highest index with on-chain activity per
	// scanned keychain. Only set by full scans.
	LastActiveIndices map[types.KeychainKind]uint32
}
