package wallet

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// TxGraph holds the known transactions of an account plus the floating
// previous outputs referenced by their inputs (needed for fee and sent-amount
// computation when the funding transaction itself is not held). The graph
// only grows: insertions are idempotent and anchors replace rather than
// accumulate.
type TxGraph struct {
	txs      map[chainhash.Hash]*wire.MsgTx
	anchors  map[chainhash.Hash]types.Anchor
	lastSeen map[chainhash.Hash]int64
	prevouts map[wire.OutPoint]*wire.TxOut
	// spends indexes every input edge: outpoint -> txids spending it.
	spends map[wire.OutPoint][]chainhash.Hash
}

func NewTxGraph() *TxGraph {
	return &TxGraph{
		txs:      make(map[chainhash.Hash]*wire.MsgTx),
		anchors:  make(map[chainhash.Hash]types.Anchor),
		lastSeen: make(map[chainhash.Hash]int64),
		prevouts: make(map[wire.OutPoint]*wire.TxOut),
		spends:   make(map[wire.OutPoint][]chainhash.Hash),
	}
}

// InsertTx adds a transaction to the graph. Returns false if it was already
// known.
func (g *TxGraph) InsertTx(tx *wire.MsgTx) bool {
	txid := tx.TxHash()
	if _, ok := g.txs[txid]; ok {
		return false
	}
	g.txs[txid] = tx
	for _, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		g.spends[op] = append(g.spends[op], txid)
	}
	return true
}

// InsertAnchor binds txid to a confirmed block, replacing any previous
// anchor. A transaction holds at most one anchor at a time.
func (g *TxGraph) InsertAnchor(txid chainhash.Hash, anchor types.Anchor) bool {
	if existing, ok := g.anchors[txid]; ok && existing == anchor {
		return false
	}
	g.anchors[txid] = anchor
	return true
}

// InsertSeen records when an unanchored transaction was last observed.
// Timestamps only move forward.
func (g *TxGraph) InsertSeen(txid chainhash.Hash, seenAt int64) bool {
	if seenAt <= g.lastSeen[txid] {
		return false
	}
	g.lastSeen[txid] = seenAt
	return true
}

// InsertPrevout records a referenced previous output whose funding
// transaction is not held in full.
func (g *TxGraph) InsertPrevout(op wire.OutPoint, txOut *wire.TxOut) bool {
	if _, ok := g.prevouts[op]; ok {
		return false
	}
	g.prevouts[op] = txOut
	return true
}

func (g *TxGraph) Tx(txid chainhash.Hash) (*wire.MsgTx, bool) {
	tx, ok := g.txs[txid]
	return tx, ok
}

func (g *TxGraph) Anchor(txid chainhash.Hash) (types.Anchor, bool) {
	anchor, ok := g.anchors[txid]
	return anchor, ok
}

func (g *TxGraph) LastSeen(txid chainhash.Hash) (int64, bool) {
	seen, ok := g.lastSeen[txid]
	return seen, ok
}

// TxOut resolves an outpoint to its output, looking at held transactions
// first and floating prevouts second.
func (g *TxGraph) TxOut(op wire.OutPoint) (*wire.TxOut, bool) {
	if tx, ok := g.txs[op.Hash]; ok {
		if int(op.Index) < len(tx.TxOut) {
			return tx.TxOut[op.Index], true
		}
		return nil, false
	}
	txOut, ok := g.prevouts[op]
	return txOut, ok
}

// AnchorHeights returns every block height referenced by an anchor.
func (g *TxGraph) AnchorHeights() map[uint32]struct{} {
	heights := make(map[uint32]struct{}, len(g.anchors))
	for _, anchor := range g.anchors {
		heights[anchor.Height] = struct{}{}
	}
	return heights
}

// Txids returns the ids of all held transactions, unordered.
func (g *TxGraph) Txids() []chainhash.Hash {
	txids := make([]chainhash.Hash, 0, len(g.txs))
	for txid := range g.txs {
		txids = append(txids, txid)
	}
	return txids
}

// Spender returns the canonical transaction spending the given outpoint, if
// any. When several held transactions spend the same outpoint (a double
// spend), anchored transactions win over unanchored ones, and among
// unanchored ones the most recently seen wins.
func (g *TxGraph) Spender(op wire.OutPoint) (chainhash.Hash, bool) {
	candidates := g.spends[op]
	if len(candidates) == 0 {
		return chainhash.Hash{}, false
	}

	var best chainhash.Hash
	bestAnchored := false
	bestSeen := int64(-1)
	for _, txid := range candidates {
		if _, anchored := g.anchors[txid]; anchored {
			if !bestAnchored {
				best, bestAnchored = txid, true
			}
			continue
		}
		if bestAnchored {
			continue
		}
		if seen := g.lastSeen[txid]; seen > bestSeen {
			best, bestSeen = txid, seen
		}
	}
	return best, true
}

// IsCanonical reports whether a held transaction belongs to the canonical
// history: anchored transactions always do, unanchored ones only if they win
// every spend conflict on their inputs.
func (g *TxGraph) IsCanonical(txid chainhash.Hash) bool {
	tx, ok := g.txs[txid]
	if !ok {
		return false
	}
	if _, anchored := g.anchors[txid]; anchored {
		return true
	}
	for _, txIn := range tx.TxIn {
		if spender, ok := g.Spender(txIn.PreviousOutPoint); ok && spender != txid {
			return false
		}
	}
	return true
}
