package types

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxRecord is a serialized transaction as held by a ChangeSet.
type TxRecord struct {
	Txid chainhash.Hash
	Raw  []byte
}

func NewTxRecord(tx *wire.MsgTx) (TxRecord, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return TxRecord{}, err
	}
	return TxRecord{Txid: tx.TxHash(), Raw: buf.Bytes()}, nil
}

func (r TxRecord) Decode() (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(r.Raw)); err != nil {
		return nil, fmt.Errorf("failed to decode tx %s: %s", r.Txid, err)
	}
	return tx, nil
}

// PrevoutRecord is a referenced previous output whose spending transaction is
// known but whose funding transaction is not held in full.
type PrevoutRecord struct {
	Outpoint wire.OutPoint
	Value    int64
	Script   []byte
}

// ChangeSet is the persisted delta of the wallet state. Merging is monotonic:
// transactions and prevouts are unioned, anchors and checkpoints are replaced
// per key, last-seen timestamps and revealed indices advance with max.
type ChangeSet struct {
	Network      string
	Txs          []TxRecord
	Anchors      map[chainhash.Hash]Anchor
	LastSeen     map[chainhash.Hash]int64
	Prevouts     []PrevoutRecord
	Checkpoints  []BlockId
	LastRevealed map[KeychainKind]uint32
}

func NewChangeSet(network string) *ChangeSet {
	return &ChangeSet{
		Network:      network,
		Anchors:      make(map[chainhash.Hash]Anchor),
		LastSeen:     make(map[chainhash.Hash]int64),
		LastRevealed: make(map[KeychainKind]uint32),
	}
}

func (c *ChangeSet) IsEmpty() bool {
	return len(c.Txs) == 0 && len(c.Anchors) == 0 && len(c.LastSeen) == 0 &&
		len(c.Prevouts) == 0 && len(c.Checkpoints) == 0 && len(c.LastRevealed) == 0
}

// Merge folds delta into c. Applying the same delta twice yields the same
// result as applying it once.
func (c *ChangeSet) Merge(delta *ChangeSet) {
	if delta == nil {
		return
	}
	if c.Network == "" {
		c.Network = delta.Network
	}

	seenTxs := make(map[chainhash.Hash]struct{}, len(c.Txs))
	for _, tx := range c.Txs {
		seenTxs[tx.Txid] = struct{}{}
	}
	for _, tx := range delta.Txs {
		if _, ok := seenTxs[tx.Txid]; ok {
			continue
		}
		c.Txs = append(c.Txs, tx)
		seenTxs[tx.Txid] = struct{}{}
	}

	if c.Anchors == nil {
		c.Anchors = make(map[chainhash.Hash]Anchor)
	}
	for txid, anchor := range delta.Anchors {
		c.Anchors[txid] = anchor
	}

	if c.LastSeen == nil {
		c.LastSeen = make(map[chainhash.Hash]int64)
	}
	for txid, seen := range delta.LastSeen {
		if seen > c.LastSeen[txid] {
			c.LastSeen[txid] = seen
		}
	}

	seenPrevouts := make(map[wire.OutPoint]struct{}, len(c.Prevouts))
	for _, po := range c.Prevouts {
		seenPrevouts[po.Outpoint] = struct{}{}
	}
	for _, po := range delta.Prevouts {
		if _, ok := seenPrevouts[po.Outpoint]; ok {
			continue
		}
		c.Prevouts = append(c.Prevouts, po)
		seenPrevouts[po.Outpoint] = struct{}{}
	}

	byHeight := make(map[uint32]int, len(c.Checkpoints))
	for i, cp := range c.Checkpoints {
		byHeight[cp.Height] = i
	}
	for _, cp := range delta.Checkpoints {
		if i, ok := byHeight[cp.Height]; ok {
			c.Checkpoints[i] = cp
			continue
		}
		byHeight[cp.Height] = len(c.Checkpoints)
		c.Checkpoints = append(c.Checkpoints, cp)
	}

	if c.LastRevealed == nil {
		c.LastRevealed = make(map[KeychainKind]uint32)
	}
	for keychain, index := range delta.LastRevealed {
		if current, ok := c.LastRevealed[keychain]; !ok || index > current {
			c.LastRevealed[keychain] = index
		}
	}
}
