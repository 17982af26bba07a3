package explorer

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ProtonWallet/andromeda-sub000/types"
)

// TxStatus is the confirmation status of a transaction as reported by the
// explorer.
type TxStatus struct {
	Confirmed   bool    `json:"confirmed"`
	BlockHeight *uint32 `json:"block_height,omitempty"`
	BlockHash   string  `json:"block_hash,omitempty"`
	BlockTime   *int64  `json:"block_time,omitempty"`
}

// Anchor converts a confirmed status into a tx anchor. Returns false if the
// status is unconfirmed or incomplete.
func (s TxStatus) Anchor() (types.Anchor, bool) {
	if !s.Confirmed || s.BlockHeight == nil || s.BlockTime == nil {
		return types.Anchor{}, false
	}
	hash, err := chainhash.NewHashFromStr(s.BlockHash)
	if err != nil {
		return types.Anchor{}, false
	}
	return types.Anchor{
		BlockId:          types.BlockId{Height: *s.BlockHeight, Hash: *hash},
		ConfirmationTime: *s.BlockTime,
	}, true
}

type Prevout struct {
	Value  uint64 `json:"value"`
	Script string `json:"scriptpubkey"`
}

type Vin struct {
	Txid       string   `json:"txid"`
	Vout       uint32   `json:"vout"`
	Prevout    *Prevout `json:"prevout"`
	ScriptSig  string   `json:"scriptsig"`
	Witness    []string `json:"witness"`
	Sequence   uint32   `json:"sequence"`
	IsCoinbase bool     `json:"is_coinbase"`
}

type Vout struct {
	Value  uint64 `json:"value"`
	Script string `json:"scriptpubkey"`
}

type Tx struct {
	Txid     string   `json:"txid"`
	Version  int32    `json:"version"`
	Locktime uint32   `json:"locktime"`
	Vin      []Vin    `json:"vin"`
	Vout     []Vout   `json:"vout"`
	Fee      uint64   `json:"fee"`
	Status   TxStatus `json:"status"`
}

// ToMsgTx rebuilds the canonical transaction from the explorer payload.
func (t Tx) ToMsgTx() (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(t.Version)
	tx.LockTime = t.Locktime

	for _, vin := range t.Vin {
		prevTxid, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %s", vin.Txid, err)
		}
		scriptSig, err := hex.DecodeString(vin.ScriptSig)
		if err != nil {
			return nil, fmt.Errorf("invalid scriptsig: %s", err)
		}
		witness := make(wire.TxWitness, 0, len(vin.Witness))
		for _, item := range vin.Witness {
			buf, err := hex.DecodeString(item)
			if err != nil {
				return nil, fmt.Errorf("invalid witness item: %s", err)
			}
			witness = append(witness, buf)
		}
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: *prevTxid, Index: vin.Vout},
			SignatureScript:  scriptSig,
			Witness:          witness,
			Sequence:         vin.Sequence,
		})
	}

	for _, vout := range t.Vout {
		script, err := hex.DecodeString(vout.Script)
		if err != nil {
			return nil, fmt.Errorf("invalid scriptpubkey: %s", err)
		}
		tx.AddTxOut(wire.NewTxOut(int64(vout.Value), script))
	}

	return tx, nil
}

// PreviousOutputs returns the inline prevout data carried by the inputs,
// keyed by the outpoint each input spends. Coinbase inputs and inputs
// without inline prevouts are skipped.
func (t Tx) PreviousOutputs() (map[wire.OutPoint]*wire.TxOut, error) {
	prevouts := make(map[wire.OutPoint]*wire.TxOut)
	for _, vin := range t.Vin {
		if vin.IsCoinbase || vin.Prevout == nil {
			continue
		}
		prevTxid, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid input txid %s: %s", vin.Txid, err)
		}
		script, err := hex.DecodeString(vin.Prevout.Script)
		if err != nil {
			return nil, fmt.Errorf("invalid prevout scriptpubkey: %s", err)
		}
		op := wire.OutPoint{Hash: *prevTxid, Index: vin.Vout}
		prevouts[op] = wire.NewTxOut(int64(vin.Prevout.Value), script)
	}
	return prevouts, nil
}

// OutputStatus is the spend status of a single output.
type OutputStatus struct {
	Spent  bool      `json:"spent"`
	Txid   string    `json:"txid,omitempty"`
	Vin    *uint32   `json:"vin,omitempty"`
	Status *TxStatus `json:"status,omitempty"`
}

type BlockSummary struct {
	Id        string `json:"id"`
	Height    uint32 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

func (b BlockSummary) BlockId() (types.BlockId, error) {
	hash, err := chainhash.NewHashFromStr(b.Id)
	if err != nil {
		return types.BlockId{}, fmt.Errorf("invalid block hash %s: %s", b.Id, err)
	}
	return types.BlockId{Height: b.Height, Hash: *hash}, nil
}

// FeeEstimates maps confirmation targets (in blocks) to fee rates in sat/vB.
type FeeEstimates map[int]float64

// Fastest returns the 1-block target rate, defaulting to 1 sat/vB when the
// backend reports nothing.
func (f FeeEstimates) Fastest() float64 {
	rate, ok := f[1]
	if !ok || rate < 1 {
		return 1
	}
	return rate
}

// ScriptHistoryRequest asks for the history page of one script, optionally
// continuing from the last seen txid of a previous page.
type ScriptHistoryRequest struct {
	Script       []byte
	LastSeenTxid *chainhash.Hash
}
