package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	InMemoryStore = "inmemory"
	FileStore     = "file"
	KVStore       = "kv"
	SQLStore      = "sql"
)

// KeychainKind identifies the derivation branch of an account descriptor.
type KeychainKind uint8

const (
	// KeychainExternal is the receive branch of an account.
	KeychainExternal KeychainKind = iota
	// KeychainInternal is the change branch of an account.
	KeychainInternal
)

func (k KeychainKind) String() string {
	switch k {
	case KeychainExternal:
		return "external"
	case KeychainInternal:
		return "internal"
	default:
		return fmt.Sprintf("keychain(%d)", uint8(k))
	}
}

// ScriptKey identifies a derived script pubkey within an account.
type ScriptKey struct {
	Keychain KeychainKind
	Index    uint32
}

func (s ScriptKey) String() string {
	return fmt.Sprintf("%s/%d", s.Keychain, s.Index)
}

// BlockId is a (height, hash) pair identifying a block.
type BlockId struct {
	Height uint32
	Hash   chainhash.Hash
}

func (b BlockId) String() string {
	return fmt.Sprintf("%d:%s", b.Height, b.Hash)
}

// Anchor binds a transaction to a confirmed block. A transaction holds at
// most one anchor at any time, re-anchoring replaces the previous one.
type Anchor struct {
	BlockId
	// ConfirmationTime is the block timestamp, unix seconds.
	ConfirmationTime int64
}

func (a Anchor) Time() time.Time {
	return time.Unix(a.ConfirmationTime, 0)
}

type Config struct {
	ExplorerURL                  string
	Network                      string
	StopGap                      uint32
	ParallelRequests             int
	ExplorerTrackingPollInterval time.Duration
}

type Utxo struct {
	Outpoint  wire.OutPoint
	Amount    btcutil.Amount
	Script    []byte
	Key       ScriptKey
	Confirmed bool
	// BlockHeight and ConfirmedAt are zero for unconfirmed outputs.
	BlockHeight uint32
	ConfirmedAt time.Time
}

func (u Utxo) String() string {
	return u.Outpoint.String()
}

// TransactionDetails is the UI-facing summary of a wallet transaction.
type TransactionDetails struct {
	Txid     chainhash.Hash
	Sent     btcutil.Amount
	Received btcutil.Amount
	Fee      btcutil.Amount
	// Confirmation info, zero values when unconfirmed.
	Confirmed   bool
	BlockHeight uint32
	BlockHash   chainhash.Hash
	Time        time.Time
}

func (t TransactionDetails) String() string {
	// nolint
	b, _ := json.MarshalIndent(struct {
		Txid      string
		Sent      int64
		Received  int64
		Fee       int64
		Confirmed bool
		Height    uint32
	}{t.Txid.String(), int64(t.Sent), int64(t.Received), int64(t.Fee), t.Confirmed, t.BlockHeight}, "", "  ")
	return string(b)
}

// Balance is the account balance split by trust level.
type Balance struct {
	Confirmed        btcutil.Amount
	TrustedPending   btcutil.Amount
	UntrustedPending btcutil.Amount
}

func (b Balance) Total() btcutil.Amount {
	return b.Confirmed + b.TrustedPending + b.UntrustedPending
}

// Spendable is the portion of the balance usable when composing a spend.
func (b Balance) Spendable() btcutil.Amount {
	return b.Confirmed + b.TrustedPending
}

// Recipient is one destination of a spend being composed. The lifecycle is
// transient, recipients only exist while a draft transaction is edited.
type Recipient struct {
	Id      string
	Address string
	Amount  btcutil.Amount
}

type TipEventType int

const (
	TipConnected TipEventType = iota
	TipUpdated
	TipError
)

func (e TipEventType) String() string {
	return map[TipEventType]string{
		TipConnected: "TIP_CONNECTED",
		TipUpdated:   "TIP_UPDATED",
		TipError:     "TIP_ERROR",
	}[e]
}

// TipEvent notifies a new chain tip seen by the explorer tracker.
type TipEvent struct {
	Type   TipEventType
	Height uint32
	Hash   chainhash.Hash
	Err    error
}
