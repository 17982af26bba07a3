package explorer

import (
	"fmt"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ProtonWallet/andromeda-sub000/types"
)

// TxPageSize is the fixed page size of script history endpoints. A response
// of exactly TxPageSize transactions means more pages may follow and the
// caller must continue from the last returned txid.
const TxPageSize = 25

// Explorer provides chain data from an Esplora-like HTTP backend: block
// summaries and hashes, per-script transaction history, transaction and
// output statuses, fee estimates and broadcasting.
type Explorer interface {
	// BaseUrl returns the base URL of the explorer service.
	BaseUrl() string

	// GetBlocks returns the most recent block summaries, newest first. If
	// fromHeight is set, summaries start at that height going backwards. The
	// number of summaries returned is backend-defined (commonly 10).
	GetBlocks(fromHeight *uint32) ([]BlockSummary, error)

	// GetBlockHash returns the hash of the block at the given height.
	GetBlockHash(height uint32) (*chainhash.Hash, error)

	// GetTipHash returns the hash of the current chain tip.
	GetTipHash() (*chainhash.Hash, error)

	// GetTipHeight returns the height of the current chain tip.
	GetTipHeight() (uint32, error)

	// GetScriptHashTxs returns up to TxPageSize transactions touching the
	// given script pubkey, newest first. When lastSeenTxid is set the page
	// continues from (excluding) that transaction.
	GetScriptHashTxs(script []byte, lastSeenTxid *chainhash.Hash) ([]Tx, error)

	// GetManyScriptHashTxs fetches one history page for each request,
	// issuing the underlying calls concurrently. The result is keyed by the
	// script hash of each request. The pagination contract of
	// GetScriptHashTxs applies per entry.
	GetManyScriptHashTxs(requests []ScriptHistoryRequest) (map[string][]Tx, error)

	// GetTx returns the transaction with the given id, or nil if the
	// backend does not know it.
	GetTx(txid chainhash.Hash) (*wire.MsgTx, error)

	// GetTxStatus returns the confirmation status of a transaction.
	GetTxStatus(txid chainhash.Hash) (*TxStatus, error)

	// GetTxHex returns the raw transaction hex, served from a local cache
	// when previously fetched or broadcast.
	GetTxHex(txid chainhash.Hash) (string, error)

	// GetOutputStatus returns the spend status of output vout of txid.
	GetOutputStatus(txid chainhash.Hash, vout uint32) (*OutputStatus, error)

	// GetFeeEstimates returns fee rates in sat/vB keyed by confirmation
	// target in blocks.
	GetFeeEstimates() (FeeEstimates, error)

	// Broadcast publishes a raw transaction (hex or base64 PSBT-extracted)
	// to the network and returns its txid.
	Broadcast(tx string) (string, error)
}

// TipWatcher emits an event whenever the explorer observes a new chain tip.
type TipWatcher interface {
	Start()
	Stop()
	GetTipEvents() <-chan types.TipEvent
}

// Option is a functional option for NewExplorer.
type Option func(*esploraOptions)

type esploraOptions struct {
	pollInterval time.Duration
	httpTimeout  time.Duration
}

// WithPollInterval sets the polling interval used by the tip tracker when
// websocket connections are unavailable. Default: 10 seconds.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *esploraOptions) {
		opts.pollInterval = interval
	}
}

// WithHTTPTimeout bounds every HTTP request issued by the client.
// Default: 30 seconds.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(opts *esploraOptions) {
		opts.httpTimeout = timeout
	}
}

// NewExplorer creates an Esplora REST client for the given base URL, e.g.
// https://blockstream.info/api or a self-hosted esplora instance.
func NewExplorer(baseUrl string, opts ...Option) (Explorer, error) {
	if baseUrl == "" {
		return nil, fmt.Errorf("missing explorer base url")
	}
	if _, err := url.Parse(baseUrl); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %s", baseUrl, err)
	}

	options := &esploraOptions{
		pollInterval: 10 * time.Second,
		httpTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	return newEsploraClient(baseUrl, options), nil
}
