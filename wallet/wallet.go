package wallet

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// Wallet is the in-memory state of one account: the tx graph, the local
// checkpoint chain and the keychain indexer. It is not safe for concurrent
// use, callers serialize access (see the account package).
type Wallet struct {
	network string
	indexer *KeychainIndexer
	graph   *TxGraph
	chain   *LocalChain
}

// New creates an empty wallet rooted at the given genesis block.
func New(network string, deriver ScriptDeriver, genesis types.BlockId) *Wallet {
	return &Wallet{
		network: network,
		indexer: NewKeychainIndexer(deriver),
		graph:   NewTxGraph(),
		chain:   NewLocalChain(genesis),
	}
}

// Load rebuilds a wallet from a persisted changeset.
func Load(deriver ScriptDeriver, changeSet *types.ChangeSet) (*Wallet, error) {
	if changeSet == nil || len(changeSet.Checkpoints) == 0 {
		return nil, fmt.Errorf("missing or empty changeset")
	}

	chain, err := LoadLocalChain(changeSet.Checkpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %s", err)
	}

	graph := NewTxGraph()
	for _, record := range changeSet.Txs {
		tx, err := record.Decode()
		if err != nil {
			return nil, err
		}
		graph.InsertTx(tx)
	}
	for txid, anchor := range changeSet.Anchors {
		graph.InsertAnchor(txid, anchor)
	}
	for txid, seen := range changeSet.LastSeen {
		graph.InsertSeen(txid, seen)
	}
	for _, po := range changeSet.Prevouts {
		graph.InsertPrevout(po.Outpoint, wire.NewTxOut(po.Value, po.Script))
	}

	indexer := NewKeychainIndexer(deriver)
	for keychain, index := range changeSet.LastRevealed {
		if err := indexer.RevealTo(keychain, index); err != nil {
			return nil, fmt.Errorf("failed to reveal %s up to %d: %s", keychain, index, err)
		}
	}

	return &Wallet{
		network: changeSet.Network,
		indexer: indexer,
		graph:   graph,
		chain:   chain,
	}, nil
}

func (w *Wallet) Network() string { return w.network }

func (w *Wallet) LatestCheckpoint() *CheckPoint { return w.chain.Tip() }

// StartFullScan builds a discovery request covering both keychains with
// unbounded script iterators.
func (w *Wallet) StartFullScan() *FullScanRequest {
	keychains := make(map[types.KeychainKind]ScriptIterator)
	for _, keychain := range []types.KeychainKind{types.KeychainExternal, types.KeychainInternal} {
		kind := keychain
		keychains[kind] = func(index uint32) ([]byte, error) {
			return w.indexer.SpkAt(kind, index)
		}
	}
	return &FullScanRequest{Tip: w.chain.Tip(), Keychains: keychains}
}

// StartSyncWithRevealedSpks builds a partial sync request over everything
// already known: revealed scripts, unconfirmed txids and unspent outpoints.
func (w *Wallet) StartSyncWithRevealedSpks() *SyncRequest {
	req := &SyncRequest{
		Tip:   w.chain.Tip(),
		Spks:  w.indexer.RevealedSpks(),
		Txids: w.UnconfirmedTxids(),
	}
	for _, utxo := range w.ListUnspent() {
		req.Outpoints = append(req.Outpoints, utxo.Outpoint)
	}
	return req
}

// ExternalSpks derives the first count external scripts without revealing
// them. Used to probe whether an account has any on-chain footprint.
func (w *Wallet) ExternalSpks(count uint32) ([][]byte, error) {
	spks := make([][]byte, 0, count)
	for index := uint32(0); index < count; index++ {
		spk, err := w.indexer.SpkAt(types.KeychainExternal, index)
		if err != nil {
			return nil, err
		}
		spks = append(spks, spk)
	}
	return spks, nil
}

// RevealNextAddress reveals the next unused index of the keychain and
// returns its key and script.
func (w *Wallet) RevealNextAddress(keychain types.KeychainKind) (types.ScriptKey, []byte, error) {
	return w.indexer.RevealNext(keychain)
}

// LastRevealedIndex returns the highest revealed index of the keychain.
func (w *Wallet) LastRevealedIndex(keychain types.KeychainKind) (uint32, bool) {
	return w.indexer.LastRevealed(keychain)
}

// ApplyUpdate folds a sync or full scan result into the wallet and returns
// the resulting delta to persist. The update chain must connect to the local
// chain. A failed update leaves graph data applied but never corrupts the
// chain: the chain is merged first.
func (w *Wallet) ApplyUpdate(update *Update) (*types.ChangeSet, error) {
	if update == nil {
		return types.NewChangeSet(w.network), nil
	}

	delta := types.NewChangeSet(w.network)

	if update.ChainTip != nil {
		changed, err := w.chain.ApplyUpdate(update.ChainTip)
		if err != nil {
			return nil, err
		}
		delta.Checkpoints = changed
	}

	for _, tx := range update.Txs {
		if !w.graph.InsertTx(tx) {
			continue
		}
		record, err := types.NewTxRecord(tx)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize tx: %s", err)
		}
		delta.Txs = append(delta.Txs, record)
	}
	for txid, anchor := range update.Anchors {
		if w.graph.InsertAnchor(txid, anchor) {
			delta.Anchors[txid] = anchor
		}
	}
	for _, seen := range update.Seen {
		if w.graph.InsertSeen(seen.Txid, seen.SeenAt) {
			delta.LastSeen[seen.Txid] = seen.SeenAt
		}
	}
	for op, txOut := range update.Prevouts {
		if w.graph.InsertPrevout(op, txOut) {
			delta.Prevouts = append(delta.Prevouts, types.PrevoutRecord{
				Outpoint: op, Value: txOut.Value, Script: txOut.PkScript,
			})
		}
	}

	for keychain, index := range update.LastActiveIndices {
		before, revealed := w.indexer.LastRevealed(keychain)
		if revealed && index <= before {
			continue
		}
		if err := w.indexer.RevealTo(keychain, index); err != nil {
			return nil, fmt.Errorf("failed to reveal %s up to %d: %s", keychain, index, err)
		}
		delta.LastRevealed[keychain] = index
	}

	return delta, nil
}

// confirmation returns the anchor of txid if it points to a block the local
// chain currently holds. Anchors to reorged-out blocks do not count.
func (w *Wallet) confirmation(txid chainhash.Hash) (types.Anchor, bool) {
	anchor, ok := w.graph.Anchor(txid)
	if !ok {
		return types.Anchor{}, false
	}
	if !w.chain.Contains(anchor.BlockId) {
		return types.Anchor{}, false
	}
	return anchor, true
}

// isCanonical reports whether txid belongs to the wallet's canonical
// history under the current chain view.
func (w *Wallet) isCanonical(txid chainhash.Hash) bool {
	if _, confirmed := w.confirmation(txid); confirmed {
		return true
	}
	if _, anchored := w.graph.Anchor(txid); anchored {
		// Anchored to a block no longer on our chain: treat as unconfirmed.
		tx, ok := w.graph.Tx(txid)
		if !ok {
			return false
		}
		for _, txIn := range tx.TxIn {
			if spender, ok := w.graph.Spender(txIn.PreviousOutPoint); ok && spender != txid {
				return false
			}
		}
		return true
	}
	return w.graph.IsCanonical(txid)
}

// ListUnspent returns the canonical unspent outputs owned by the wallet,
// ordered by outpoint for determinism.
func (w *Wallet) ListUnspent() []types.Utxo {
	var utxos []types.Utxo
	for _, txid := range w.graph.Txids() {
		if !w.isCanonical(txid) {
			continue
		}
		tx, _ := w.graph.Tx(txid)
		anchor, confirmed := w.confirmation(txid)

		for vout, txOut := range tx.TxOut {
			key, owned := w.indexer.KeyOf(txOut.PkScript)
			if !owned {
				continue
			}
			// nolint
			op := wire.OutPoint{Hash: txid, Index: uint32(vout)}
			if spender, ok := w.graph.Spender(op); ok && w.isCanonical(spender) {
				continue
			}
			utxo := types.Utxo{
				Outpoint:  op,
				Amount:    btcutil.Amount(txOut.Value),
				Script:    txOut.PkScript,
				Key:       key,
				Confirmed: confirmed,
			}
			if confirmed {
				utxo.BlockHeight = anchor.Height
				utxo.ConfirmedAt = anchor.Time()
			}
			utxos = append(utxos, utxo)
		}
	}
	sort.Slice(utxos, func(i, j int) bool {
		return utxos[i].Outpoint.String() < utxos[j].Outpoint.String()
	})
	return utxos
}

// Balance returns the account balance split by trust level. Change outputs
// of our own transactions count as trusted while pending, externally received
// funds stay untrusted until confirmed.
func (w *Wallet) Balance() types.Balance {
	var balance types.Balance
	for _, utxo := range w.ListUnspent() {
		switch {
		case utxo.Confirmed:
			balance.Confirmed += utxo.Amount
		case utxo.Key.Keychain == types.KeychainInternal:
			balance.TrustedPending += utxo.Amount
		default:
			balance.UntrustedPending += utxo.Amount
		}
	}
	return balance
}

// UnconfirmedTxids returns the canonical transactions that still lack a
// confirmation on the current chain.
func (w *Wallet) UnconfirmedTxids() []chainhash.Hash {
	var txids []chainhash.Hash
	for _, txid := range w.graph.Txids() {
		if !w.isCanonical(txid) {
			continue
		}
		if _, confirmed := w.confirmation(txid); confirmed {
			continue
		}
		txids = append(txids, txid)
	}
	sort.Slice(txids, func(i, j int) bool {
		return txids[i].String() < txids[j].String()
	})
	return txids
}

// ListTransactions returns the canonical transaction history, confirmed
// transactions first in ascending block order, unconfirmed ones last.
func (w *Wallet) ListTransactions() []types.TransactionDetails {
	var details []types.TransactionDetails
	for _, txid := range w.graph.Txids() {
		if !w.isCanonical(txid) {
			continue
		}
		tx, _ := w.graph.Tx(txid)
		details = append(details, w.describe(txid, tx))
	}
	sort.Slice(details, func(i, j int) bool {
		a, b := details[i], details[j]
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		if a.BlockHeight != b.BlockHeight {
			return a.BlockHeight < b.BlockHeight
		}
		return a.Txid.String() < b.Txid.String()
	})
	return details
}

func (w *Wallet) describe(txid chainhash.Hash, tx *wire.MsgTx) types.TransactionDetails {
	detail := types.TransactionDetails{Txid: txid}

	inputsTotal := int64(0)
	allInputsKnown := true
	for _, txIn := range tx.TxIn {
		txOut, ok := w.graph.TxOut(txIn.PreviousOutPoint)
		if !ok {
			allInputsKnown = false
			continue
		}
		inputsTotal += txOut.Value
		if _, owned := w.indexer.KeyOf(txOut.PkScript); owned {
			detail.Sent += btcutil.Amount(txOut.Value)
		}
	}

	outputsTotal := int64(0)
	for _, txOut := range tx.TxOut {
		outputsTotal += txOut.Value
		if _, owned := w.indexer.KeyOf(txOut.PkScript); owned {
			detail.Received += btcutil.Amount(txOut.Value)
		}
	}

	if allInputsKnown && inputsTotal >= outputsTotal {
		detail.Fee = btcutil.Amount(inputsTotal - outputsTotal)
	}

	if anchor, confirmed := w.confirmation(txid); confirmed {
		detail.Confirmed = true
		detail.BlockHeight = anchor.Height
		detail.BlockHash = anchor.Hash
		detail.Time = anchor.Time()
	}
	return detail
}
