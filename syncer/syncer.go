package syncer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ProtonWallet/andromeda-sub000/explorer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

// AccessWallet is the guarded wallet view the syncer works against. ReadWallet
// holds a shared lock for the duration of fn, ApplyUpdate holds the exclusive
// lock while folding the update in and persisting the delta. No lock is held
// during network activity.
type AccessWallet interface {
	ReadWallet(fn func(w *wallet.Wallet) error) error
	ApplyUpdate(ctx context.Context, update *wallet.Update) error
}

// AccountSyncer keeps one account in sync with the chain through an explorer
// backend. Safe for concurrent use: concurrent syncs on the same account
// serialize on the account lock at apply time and converge to the same state.
type AccountSyncer struct {
	client           explorer.Explorer
	account          AccessWallet
	parallelRequests int
}

type SyncerOption func(*AccountSyncer)

// WithParallelRequests bounds the number of concurrent explorer calls issued
// per batch. Default: 5.
func WithParallelRequests(n int) SyncerOption {
	return func(s *AccountSyncer) {
		if n > 0 {
			s.parallelRequests = n
		}
	}
}

func NewAccountSyncer(
	client explorer.Explorer, account AccessWallet, opts ...SyncerOption,
) *AccountSyncer {
	syncer := &AccountSyncer{
		client:           client,
		account:          account,
		parallelRequests: defaultParallelRequests,
	}
	for _, opt := range opts {
		opt(syncer)
	}
	return syncer
}

// FullSync discovers the account's used scripts from scratch by walking both
// keychains until stopGap consecutive unused scripts follow the last active
// one, then reconciles and applies the chain view. A nil stopGap uses
// DefaultStopGap.
func (s *AccountSyncer) FullSync(ctx context.Context, stopGap *uint32) error {
	gap := DefaultStopGap
	if stopGap != nil {
		gap = *stopGap
	}

	var request *wallet.FullScanRequest
	if err := s.account.ReadWallet(func(w *wallet.Wallet) error {
		request = w.StartFullScan()
		return nil
	}); err != nil {
		return err
	}

	log.Debugf("full sync: scanning with stop gap %d", gap)

	latest, err := fetchLatestBlocks(s.client)
	if err != nil {
		return err
	}

	txUpdate, lastActiveIndices, err := fullScan(
		ctx, s.client, request, gap, s.parallelRequests,
	)
	if err != nil {
		return err
	}

	chainTip, err := chainUpdate(
		s.client, latest, request.Tip, anchorHeights(txUpdate),
	)
	if err != nil {
		return err
	}

	update := &wallet.Update{
		TxUpdate:          *txUpdate,
		ChainTip:          chainTip,
		LastActiveIndices: lastActiveIndices,
	}
	if err := s.account.ApplyUpdate(ctx, update); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"txs":     len(txUpdate.Txs),
		"anchors": len(txUpdate.Anchors),
	}).Debug("full sync done")
	return nil
}

// PartialSync rechecks everything the wallet already tracks: revealed
// scripts, unconfirmed transactions and unspent outputs.
func (s *AccountSyncer) PartialSync(ctx context.Context) error {
	var request *wallet.SyncRequest
	if err := s.account.ReadWallet(func(w *wallet.Wallet) error {
		request = w.StartSyncWithRevealedSpks()
		return nil
	}); err != nil {
		return err
	}

	latest, err := fetchLatestBlocks(s.client)
	if err != nil {
		return err
	}

	txUpdate, err := syncRequest(ctx, s.client, request, s.parallelRequests)
	if err != nil {
		return err
	}

	chainTip, err := chainUpdate(
		s.client, latest, request.Tip, anchorHeights(txUpdate),
	)
	if err != nil {
		return err
	}

	update := &wallet.Update{TxUpdate: *txUpdate, ChainTip: chainTip}
	if err := s.account.ApplyUpdate(ctx, update); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"scripts": len(request.Spks),
		"txs":     len(txUpdate.Txs),
	}).Debug("partial sync done")
	return nil
}

// ShouldSync reports whether the remote tip moved away from the local one.
func (s *AccountSyncer) ShouldSync() (bool, error) {
	var localTip types.BlockId
	if err := s.account.ReadWallet(func(w *wallet.Wallet) error {
		localTip = w.LatestCheckpoint().Block()
		return nil
	}); err != nil {
		return false, err
	}

	remoteHash, err := s.client.GetTipHash()
	if err != nil {
		return false, &TransportError{Cause: err}
	}
	return *remoteHash != localTip.Hash, nil
}

// CheckAccountExistence probes the first stopGap external scripts for any
// on-chain footprint without mutating wallet state.
func (s *AccountSyncer) CheckAccountExistence(stopGap *uint32) (bool, error) {
	gap := DefaultStopGap
	if stopGap != nil {
		gap = *stopGap
	}

	var spks [][]byte
	if err := s.account.ReadWallet(func(w *wallet.Wallet) error {
		derived, err := w.ExternalSpks(gap)
		if err != nil {
			return err
		}
		spks = derived
		return nil
	}); err != nil {
		return false, err
	}

	requests := make([]explorer.ScriptHistoryRequest, 0, len(spks))
	for _, spk := range spks {
		requests = append(requests, explorer.ScriptHistoryRequest{Script: spk})
	}
	pages, err := s.client.GetManyScriptHashTxs(requests)
	if err != nil {
		return false, &TransportError{Cause: err}
	}

	for _, txs := range pages {
		if len(txs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func anchorHeights(update *wallet.TxUpdate) map[uint32]struct{} {
	heights := make(map[uint32]struct{}, len(update.Anchors))
	for _, anchor := range update.Anchors {
		heights[anchor.Height] = struct{}{}
	}
	return heights
}
