package andromeda

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"

	"github.com/ProtonWallet/andromeda-sub000/account"
	"github.com/ProtonWallet/andromeda-sub000/explorer"
	"github.com/ProtonWallet/andromeda-sub000/internal/utils"
	"github.com/ProtonWallet/andromeda-sub000/syncer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

// WalletClient is the public surface of the sdk: one account kept in sync
// with the chain through an explorer backend.
type WalletClient interface {
	// FullSync discovers the account's used scripts from scratch. A nil
	// stopGap uses the configured or default gap.
	FullSync(ctx context.Context, stopGap *uint32) error
	// PartialSync rechecks everything already tracked by the wallet.
	PartialSync(ctx context.Context) error
	// ShouldSync reports whether the remote chain tip moved away from the
	// local one.
	ShouldSync() (bool, error)
	// CheckAccountExistence probes the account's first external scripts for
	// any on-chain footprint.
	CheckAccountExistence(stopGap *uint32) (bool, error)

	Balance() types.Balance
	ListUnspent() []types.Utxo
	ListTransactions() []types.TransactionDetails
	UnconfirmedTxids() []chainhash.Hash
	LatestCheckpoint() types.BlockId
	RevealNextAddress(ctx context.Context, keychain types.KeychainKind) (types.ScriptKey, []byte, error)

	GetFeeEstimates() (explorer.FeeEstimates, error)
	Broadcast(tx string) (string, error)

	// StartTipTracking watches the explorer for new chain tips and runs a
	// partial sync on every update until ctx is done.
	StartTipTracking(ctx context.Context) error
	Stop()
}

type walletClient struct {
	config      *types.Config
	configStore types.ConfigStore
	account     *account.Account
	explorer    explorer.Explorer
	syncer      *syncer.AccountSyncer

	syncMu  *sync.Mutex
	tracker explorer.TipWatcher
}

// New initializes a client from scratch: the config is persisted, the
// account wallet is created at the network genesis and stored. Fails with
// ErrAlreadyInitialized when the config store already holds data.
func New(
	ctx context.Context, configStore types.ConfigStore, walletStore types.WalletStore,
	config types.Config, accountKey *hdkeychain.ExtendedKey,
) (WalletClient, error) {
	existing, err := configStore.GetData(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyInitialized
	}

	net, err := utils.NetworkParams(config.Network)
	if err != nil {
		return nil, err
	}
	deriver, err := wallet.NewBIP84Deriver(accountKey, net)
	if err != nil {
		return nil, err
	}

	genesis := types.BlockId{Height: 0, Hash: *net.GenesisHash}
	w := wallet.New(config.Network, deriver, genesis)
	acc, err := account.New(ctx, w, walletStore)
	if err != nil {
		return nil, err
	}

	if err := configStore.AddData(ctx, config); err != nil {
		return nil, err
	}

	return newWalletClient(&config, configStore, acc)
}

// Load restores a client from its stores. Fails with ErrNotInitialized when
// the config store is empty.
func Load(
	ctx context.Context, configStore types.ConfigStore, walletStore types.WalletStore,
	accountKey *hdkeychain.ExtendedKey,
) (WalletClient, error) {
	config, err := configStore.GetData(ctx)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, ErrNotInitialized
	}

	net, err := utils.NetworkParams(config.Network)
	if err != nil {
		return nil, err
	}
	deriver, err := wallet.NewBIP84Deriver(accountKey, net)
	if err != nil {
		return nil, err
	}

	acc, err := account.Load(ctx, deriver, walletStore)
	if err != nil {
		return nil, err
	}

	return newWalletClient(config, configStore, acc)
}

func newWalletClient(
	config *types.Config, configStore types.ConfigStore, acc *account.Account,
) (WalletClient, error) {
	explorerOpts := []explorer.Option{}
	if config.ExplorerTrackingPollInterval > 0 {
		explorerOpts = append(
			explorerOpts, explorer.WithPollInterval(config.ExplorerTrackingPollInterval),
		)
	}
	explorerSvc, err := explorer.NewExplorer(config.ExplorerURL, explorerOpts...)
	if err != nil {
		return nil, err
	}

	syncerOpts := []syncer.SyncerOption{}
	if config.ParallelRequests > 0 {
		syncerOpts = append(syncerOpts, syncer.WithParallelRequests(config.ParallelRequests))
	}

	return &walletClient{
		config:      config,
		configStore: configStore,
		account:     acc,
		explorer:    explorerSvc,
		syncer:      syncer.NewAccountSyncer(explorerSvc, acc, syncerOpts...),
		syncMu:      &sync.Mutex{},
	}, nil
}

func (c *walletClient) FullSync(ctx context.Context, stopGap *uint32) error {
	if stopGap == nil && c.config.StopGap > 0 {
		gap := c.config.StopGap
		stopGap = &gap
	}
	return c.syncer.FullSync(ctx, stopGap)
}

func (c *walletClient) PartialSync(ctx context.Context) error {
	return c.syncer.PartialSync(ctx)
}

func (c *walletClient) ShouldSync() (bool, error) {
	return c.syncer.ShouldSync()
}

func (c *walletClient) CheckAccountExistence(stopGap *uint32) (bool, error) {
	return c.syncer.CheckAccountExistence(stopGap)
}

func (c *walletClient) Balance() types.Balance {
	return c.account.Balance()
}

func (c *walletClient) ListUnspent() []types.Utxo {
	return c.account.ListUnspent()
}

func (c *walletClient) ListTransactions() []types.TransactionDetails {
	return c.account.ListTransactions()
}

func (c *walletClient) UnconfirmedTxids() []chainhash.Hash {
	return c.account.UnconfirmedTxids()
}

func (c *walletClient) LatestCheckpoint() types.BlockId {
	return c.account.LatestCheckpoint()
}

func (c *walletClient) RevealNextAddress(
	ctx context.Context, keychain types.KeychainKind,
) (types.ScriptKey, []byte, error) {
	return c.account.RevealNextAddress(ctx, keychain)
}

func (c *walletClient) GetFeeEstimates() (explorer.FeeEstimates, error) {
	return c.explorer.GetFeeEstimates()
}

func (c *walletClient) Broadcast(tx string) (string, error) {
	return c.explorer.Broadcast(tx)
}

func (c *walletClient) StartTipTracking(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if c.tracker != nil {
		return nil
	}
	tracker := explorer.NewTipTracker(c.explorer)
	if tracker == nil {
		return fmt.Errorf("explorer does not support tip tracking")
	}
	c.tracker = tracker
	tracker.Start()

	go func() {
		events := tracker.GetTipEvents()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Type == types.TipError {
					log.WithError(event.Err).Warn("tip tracking error")
					continue
				}
				if event.Type != types.TipUpdated {
					continue
				}
				shouldSync, err := c.ShouldSync()
				if err != nil {
					// Tip check failed, err on the side of syncing.
					log.WithError(err).Warn("failed to compare chain tips")
					shouldSync = true
				}
				if !shouldSync {
					continue
				}
				if err := c.PartialSync(ctx); err != nil {
					log.WithError(err).Warn("tip-triggered sync failed")
				}
			}
		}
	}()
	return nil
}

func (c *walletClient) Stop() {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if c.tracker != nil {
		c.tracker.Stop()
		c.tracker = nil
	}
	c.configStore.Close()
}
