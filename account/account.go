package account

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"

	"github.com/ProtonWallet/andromeda-sub000/syncer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

// Account guards a wallet with a reader-writer lock and keeps its state in a
// store. Sync flows take the read lock to snapshot requests, release it for
// the duration of network activity, and take the write lock only to fold the
// result back in.
type Account struct {
	mu     *sync.RWMutex
	wallet *wallet.Wallet
	store  types.WalletStore
	// staged accumulates deltas that failed to persist, retried on the next
	// persist attempt.
	staged *types.ChangeSet
}

// New wraps a fresh wallet. The initial state is persisted so a reload
// starts from the same genesis.
func New(ctx context.Context, w *wallet.Wallet, store types.WalletStore) (*Account, error) {
	account := &Account{
		mu:     &sync.RWMutex{},
		wallet: w,
		store:  store,
		staged: types.NewChangeSet(w.Network()),
	}

	genesis := types.NewChangeSet(w.Network())
	genesis.Checkpoints = w.LatestCheckpoint().Blocks()
	for _, keychain := range []types.KeychainKind{types.KeychainExternal, types.KeychainInternal} {
		if index, ok := w.LastRevealedIndex(keychain); ok {
			genesis.LastRevealed[keychain] = index
		}
	}
	account.staged.Merge(genesis)
	if err := account.persistStaged(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// Load restores an account from its store.
func Load(ctx context.Context, deriver wallet.ScriptDeriver, store types.WalletStore) (*Account, error) {
	changeSet, err := store.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	w, err := wallet.Load(deriver, changeSet)
	if err != nil {
		return nil, err
	}
	return &Account{
		mu:     &sync.RWMutex{},
		wallet: w,
		store:  store,
		staged: types.NewChangeSet(w.Network()),
	}, nil
}

// ReadWallet runs fn under the shared lock.
func (a *Account) ReadWallet(fn func(w *wallet.Wallet) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fn(a.wallet)
}

// ApplyUpdate folds a sync result into the wallet under the exclusive lock
// and persists the resulting delta. A persist failure leaves the delta
// staged: the in-memory state is already updated and the write is retried by
// the next ApplyUpdate or Persist call.
func (a *Account) ApplyUpdate(ctx context.Context, update *wallet.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delta, err := a.wallet.ApplyUpdate(update)
	if err != nil {
		return &syncer.ApplyError{Cause: err}
	}

	a.staged.Merge(delta)
	return a.persistStaged(ctx)
}

// Persist retries writing any staged delta.
func (a *Account) Persist(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persistStaged(ctx)
}

func (a *Account) persistStaged(ctx context.Context) error {
	if a.staged.IsEmpty() {
		return nil
	}
	if err := a.store.Persist(ctx, a.staged); err != nil {
		log.WithError(err).Warn("failed to persist wallet delta, keeping it staged")
		return &syncer.PersistError{Cause: err}
	}
	a.staged = types.NewChangeSet(a.wallet.Network())
	return nil
}

// Balance returns the current balance split by trust level.
func (a *Account) Balance() types.Balance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet.Balance()
}

// ListUnspent returns the canonical unspent outputs.
func (a *Account) ListUnspent() []types.Utxo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet.ListUnspent()
}

// ListTransactions returns the canonical transaction history.
func (a *Account) ListTransactions() []types.TransactionDetails {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet.ListTransactions()
}

// UnconfirmedTxids returns the canonical transactions without a confirmation.
func (a *Account) UnconfirmedTxids() []chainhash.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet.UnconfirmedTxids()
}

// LatestCheckpoint returns the local chain tip.
func (a *Account) LatestCheckpoint() types.BlockId {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet.LatestCheckpoint().Block()
}

// RevealNextAddress reveals the next unused script of the keychain and
// persists the advanced index.
func (a *Account) RevealNextAddress(
	ctx context.Context, keychain types.KeychainKind,
) (types.ScriptKey, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key, spk, err := a.wallet.RevealNextAddress(keychain)
	if err != nil {
		return types.ScriptKey{}, nil, err
	}

	delta := types.NewChangeSet(a.wallet.Network())
	delta.LastRevealed[keychain] = key.Index
	a.staged.Merge(delta)
	if err := a.persistStaged(ctx); err != nil {
		return key, spk, err
	}
	return key, spk, nil
}
