package inmemorystore

import (
	"context"
	"sync"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// walletStore keeps the aggregated changeset in memory. Useful for tests and
// for throwaway wallets; with the read-only option it also serves as a
// watch-only snapshot whose writes are discarded.
type walletStore struct {
	lock     *sync.Mutex
	data     *types.ChangeSet
	readOnly bool
}

type Option func(*walletStore)

// WithReadOnly freezes the initial state, silently discarding writes.
func WithReadOnly() Option {
	return func(s *walletStore) {
		s.readOnly = true
	}
}

func NewWalletStore(opts ...Option) types.WalletStore {
	store := &walletStore{
		lock: &sync.Mutex{},
		data: &types.ChangeSet{},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// NewWalletStoreFrom seeds the store with an existing changeset.
func NewWalletStoreFrom(changeSet *types.ChangeSet, opts ...Option) types.WalletStore {
	store := &walletStore{
		lock: &sync.Mutex{},
		data: &types.ChangeSet{},
	}
	store.data.Merge(changeSet)
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *walletStore) GetType() string {
	return types.InMemoryStore
}

func (s *walletStore) Initialize(_ context.Context) (*types.ChangeSet, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	snapshot := &types.ChangeSet{}
	snapshot.Merge(s.data)
	return snapshot, nil
}

func (s *walletStore) Persist(_ context.Context, delta *types.ChangeSet) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.readOnly {
		return nil
	}
	s.data.Merge(delta)
	return nil
}

func (s *walletStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.readOnly {
		return nil
	}
	s.data = &types.ChangeSet{}
	return nil
}

func (s *walletStore) Close() {}
