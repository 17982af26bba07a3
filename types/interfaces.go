package types

import "context"

// WalletStore persists the wallet state as a sequence of monotonic deltas.
// Persist must never lose data already persisted: repeated partial persists
// merge into the previously stored state.
type WalletStore interface {
	GetType() string
	// Initialize returns the aggregate of everything persisted so far, or an
	// empty changeset on first use.
	Initialize(ctx context.Context) (*ChangeSet, error)
	Persist(ctx context.Context, delta *ChangeSet) error
	Clean(ctx context.Context) error
	Close()
}

type ConfigStore interface {
	GetType() string
	GetDatadir() string
	AddData(ctx context.Context, data Config) error
	GetData(ctx context.Context) (*Config, error)
	CleanData(ctx context.Context) error
	Close()
}
