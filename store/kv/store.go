package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

const walletStoreDir = "wallet"

type txRow struct {
	Txid string
	Raw  []byte
}

type anchorRow struct {
	Txid             string
	Height           uint32
	Hash             string
	ConfirmationTime int64
}

type lastSeenRow struct {
	Txid   string
	SeenAt int64
}

type prevoutRow struct {
	Outpoint string
	Txid     string
	Vout     uint32
	Value    int64
	Script   []byte
}

type checkpointRow struct {
	Height uint32
	Hash   string
}

type keychainRow struct {
	Keychain     uint8
	LastRevealed uint32
}

type networkRow struct {
	Network string
}

// walletStore persists the wallet changeset in a badger database, one bucket
// per record kind. An empty dir opens an in-memory database.
type walletStore struct {
	db   *badgerhold.Store
	lock *sync.Mutex
}

func NewWalletStore(dir string, logger badger.Logger) (types.WalletStore, error) {
	if dir != "" {
		dir = filepath.Join(dir, walletStoreDir)
	}
	db, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}
	return &walletStore{db: db, lock: &sync.Mutex{}}, nil
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)
		go func() {
			for range ticker.C {
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					!errors.Is(err, badger.ErrNoRewrite) {
					log.WithError(err).Debug("badger gc failed")
				}
			}
		}()
	}

	return db, nil
}

func (s *walletStore) GetType() string {
	return types.KVStore
}

func (s *walletStore) Persist(_ context.Context, delta *types.ChangeSet) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if delta == nil || delta.IsEmpty() {
		return nil
	}

	if delta.Network != "" {
		if err := s.db.Upsert("network", &networkRow{Network: delta.Network}); err != nil {
			return err
		}
	}

	for _, tx := range delta.Txs {
		err := s.db.Insert(tx.Txid.String(), &txRow{Txid: tx.Txid.String(), Raw: tx.Raw})
		if err != nil && !errors.Is(err, badgerhold.ErrKeyExists) {
			return err
		}
	}

	for txid, anchor := range delta.Anchors {
		row := anchorRow{
			Txid:             txid.String(),
			Height:           anchor.Height,
			Hash:             anchor.Hash.String(),
			ConfirmationTime: anchor.ConfirmationTime,
		}
		if err := s.db.Upsert(row.Txid, &row); err != nil {
			return err
		}
	}

	for txid, seenAt := range delta.LastSeen {
		var existing lastSeenRow
		err := s.db.Get(txid.String(), &existing)
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		if err == nil && existing.SeenAt >= seenAt {
			continue
		}
		row := lastSeenRow{Txid: txid.String(), SeenAt: seenAt}
		if err := s.db.Upsert(row.Txid, &row); err != nil {
			return err
		}
	}

	for _, po := range delta.Prevouts {
		row := prevoutRow{
			Outpoint: po.Outpoint.String(),
			Txid:     po.Outpoint.Hash.String(),
			Vout:     po.Outpoint.Index,
			Value:    po.Value,
			Script:   po.Script,
		}
		err := s.db.Insert(row.Outpoint, &row)
		if err != nil && !errors.Is(err, badgerhold.ErrKeyExists) {
			return err
		}
	}

	for _, cp := range delta.Checkpoints {
		row := checkpointRow{Height: cp.Height, Hash: cp.Hash.String()}
		if err := s.db.Upsert(cp.Height, &row); err != nil {
			return err
		}
	}

	for keychain, index := range delta.LastRevealed {
		var existing keychainRow
		err := s.db.Get(uint8(keychain), &existing)
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		if err == nil && existing.LastRevealed >= index {
			continue
		}
		row := keychainRow{Keychain: uint8(keychain), LastRevealed: index}
		if err := s.db.Upsert(uint8(keychain), &row); err != nil {
			return err
		}
	}

	return nil
}

// nolint
func (s *walletStore) Initialize(_ context.Context) (*types.ChangeSet, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	changeSet := types.NewChangeSet("")

	var network networkRow
	if err := s.db.Get("network", &network); err == nil {
		changeSet.Network = network.Network
	} else if !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, err
	}

	var txRows []txRow
	if err := s.db.Find(&txRows, nil); err != nil {
		return nil, err
	}
	for _, row := range txRows {
		txid, err := chainhash.NewHashFromStr(row.Txid)
		if err != nil {
			return nil, fmt.Errorf("corrupted tx row %s: %s", row.Txid, err)
		}
		changeSet.Txs = append(changeSet.Txs, types.TxRecord{Txid: *txid, Raw: row.Raw})
	}

	var anchorRows []anchorRow
	if err := s.db.Find(&anchorRows, nil); err != nil {
		return nil, err
	}
	for _, row := range anchorRows {
		txid, err := chainhash.NewHashFromStr(row.Txid)
		if err != nil {
			return nil, fmt.Errorf("corrupted anchor row %s: %s", row.Txid, err)
		}
		hash, err := chainhash.NewHashFromStr(row.Hash)
		if err != nil {
			return nil, fmt.Errorf("corrupted anchor row %s: %s", row.Txid, err)
		}
		changeSet.Anchors[*txid] = types.Anchor{
			BlockId:          types.BlockId{Height: row.Height, Hash: *hash},
			ConfirmationTime: row.ConfirmationTime,
		}
	}

	var seenRows []lastSeenRow
	if err := s.db.Find(&seenRows, nil); err != nil {
		return nil, err
	}
	for _, row := range seenRows {
		txid, err := chainhash.NewHashFromStr(row.Txid)
		if err != nil {
			return nil, fmt.Errorf("corrupted last-seen row %s: %s", row.Txid, err)
		}
		changeSet.LastSeen[*txid] = row.SeenAt
	}

	var prevoutRows []prevoutRow
	if err := s.db.Find(&prevoutRows, nil); err != nil {
		return nil, err
	}
	for _, row := range prevoutRows {
		txid, err := chainhash.NewHashFromStr(row.Txid)
		if err != nil {
			return nil, fmt.Errorf("corrupted prevout row %s: %s", row.Outpoint, err)
		}
		changeSet.Prevouts = append(changeSet.Prevouts, types.PrevoutRecord{
			Outpoint: wire.OutPoint{Hash: *txid, Index: row.Vout},
			Value:    row.Value,
			Script:   row.Script,
		})
	}

	var checkpointRows []checkpointRow
	if err := s.db.Find(&checkpointRows, nil); err != nil {
		return nil, err
	}
	for _, row := range checkpointRows {
		hash, err := chainhash.NewHashFromStr(row.Hash)
		if err != nil {
			return nil, fmt.Errorf("corrupted checkpoint row %d: %s", row.Height, err)
		}
		changeSet.Checkpoints = append(changeSet.Checkpoints, types.BlockId{
			Height: row.Height, Hash: *hash,
		})
	}

	var keychainRows []keychainRow
	if err := s.db.Find(&keychainRows, nil); err != nil {
		return nil, err
	}
	for _, row := range keychainRows {
		changeSet.LastRevealed[types.KeychainKind(row.Keychain)] = row.LastRevealed
	}

	return changeSet, nil
}

func (s *walletStore) Clean(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.db.Badger().DropAll()
}

func (s *walletStore) Close() {
	// nolint
	s.db.Close()
}
