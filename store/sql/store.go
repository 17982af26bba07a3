package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

const sqliteDbFile = "wallet.sqlite.db"

//go:embed migration/*
var migrationFS embed.FS

// walletStore persists the wallet changeset in a sqlite database, one table
// per record kind. Writes of one delta are transactional.
type walletStore struct {
	db   *sql.DB
	lock *sync.Mutex
}

func NewWalletStore(dir string) (types.WalletStore, error) {
	dbPath := filepath.Join(dir, sqliteDbFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}

	if err := migrateDb(db); err != nil {
		// nolint
		db.Close()
		return nil, err
	}

	return &walletStore{db: db, lock: &sync.Mutex{}}, nil
}

func migrateDb(db *sql.DB) error {
	source, err := iofs.New(migrationFS, "migration")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %s", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %s", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate wallet store: %s", err)
	}
	return nil
}

func (s *walletStore) GetType() string {
	return types.SQLStore
}

func (s *walletStore) Persist(ctx context.Context, delta *types.ChangeSet) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if delta == nil || delta.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// nolint
	defer tx.Rollback()

	if delta.Network != "" {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO wallet_meta (key, value) VALUES ('network', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			delta.Network,
		); err != nil {
			return err
		}
	}

	for _, record := range delta.Txs {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tx (txid, raw) VALUES (?, ?) ON CONFLICT(txid) DO NOTHING`,
			record.Txid.String(), record.Raw,
		); err != nil {
			return err
		}
	}

	for txid, anchor := range delta.Anchors {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO anchor (txid, height, hash, confirmation_time)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(txid) DO UPDATE SET
			   height = excluded.height,
			   hash = excluded.hash,
			   confirmation_time = excluded.confirmation_time`,
			txid.String(), anchor.Height, anchor.Hash.String(), anchor.ConfirmationTime,
		); err != nil {
			return err
		}
	}

	for txid, seenAt := range delta.LastSeen {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO last_seen (txid, seen_at) VALUES (?, ?)
			 ON CONFLICT(txid) DO UPDATE SET seen_at = excluded.seen_at
			 WHERE excluded.seen_at > last_seen.seen_at`,
			txid.String(), seenAt,
		); err != nil {
			return err
		}
	}

	for _, po := range delta.Prevouts {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO prevout (txid, vout, value, script) VALUES (?, ?, ?, ?)
			 ON CONFLICT(txid, vout) DO NOTHING`,
			po.Outpoint.Hash.String(), po.Outpoint.Index, po.Value, po.Script,
		); err != nil {
			return err
		}
	}

	for _, cp := range delta.Checkpoints {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO checkpoint (height, hash) VALUES (?, ?)
			 ON CONFLICT(height) DO UPDATE SET hash = excluded.hash`,
			cp.Height, cp.Hash.String(),
		); err != nil {
			return err
		}
	}

	for keychain, index := range delta.LastRevealed {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO keychain (kind, last_revealed) VALUES (?, ?)
			 ON CONFLICT(kind) DO UPDATE SET last_revealed = excluded.last_revealed
			 WHERE excluded.last_revealed > keychain.last_revealed`,
			uint8(keychain), index,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *walletStore) Initialize(ctx context.Context) (*types.ChangeSet, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	changeSet := types.NewChangeSet("")

	row := s.db.QueryRowContext(
		ctx, `SELECT value FROM wallet_meta WHERE key = 'network'`,
	)
	if err := row.Scan(&changeSet.Network); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err := s.loadTxs(ctx, changeSet); err != nil {
		return nil, err
	}
	if err := s.loadAnchors(ctx, changeSet); err != nil {
		return nil, err
	}
	if err := s.loadLastSeen(ctx, changeSet); err != nil {
		return nil, err
	}
	if err := s.loadPrevouts(ctx, changeSet); err != nil {
		return nil, err
	}
	if err := s.loadCheckpoints(ctx, changeSet); err != nil {
		return nil, err
	}
	if err := s.loadKeychains(ctx, changeSet); err != nil {
		return nil, err
	}

	return changeSet, nil
}

func (s *walletStore) loadTxs(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(ctx, `SELECT txid, raw FROM tx`)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var txidStr string
		var raw []byte
		if err := rows.Scan(&txidStr, &raw); err != nil {
			return err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return fmt.Errorf("corrupted tx row %s: %s", txidStr, err)
		}
		changeSet.Txs = append(changeSet.Txs, types.TxRecord{Txid: *txid, Raw: raw})
	}
	return rows.Err()
}

func (s *walletStore) loadAnchors(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(
		ctx, `SELECT txid, height, hash, confirmation_time FROM anchor`,
	)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var txidStr, hashStr string
		var height uint32
		var confirmationTime int64
		if err := rows.Scan(&txidStr, &height, &hashStr, &confirmationTime); err != nil {
			return err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return fmt.Errorf("corrupted anchor row %s: %s", txidStr, err)
		}
		hash, err := chainhash.NewHashFromStr(hashStr)
		if err != nil {
			return fmt.Errorf("corrupted anchor row %s: %s", txidStr, err)
		}
		changeSet.Anchors[*txid] = types.Anchor{
			BlockId:          types.BlockId{Height: height, Hash: *hash},
			ConfirmationTime: confirmationTime,
		}
	}
	return rows.Err()
}

func (s *walletStore) loadLastSeen(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(ctx, `SELECT txid, seen_at FROM last_seen`)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var txidStr string
		var seenAt int64
		if err := rows.Scan(&txidStr, &seenAt); err != nil {
			return err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return fmt.Errorf("corrupted last-seen row %s: %s", txidStr, err)
		}
		changeSet.LastSeen[*txid] = seenAt
	}
	return rows.Err()
}

func (s *walletStore) loadPrevouts(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(ctx, `SELECT txid, vout, value, script FROM prevout`)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var txidStr string
		var vout uint32
		var value int64
		var script []byte
		if err := rows.Scan(&txidStr, &vout, &value, &script); err != nil {
			return err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return fmt.Errorf("corrupted prevout row %s: %s", txidStr, err)
		}
		changeSet.Prevouts = append(changeSet.Prevouts, types.PrevoutRecord{
			Outpoint: wire.OutPoint{Hash: *txid, Index: vout},
			Value:    value,
			Script:   script,
		})
	}
	return rows.Err()
}

func (s *walletStore) loadCheckpoints(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(
		ctx, `SELECT height, hash FROM checkpoint ORDER BY height ASC`,
	)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var height uint32
		var hashStr string
		if err := rows.Scan(&height, &hashStr); err != nil {
			return err
		}
		hash, err := chainhash.NewHashFromStr(hashStr)
		if err != nil {
			return fmt.Errorf("corrupted checkpoint row %d: %s", height, err)
		}
		changeSet.Checkpoints = append(changeSet.Checkpoints, types.BlockId{
			Height: height, Hash: *hash,
		})
	}
	return rows.Err()
}

func (s *walletStore) loadKeychains(ctx context.Context, changeSet *types.ChangeSet) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, last_revealed FROM keychain`)
	if err != nil {
		return err
	}
	// nolint
	defer rows.Close()

	for rows.Next() {
		var kind uint8
		var lastRevealed uint32
		if err := rows.Scan(&kind, &lastRevealed); err != nil {
			return err
		}
		changeSet.LastRevealed[types.KeychainKind(kind)] = lastRevealed
	}
	return rows.Err()
}

func (s *walletStore) Clean(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// nolint
	defer tx.Rollback()

	for _, table := range []string{
		"keychain", "checkpoint", "prevout", "last_seen", "anchor", "tx", "wallet_meta",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *walletStore) Close() {
	// nolint
	s.db.Close()
}
