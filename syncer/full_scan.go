package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ccoveille/go-safecast"
	log "github.com/sirupsen/logrus"

	"github.com/ProtonWallet/andromeda-sub000/explorer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

const (
	// DefaultStopGap is the number of consecutive unused scripts after the
	// last active one that ends a discovery scan.
	DefaultStopGap uint32 = 50
	// defaultParallelRequests bounds concurrent explorer calls per batch.
	defaultParallelRequests = 5
)

// fetchScriptTxs drains the full history of one script, following pagination
// until a partial page is returned.
func fetchScriptTxs(client explorer.Explorer, script []byte) ([]explorer.Tx, error) {
	var all []explorer.Tx
	var lastSeen *chainhash.Hash
	for {
		page, err := client.GetScriptHashTxs(script, lastSeen)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < explorer.TxPageSize {
			return all, nil
		}
		txid, err := chainhash.NewHashFromStr(page[len(page)-1].Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid txid in history page: %s", err)
		}
		lastSeen = txid
	}
}

// txUpdateFromTxs converts explorer transactions into graph data: the
// transactions themselves, confirmation anchors, observation timestamps for
// the unconfirmed ones and the inline prevouts their inputs carry.
func txUpdateFromTxs(txs []explorer.Tx, seenAt int64) (*wallet.TxUpdate, error) {
	update := wallet.NewTxUpdate()
	for _, tx := range txs {
		msgTx, err := tx.ToMsgTx()
		if err != nil {
			return nil, err
		}
		txid := msgTx.TxHash()
		update.Txs = append(update.Txs, msgTx)

		if anchor, ok := tx.Status.Anchor(); ok {
			update.Anchors[txid] = anchor
		} else {
			update.Seen = append(update.Seen, wallet.SeenTx{Txid: txid, SeenAt: seenAt})
		}

		prevouts, err := tx.PreviousOutputs()
		if err != nil {
			return nil, err
		}
		for op, txOut := range prevouts {
			update.Prevouts[op] = txOut
		}
	}
	return update, nil
}

type scriptHistory struct {
	index uint32
	txs   []explorer.Tx
	err   error
}

// fetchBatchHistories fetches the full history of every script in the batch
// concurrently, preserving index order in the result.
func fetchBatchHistories(
	client explorer.Explorer, scripts [][]byte, firstIndex uint32,
) ([]scriptHistory, error) {
	histories := make([]scriptHistory, len(scripts))
	wg := &sync.WaitGroup{}
	wg.Add(len(scripts))
	for i, script := range scripts {
		go func(i int, script []byte) {
			defer wg.Done()
			// nolint
			txs, err := fetchScriptTxs(client, script)
			histories[i] = scriptHistory{
				index: firstIndex + uint32(i), // nolint
				txs:   txs,
				err:   err,
			}
		}(i, script)
	}
	wg.Wait()

	for _, history := range histories {
		if history.err != nil {
			return nil, history.err
		}
	}
	return histories, nil
}

// fullScanKeychain walks one keychain's scripts in batches until stopGap
// consecutive indices past the last active one show no history. It returns
// the gathered graph data and the last active index, -1 when the keychain has
// no on-chain activity at all.
func fullScanKeychain(
	ctx context.Context, client explorer.Explorer,
	iterator wallet.ScriptIterator, stopGap uint32, parallelRequests int,
) (*wallet.TxUpdate, int64, error) {
	update := wallet.NewTxUpdate()
	lastActive := int64(-1)
	next := uint32(0)
	seenAt := time.Now().Unix()

	for {
		if err := ctx.Err(); err != nil {
			return nil, -1, err
		}

		scripts := make([][]byte, 0, parallelRequests)
		for i := 0; i < parallelRequests; i++ {
			script, err := iterator(next + uint32(i)) // nolint
			if err != nil {
				return nil, -1, fmt.Errorf("failed to derive script at %d: %s", next+uint32(i), err) // nolint
			}
			scripts = append(scripts, script)
		}

		histories, err := fetchBatchHistories(client, scripts, next)
		if err != nil {
			return nil, -1, &TransportError{Cause: err}
		}

		for _, history := range histories {
			if len(history.txs) == 0 {
				continue
			}
			lastActive = int64(history.index)
			batchUpdate, err := txUpdateFromTxs(history.txs, seenAt)
			if err != nil {
				return nil, -1, err
			}
			update.Extend(batchUpdate)
		}

		lastExamined := int64(next) + int64(parallelRequests) - 1
		if lastExamined-lastActive >= int64(stopGap) {
			break
		}
		next += uint32(parallelRequests) // nolint
	}

	return update, lastActive, nil
}

// fullScan discovers the used scripts of every keychain in the request and
// returns the combined graph data plus the last active index per keychain.
func fullScan(
	ctx context.Context, client explorer.Explorer,
	request *wallet.FullScanRequest, stopGap uint32, parallelRequests int,
) (*wallet.TxUpdate, map[types.KeychainKind]uint32, error) {
	update := wallet.NewTxUpdate()
	lastActiveIndices := make(map[types.KeychainKind]uint32)

	for _, keychain := range []types.KeychainKind{types.KeychainExternal, types.KeychainInternal} {
		iterator, ok := request.Keychains[keychain]
		if !ok {
			continue
		}

		keychainUpdate, lastActive, err := fullScanKeychain(
			ctx, client, iterator, stopGap, parallelRequests,
		)
		if err != nil {
			return nil, nil, err
		}
		update.Extend(keychainUpdate)

		if lastActive < 0 {
			log.Debugf("full scan: no activity on %s keychain", keychain)
			continue
		}
		index, err := safecast.ToUint32(lastActive)
		if err != nil {
			return nil, nil, err
		}
		lastActiveIndices[keychain] = index
		log.Debugf("full scan: %s keychain active up to index %d", keychain, index)
	}

	return update, lastActiveIndices, nil
}
