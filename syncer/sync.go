package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ProtonWallet/andromeda-sub000/explorer"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

// fetchTxsWithSpks rechecks the history of already revealed scripts, in
// batches of parallelRequests.
func fetchTxsWithSpks(
	ctx context.Context, client explorer.Explorer,
	spks [][]byte, parallelRequests int,
) (*wallet.TxUpdate, error) {
	update := wallet.NewTxUpdate()
	seenAt := time.Now().Unix()

	for start := 0; start < len(spks); start += parallelRequests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + parallelRequests
		if end > len(spks) {
			end = len(spks)
		}

		histories, err := fetchBatchHistories(client, spks[start:end], uint32(start)) // nolint
		if err != nil {
			return nil, &TransportError{Cause: err}
		}
		for _, history := range histories {
			batchUpdate, err := txUpdateFromTxs(history.txs, seenAt)
			if err != nil {
				return nil, err
			}
			update.Extend(batchUpdate)
		}
	}
	return update, nil
}

// fetchTxsWithTxids refreshes the confirmation status of known transactions,
// typically the unconfirmed ones.
func fetchTxsWithTxids(
	ctx context.Context, client explorer.Explorer,
	txids []chainhash.Hash, parallelRequests int,
) (*wallet.TxUpdate, error) {
	update := wallet.NewTxUpdate()
	seenAt := time.Now().Unix()

	type statusResult struct {
		txid   chainhash.Hash
		status *explorer.TxStatus
		err    error
	}

	for start := 0; start < len(txids); start += parallelRequests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + parallelRequests
		if end > len(txids) {
			end = len(txids)
		}
		batch := txids[start:end]

		results := make([]statusResult, len(batch))
		wg := &sync.WaitGroup{}
		wg.Add(len(batch))
		for i, txid := range batch {
			go func(i int, txid chainhash.Hash) {
				defer wg.Done()
				status, err := client.GetTxStatus(txid)
				results[i] = statusResult{txid: txid, status: status, err: err}
			}(i, txid)
		}
		wg.Wait()

		for _, result := range results {
			if result.err != nil {
				return nil, &TransportError{Cause: result.err}
			}
			if anchor, ok := result.status.Anchor(); ok {
				update.Anchors[result.txid] = anchor
				continue
			}
			update.Seen = append(update.Seen, wallet.SeenTx{Txid: result.txid, SeenAt: seenAt})
		}
	}
	return update, nil
}

// fetchTxsWithOutpoints checks whether tracked unspent outputs have been
// spent and pulls in any spending transaction found.
func fetchTxsWithOutpoints(
	ctx context.Context, client explorer.Explorer,
	outpoints []wire.OutPoint, parallelRequests int,
) (*wallet.TxUpdate, error) {
	update := wallet.NewTxUpdate()
	seenAt := time.Now().Unix()

	type spendResult struct {
		status *explorer.OutputStatus
		err    error
	}

	for start := 0; start < len(outpoints); start += parallelRequests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + parallelRequests
		if end > len(outpoints) {
			end = len(outpoints)
		}
		batch := outpoints[start:end]

		results := make([]spendResult, len(batch))
		wg := &sync.WaitGroup{}
		wg.Add(len(batch))
		for i, op := range batch {
			go func(i int, op wire.OutPoint) {
				defer wg.Done()
				status, err := client.GetOutputStatus(op.Hash, op.Index)
				results[i] = spendResult{status: status, err: err}
			}(i, op)
		}
		wg.Wait()

		for _, result := range results {
			if result.err != nil {
				return nil, &TransportError{Cause: result.err}
			}
			if result.status == nil || !result.status.Spent || result.status.Txid == "" {
				continue
			}

			spenderTxid, err := chainhash.NewHashFromStr(result.status.Txid)
			if err != nil {
				return nil, fmt.Errorf("invalid spender txid %s: %s", result.status.Txid, err)
			}
			spender, err := client.GetTx(*spenderTxid)
			if err != nil {
				return nil, &TransportError{Cause: err}
			}
			if spender == nil {
				continue
			}
			update.Txs = append(update.Txs, spender)

			if result.status.Status != nil {
				if anchor, ok := result.status.Status.Anchor(); ok {
					update.Anchors[*spenderTxid] = anchor
					continue
				}
			}
			update.Seen = append(update.Seen, wallet.SeenTx{Txid: *spenderTxid, SeenAt: seenAt})
		}
	}
	return update, nil
}

// syncRequest runs all three recheck passes of a partial sync.
func syncRequest(
	ctx context.Context, client explorer.Explorer,
	request *wallet.SyncRequest, parallelRequests int,
) (*wallet.TxUpdate, error) {
	update, err := fetchTxsWithSpks(ctx, client, request.Spks, parallelRequests)
	if err != nil {
		return nil, err
	}

	txidUpdate, err := fetchTxsWithTxids(ctx, client, request.Txids, parallelRequests)
	if err != nil {
		return nil, err
	}
	update.Extend(txidUpdate)

	outpointUpdate, err := fetchTxsWithOutpoints(ctx, client, request.Outpoints, parallelRequests)
	if err != nil {
		return nil, err
	}
	update.Extend(outpointUpdate)

	return update, nil
}
