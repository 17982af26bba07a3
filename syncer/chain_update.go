package syncer

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ProtonWallet/andromeda-sub000/explorer"
	"github.com/ProtonWallet/andromeda-sub000/types"
	"github.com/ProtonWallet/andromeda-sub000/wallet"
)

// fetchLatestBlocks snapshots the most recent blocks of the remote chain.
// Every subsequent block lookup of the same reconciliation goes through this
// snapshot first so the whole update is anchored to one consistent view.
func fetchLatestBlocks(client explorer.Explorer) (map[uint32]chainhash.Hash, error) {
	summaries, err := client.GetBlocks(nil)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if len(summaries) == 0 {
		return nil, &TransportError{Cause: fmt.Errorf("explorer returned no blocks")}
	}

	latest := make(map[uint32]chainhash.Hash, len(summaries))
	for _, summary := range summaries {
		block, err := summary.BlockId()
		if err != nil {
			return nil, &TransportError{Cause: err}
		}
		latest[block.Height] = block.Hash
	}
	return latest, nil
}

func latestTipHeight(latest map[uint32]chainhash.Hash) uint32 {
	var tip uint32
	for height := range latest {
		if height > tip {
			tip = height
		}
	}
	return tip
}

// fetchBlock resolves the remote hash at a height, serving from the snapshot
// when possible. Heights above the snapshot tip resolve to nil: blocks mined
// after the snapshot are out of scope for this reconciliation.
func fetchBlock(
	client explorer.Explorer, latest map[uint32]chainhash.Hash, height uint32,
) (*chainhash.Hash, error) {
	if hash, ok := latest[height]; ok {
		return &hash, nil
	}
	if height > latestTipHeight(latest) {
		return nil, nil
	}
	hash, err := client.GetBlockHash(height)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	return hash, nil
}

// chainUpdate builds the update chain for the wallet: it walks the local
// checkpoints from the tip down until a block agreeing with the remote chain
// is found, re-stacks the remote replacements of every conflicting local
// checkpoint on top of it, then adds a checkpoint for every anchor height and
// the snapshot blocks. The result always connects to the local chain.
func chainUpdate(
	client explorer.Explorer,
	latest map[uint32]chainhash.Hash,
	localTip *wallet.CheckPoint,
	anchorHeights map[uint32]struct{},
) (*wallet.CheckPoint, error) {
	var agreement *wallet.CheckPoint
	var conflicts []types.BlockId

	for cp := localTip; cp != nil; cp = cp.Prev() {
		remoteHash, err := fetchBlock(client, latest, cp.Height())
		if err != nil {
			return nil, err
		}
		if remoteHash == nil {
			continue
		}
		if *remoteHash == cp.Hash() {
			agreement = cp
			break
		}
		conflicts = append(conflicts, types.BlockId{Height: cp.Height(), Hash: *remoteHash})
	}
	if agreement == nil {
		return nil, &ReconcileError{
			Cause: fmt.Errorf("no point of agreement with the remote chain"),
		}
	}

	// Conflicts were collected tip-down; extend wants ascending heights.
	tip := agreement
	for i := len(conflicts) - 1; i >= 0; i-- {
		extended, err := tip.Extend(conflicts[i])
		if err != nil {
			return nil, &ReconcileError{Cause: err}
		}
		tip = extended
	}

	heights := make([]uint32, 0, len(anchorHeights))
	for height := range anchorHeights {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	for _, height := range heights {
		if tip.Get(height) != nil {
			continue
		}
		hash, err := fetchBlock(client, latest, height)
		if err != nil {
			return nil, err
		}
		if hash == nil {
			continue
		}
		tip = tip.Insert(types.BlockId{Height: height, Hash: *hash})
	}

	for height, hash := range latest {
		tip = tip.Insert(types.BlockId{Height: height, Hash: hash})
	}

	return tip, nil
}
