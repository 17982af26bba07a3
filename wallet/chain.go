package wallet

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// CheckPoint is one node of the wallet's belief about the canonical chain:
// an immutable, singly-linked list of (height, hash) pairs ordered by
// strictly decreasing height from tip to root. Nodes are shared structurally,
// extending a checkpoint never mutates the existing chain.
type CheckPoint struct {
	block types.BlockId
	prev  *CheckPoint
}

func NewCheckPoint(block types.BlockId) *CheckPoint {
	return &CheckPoint{block: block}
}

func (cp *CheckPoint) Block() types.BlockId { return cp.block }

func (cp *CheckPoint) Height() uint32 { return cp.block.Height }

func (cp *CheckPoint) Hash() chainhash.Hash { return cp.block.Hash }

func (cp *CheckPoint) Prev() *CheckPoint { return cp.prev }

// Get returns the checkpoint at the given height, or nil if the chain does
// not contain that height.
func (cp *CheckPoint) Get(height uint32) *CheckPoint {
	for c := cp; c != nil; c = c.prev {
		if c.block.Height == height {
			return c
		}
		if c.block.Height < height {
			return nil
		}
	}
	return nil
}

// Extend appends blocks on top of cp. Blocks must be ordered by strictly
// increasing height and all be higher than cp.
func (cp *CheckPoint) Extend(blocks ...types.BlockId) (*CheckPoint, error) {
	tip := cp
	for _, block := range blocks {
		if block.Height <= tip.block.Height {
			return nil, fmt.Errorf(
				"cannot extend checkpoint %d with block at height %d",
				tip.block.Height, block.Height,
			)
		}
		tip = &CheckPoint{block: block, prev: tip}
	}
	return tip, nil
}

// Insert places block at its height within the chain and returns the new
// tip. Inserting an existing (height, hash) pair is a no-op. Inserting a
// different hash at an existing height evicts the old checkpoint and
// preserves every checkpoint above it.
func (cp *CheckPoint) Insert(block types.BlockId) *CheckPoint {
	above := make([]types.BlockId, 0)
	base := cp
	for base != nil && base.block.Height > block.Height {
		above = append(above, base.block)
		base = base.prev
	}

	if base != nil && base.block.Height == block.Height {
		if base.block.Hash == block.Hash {
			return cp
		}
		// Reorg at this height: drop the conflicting checkpoint.
		base = base.prev
	}

	tip := &CheckPoint{block: block, prev: base}
	for i := len(above) - 1; i >= 0; i-- {
		tip = &CheckPoint{block: above[i], prev: tip}
	}
	return tip
}

// Iter calls fn for every checkpoint from tip to root, stopping early when
// fn returns false.
func (cp *CheckPoint) Iter(fn func(block types.BlockId) bool) {
	for c := cp; c != nil; c = c.prev {
		if !fn(c.block) {
			return
		}
	}
}

// Blocks returns the chain content ordered by ascending height.
func (cp *CheckPoint) Blocks() []types.BlockId {
	var blocks []types.BlockId
	for c := cp; c != nil; c = c.prev {
		blocks = append(blocks, c.block)
	}
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks
}

// ErrCannotConnect is returned when a chain update shares no block with the
// local chain, meaning the two diverged below the local root.
var ErrCannotConnect = fmt.Errorf("chain update does not connect to the local chain")

// LocalChain is the wallet's locally held checkpoint chain, always rooted at
// a genesis (or anchor) block.
type LocalChain struct {
	tip *CheckPoint
}

func NewLocalChain(genesis types.BlockId) *LocalChain {
	return &LocalChain{tip: NewCheckPoint(genesis)}
}

// LoadLocalChain rebuilds a chain from persisted checkpoints. Heights may be
// unordered, duplicates are rejected.
func LoadLocalChain(checkpoints []types.BlockId) (*LocalChain, error) {
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("missing checkpoints")
	}
	sorted := make([]types.BlockId, len(checkpoints))
	copy(sorted, checkpoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })

	tip := NewCheckPoint(sorted[0])
	for _, block := range sorted[1:] {
		extended, err := tip.Extend(block)
		if err != nil {
			return nil, err
		}
		tip = extended
	}
	return &LocalChain{tip: tip}, nil
}

func (c *LocalChain) Tip() *CheckPoint {
	return c.tip
}

// Contains reports whether the chain holds exactly this (height, hash) pair.
func (c *LocalChain) Contains(block types.BlockId) bool {
	cp := c.tip.Get(block.Height)
	return cp != nil && cp.block.Hash == block.Hash
}

// ApplyUpdate merges an update chain into the local chain. The update must
// share at least one block with the local chain (the point of agreement
// established during reconciliation); otherwise ErrCannotConnect is
// returned and the local chain is left untouched. The returned blocks are
// the checkpoints that were introduced or replaced.
func (c *LocalChain) ApplyUpdate(update *CheckPoint) ([]types.BlockId, error) {
	if update == nil {
		return nil, nil
	}

	connects := false
	update.Iter(func(block types.BlockId) bool {
		if c.Contains(block) {
			connects = true
			return false
		}
		return true
	})
	if !connects {
		return nil, ErrCannotConnect
	}

	var changed []types.BlockId
	tip := c.tip
	for _, block := range update.Blocks() {
		if existing := tip.Get(block.Height); existing != nil &&
			existing.block.Hash == block.Hash {
			continue
		}
		tip = tip.Insert(block)
		changed = append(changed, block)
	}

	c.tip = tip
	return changed, nil
}
