package wallet

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

// ScriptDeriver produces the script pubkey of a derived key within an
// account. Key material and descriptor construction live behind this
// interface, the wallet only indexes the resulting scripts.
type ScriptDeriver interface {
	ScriptPubKey(keychain types.KeychainKind, index uint32) ([]byte, error)
	Address(keychain types.KeychainKind, index uint32) (btcutil.Address, error)
}

// BIP84Deriver is the default ScriptDeriver: native-segwit (P2WPKH) scripts
// from the external (0) and internal (1) branches of an account extended
// key.
type BIP84Deriver struct {
	external *hdkeychain.ExtendedKey
	internal *hdkeychain.ExtendedKey
	net      *chaincfg.Params
}

func NewBIP84Deriver(
	accountKey *hdkeychain.ExtendedKey, net *chaincfg.Params,
) (*BIP84Deriver, error) {
	external, err := accountKey.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive external branch: %s", err)
	}
	internal, err := accountKey.Derive(1)
	if err != nil {
		return nil, fmt.Errorf("failed to derive internal branch: %s", err)
	}
	return &BIP84Deriver{external: external, internal: internal, net: net}, nil
}

func (d *BIP84Deriver) branch(keychain types.KeychainKind) (*hdkeychain.ExtendedKey, error) {
	switch keychain {
	case types.KeychainExternal:
		return d.external, nil
	case types.KeychainInternal:
		return d.internal, nil
	default:
		return nil, fmt.Errorf("unknown keychain %s", keychain)
	}
}

func (d *BIP84Deriver) Address(
	keychain types.KeychainKind, index uint32,
) (btcutil.Address, error) {
	branch, err := d.branch(keychain)
	if err != nil {
		return nil, err
	}
	child, err := branch.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s/%d: %s", keychain, index, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), d.net,
	)
}

func (d *BIP84Deriver) ScriptPubKey(
	keychain types.KeychainKind, index uint32,
) ([]byte, error) {
	addr, err := d.Address(keychain, index)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// KeychainIndexer tracks which script pubkeys have been revealed per
// keychain and resolves scripts back to their (keychain, index) key.
// Derivations are cached so the unbounded scan iterators stay cheap. Safe
// for concurrent use: scan iterators derive outside the account lock.
type KeychainIndexer struct {
	mu           *sync.RWMutex
	deriver      ScriptDeriver
	lastRevealed map[types.KeychainKind]uint32
	revealed     map[types.KeychainKind]bool
	derived      map[types.ScriptKey][]byte
	byScript     map[string]types.ScriptKey
}

func NewKeychainIndexer(deriver ScriptDeriver) *KeychainIndexer {
	return &KeychainIndexer{
		mu:           &sync.RWMutex{},
		deriver:      deriver,
		lastRevealed: make(map[types.KeychainKind]uint32),
		revealed:     make(map[types.KeychainKind]bool),
		derived:      make(map[types.ScriptKey][]byte),
		byScript:     make(map[string]types.ScriptKey),
	}
}

// SpkAt derives (and caches) the script at the given key without revealing
// it.
func (i *KeychainIndexer) SpkAt(keychain types.KeychainKind, index uint32) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.spkAt(keychain, index)
}

func (i *KeychainIndexer) spkAt(keychain types.KeychainKind, index uint32) ([]byte, error) {
	key := types.ScriptKey{Keychain: keychain, Index: index}
	if spk, ok := i.derived[key]; ok {
		return spk, nil
	}
	spk, err := i.deriver.ScriptPubKey(keychain, index)
	if err != nil {
		return nil, err
	}
	i.derived[key] = spk
	return spk, nil
}

// RevealTo marks every index of the keychain up to and including index as
// revealed. Revealed indices never move backwards.
func (i *KeychainIndexer) RevealTo(keychain types.KeychainKind, index uint32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.revealTo(keychain, index)
}

func (i *KeychainIndexer) revealTo(keychain types.KeychainKind, index uint32) error {
	start := uint32(0)
	if last, ok := i.lastRevealedOf(keychain); ok {
		if index <= last {
			return nil
		}
		start = last + 1
	}
	for idx := start; idx <= index; idx++ {
		spk, err := i.spkAt(keychain, idx)
		if err != nil {
			return err
		}
		i.byScript[hex.EncodeToString(spk)] = types.ScriptKey{Keychain: keychain, Index: idx}
	}
	i.lastRevealed[keychain] = index
	i.revealed[keychain] = true
	return nil
}

func (i *KeychainIndexer) LastRevealed(keychain types.KeychainKind) (uint32, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastRevealedOf(keychain)
}

func (i *KeychainIndexer) lastRevealedOf(keychain types.KeychainKind) (uint32, bool) {
	if !i.revealed[keychain] {
		return 0, false
	}
	return i.lastRevealed[keychain], true
}

// RevealNext reveals and returns the next unused index of the keychain.
func (i *KeychainIndexer) RevealNext(keychain types.KeychainKind) (types.ScriptKey, []byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	next := uint32(0)
	if last, ok := i.lastRevealedOf(keychain); ok {
		next = last + 1
	}
	if err := i.revealTo(keychain, next); err != nil {
		return types.ScriptKey{}, nil, err
	}
	spk, err := i.spkAt(keychain, next)
	if err != nil {
		return types.ScriptKey{}, nil, err
	}
	return types.ScriptKey{Keychain: keychain, Index: next}, spk, nil
}

// KeyOf resolves a script pubkey to its key. Only revealed scripts resolve.
func (i *KeychainIndexer) KeyOf(script []byte) (types.ScriptKey, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	key, ok := i.byScript[hex.EncodeToString(script)]
	return key, ok
}

// RevealedSpks returns every revealed script, external keychain first, in
// index order.
func (i *KeychainIndexer) RevealedSpks() [][]byte {
	i.mu.Lock()
	defer i.mu.Unlock()

	var spks [][]byte
	for _, keychain := range []types.KeychainKind{types.KeychainExternal, types.KeychainInternal} {
		last, ok := i.lastRevealedOf(keychain)
		if !ok {
			continue
		}
		for idx := uint32(0); idx <= last; idx++ {
			spk, err := i.spkAt(keychain, idx)
			if err != nil {
				continue
			}
			spks = append(spks, spk)
		}
	}
	return spks
}
