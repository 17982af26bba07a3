package txbuilder

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/google/uuid"

	"github.com/ProtonWallet/andromeda-sub000/account"
	"github.com/ProtonWallet/andromeda-sub000/types"
)

// weight estimate per input/output for a P2WPKH spend, in vbytes.
const (
	baseTxVBytes    = 11
	inputVBytes     = 68
	outputVBytes    = 31
	minRelayFeeRate = 1.0
)

var (
	ErrNoRecipients      = fmt.Errorf("no recipients set")
	ErrRecipientNotFound = fmt.Errorf("recipient not found")
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")
)

// TxBuilder composes a draft spend against one account. Recipients are
// transient edit state; nothing touches the account until the draft PSBT is
// created. Setting or refreshing the account constrains recipient amounts to
// what the account can actually spend.
type TxBuilder struct {
	mu         *sync.Mutex
	account    *account.Account
	net        *chaincfg.Params
	recipients []types.Recipient
	feeRate    float64
}

func NewTxBuilder(net *chaincfg.Params) *TxBuilder {
	return &TxBuilder{
		mu:      &sync.Mutex{},
		net:     net,
		feeRate: minRelayFeeRate,
	}
}

// SetFeeRate sets the target fee rate in sat/vB, floored at the minimum
// relay rate, then re-constrains recipient amounts.
func (b *TxBuilder) SetFeeRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rate < minRelayFeeRate {
		rate = minRelayFeeRate
	}
	b.feeRate = rate
	b.constrainRecipientAmounts()
}

// SetAccount binds the builder to an account and constrains the current
// recipient amounts to its spendable balance.
func (b *TxBuilder) SetAccount(acc *account.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = acc
	b.constrainRecipientAmounts()
}

// AddRecipient appends an empty recipient and returns its id.
func (b *TxBuilder) AddRecipient() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.recipients = append(b.recipients, types.Recipient{Id: id})
	return id
}

// UpdateRecipient sets the address and amount of an existing recipient, then
// constrains amounts against the bound account.
func (b *TxBuilder) UpdateRecipient(id, address string, amount btcutil.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.recipients {
		if b.recipients[i].Id != id {
			continue
		}
		b.recipients[i].Address = address
		b.recipients[i].Amount = amount
		b.constrainRecipientAmounts()
		return nil
	}
	return ErrRecipientNotFound
}

func (b *TxBuilder) RemoveRecipient(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.recipients {
		if b.recipients[i].Id != id {
			continue
		}
		b.recipients = append(b.recipients[:i], b.recipients[i+1:]...)
		return nil
	}
	return ErrRecipientNotFound
}

// Recipients returns a copy of the current recipient list.
func (b *TxBuilder) Recipients() []types.Recipient {
	b.mu.Lock()
	defer b.mu.Unlock()
	recipients := make([]types.Recipient, len(b.recipients))
	copy(recipients, b.recipients)
	return recipients
}

// constrainRecipientAmounts clamps the requested amounts to the account's
// spendable balance net of the estimated fee. Amounts are allocated first
// come first served, and the fee shortfall is clawed back from the last
// recipients. Callers hold the lock.
func (b *TxBuilder) constrainRecipientAmounts() {
	if b.account == nil || len(b.recipients) == 0 {
		return
	}

	spendable := b.account.Balance().Spendable()
	requested := make([]btcutil.Amount, len(b.recipients))
	for i, recipient := range b.recipients {
		requested[i] = recipient.Amount
	}

	allocated := AllocateAmount(requested, spendable)

	fee := b.estimateFee(len(b.account.ListUnspent()), len(b.recipients)+1)
	var total btcutil.Amount
	for _, amount := range allocated {
		total += amount
	}
	if shortfall := total + fee - spendable; shortfall > 0 {
		allocated = ClawBack(allocated, shortfall)
	}

	for i := range b.recipients {
		b.recipients[i].Amount = allocated[i]
	}
}

func (b *TxBuilder) estimateFee(numInputs, numOutputs int) btcutil.Amount {
	vbytes := baseTxVBytes + numInputs*inputVBytes + numOutputs*outputVBytes
	return btcutil.Amount(float64(vbytes) * b.feeRate)
}

// CreateDraftPsbt selects coins and builds an unsigned PSBT for the current
// recipients, adding a change output to the internal keychain unless it would
// be dust.
func (b *TxBuilder) CreateDraftPsbt(ctx context.Context) (*psbt.Packet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.account == nil {
		return nil, fmt.Errorf("no account set")
	}
	if len(b.recipients) == 0 {
		return nil, ErrNoRecipients
	}

	outputs := make([]*wire.TxOut, 0, len(b.recipients)+1)
	var target btcutil.Amount
	for _, recipient := range b.recipients {
		if recipient.Amount <= 0 {
			continue
		}
		addr, err := btcutil.DecodeAddress(recipient.Address, b.net)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient address %s: %s", recipient.Address, err)
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, wire.NewTxOut(int64(recipient.Amount), script))
		target += recipient.Amount
	}
	if len(outputs) == 0 {
		return nil, ErrNoRecipients
	}

	utxos := b.account.ListUnspent()
	var selected []types.Utxo
	var selectedTotal btcutil.Amount
	for _, utxo := range utxos {
		selected = append(selected, utxo)
		selectedTotal += utxo.Amount
		fee := b.estimateFee(len(selected), len(outputs)+1)
		if selectedTotal >= target+fee {
			break
		}
	}
	fee := b.estimateFee(len(selected), len(outputs)+1)
	if selectedTotal < target+fee {
		return nil, ErrInsufficientFunds
	}

	change := selectedTotal - target - fee
	if change > 0 && !txrules.IsDustAmount(
		change, outputVBytes, txrules.DefaultRelayFeePerKb,
	) {
		_, changeScript, err := b.account.RevealNextAddress(ctx, types.KeychainInternal)
		if err != nil {
			return nil, fmt.Errorf("failed to derive change address: %s", err)
		}
		outputs = append(outputs, wire.NewTxOut(int64(change), changeScript))
	}

	inputs := make([]wire.OutPoint, 0, len(selected))
	sequences := make([]uint32, 0, len(selected))
	for _, utxo := range selected {
		inputs = append(inputs, utxo.Outpoint)
		sequences = append(sequences, wire.MaxTxInSequenceNum-2)
	}

	packet, err := psbt.New(ptrSlice(inputs), outputs, 2, 0, sequences)
	if err != nil {
		return nil, fmt.Errorf("failed to build psbt: %s", err)
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}
	for i, utxo := range selected {
		if err := updater.AddInWitnessUtxo(
			wire.NewTxOut(int64(utxo.Amount), utxo.Script), i,
		); err != nil {
			return nil, err
		}
	}
	return packet, nil
}

func ptrSlice(ops []wire.OutPoint) []*wire.OutPoint {
	out := make([]*wire.OutPoint, len(ops))
	for i := range ops {
		out[i] = &ops[i]
	}
	return out
}
