package txbuilder

import "github.com/btcsuite/btcd/btcutil"

// AllocateAmount distributes total over the recipients first-come
// first-served: each recipient keeps at most its requested amount, earlier
// recipients are served before later ones, and recipients past the point of
// exhaustion get zero. The input slice is not mutated.
func AllocateAmount(recipients []btcutil.Amount, total btcutil.Amount) []btcutil.Amount {
	allocated := make([]btcutil.Amount, len(recipients))
	remaining := total
	for i, amount := range recipients {
		if remaining <= 0 {
			allocated[i] = 0
			continue
		}
		if amount > remaining {
			allocated[i] = remaining
			remaining = 0
			continue
		}
		allocated[i] = amount
		remaining -= amount
	}
	return allocated
}

// ClawBack removes amount from the recipients starting at the last one, never
// driving any allocation below zero. Earlier recipients lose funds only once
// later ones are exhausted. The input slice is not mutated.
func ClawBack(allocated []btcutil.Amount, amount btcutil.Amount) []btcutil.Amount {
	result := make([]btcutil.Amount, len(allocated))
	copy(result, allocated)

	remaining := amount
	for i := len(result) - 1; i >= 0 && remaining > 0; i-- {
		if result[i] >= remaining {
			result[i] -= remaining
			return result
		}
		remaining -= result[i]
		result[i] = 0
	}
	return result
}
