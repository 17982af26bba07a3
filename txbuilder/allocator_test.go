package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestAllocateAmount(t *testing.T) {
	tests := []struct {
		name       string
		recipients []btcutil.Amount
		total      btcutil.Amount
		want       []btcutil.Amount
	}{
		{
			name:       "partial funds serve earlier recipients first",
			recipients: []btcutil.Amount{3500, 2100, 3000},
			total:      4800,
			want:       []btcutil.Amount{3500, 1300, 0},
		},
		{
			name:       "enough funds for everyone",
			recipients: []btcutil.Amount{1000, 2000},
			total:      5000,
			want:       []btcutil.Amount{1000, 2000},
		},
		{
			name:       "no funds",
			recipients: []btcutil.Amount{1000, 2000},
			total:      0,
			want:       []btcutil.Amount{0, 0},
		},
		{
			name:       "exact fit",
			recipients: []btcutil.Amount{1000, 2000},
			total:      3000,
			want:       []btcutil.Amount{1000, 2000},
		},
		{
			name:       "no recipients",
			recipients: nil,
			total:      1000,
			want:       []btcutil.Amount{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AllocateAmount(tt.recipients, tt.total)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				require.Equal(t, tt.want[i], got[i])
			}
		})
	}
}

func TestClawBack(t *testing.T) {
	tests := []struct {
		name      string
		allocated []btcutil.Amount
		amount    btcutil.Amount
		want      []btcutil.Amount
	}{
		{
			name:      "claws back from the last recipient first",
			allocated: []btcutil.Amount{3500, 2100, 3000},
			amount:    3400,
			want:      []btcutil.Amount{3500, 1700, 0},
		},
		{
			name:      "claws back everything",
			allocated: []btcutil.Amount{1000, 2000},
			amount:    3000,
			want:      []btcutil.Amount{0, 0},
		},
		{
			name:      "never goes negative",
			allocated: []btcutil.Amount{1000, 2000},
			amount:    10000,
			want:      []btcutil.Amount{0, 0},
		},
		{
			name:      "zero clawback is a no-op",
			allocated: []btcutil.Amount{1000, 2000},
			amount:    0,
			want:      []btcutil.Amount{1000, 2000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClawBack(tt.allocated, tt.amount)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				require.Equal(t, tt.want[i], got[i])
				require.GreaterOrEqual(t, got[i], btcutil.Amount(0))
			}
		})
	}
}

func TestClawBackDoesNotMutateInput(t *testing.T) {
	allocated := []btcutil.Amount{1000, 2000}
	ClawBack(allocated, 1500)
	require.Equal(t, btcutil.Amount(1000), allocated[0])
	require.Equal(t, btcutil.Amount(2000), allocated[1])
}
