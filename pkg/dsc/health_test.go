package dsc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthFactorZeroDebt(t *testing.T) {
	hf := HealthFactor(usd(300_000), big.NewInt(0), 5000)
	assert.Equal(t, 0, hf.Cmp(MaxHealthFactor))

	hf = HealthFactor(big.NewInt(0), nil, 5000)
	assert.Equal(t, 0, hf.Cmp(MaxHealthFactor))
}

func TestHealthFactorRatios(t *testing.T) {
	tests := []struct {
		name         string
		collateral   *big.Int
		debt         *big.Int
		thresholdBps uint64
		want         *big.Int
	}{
		{
			name:         "double collateralized",
			collateral:   usd(300_000),
			debt:         usd(100_000),
			thresholdBps: 5000,
			want:         big.NewInt(1_500_000_000_000_000_000),
		},
		{
			name:         "break even",
			collateral:   usd(200_000),
			debt:         usd(100_000),
			thresholdBps: 5000,
			want:         new(big.Int).Set(PrecisionUnit),
		},
		{
			name:         "under water",
			collateral:   usd(150_000),
			debt:         usd(100_000),
			thresholdBps: 5000,
			want:         big.NewInt(750_000_000_000_000_000),
		},
		{
			name:         "80 percent threshold",
			collateral:   usd(100_000),
			debt:         usd(100_000),
			thresholdBps: 8000,
			want:         big.NewInt(800_000_000_000_000_000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HealthFactor(tt.collateral, tt.debt, tt.thresholdBps)
			assert.Equal(t, 0, got.Cmp(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestIsSafe(t *testing.T) {
	min := new(big.Int).Set(PrecisionUnit)

	assert.True(t, IsSafe(new(big.Int).Set(PrecisionUnit), min))
	assert.True(t, IsSafe(big.NewInt(1_500_000_000_000_000_000), min))
	assert.False(t, IsSafe(big.NewInt(999_999_999_999_999_999), min))
}
