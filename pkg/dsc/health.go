package dsc

import "math/big"

// HealthFactor computes the solvency ratio of a position in 1e18 fixed
// point. Pure function: no state, no oracle reads.
//
//	ratio = (collateralUSD * thresholdBps / 10000) * 1e18 / debtUSD
//
// A zero debt is maximally safe; a ratio below PrecisionUnit marks the
// position as liquidatable.
func HealthFactor(collateralUSD, debtUSD *big.Int, thresholdBps uint64) *big.Int {
	if debtUSD == nil || debtUSD.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}

	adjusted := new(big.Int).Mul(collateralUSD, new(big.Int).SetUint64(thresholdBps))
	adjusted.Quo(adjusted, bpsDenominator)

	ratio := adjusted.Mul(adjusted, PrecisionUnit)
	return ratio.Quo(ratio, debtUSD)
}

// IsSafe reports whether a health factor meets the minimum.
func IsSafe(healthFactor, minimum *big.Int) bool {
	return healthFactor.Cmp(minimum) >= 0
}
