package aggregate

import (
	"math/big"
	"time"
)

const (
	ratioScale     = 18
	feeDenominator = 10000
)

// computeFeeRates returns fee/TVL per side, or nil where TVL is unknown.
func computeFeeRates(fee0 *big.Int, fee1 *big.Int, tvl0 *big.Int, tvl1 *big.Int) (*big.Rat, *big.Rat) {
	return computeRate(fee0, tvl0), computeRate(fee1, tvl1)
}

func computeRate(fee *big.Int, tvl *big.Int) *big.Rat {
	if fee == nil || tvl == nil || tvl.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(fee, tvl)
}

func formatRatio(rat *big.Rat) *string {
	if rat == nil {
		return nil
	}
	val := rat.FloatString(ratioScale)
	return &val
}

// computeAPR annualizes the window fee rate. Both reserves of a
// constant-product pool hold equal value at the marginal price, so the
// pool-wide rate is the mean of the two per-side rates.
func computeAPR(rate0 *big.Rat, rate1 *big.Rat, windowSeconds uint64) *big.Rat {
	if windowSeconds == 0 || rate0 == nil || rate1 == nil {
		return nil
	}

	rate := new(big.Rat).Add(rate0, rate1)
	rate.Quo(rate, big.NewRat(2, 1))

	yearSeconds := new(big.Rat).SetInt64(int64(365 * 24 * time.Hour / time.Second))
	window := new(big.Rat).SetInt(new(big.Int).SetUint64(windowSeconds))
	apr := new(big.Rat).Mul(rate, yearSeconds)
	return apr.Quo(apr, window)
}
