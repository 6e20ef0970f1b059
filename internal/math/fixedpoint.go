package math

import (
	"math/big"
	"sync"
)

// PriceDenominator is the fixed-point scale for unit prices. A price of
// 500_000 means 0.5 settlement tokens per plot unit.
const PriceDenominator uint64 = 1_000_000

// Pooled big.Int for 128-bit intermediates
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes a * b / denom with a 128-bit intermediate product and
// floor division. All value flow in the marketplace rounds down so that
// residue stays in escrow rather than being conjured.
func MulDiv(a, b, denom uint64) uint64 {
	product := getInt128()
	bigB := getInt128()
	product.SetUint64(a)
	bigB.SetUint64(b)
	product.Mul(product, bigB)

	bigB.SetUint64(denom)
	product.Quo(product, bigB)

	result := product.Uint64()
	putInt128(product)
	putInt128(bigB)
	return result
}

// UnitsForPayment converts a settlement payment into plot units at the
// given fixed-point price, rounding down.
func UnitsForPayment(payment, price uint64) uint64 {
	return MulDiv(payment, PriceDenominator, price)
}

// PaymentForUnits converts plot units into the settlement cost at the
// given fixed-point price, rounding down.
func PaymentForUnits(units, price uint64) uint64 {
	return MulDiv(units, price, PriceDenominator)
}
