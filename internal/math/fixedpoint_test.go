package math_test

import (
	stdmath "math"
	"testing"

	fpmath "PlotMarket/internal/math"
)

func TestMulDiv_Floors(t *testing.T) {
	// 7 * 3 / 2 = 10.5 → 10
	if got := fpmath.MulDiv(7, 3, 2); got != 10 {
		t.Errorf("got %d, want 10", got)
	}
}

func TestMulDiv_128BitIntermediate(t *testing.T) {
	// a*b overflows uint64 but the quotient fits.
	a := uint64(stdmath.MaxUint64 / 2)
	got := fpmath.MulDiv(a, 4, 2)
	want := a * 2
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestUnitsForPayment(t *testing.T) {
	// 500 settlement at price 0.5 buys 1000 units.
	if got := fpmath.UnitsForPayment(500, 500_000); got != 1000 {
		t.Errorf("got %d, want 1000", got)
	}
	// 400 settlement at price 0.8 buys 500 units.
	if got := fpmath.UnitsForPayment(400, 800_000); got != 500 {
		t.Errorf("got %d, want 500", got)
	}
}

func TestPaymentForUnits(t *testing.T) {
	// 250 units at price 0.8 cost 200.
	if got := fpmath.PaymentForUnits(250, 800_000); got != 200 {
		t.Errorf("got %d, want 200", got)
	}
	// Floor: 3333 units at price 0.3 cost 999.9 → 999.
	if got := fpmath.PaymentForUnits(3333, 300_000); got != 999 {
		t.Errorf("got %d, want 999", got)
	}
}

func TestRoundTrip_ResidueNeverInflates(t *testing.T) {
	// Converting payment→units→payment can only lose to rounding,
	// never gain.
	prices := []uint64{1, 3, 300_000, 500_000, 999_999, 1_000_000, 2_500_000}
	payments := []uint64{1, 7, 400, 999, 123_456_789}
	for _, price := range prices {
		for _, payment := range payments {
			units := fpmath.UnitsForPayment(payment, price)
			back := fpmath.PaymentForUnits(units, price)
			if back > payment {
				t.Errorf("price=%d payment=%d: round trip inflated to %d", price, payment, back)
			}
		}
	}
}
