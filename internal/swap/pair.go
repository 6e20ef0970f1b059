package swap

import (
	"errors"
	"fmt"
	"math/big"

	"PlotMarket/internal/token"

	"github.com/google/uuid"
)

var (
	// ErrExcessiveInput is returned when the auxiliary input required
	// for a conversion exceeds the caller's stated maximum.
	ErrExcessiveInput = errors.New("excessive input amount")

	// ErrSlippage is returned when the requested output is not
	// available from the pair reserves.
	ErrSlippage = errors.New("insufficient reserves for output")
)

// Pair is a constant-product pricing curve between an auxiliary token
// and the settlement token, with a 0.3% input fee. It mirrors the
// external pool the marketplace converts through: the auxiliary side is
// paid in from outside the ledger, the settlement side is minted to the
// recipient and the reserves adjusted. Not thread-safe — only accessed
// from the single-threaded market core.
type Pair struct {
	ledger            *token.Ledger
	reserveAux        uint64
	reserveSettlement uint64
}

func NewPair(ledger *token.Ledger) *Pair {
	return &Pair{ledger: ledger}
}

// Reserves returns the current (auxiliary, settlement) reserves.
func (p *Pair) Reserves() (uint64, uint64) {
	return p.reserveAux, p.reserveSettlement
}

// SetReserves overwrites both reserves. Used by the reserve sync
// command and by state restore.
func (p *Pair) SetReserves(aux, settlement uint64) {
	p.reserveAux = aux
	p.reserveSettlement = settlement
}

// QuoteInput returns the auxiliary input needed to draw out settlement
// tokens from the reserves. Constant-product with a 0.3% fee on the
// input side, rounded up by one.
func (p *Pair) QuoteInput(out uint64) (uint64, error) {
	if out == 0 {
		return 0, nil
	}
	if out >= p.reserveSettlement {
		return 0, fmt.Errorf("%w: out=%d reserve=%d", ErrSlippage, out, p.reserveSettlement)
	}
	return quoteAmountIn(out, p.reserveAux, p.reserveSettlement), nil
}

// quoteAmountIn computes reserveIn*out*1000 / ((reserveOut-out)*997) + 1
// with big.Int intermediates.
func quoteAmountIn(out, reserveIn, reserveOut uint64) uint64 {
	numerator := new(big.Int).SetUint64(reserveIn)
	numerator.Mul(numerator, new(big.Int).SetUint64(out))
	numerator.Mul(numerator, big.NewInt(1000))

	denominator := new(big.Int).SetUint64(reserveOut - out)
	denominator.Mul(denominator, big.NewInt(997))

	numerator.Quo(numerator, denominator)
	return numerator.Uint64() + 1
}

// ConvertTo draws out settlement tokens from the pair for the
// recipient, charging at most maxAuxIn auxiliary tokens. Returns the
// auxiliary amount actually charged.
func (p *Pair) ConvertTo(recipient uuid.UUID, out, maxAuxIn uint64) (uint64, error) {
	auxIn, err := p.QuoteInput(out)
	if err != nil {
		return 0, err
	}
	if auxIn > maxAuxIn {
		return 0, fmt.Errorf("%w: need=%d max=%d", ErrExcessiveInput, auxIn, maxAuxIn)
	}
	p.reserveAux += auxIn
	p.reserveSettlement -= out
	p.ledger.Mint(recipient, out)
	return auxIn, nil
}

// ValidateConvert reports whether a conversion would succeed, without
// mutating reserves. Used by multi-step operations that must validate
// every leg before the first mutation.
func (p *Pair) ValidateConvert(out, maxAuxIn uint64) error {
	auxIn, err := p.QuoteInput(out)
	if err != nil {
		return err
	}
	if auxIn > maxAuxIn {
		return fmt.Errorf("%w: need=%d max=%d", ErrExcessiveInput, auxIn, maxAuxIn)
	}
	return nil
}
