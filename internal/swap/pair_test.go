package swap_test

import (
	"errors"
	"testing"

	"PlotMarket/internal/swap"
	"PlotMarket/internal/token"

	"github.com/google/uuid"
)

func TestQuoteInput(t *testing.T) {
	p := swap.NewPair(token.NewLedger())
	p.SetReserves(1000, 1000)

	// 1000*100*1000 / ((1000-100)*997) + 1 = 111 + 1 = 112
	in, err := p.QuoteInput(100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if in != 112 {
		t.Errorf("got %d, want 112", in)
	}
}

func TestQuoteInput_ZeroOut(t *testing.T) {
	p := swap.NewPair(token.NewLedger())
	p.SetReserves(1000, 1000)

	in, err := p.QuoteInput(0)
	if err != nil || in != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", in, err)
	}
}

func TestQuoteInput_Slippage(t *testing.T) {
	p := swap.NewPair(token.NewLedger())
	p.SetReserves(1000, 1000)

	if _, err := p.QuoteInput(1000); !errors.Is(err, swap.ErrSlippage) {
		t.Errorf("got %v, want ErrSlippage", err)
	}
}

func TestConvertTo_MintsAndAdjustsReserves(t *testing.T) {
	l := token.NewLedger()
	p := swap.NewPair(l)
	p.SetReserves(1000, 1000)
	recipient := uuid.New()

	charged, err := p.ConvertTo(recipient, 100, 200)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if charged != 112 {
		t.Errorf("charged: got %d, want 112", charged)
	}
	if got := l.BalanceOf(recipient); got != 100 {
		t.Errorf("minted: got %d, want 100", got)
	}
	aux, settlement := p.Reserves()
	if aux != 1112 || settlement != 900 {
		t.Errorf("reserves: got (%d, %d), want (1112, 900)", aux, settlement)
	}
}

func TestConvertTo_ExcessiveInput(t *testing.T) {
	l := token.NewLedger()
	p := swap.NewPair(l)
	p.SetReserves(1000, 1000)
	recipient := uuid.New()

	_, err := p.ConvertTo(recipient, 100, 50)
	if !errors.Is(err, swap.ErrExcessiveInput) {
		t.Fatalf("got %v, want ErrExcessiveInput", err)
	}
	// Failed conversion must not touch reserves or mint.
	aux, settlement := p.Reserves()
	if aux != 1000 || settlement != 1000 {
		t.Errorf("reserves: got (%d, %d), want (1000, 1000)", aux, settlement)
	}
	if l.BalanceOf(recipient) != 0 {
		t.Error("failed conversion minted tokens")
	}
}

func TestValidateConvert_MutatesNothing(t *testing.T) {
	p := swap.NewPair(token.NewLedger())
	p.SetReserves(4000, 4_000_000)

	if err := p.ValidateConvert(1000, 10); err != nil {
		t.Fatalf("validate: %v", err)
	}
	aux, settlement := p.Reserves()
	if aux != 4000 || settlement != 4_000_000 {
		t.Errorf("reserves changed: got (%d, %d)", aux, settlement)
	}
}
