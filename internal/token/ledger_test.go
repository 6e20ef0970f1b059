package token_test

import (
	"errors"
	"testing"

	"PlotMarket/internal/token"

	"github.com/google/uuid"
)

func TestMintAndBurn(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()

	l.Mint(alice, 1000)
	if got := l.BalanceOf(alice); got != 1000 {
		t.Errorf("balance: got %d, want 1000", got)
	}
	if got := l.TotalSupply(); got != 1000 {
		t.Errorf("supply: got %d, want 1000", got)
	}

	if err := l.Burn(alice, 400); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := l.BalanceOf(alice); got != 600 {
		t.Errorf("balance after burn: got %d, want 600", got)
	}
	if got := l.TotalSupply(); got != 600 {
		t.Errorf("supply after burn: got %d, want 600", got)
	}
}

func TestBurn_InsufficientBalance(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	l.Mint(alice, 100)

	if err := l.Burn(alice, 101); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := l.BalanceOf(alice); got != 100 {
		t.Errorf("failed burn must not change balance: got %d", got)
	}
}

func TestTransfer(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	bob := uuid.New()
	l.Mint(alice, 500)

	if err := l.Transfer(alice, bob, 200); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if l.BalanceOf(alice) != 300 || l.BalanceOf(bob) != 200 {
		t.Errorf("got alice=%d bob=%d, want 300/200", l.BalanceOf(alice), l.BalanceOf(bob))
	}

	if err := l.Transfer(alice, bob, 301); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestTransfer_ZeroAmountSucceeds(t *testing.T) {
	l := token.NewLedger()
	if err := l.Transfer(uuid.New(), uuid.New(), 0); err != nil {
		t.Errorf("zero transfer: %v", err)
	}
}

func TestApprove_OverwritesNotAccumulates(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	spender := uuid.New()

	l.Approve(alice, spender, 100)
	l.Approve(alice, spender, 40)
	if got := l.Allowance(alice, spender); got != 40 {
		t.Errorf("allowance: got %d, want 40", got)
	}

	l.Approve(alice, spender, 0)
	if got := l.Allowance(alice, spender); got != 0 {
		t.Errorf("cleared allowance: got %d, want 0", got)
	}
}

func TestTransferFrom_ConsumesAllowance(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	bob := uuid.New()
	spender := uuid.New()
	l.Mint(alice, 1000)
	l.Approve(alice, spender, 300)

	if err := l.TransferFrom(spender, alice, bob, 200); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := l.Allowance(alice, spender); got != 100 {
		t.Errorf("remaining allowance: got %d, want 100", got)
	}
	if l.BalanceOf(bob) != 200 {
		t.Errorf("recipient: got %d, want 200", l.BalanceOf(bob))
	}

	if err := l.TransferFrom(spender, alice, bob, 101); !errors.Is(err, token.ErrInsufficientApproval) {
		t.Errorf("got %v, want ErrInsufficientApproval", err)
	}
}

func TestTransferFrom_BalanceCheckedBeforeAllowanceSpent(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	spender := uuid.New()
	l.Mint(alice, 50)
	l.Approve(alice, spender, 200)

	err := l.TransferFrom(spender, alice, uuid.New(), 100)
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	// Failed transfer must not consume allowance.
	if got := l.Allowance(alice, spender); got != 200 {
		t.Errorf("allowance after failed transfer: got %d, want 200", got)
	}
}

func TestValidateSupplyConserved(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	bob := uuid.New()
	l.Mint(alice, 700)
	l.Mint(bob, 300)
	l.Transfer(alice, bob, 150)
	l.Burn(bob, 50)

	if err := l.ValidateSupplyConserved(); err != nil {
		t.Errorf("supply conservation: %v", err)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	l := token.NewLedger()
	alice := uuid.New()
	bob := uuid.New()
	spender := uuid.New()
	l.Mint(alice, 1000)
	l.Mint(bob, 250)
	l.Approve(alice, spender, 99)

	balances, approvals := l.Snapshot()

	restored := token.NewLedger()
	restored.Restore(balances, approvals)

	if restored.BalanceOf(alice) != 1000 || restored.BalanceOf(bob) != 250 {
		t.Error("balances differ after restore")
	}
	if restored.TotalSupply() != 1250 {
		t.Errorf("supply: got %d, want 1250", restored.TotalSupply())
	}
	if got := restored.Allowance(alice, spender); got != 99 {
		t.Errorf("allowance: got %d, want 99", got)
	}
}
