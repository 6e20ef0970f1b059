package token

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// payer's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientApproval is returned when a delegated transfer
	// exceeds the spender's allowance.
	ErrInsufficientApproval = errors.New("insufficient approval")
)

type approvalKey struct {
	Owner   uuid.UUID
	Spender uuid.UUID
}

// Ledger maintains in-memory settlement-token balances and spender
// allowances. Not thread-safe — only accessed from the single-threaded
// market core.
type Ledger struct {
	balances    map[uuid.UUID]uint64
	approvals   map[approvalKey]uint64
	totalSupply uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:  make(map[uuid.UUID]uint64),
		approvals: make(map[approvalKey]uint64),
	}
}

// Mint credits newly issued settlement tokens to an account.
func (l *Ledger) Mint(to uuid.UUID, amount uint64) {
	l.balances[to] += amount
	l.totalSupply += amount
}

// Burn debits and retires settlement tokens from an account.
func (l *Ledger) Burn(from uuid.UUID, amount uint64) error {
	if l.balances[from] < amount {
		return fmt.Errorf("%w: account=%s have=%d need=%d",
			ErrInsufficientBalance, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.totalSupply -= amount
	return nil
}

// BalanceOf returns the current balance for an account.
func (l *Ledger) BalanceOf(account uuid.UUID) uint64 {
	return l.balances[account]
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() uint64 {
	return l.totalSupply
}

// Transfer moves amount from one account to another. A zero-amount
// transfer succeeds without touching the maps.
func (l *Ledger) Transfer(from, to uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: account=%s have=%d need=%d",
			ErrInsufficientBalance, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Approve sets the allowance a spender may move on behalf of owner.
// Setting overwrites any prior allowance, it does not accumulate.
func (l *Ledger) Approve(owner, spender uuid.UUID, amount uint64) {
	key := approvalKey{Owner: owner, Spender: spender}
	if amount == 0 {
		delete(l.approvals, key)
		return
	}
	l.approvals[key] = amount
}

// Allowance returns the remaining amount spender may move from owner.
func (l *Ledger) Allowance(owner, spender uuid.UUID) uint64 {
	return l.approvals[approvalKey{Owner: owner, Spender: spender}]
}

// TransferFrom moves amount from owner to recipient on behalf of
// spender, consuming allowance. Both the balance and the allowance are
// checked before either is touched.
func (l *Ledger) TransferFrom(spender, owner, to uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	key := approvalKey{Owner: owner, Spender: spender}
	allowed := l.approvals[key]
	if allowed < amount {
		return fmt.Errorf("%w: owner=%s spender=%s allowed=%d need=%d",
			ErrInsufficientApproval, owner, spender, allowed, amount)
	}
	if l.balances[owner] < amount {
		return fmt.Errorf("%w: account=%s have=%d need=%d",
			ErrInsufficientBalance, owner, l.balances[owner], amount)
	}
	l.approvals[key] = allowed - amount
	if l.approvals[key] == 0 {
		delete(l.approvals, key)
	}
	l.balances[owner] -= amount
	l.balances[to] += amount
	return nil
}

// ValidateTransfer reports whether a direct transfer would succeed,
// without mutating anything. Used by multi-step operations that must
// validate every leg before the first mutation.
func (l *Ledger) ValidateTransfer(from uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if l.balances[from] < amount {
		return fmt.Errorf("%w: account=%s have=%d need=%d",
			ErrInsufficientBalance, from, l.balances[from], amount)
	}
	return nil
}

// ValidateTransferFrom reports whether a delegated transfer would
// succeed, without mutating anything.
func (l *Ledger) ValidateTransferFrom(spender, owner uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	allowed := l.approvals[approvalKey{Owner: owner, Spender: spender}]
	if allowed < amount {
		return fmt.Errorf("%w: owner=%s spender=%s allowed=%d need=%d",
			ErrInsufficientApproval, owner, spender, allowed, amount)
	}
	if l.balances[owner] < amount {
		return fmt.Errorf("%w: account=%s have=%d need=%d",
			ErrInsufficientBalance, owner, l.balances[owner], amount)
	}
	return nil
}

// ValidateSupplyConserved checks that balances still sum to the minted
// supply. Called from post-processing invariant checks.
func (l *Ledger) ValidateSupplyConserved() error {
	var sum uint64
	for _, b := range l.balances {
		sum += b
	}
	if sum != l.totalSupply {
		return fmt.Errorf("token supply mismatch: balances sum to %d, minted %d", sum, l.totalSupply)
	}
	return nil
}

// Snapshot returns a copy of all balances and approvals for state capture.
func (l *Ledger) Snapshot() (map[uuid.UUID]uint64, map[uuid.UUID]map[uuid.UUID]uint64) {
	balances := make(map[uuid.UUID]uint64, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	approvals := make(map[uuid.UUID]map[uuid.UUID]uint64)
	for k, v := range l.approvals {
		inner, ok := approvals[k.Owner]
		if !ok {
			inner = make(map[uuid.UUID]uint64)
			approvals[k.Owner] = inner
		}
		inner[k.Spender] = v
	}
	return balances, approvals
}

// Restore replaces ledger state from a snapshot.
func (l *Ledger) Restore(balances map[uuid.UUID]uint64, approvals map[uuid.UUID]map[uuid.UUID]uint64) {
	l.balances = make(map[uuid.UUID]uint64, len(balances))
	l.totalSupply = 0
	for k, v := range balances {
		l.balances[k] = v
		l.totalSupply += v
	}
	l.approvals = make(map[approvalKey]uint64)
	for owner, inner := range approvals {
		for spender, amount := range inner {
			l.approvals[approvalKey{Owner: owner, Spender: spender}] = amount
		}
	}
}
