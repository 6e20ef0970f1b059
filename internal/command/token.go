package command

import (
	"time"

	"github.com/google/uuid"
)

// MintSettlement credits newly issued settlement tokens to an account.
type MintSettlement struct {
	CommandID uuid.UUID
	To        uuid.UUID
	Amount    uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *MintSettlement) IdempotencyKey() string { return c.CommandID.String() }
func (c *MintSettlement) CommandType() Type      { return TypeMintSettlement }
func (c *MintSettlement) Account() uuid.UUID     { return c.To }
func (c *MintSettlement) SourceSequence() int64  { return c.Seq }
func (c *MintSettlement) Timestamp() time.Time   { return c.IssuedAt }

// ApproveSettlement sets the allowance Spender may move from Owner.
// The marketplace itself is a spender: buyers approve the market
// account before buying from internal balances.
type ApproveSettlement struct {
	CommandID uuid.UUID
	Owner     uuid.UUID
	Spender   uuid.UUID
	Amount    uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *ApproveSettlement) IdempotencyKey() string { return c.CommandID.String() }
func (c *ApproveSettlement) CommandType() Type      { return TypeApproveSettlement }
func (c *ApproveSettlement) Account() uuid.UUID     { return c.Owner }
func (c *ApproveSettlement) SourceSequence() int64  { return c.Seq }
func (c *ApproveSettlement) Timestamp() time.Time   { return c.IssuedAt }

// SyncReserves overwrites the swap pair reserves. Global command used
// by the reserve oracle; no acting account.
type SyncReserves struct {
	CommandID         uuid.UUID
	ReserveAux        uint64
	ReserveSettlement uint64
	Seq               int64
	IssuedAt          time.Time
}

func (c *SyncReserves) IdempotencyKey() string { return c.CommandID.String() }
func (c *SyncReserves) CommandType() Type      { return TypeSyncReserves }
func (c *SyncReserves) Account() uuid.UUID     { return uuid.Nil }
func (c *SyncReserves) SourceSequence() int64  { return c.Seq }
func (c *SyncReserves) Timestamp() time.Time   { return c.IssuedAt }
