package command

import (
	"time"

	"github.com/google/uuid"
)

// Sow issues a new plot of Units length at the back of the line.
// Idempotency key: command_id.
type Sow struct {
	CommandID uuid.UUID
	Farmer    uuid.UUID
	Units     uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *Sow) IdempotencyKey() string { return c.CommandID.String() }
func (c *Sow) CommandType() Type      { return TypeSow }
func (c *Sow) Account() uuid.UUID     { return c.Farmer }
func (c *Sow) SourceSequence() int64  { return c.Seq }
func (c *Sow) Timestamp() time.Time   { return c.IssuedAt }

// AdvanceFrontier moves the harvestable frontier forward by Units.
// Global command: no acting account.
type AdvanceFrontier struct {
	CommandID uuid.UUID
	Units     uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *AdvanceFrontier) IdempotencyKey() string { return c.CommandID.String() }
func (c *AdvanceFrontier) CommandType() Type      { return TypeAdvanceFrontier }
func (c *AdvanceFrontier) Account() uuid.UUID     { return uuid.Nil }
func (c *AdvanceFrontier) SourceSequence() int64  { return c.Seq }
func (c *AdvanceFrontier) Timestamp() time.Time   { return c.IssuedAt }

// Harvest redeems the harvestable portion of the plot at PlotStart.
type Harvest struct {
	CommandID uuid.UUID
	Farmer    uuid.UUID
	PlotStart uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *Harvest) IdempotencyKey() string { return c.CommandID.String() }
func (c *Harvest) CommandType() Type      { return TypeHarvest }
func (c *Harvest) Account() uuid.UUID     { return c.Farmer }
func (c *Harvest) SourceSequence() int64  { return c.Seq }
func (c *Harvest) Timestamp() time.Time   { return c.IssuedAt }
