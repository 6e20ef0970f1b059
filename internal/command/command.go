package command

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for command payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeSow
	TypeAdvanceFrontier
	TypeHarvest
	TypeMintSettlement
	TypeApproveSettlement
	TypeListPlot
	TypeCancelListing
	TypeBuyListing
	TypeConvertAndBuyListing
	TypeListBuyOffer
	TypeCancelBuyOffer
	TypeSellToBuyOffer
	TypeConvertAndListBuyOffer
	TypeSyncReserves
)

// Envelope wraps every command in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	CommandType Type

	// Acting account (uuid.Nil for global commands)
	Account uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation (0 = unordered source)
	SourceSequence int64

	// JSON-encoded command-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads must implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() Type

	// Account returns the acting account (uuid.Nil for global commands)
	Account() uuid.UUID

	// SourceSequence returns the upstream ordering key. Zero means the
	// source does not assign sequences and ordering is not validated.
	SourceSequence() int64

	// Timestamp returns the versioned input timestamp. The core never
	// reads the wall clock.
	Timestamp() time.Time
}

func (t Type) String() string {
	switch t {
	case TypeSow:
		return "Sow"
	case TypeAdvanceFrontier:
		return "AdvanceFrontier"
	case TypeHarvest:
		return "Harvest"
	case TypeMintSettlement:
		return "MintSettlement"
	case TypeApproveSettlement:
		return "ApproveSettlement"
	case TypeListPlot:
		return "ListPlot"
	case TypeCancelListing:
		return "CancelListing"
	case TypeBuyListing:
		return "BuyListing"
	case TypeConvertAndBuyListing:
		return "ConvertAndBuyListing"
	case TypeListBuyOffer:
		return "ListBuyOffer"
	case TypeCancelBuyOffer:
		return "CancelBuyOffer"
	case TypeSellToBuyOffer:
		return "SellToBuyOffer"
	case TypeConvertAndListBuyOffer:
		return "ConvertAndListBuyOffer"
	case TypeSyncReserves:
		return "SyncReserves"
	default:
		return "Unknown"
	}
}
