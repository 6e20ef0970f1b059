package command

import (
	"time"

	"github.com/google/uuid"
)

// ListPlot puts the plot at PlotStart up for sale. Units 0 (or equal to
// the plot length) lists the whole plot. Re-listing an already listed
// plot replaces the previous listing.
type ListPlot struct {
	CommandID   uuid.UUID
	Seller      uuid.UUID
	PlotStart   uint64
	Price       uint64
	ExpiryPlace uint64
	Units       uint64
	Seq         int64
	IssuedAt    time.Time
}

func (c *ListPlot) IdempotencyKey() string { return c.CommandID.String() }
func (c *ListPlot) CommandType() Type      { return TypeListPlot }
func (c *ListPlot) Account() uuid.UUID     { return c.Seller }
func (c *ListPlot) SourceSequence() int64  { return c.Seq }
func (c *ListPlot) Timestamp() time.Time   { return c.IssuedAt }

// CancelListing withdraws the seller's listing at PlotStart.
type CancelListing struct {
	CommandID uuid.UUID
	Seller    uuid.UUID
	PlotStart uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *CancelListing) IdempotencyKey() string { return c.CommandID.String() }
func (c *CancelListing) CommandType() Type      { return TypeCancelListing }
func (c *CancelListing) Account() uuid.UUID     { return c.Seller }
func (c *CancelListing) SourceSequence() int64  { return c.Seq }
func (c *CancelListing) Timestamp() time.Time   { return c.IssuedAt }

// BuyListing spends Payment settlement tokens against the listing at
// (Seller, PlotStart). A payment covering less than the listed amount
// takes the head of the listed range.
type BuyListing struct {
	CommandID uuid.UUID
	Buyer     uuid.UUID
	Seller    uuid.UUID
	PlotStart uint64
	Payment   uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *BuyListing) IdempotencyKey() string { return c.CommandID.String() }
func (c *BuyListing) CommandType() Type      { return TypeBuyListing }
func (c *BuyListing) Account() uuid.UUID     { return c.Buyer }
func (c *BuyListing) SourceSequence() int64  { return c.Seq }
func (c *BuyListing) Timestamp() time.Time   { return c.IssuedAt }

// ConvertAndBuyListing converts up to MaxAuxIn auxiliary tokens into
// SettlementOut settlement tokens via the swap pair, adds ExtraPayment
// from the buyer's balance, and spends the total against the listing.
type ConvertAndBuyListing struct {
	CommandID     uuid.UUID
	Buyer         uuid.UUID
	Seller        uuid.UUID
	PlotStart     uint64
	ExtraPayment  uint64
	SettlementOut uint64
	MaxAuxIn      uint64
	Seq           int64
	IssuedAt      time.Time
}

func (c *ConvertAndBuyListing) IdempotencyKey() string { return c.CommandID.String() }
func (c *ConvertAndBuyListing) CommandType() Type      { return TypeConvertAndBuyListing }
func (c *ConvertAndBuyListing) Account() uuid.UUID     { return c.Buyer }
func (c *ConvertAndBuyListing) SourceSequence() int64  { return c.Seq }
func (c *ConvertAndBuyListing) Timestamp() time.Time   { return c.IssuedAt }

// ListBuyOffer escrows Escrow settlement tokens as standing demand for
// plots no deeper in line than MaxPlaceInLine.
type ListBuyOffer struct {
	CommandID      uuid.UUID
	Buyer          uuid.UUID
	MaxPlaceInLine uint64
	Price          uint64
	Escrow         uint64
	Seq            int64
	IssuedAt       time.Time
}

func (c *ListBuyOffer) IdempotencyKey() string { return c.CommandID.String() }
func (c *ListBuyOffer) CommandType() Type      { return TypeListBuyOffer }
func (c *ListBuyOffer) Account() uuid.UUID     { return c.Buyer }
func (c *ListBuyOffer) SourceSequence() int64  { return c.Seq }
func (c *ListBuyOffer) Timestamp() time.Time   { return c.IssuedAt }

// ConvertAndListBuyOffer converts auxiliary tokens into SettlementOut
// settlement tokens via the swap pair, adds ExtraPayment from the
// buyer's balance, and escrows the total as a buy offer.
type ConvertAndListBuyOffer struct {
	CommandID      uuid.UUID
	Buyer          uuid.UUID
	MaxPlaceInLine uint64
	Price          uint64
	ExtraPayment   uint64
	SettlementOut  uint64
	MaxAuxIn       uint64
	Seq            int64
	IssuedAt       time.Time
}

func (c *ConvertAndListBuyOffer) IdempotencyKey() string { return c.CommandID.String() }
func (c *ConvertAndListBuyOffer) CommandType() Type      { return TypeConvertAndListBuyOffer }
func (c *ConvertAndListBuyOffer) Account() uuid.UUID     { return c.Buyer }
func (c *ConvertAndListBuyOffer) SourceSequence() int64  { return c.Seq }
func (c *ConvertAndListBuyOffer) Timestamp() time.Time   { return c.IssuedAt }

// CancelBuyOffer withdraws the buyer's offer and refunds the remaining
// escrow.
type CancelBuyOffer struct {
	CommandID uuid.UUID
	Buyer     uuid.UUID
	OfferID   uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *CancelBuyOffer) IdempotencyKey() string { return c.CommandID.String() }
func (c *CancelBuyOffer) CommandType() Type      { return TypeCancelBuyOffer }
func (c *CancelBuyOffer) Account() uuid.UUID     { return c.Buyer }
func (c *CancelBuyOffer) SourceSequence() int64  { return c.Seq }
func (c *CancelBuyOffer) Timestamp() time.Time   { return c.IssuedAt }

// SellToBuyOffer sells Units line units starting at PlotStart into a
// standing offer. PlotStart may fall inside one of the seller's plots;
// the head and tail around the sold slice stay with the seller.
// PlotEnd is the boundary the seller expects the sale to reach and must
// equal PlotStart+Units.
type SellToBuyOffer struct {
	CommandID uuid.UUID
	Seller    uuid.UUID
	OfferID   uint64
	PlotStart uint64
	PlotEnd   uint64
	Units     uint64
	Seq       int64
	IssuedAt  time.Time
}

func (c *SellToBuyOffer) IdempotencyKey() string { return c.CommandID.String() }
func (c *SellToBuyOffer) CommandType() Type      { return TypeSellToBuyOffer }
func (c *SellToBuyOffer) Account() uuid.UUID     { return c.Seller }
func (c *SellToBuyOffer) SourceSequence() int64  { return c.Seq }
func (c *SellToBuyOffer) Timestamp() time.Time   { return c.IssuedAt }
