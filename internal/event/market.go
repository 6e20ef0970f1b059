package event

import (
	"github.com/google/uuid"
)

// ListingCreated records a plot put up for sale. Units 0 means the
// whole plot is for sale.
type ListingCreated struct {
	Account     uuid.UUID `json:"account"`
	PlotStart   uint64    `json:"plot_start"`
	Price       uint64    `json:"price"`
	ExpiryPlace uint64    `json:"expiry_place"`
	Units       uint64    `json:"units"`
}

func (e *ListingCreated) EventType() EventType {
	return EventTypeListingCreated
}

// ListingCancelled records withdrawal of a listing, whether by explicit
// cancel or by re-listing the same plot.
type ListingCancelled struct {
	Account   uuid.UUID `json:"account"`
	PlotStart uint64    `json:"plot_start"`
}

func (e *ListingCancelled) EventType() EventType {
	return EventTypeListingCancelled
}

// ListingFilled records a purchase against a listing. Units is the line
// length transferred; Payment is the settlement amount paid. Converted
// is the portion of Payment minted by swap conversion rather than
// drawn from the buyer's balance.
type ListingFilled struct {
	Buyer     uuid.UUID `json:"buyer"`
	Seller    uuid.UUID `json:"seller"`
	PlotStart uint64    `json:"plot_start"`
	Units     uint64    `json:"units"`
	Payment   uint64    `json:"payment"`
	Converted uint64    `json:"converted"`
}

func (e *ListingFilled) EventType() EventType {
	return EventTypeListingFilled
}

// BuyOfferCreated records escrowed standing demand for plots. Escrow
// is the settlement amount locked; Converted is the portion of it
// minted by swap conversion rather than drawn from the buyer's balance.
type BuyOfferCreated struct {
	OfferID        uint64    `json:"offer_id"`
	Account        uuid.UUID `json:"account"`
	Units          uint64    `json:"units"`
	Price          uint64    `json:"price"`
	MaxPlaceInLine uint64    `json:"max_place_in_line"`
	Escrow         uint64    `json:"escrow"`
	Converted      uint64    `json:"converted"`
}

func (e *BuyOfferCreated) EventType() EventType {
	return EventTypeBuyOfferCreated
}

// BuyOfferCancelled records withdrawal of a buy offer and the escrow
// refunded to its owner.
type BuyOfferCancelled struct {
	OfferID uint64    `json:"offer_id"`
	Account uuid.UUID `json:"account"`
	Refund  uint64    `json:"refund"`
}

func (e *BuyOfferCancelled) EventType() EventType {
	return EventTypeBuyOfferCancelled
}

// BuyOfferFilled records a sale of plot units into a standing offer.
type BuyOfferFilled struct {
	OfferID   uint64    `json:"offer_id"`
	Seller    uuid.UUID `json:"seller"`
	Buyer     uuid.UUID `json:"buyer"`
	PlotStart uint64    `json:"plot_start"`
	Units     uint64    `json:"units"`
	Payment   uint64    `json:"payment"`
}

func (e *BuyOfferFilled) EventType() EventType {
	return EventTypeBuyOfferFilled
}
