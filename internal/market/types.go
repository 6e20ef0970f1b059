package market

import (
	"github.com/google/uuid"
)

// DefaultAccount is the well-known ledger account of the marketplace
// itself. Buyers approve it as a spender; buy-offer escrow is held
// under it. Fixed so that replay and restarts resolve the same account.
var DefaultAccount = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Listing is a standing sell order anchored to one plot's start index.
// Units 0 means the whole current plot length is for sale.
type Listing struct {
	Account     uuid.UUID `json:"account"`
	PlotStart   uint64    `json:"plot_start"`
	Price       uint64    `json:"price"`
	ExpiryPlace uint64    `json:"expiry_place"`
	Units       uint64    `json:"units"`
}

// BuyOffer is a standing, escrow-backed buy order not anchored to any
// specific plot. Amount is the remaining unfilled line quantity. A
// cancelled or fully filled offer is tombstoned in place with every
// field zeroed, so ids stay stable and are never reused.
type BuyOffer struct {
	ID             uint64    `json:"id"`
	Account        uuid.UUID `json:"account"`
	Amount         uint64    `json:"amount"`
	Price          uint64    `json:"price"`
	MaxPlaceInLine uint64    `json:"max_place_in_line"`
}

// Tombstoned reports whether the offer slot has been cleared by a full
// fill or a cancellation.
func (o BuyOffer) Tombstoned() bool {
	return o.Amount == 0 && o.Price == 0
}
