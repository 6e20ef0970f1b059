package query

import "github.com/google/uuid"

// PlotResponse represents an owned plot for API queries.
type PlotResponse struct {
	Account      uuid.UUID `json:"account"`
	PlotStart    uint64    `json:"plot_start"`
	Length       uint64    `json:"length"`
	PlaceInLine  uint64    `json:"place_in_line"` // Derived at query time
	Harvestable  uint64    `json:"harvestable"`   // Units below the frontier
	AsOfSequence int64     `json:"as_of_sequence"`
}

// ListingResponse represents an active listing for API queries.
type ListingResponse struct {
	Account      uuid.UUID `json:"account"`
	PlotStart    uint64    `json:"plot_start"`
	Price        uint64    `json:"price"`
	ExpiryPlace  uint64    `json:"expiry_place"`
	Units        uint64    `json:"units"` // 0 means whole plot
	AsOfSequence int64     `json:"as_of_sequence"`
}

// OfferResponse represents a buy offer for API queries. A tombstoned
// offer reads back with amount, price, and max_place_in_line all zero.
type OfferResponse struct {
	OfferID        uint64    `json:"offer_id"`
	Account        uuid.UUID `json:"account"`
	Amount         uint64    `json:"amount"`
	Price          uint64    `json:"price"`
	MaxPlaceInLine uint64    `json:"max_place_in_line"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool    `json:"is_healthy"`
	HashChainBreaks  []int64 `json:"hash_chain_breaks,omitempty"`
	NegativeBalances int64   `json:"negative_balances"`
	EscrowShortfall  int64   `json:"escrow_shortfall"`
}
