package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents an account's settlement balance for API
// queries.
type BalanceResponse struct {
	Account uuid.UUID `json:"account"`
	Balance int64     `json:"balance"`

	// Derived values (computed at query time, NOT ledger balances)
	PlotUnits    uint64 `json:"plot_units"`    // total line units owned
	OfferEscrow  uint64 `json:"offer_escrow"`  // settlement locked in open offers
	AsOfSequence int64  `json:"as_of_sequence"`
}

// LineStatsResponse describes the global state of the line and the
// swap pair reserves.
type LineStatsResponse struct {
	TotalIssued       uint64 `json:"total_issued"`
	Frontier          uint64 `json:"frontier"`
	Harvested         uint64 `json:"harvested"`
	OutstandingLine   uint64 `json:"outstanding_line"` // total_issued - harvested
	ReserveAux        uint64 `json:"reserve_aux"`
	ReserveSettlement uint64 `json:"reserve_settlement"`
	AsOfSequence      int64  `json:"as_of_sequence"`
}
