package event

import (
	"github.com/google/uuid"
)

// SettlementMinted records new settlement tokens credited to an account.
type SettlementMinted struct {
	Account uuid.UUID `json:"account"`
	Amount  uint64    `json:"amount"`
}

func (e *SettlementMinted) EventType() EventType {
	return EventTypeSettlementMinted
}

// SettlementApproved records an allowance set by an owner for a spender.
type SettlementApproved struct {
	Owner   uuid.UUID `json:"owner"`
	Spender uuid.UUID `json:"spender"`
	Amount  uint64    `json:"amount"`
}

func (e *SettlementApproved) EventType() EventType {
	return EventTypeSettlementApproved
}

// ReservesUpdated records a change to the swap pair reserves, whether
// from a conversion or an external reserve sync.
type ReservesUpdated struct {
	ReserveAux        uint64 `json:"reserve_aux"`
	ReserveSettlement uint64 `json:"reserve_settlement"`
}

func (e *ReservesUpdated) EventType() EventType {
	return EventTypeReservesUpdated
}
