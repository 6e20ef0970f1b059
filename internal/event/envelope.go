package event

// EventType discriminator for observable event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeSowed
	EventTypeFrontierAdvanced
	EventTypeHarvested
	EventTypeSettlementMinted
	EventTypeSettlementApproved
	EventTypeListingCreated
	EventTypeListingCancelled
	EventTypeListingFilled
	EventTypeBuyOfferCreated
	EventTypeBuyOfferCancelled
	EventTypeBuyOfferFilled
	EventTypeReservesUpdated
)

// Event is the interface all observable event payloads implement.
// Events are what the core emits after a command is applied; they are
// journaled alongside the command envelope and drive projections and
// outbound publishing.
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeSowed:
		return "Sowed"
	case EventTypeFrontierAdvanced:
		return "FrontierAdvanced"
	case EventTypeHarvested:
		return "Harvested"
	case EventTypeSettlementMinted:
		return "SettlementMinted"
	case EventTypeSettlementApproved:
		return "SettlementApproved"
	case EventTypeListingCreated:
		return "ListingCreated"
	case EventTypeListingCancelled:
		return "ListingCancelled"
	case EventTypeListingFilled:
		return "ListingFilled"
	case EventTypeBuyOfferCreated:
		return "BuyOfferCreated"
	case EventTypeBuyOfferCancelled:
		return "BuyOfferCancelled"
	case EventTypeBuyOfferFilled:
		return "BuyOfferFilled"
	case EventTypeReservesUpdated:
		return "ReservesUpdated"
	default:
		return "Unknown"
	}
}
