package market

import (
	"fmt"

	"PlotMarket/internal/event"
	"PlotMarket/internal/field"
	fpmath "PlotMarket/internal/math"
	"PlotMarket/internal/token"

	"github.com/google/uuid"
)

// Converter is the auxiliary-payment leg: it turns auxiliary tokens
// into settlement tokens credited to a recipient, bounded by a maximum
// auxiliary input.
type Converter interface {
	// ValidateConvert reports whether the conversion would succeed,
	// without mutating anything.
	ValidateConvert(out, maxAuxIn uint64) error

	// ConvertTo performs the conversion and returns the auxiliary
	// amount charged.
	ConvertTo(recipient uuid.UUID, out, maxAuxIn uint64) (uint64, error)
}

// Marketplace is the order-matching engine over the plot ledger and the
// settlement-token ledger. Every public operation is all-or-nothing: it
// validates every leg against both ledgers before the first mutation,
// so a failed call leaves no partial state behind.
//
// The marketplace has its own account on the token ledger. It is the
// spender identity buyers approve, and it custodies buy-offer escrow.
// Not thread-safe — only accessed from the single-threaded market core.
type Marketplace struct {
	field     *field.Field
	ledger    *token.Ledger
	converter Converter
	account   uuid.UUID

	listings map[uint64]Listing
	offers   []BuyOffer
}

func NewMarketplace(f *field.Field, l *token.Ledger, conv Converter, account uuid.UUID) *Marketplace {
	return &Marketplace{
		field:     f,
		ledger:    l,
		converter: conv,
		account:   account,
		listings:  make(map[uint64]Listing),
	}
}

// Account returns the marketplace's own token account.
func (m *Marketplace) Account() uuid.UUID {
	return m.account
}

// GetListing returns the listing anchored at plotStart.
func (m *Marketplace) GetListing(plotStart uint64) (Listing, bool) {
	l, ok := m.listings[plotStart]
	return l, ok
}

// GetOffer returns the offer slot for id. A tombstoned offer reads with
// zeroed fields and ok true; ok is false only for a never-issued id.
func (m *Marketplace) GetOffer(id uint64) (BuyOffer, bool) {
	if id >= uint64(len(m.offers)) {
		return BuyOffer{}, false
	}
	return m.offers[id], true
}

// NextOfferID returns the id the next created offer will receive.
func (m *Marketplace) NextOfferID() uint64 {
	return uint64(len(m.offers))
}

// ListPlot records a sell order for the plot at (seller, plotStart).
// Units equal to the plot length, or zero, lists the whole plot. An
// existing listing at the same start is cancelled first; both
// transitions are observable.
func (m *Marketplace) ListPlot(seller uuid.UUID, plotStart, price, expiryPlace, units uint64) ([]event.Event, error) {
	plotLength := m.field.PlotLength(seller, plotStart)
	if plotLength == 0 {
		return nil, fmt.Errorf("%w: no plot at %d for %s", ErrNotOwner, plotStart, seller)
	}
	if units > plotLength {
		return nil, fmt.Errorf("%w: listed %d of %d units", ErrInvalidPlot, units, plotLength)
	}
	if price == 0 {
		return nil, ErrInvalidPrice
	}
	if plotStart+expiryPlace > m.field.TotalIssued() {
		return nil, fmt.Errorf("%w: cutoff %d, issued %d",
			ErrInvalidExpiry, plotStart+expiryPlace, m.field.TotalIssued())
	}

	events := make([]event.Event, 0, 2)
	if _, exists := m.listings[plotStart]; exists {
		delete(m.listings, plotStart)
		events = append(events, &event.ListingCancelled{Account: seller, PlotStart: plotStart})
	}

	// A full-plot listing is stored with units 0 so it tracks the
	// plot's remaining length rather than a stale figure.
	if units == plotLength {
		units = 0
	}
	listing := Listing{
		Account:     seller,
		PlotStart:   plotStart,
		Price:       price,
		ExpiryPlace: expiryPlace,
		Units:       units,
	}
	m.listings[plotStart] = listing
	events = append(events, &event.ListingCreated{
		Account:     seller,
		PlotStart:   plotStart,
		Price:       price,
		ExpiryPlace: expiryPlace,
		Units:       units,
	})
	return events, nil
}

// CancelListing withdraws the listing at plotStart. Ownership of the
// plot is what is checked; cancelling an unlisted owned plot succeeds
// as a no-op so a cancel racing a fill loses cleanly.
func (m *Marketplace) CancelListing(seller uuid.UUID, plotStart uint64) ([]event.Event, error) {
	if m.field.PlotLength(seller, plotStart) == 0 {
		return nil, fmt.Errorf("%w: no plot at %d for %s", ErrNotOwner, plotStart, seller)
	}
	delete(m.listings, plotStart)
	return []event.Event{
		&event.ListingCancelled{Account: seller, PlotStart: plotStart},
	}, nil
}

// listingFill is a fully validated, not yet applied fill of a listing.
type listingFill struct {
	listing   Listing
	units     uint64
	payment   uint64
	converted uint64
	remainder uint64
}

// planListingFill validates a purchase against the listing at
// (seller, plotStart) and computes the fill, mutating nothing.
func (m *Marketplace) planListingFill(seller uuid.UUID, plotStart, payment uint64) (listingFill, error) {
	l, ok := m.listings[plotStart]
	if !ok {
		return listingFill{}, fmt.Errorf("%w: plot %d", ErrNoSuchListing, plotStart)
	}
	plotLength := m.field.PlotLength(seller, plotStart)
	if plotLength == 0 || l.Account != seller {
		return listingFill{}, fmt.Errorf("%w: listing at %d not backed by seller %s",
			ErrInvalidPlot, plotStart, seller)
	}
	if m.field.Frontier() > plotStart+l.ExpiryPlace {
		return listingFill{}, fmt.Errorf("%w: cutoff %d, frontier %d",
			ErrExpired, plotStart+l.ExpiryPlace, m.field.Frontier())
	}

	units := fpmath.UnitsForPayment(payment, l.Price)
	if units == 0 {
		return listingFill{}, fmt.Errorf("%w: payment %d buys zero units at price %d",
			ErrInvalidPlot, payment, l.Price)
	}
	effective := l.Units
	if effective == 0 {
		effective = plotLength
	}
	if units > effective {
		return listingFill{}, fmt.Errorf("%w: fill of %d exceeds listed %d",
			ErrInvalidPlot, units, effective)
	}

	return listingFill{
		listing:   l,
		units:     units,
		payment:   payment,
		remainder: effective - units,
	}, nil
}

// applyListingFill moves the range and updates the listing book. The
// payment legs must already have been settled by the caller.
func (m *Marketplace) applyListingFill(buyer, seller uuid.UUID, plotStart uint64, fill listingFill) ([]event.Event, error) {
	if err := m.field.TransferRange(seller, plotStart, fill.units, buyer); err != nil {
		return nil, err
	}

	delete(m.listings, plotStart)
	if fill.remainder > 0 {
		// The seller's remainder was re-indexed by the head peel; the
		// listing follows it, keeping price and expiry.
		next := Listing{
			Account:     seller,
			PlotStart:   plotStart + fill.units,
			Price:       fill.listing.Price,
			ExpiryPlace: fill.listing.ExpiryPlace,
			Units:       fill.remainder,
		}
		m.listings[next.PlotStart] = next
	}

	return []event.Event{
		&event.ListingFilled{
			Buyer:     buyer,
			Seller:    seller,
			PlotStart: plotStart,
			Units:     fill.units,
			Payment:   fill.payment,
			Converted: fill.converted,
		},
	}, nil
}

// BuyListing spends payment settlement tokens from the buyer's balance
// (via the marketplace's allowance) against the listing at
// (seller, plotStart).
func (m *Marketplace) BuyListing(buyer, seller uuid.UUID, plotStart, payment uint64) ([]event.Event, error) {
	fill, err := m.planListingFill(seller, plotStart, payment)
	if err != nil {
		return nil, err
	}
	if err := m.ledger.ValidateTransferFrom(m.account, buyer, payment); err != nil {
		return nil, err
	}

	if err := m.ledger.TransferFrom(m.account, buyer, seller, payment); err != nil {
		return nil, err
	}
	return m.applyListingFill(buyer, seller, plotStart, fill)
}

// ConvertAndBuyListing pays for a listing with converted auxiliary
// tokens plus extraPayment from the buyer's balance. The converted
// settlement leg is delivered straight to the seller.
func (m *Marketplace) ConvertAndBuyListing(buyer, seller uuid.UUID, plotStart, extraPayment, settlementOut, maxAuxIn uint64) ([]event.Event, error) {
	fill, err := m.planListingFill(seller, plotStart, extraPayment+settlementOut)
	if err != nil {
		return nil, err
	}
	fill.converted = settlementOut
	if err := m.ledger.ValidateTransferFrom(m.account, buyer, extraPayment); err != nil {
		return nil, err
	}
	if err := m.converter.ValidateConvert(settlementOut, maxAuxIn); err != nil {
		return nil, err
	}

	if _, err := m.converter.ConvertTo(seller, settlementOut, maxAuxIn); err != nil {
		return nil, err
	}
	if err := m.ledger.TransferFrom(m.account, buyer, seller, extraPayment); err != nil {
		return nil, err
	}
	return m.applyListingFill(buyer, seller, plotStart, fill)
}

// ListBuyOffer escrows settlement tokens from the buyer into the
// marketplace account and records the standing offer. The offer's line
// quantity is derived from the escrow at the stated price.
func (m *Marketplace) ListBuyOffer(buyer uuid.UUID, maxPlaceInLine, price, escrow uint64) ([]event.Event, error) {
	if price == 0 {
		return nil, ErrInvalidPrice
	}
	amount := fpmath.UnitsForPayment(escrow, price)
	if amount == 0 {
		return nil, fmt.Errorf("%w: escrow %d buys zero units at price %d",
			ErrInvalidPrice, escrow, price)
	}
	if err := m.ledger.ValidateTransferFrom(m.account, buyer, escrow); err != nil {
		return nil, err
	}

	if err := m.ledger.TransferFrom(m.account, buyer, m.account, escrow); err != nil {
		return nil, err
	}
	return m.appendOffer(buyer, amount, price, maxPlaceInLine, escrow, 0), nil
}

// ConvertAndListBuyOffer escrows converted auxiliary tokens plus
// extraPayment from the buyer's balance as a single buy offer. The
// converted settlement leg is delivered straight into the marketplace's
// escrow; the offer's line quantity is derived from the combined escrow
// at the stated price.
func (m *Marketplace) ConvertAndListBuyOffer(buyer uuid.UUID, maxPlaceInLine, price, extraPayment, settlementOut, maxAuxIn uint64) ([]event.Event, error) {
	if price == 0 {
		return nil, ErrInvalidPrice
	}
	escrow := extraPayment + settlementOut
	amount := fpmath.UnitsForPayment(escrow, price)
	if amount == 0 {
		return nil, fmt.Errorf("%w: escrow %d buys zero units at price %d",
			ErrInvalidPrice, escrow, price)
	}
	if err := m.ledger.ValidateTransferFrom(m.account, buyer, extraPayment); err != nil {
		return nil, err
	}
	if err := m.converter.ValidateConvert(settlementOut, maxAuxIn); err != nil {
		return nil, err
	}

	if _, err := m.converter.ConvertTo(m.account, settlementOut, maxAuxIn); err != nil {
		return nil, err
	}
	if err := m.ledger.TransferFrom(m.account, buyer, m.account, extraPayment); err != nil {
		return nil, err
	}
	return m.appendOffer(buyer, amount, price, maxPlaceInLine, escrow, settlementOut), nil
}

func (m *Marketplace) appendOffer(buyer uuid.UUID, amount, price, maxPlaceInLine, escrow, converted uint64) []event.Event {
	id := uint64(len(m.offers))
	m.offers = append(m.offers, BuyOffer{
		ID:             id,
		Account:        buyer,
		Amount:         amount,
		Price:          price,
		MaxPlaceInLine: maxPlaceInLine,
	})
	return []event.Event{
		&event.BuyOfferCreated{
			OfferID:        id,
			Account:        buyer,
			Units:          amount,
			Price:          price,
			MaxPlaceInLine: maxPlaceInLine,
			Escrow:         escrow,
			Converted:      converted,
		},
	}
}

// CancelBuyOffer withdraws the buyer's offer and refunds the escrow
// still backing its remaining amount. A cancelled or fully filled id
// reads as a tombstone and cannot be cancelled again, so escrow can
// never be refunded twice.
func (m *Marketplace) CancelBuyOffer(buyer uuid.UUID, id uint64) ([]event.Event, error) {
	if id >= uint64(len(m.offers)) {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchOffer, id)
	}
	offer := m.offers[id]
	if offer.Tombstoned() {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchOffer, id)
	}
	if offer.Account != buyer {
		return nil, fmt.Errorf("%w: offer %d", ErrNotOwner, id)
	}

	refund := fpmath.PaymentForUnits(offer.Amount, offer.Price)
	if err := m.ledger.Transfer(m.account, buyer, refund); err != nil {
		return nil, err
	}
	m.offers[id] = BuyOffer{ID: id}
	return []event.Event{
		&event.BuyOfferCancelled{OfferID: id, Account: buyer, Refund: refund},
	}, nil
}

// SellToBuyOffer sells line units starting at plotStart into a standing
// offer. plotStart may fall inside one of the seller's plots; the head
// before it and the tail after the sold slice stay with the seller.
// plotEnd must equal plotStart+units as stated by the seller, which
// pins the call to the range layout the seller saw. units in excess of
// the offer's remaining amount is cut down to it.
func (m *Marketplace) SellToBuyOffer(seller uuid.UUID, plotStart, plotEnd, id, units uint64) ([]event.Event, error) {
	if id >= uint64(len(m.offers)) {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchOffer, id)
	}
	offer := m.offers[id]
	if offer.Tombstoned() {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchOffer, id)
	}
	if units == 0 || plotEnd != plotStart+units {
		return nil, fmt.Errorf("%w: end %d does not bound %d units from %d",
			ErrInvalidPlot, plotEnd, units, plotStart)
	}
	plot, ok := m.field.FindCovering(seller, plotStart)
	if !ok || plotStart+units > plot.End() {
		return nil, fmt.Errorf("%w: seller %s has no plot covering [%d,%d)",
			ErrInvalidPlot, seller, plotStart, plotStart+units)
	}
	var place uint64
	if plotStart > m.field.Frontier() {
		place = plotStart - m.field.Frontier()
	}
	if place > offer.MaxPlaceInLine {
		return nil, fmt.Errorf("%w: place %d, cap %d", ErrTooFarInLine, place, offer.MaxPlaceInLine)
	}

	accepted := units
	if accepted > offer.Amount {
		accepted = offer.Amount
	}
	payment := fpmath.PaymentForUnits(accepted, offer.Price)
	if err := m.ledger.ValidateTransfer(m.account, payment); err != nil {
		return nil, err
	}

	if err := m.ledger.Transfer(m.account, seller, payment); err != nil {
		return nil, err
	}
	if err := m.field.TransferWithin(seller, plot.Start, plotStart, accepted, offer.Account); err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, 2)
	// A sold plot cannot stay listed: the range behind any listing
	// anchored inside the sold slice is gone.
	if l, exists := m.listings[plot.Start]; exists && l.Account == seller {
		delete(m.listings, plot.Start)
		events = append(events, &event.ListingCancelled{Account: seller, PlotStart: plot.Start})
	}

	offer.Amount -= accepted
	if offer.Amount == 0 {
		m.offers[id] = BuyOffer{ID: id}
	} else {
		m.offers[id] = offer
	}

	events = append(events, &event.BuyOfferFilled{
		OfferID:   id,
		Seller:    seller,
		Buyer:     offer.Account,
		PlotStart: plotStart,
		Units:     accepted,
		Payment:   payment,
	})
	return events, nil
}

// ValidateEscrowCovered checks that the marketplace account still holds
// enough settlement tokens to refund every open offer in full. Floor
// rounding on fills can only leave the account over-collateralized.
func (m *Marketplace) ValidateEscrowCovered() error {
	var owed uint64
	for _, o := range m.offers {
		owed += fpmath.PaymentForUnits(o.Amount, o.Price)
	}
	if held := m.ledger.BalanceOf(m.account); held < owed {
		return fmt.Errorf("escrow undercollateralized: held=%d owed=%d", held, owed)
	}
	return nil
}

// Snapshot captures the listing and offer books for state capture.
func (m *Marketplace) Snapshot() (map[uint64]Listing, []BuyOffer) {
	listings := make(map[uint64]Listing, len(m.listings))
	for k, v := range m.listings {
		listings[k] = v
	}
	offers := make([]BuyOffer, len(m.offers))
	copy(offers, m.offers)
	return listings, offers
}

// Restore replaces both books from a snapshot.
func (m *Marketplace) Restore(listings map[uint64]Listing, offers []BuyOffer) {
	m.listings = make(map[uint64]Listing, len(listings))
	for k, v := range listings {
		m.listings[k] = v
	}
	m.offers = make([]BuyOffer, len(offers))
	copy(m.offers, offers)
}

// Listings returns a copy of all active listings keyed by plot start.
func (m *Marketplace) Listings() map[uint64]Listing {
	out := make(map[uint64]Listing, len(m.listings))
	for k, v := range m.listings {
		out[k] = v
	}
	return out
}
