package market

import (
	"errors"
)

var (
	// ErrNotOwner is returned when the caller lacks the required
	// ownership of the plot, listing, or offer.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidPlot is returned when a referenced range does not
	// exist, is too short, or the caller-supplied boundary mismatches.
	ErrInvalidPlot = errors.New("invalid plot")

	// ErrInvalidPrice is returned when a listing or offer carries a
	// zero price.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrInvalidExpiry is returned when a listing's expiry would place
	// the cutoff past the issued line.
	ErrInvalidExpiry = errors.New("expiry beyond issued line")

	// ErrExpired is returned when the frontier has passed a listing's
	// expiry cutoff.
	ErrExpired = errors.New("listing expired")

	// ErrNoSuchListing is returned on a listing lookup miss.
	ErrNoSuchListing = errors.New("no such listing")

	// ErrNoSuchOffer is returned on an offer lookup miss or a
	// tombstoned offer.
	ErrNoSuchOffer = errors.New("no such offer")

	// ErrTooFarInLine is returned when a plot's place in line exceeds
	// the offer's cap.
	ErrTooFarInLine = errors.New("plot too far in line for offer")
)
