package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the projection tables. All
// responses include as_of_sequence for freshness semantics: a client
// that just submitted a command can poll until the watermark passes
// the command's assigned sequence.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns an account's settlement balance plus derived
// holdings.
func (qs *QueryService) GetBalance(ctx context.Context, account uuid.UUID) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var balance int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances WHERE account = $1
	`, account.String()).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	var plotUnits uint64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(length), 0) FROM projections.plots WHERE account = $1
	`, account.String()).Scan(&plotUnits); err != nil {
		return nil, err
	}

	var offerEscrow uint64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount * price / 1000000), 0)
		FROM projections.offers WHERE account = $1 AND amount > 0
	`, account.String()).Scan(&offerEscrow); err != nil {
		return nil, err
	}

	return &BalanceResponse{
		Account:      account,
		Balance:      balance,
		PlotUnits:    plotUnits,
		OfferEscrow:  offerEscrow,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetPlots returns all plots owned by an account, front of line first.
func (qs *QueryService) GetPlots(ctx context.Context, account uuid.UUID) ([]PlotResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	frontier, err := qs.getFrontier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT plot_start, length FROM projections.plots
		WHERE account = $1
		ORDER BY plot_start
	`, account.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plots []PlotResponse
	for rows.Next() {
		var p PlotResponse
		p.Account = account
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(&p.PlotStart, &p.Length); err != nil {
			return nil, err
		}
		if p.PlotStart > frontier {
			p.PlaceInLine = p.PlotStart - frontier
		} else {
			harvestable := frontier - p.PlotStart
			if harvestable > p.Length {
				harvestable = p.Length
			}
			p.Harvestable = harvestable
		}
		plots = append(plots, p)
	}

	return plots, rows.Err()
}

// GetListing returns the listing at a plot start index, or nil if none.
func (qs *QueryService) GetListing(ctx context.Context, plotStart uint64) (*ListingResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var l ListingResponse
	var accountStr string
	err = qs.db.QueryRowContext(ctx, `
		SELECT account, plot_start, price, expiry_place, units
		FROM projections.listings WHERE plot_start = $1
	`, plotStart).Scan(&accountStr, &l.PlotStart, &l.Price, &l.ExpiryPlace, &l.Units)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Account, err = uuid.Parse(accountStr)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	l.AsOfSequence = asOfSeq
	return &l, nil
}

// GetListings returns active listings ordered by place in line, with
// cursor-based pagination on plot_start.
func (qs *QueryService) GetListings(ctx context.Context, limit int, afterStart *uint64) ([]ListingResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT account, plot_start, price, expiry_place, units
		FROM projections.listings
	`
	args := []interface{}{}
	argIdx := 1

	if afterStart != nil {
		query += fmt.Sprintf(" WHERE plot_start > $%d", argIdx)
		args = append(args, *afterStart)
		argIdx++
	}

	query += " ORDER BY plot_start ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []ListingResponse
	for rows.Next() {
		var l ListingResponse
		var accountStr string
		if err := rows.Scan(&accountStr, &l.PlotStart, &l.Price, &l.ExpiryPlace, &l.Units); err != nil {
			return nil, err
		}
		l.Account, err = uuid.Parse(accountStr)
		if err != nil {
			return nil, fmt.Errorf("parse account: %w", err)
		}
		l.AsOfSequence = asOfSeq
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// GetOffer returns a buy offer by id. Tombstoned offers read back with
// zeroed terms; a never-issued id returns nil.
func (qs *QueryService) GetOffer(ctx context.Context, offerID uint64) (*OfferResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var o OfferResponse
	var accountStr string
	err = qs.db.QueryRowContext(ctx, `
		SELECT offer_id, account, amount, price, max_place_in_line
		FROM projections.offers WHERE offer_id = $1
	`, offerID).Scan(&o.OfferID, &accountStr, &o.Amount, &o.Price, &o.MaxPlaceInLine)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.Account, err = uuid.Parse(accountStr)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	o.AsOfSequence = asOfSeq
	return &o, nil
}

// GetOpenOffers returns non-tombstoned offers, oldest first, with
// cursor-based pagination on offer_id.
func (qs *QueryService) GetOpenOffers(ctx context.Context, limit int, afterID *uint64) ([]OfferResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT offer_id, account, amount, price, max_place_in_line
		FROM projections.offers
		WHERE amount > 0
	`
	args := []interface{}{}
	argIdx := 1

	if afterID != nil {
		query += fmt.Sprintf(" AND offer_id > $%d", argIdx)
		args = append(args, *afterID)
		argIdx++
	}

	query += " ORDER BY offer_id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []OfferResponse
	for rows.Next() {
		var o OfferResponse
		var accountStr string
		if err := rows.Scan(&o.OfferID, &accountStr, &o.Amount, &o.Price, &o.MaxPlaceInLine); err != nil {
			return nil, err
		}
		o.Account, err = uuid.Parse(accountStr)
		if err != nil {
			return nil, fmt.Errorf("parse account: %w", err)
		}
		o.AsOfSequence = asOfSeq
		offers = append(offers, o)
	}

	return offers, rows.Err()
}

// GetLineStats returns the global line counters and the swap reserves.
func (qs *QueryService) GetLineStats(ctx context.Context) (*LineStatsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var s LineStatsResponse
	err = qs.db.QueryRowContext(ctx, `
		SELECT total_issued, frontier, harvested, reserve_aux, reserve_settlement
		FROM projections.line WHERE id = 'main'
	`).Scan(&s.TotalIssued, &s.Frontier, &s.Harvested, &s.ReserveAux, &s.ReserveSettlement)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	s.OutstandingLine = s.TotalIssued - s.Harvested
	s.AsOfSequence = asOfSeq
	return &s, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and balance invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context, escrowAccount uuid.UUID) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT c1.sequence
		FROM market_log.commands c1
		LEFT JOIN market_log.commands c2 ON c2.sequence = c1.sequence - 1
		WHERE c1.sequence > 0 AND c1.prev_hash != COALESCE(c2.state_hash, c1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Balances must never go negative
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projections.balances WHERE balance < 0
	`).Scan(&report.NegativeBalances); err != nil {
		return nil, err
	}

	// Escrow coverage: the market account must hold at least the sum of
	// all open offers' remaining obligations
	var escrowBalance, required int64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances WHERE account = $1
	`, escrowAccount.String()).Scan(&escrowBalance); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount * price / 1000000), 0) FROM projections.offers WHERE amount > 0
	`).Scan(&required); err != nil {
		return nil, err
	}
	if required > escrowBalance {
		report.EscrowShortfall = required - escrowBalance
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 &&
		report.NegativeBalances == 0 && report.EscrowShortfall == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getFrontier(ctx context.Context) (uint64, error) {
	var frontier uint64
	err := qs.db.QueryRowContext(ctx, `
		SELECT frontier FROM projections.line WHERE id = 'main'
	`).Scan(&frontier)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return frontier, err
}
