package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"PlotMarket/internal/event"
	"PlotMarket/internal/market"
)

// ProjectionOutput carries one applied command's events to the read
// model. The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	Events    []event.Event
	Timestamp int64
}

// ProjectionWorker updates the read-model tables from applied events.
// The projection channel is non-blocking with drop: if projections
// fall behind, they can be rebuilt from the command log, so a failed
// or missed update is logged and skipped rather than retried.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	fills     *FillHistoryProjection
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, fills *FillHistoryProjection) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		fills:     fills,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent and
				// can be rebuilt from the command log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, evt := range output.Events {
		if err := pw.applyEvent(ctx, tx, output, evt); err != nil {
			return fmt.Errorf("%s projection: %w", evt.EventType(), err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) applyEvent(ctx context.Context, tx *sql.Tx, output ProjectionOutput, evt event.Event) error {
	seq := output.Sequence
	escrowAccount := market.DefaultAccount.String()

	switch e := evt.(type) {
	case *event.Sowed:
		if err := pw.addBalance(ctx, tx, e.Account.String(), -int64(e.Units), seq); err != nil {
			return err
		}
		if err := pw.upsertPlot(ctx, tx, e.Account.String(), e.PlotStart, e.Units, seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.line SET total_issued = $1, last_sequence = $2 WHERE id = 'main'
		`, e.PlotStart+e.Units, seq)
		return err

	case *event.FrontierAdvanced:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.line SET frontier = $1, last_sequence = $2 WHERE id = 'main'
		`, e.Frontier, seq)
		return err

	case *event.Harvested:
		if err := pw.shrinkPlotHead(ctx, tx, e.Account.String(), e.PlotStart, e.Units, seq); err != nil {
			return err
		}
		if err := pw.addBalance(ctx, tx, e.Account.String(), int64(e.Units), seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.line
			SET harvested = harvested + $1, last_sequence = $2 WHERE id = 'main'
		`, e.Units, seq)
		return err

	case *event.SettlementMinted:
		return pw.addBalance(ctx, tx, e.Account.String(), int64(e.Amount), seq)

	case *event.SettlementApproved:
		// Allowances are not projected; they gate writes, not reads.
		return nil

	case *event.ListingCreated:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.listings (plot_start, account, price, expiry_place, units, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (plot_start) DO UPDATE
			SET account = $2, price = $3, expiry_place = $4, units = $5, last_sequence = $6
		`, e.PlotStart, e.Account.String(), e.Price, e.ExpiryPlace, e.Units, seq)
		return err

	case *event.ListingCancelled:
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.listings WHERE plot_start = $1
		`, e.PlotStart)
		return err

	case *event.ListingFilled:
		if pw.fills != nil {
			pw.fills.AddEntry(FillHistoryEntry{
				Sequence:  seq,
				Kind:      "listing",
				Buyer:     e.Buyer,
				Seller:    e.Seller,
				PlotStart: e.PlotStart,
				Units:     e.Units,
				Payment:   e.Payment,
				Timestamp: output.Timestamp,
			})
		}
		if err := pw.addBalance(ctx, tx, e.Buyer.String(), -int64(e.Payment-e.Converted), seq); err != nil {
			return err
		}
		if err := pw.addBalance(ctx, tx, e.Seller.String(), int64(e.Payment), seq); err != nil {
			return err
		}
		if err := pw.applyListingFillRows(ctx, tx, e, seq); err != nil {
			return err
		}
		return pw.transferPlotHead(ctx, tx, e.Seller.String(), e.Buyer.String(), e.PlotStart, e.Units, seq)

	case *event.BuyOfferCreated:
		if err := pw.addBalance(ctx, tx, e.Account.String(), -int64(e.Escrow-e.Converted), seq); err != nil {
			return err
		}
		if err := pw.addBalance(ctx, tx, escrowAccount, int64(e.Escrow), seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.offers (offer_id, account, amount, price, max_place_in_line, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (offer_id) DO UPDATE
			SET account = $2, amount = $3, price = $4, max_place_in_line = $5, last_sequence = $6
		`, e.OfferID, e.Account.String(), e.Units, e.Price, e.MaxPlaceInLine, seq)
		return err

	case *event.BuyOfferCancelled:
		if err := pw.addBalance(ctx, tx, e.Account.String(), int64(e.Refund), seq); err != nil {
			return err
		}
		if err := pw.addBalance(ctx, tx, escrowAccount, -int64(e.Refund), seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.offers
			SET amount = 0, price = 0, max_place_in_line = 0, last_sequence = $2
			WHERE offer_id = $1
		`, e.OfferID, seq)
		return err

	case *event.BuyOfferFilled:
		if pw.fills != nil {
			pw.fills.AddEntry(FillHistoryEntry{
				Sequence:  seq,
				Kind:      "offer",
				Buyer:     e.Buyer,
				Seller:    e.Seller,
				PlotStart: e.PlotStart,
				Units:     e.Units,
				Payment:   e.Payment,
				Timestamp: output.Timestamp,
			})
		}
		if err := pw.addBalance(ctx, tx, e.Seller.String(), int64(e.Payment), seq); err != nil {
			return err
		}
		if err := pw.addBalance(ctx, tx, escrowAccount, -int64(e.Payment), seq); err != nil {
			return err
		}
		if err := pw.transferPlotWithin(ctx, tx, e.Seller.String(), e.Buyer.String(), e.PlotStart, e.Units, seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.offers
			SET amount = amount - $2,
			    price = CASE WHEN amount - $2 = 0 THEN 0 ELSE price END,
			    max_place_in_line = CASE WHEN amount - $2 = 0 THEN 0 ELSE max_place_in_line END,
			    last_sequence = $3
			WHERE offer_id = $1
		`, e.OfferID, e.Units, seq)
		return err

	case *event.ReservesUpdated:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.line
			SET reserve_aux = $1, reserve_settlement = $2, last_sequence = $3 WHERE id = 'main'
		`, e.ReserveAux, e.ReserveSettlement, seq)
		return err

	default:
		return nil
	}
}

func (pw *ProjectionWorker) addBalance(ctx context.Context, tx *sql.Tx, account string, delta int64, seq int64) error {
	if delta == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, account, delta, seq)
	return err
}

func (pw *ProjectionWorker) upsertPlot(ctx context.Context, tx *sql.Tx, account string, start, length uint64, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.plots (account, plot_start, length, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, plot_start)
		DO UPDATE SET length = $3, last_sequence = $4
	`, account, start, length, seq)
	return err
}

func (pw *ProjectionWorker) deletePlot(ctx context.Context, tx *sql.Tx, account string, start uint64) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM projections.plots WHERE account = $1 AND plot_start = $2
	`, account, start)
	return err
}

// shrinkPlotHead removes units from the front of the plot at start,
// re-indexing the remainder. Used for harvests.
func (pw *ProjectionWorker) shrinkPlotHead(ctx context.Context, tx *sql.Tx, account string, start, units uint64, seq int64) error {
	var length uint64
	err := tx.QueryRowContext(ctx, `
		SELECT length FROM projections.plots WHERE account = $1 AND plot_start = $2
	`, account, start).Scan(&length)
	if err != nil {
		return err
	}

	if err := pw.deletePlot(ctx, tx, account, start); err != nil {
		return err
	}
	if length > units {
		return pw.upsertPlot(ctx, tx, account, start+units, length-units, seq)
	}
	return nil
}

// transferPlotHead moves the leading units of the seller's plot at
// start to the buyer, re-indexing the seller's remainder.
func (pw *ProjectionWorker) transferPlotHead(ctx context.Context, tx *sql.Tx, seller, buyer string, start, units uint64, seq int64) error {
	var length uint64
	err := tx.QueryRowContext(ctx, `
		SELECT length FROM projections.plots WHERE account = $1 AND plot_start = $2
	`, seller, start).Scan(&length)
	if err != nil {
		return err
	}

	if err := pw.deletePlot(ctx, tx, seller, start); err != nil {
		return err
	}
	if length > units {
		if err := pw.upsertPlot(ctx, tx, seller, start+units, length-units, seq); err != nil {
			return err
		}
	}
	return pw.upsertPlot(ctx, tx, buyer, start, units, seq)
}

// transferPlotWithin moves [start, start+units) out of whichever of the
// seller's plots covers that range, retaining head and tail.
func (pw *ProjectionWorker) transferPlotWithin(ctx context.Context, tx *sql.Tx, seller, buyer string, start, units uint64, seq int64) error {
	var plotStart, length uint64
	err := tx.QueryRowContext(ctx, `
		SELECT plot_start, length FROM projections.plots
		WHERE account = $1 AND plot_start <= $2 AND plot_start + length >= $3
		ORDER BY plot_start DESC
		LIMIT 1
	`, seller, start, start+units).Scan(&plotStart, &length)
	if err != nil {
		return err
	}

	if err := pw.deletePlot(ctx, tx, seller, plotStart); err != nil {
		return err
	}
	if start > plotStart {
		if err := pw.upsertPlot(ctx, tx, seller, plotStart, start-plotStart, seq); err != nil {
			return err
		}
	}
	if plotStart+length > start+units {
		if err := pw.upsertPlot(ctx, tx, seller, start+units, plotStart+length-(start+units), seq); err != nil {
			return err
		}
	}
	return pw.upsertPlot(ctx, tx, buyer, start, units, seq)
}

// applyListingFillRows updates the listing book rows for a fill: the
// filled listing is removed and, on partial fill, re-created at the
// seller remainder's new start index with the same price and expiry.
func (pw *ProjectionWorker) applyListingFillRows(ctx context.Context, tx *sql.Tx, e *event.ListingFilled, seq int64) error {
	var price, expiryPlace, units uint64
	err := tx.QueryRowContext(ctx, `
		SELECT price, expiry_place, units FROM projections.listings WHERE plot_start = $1
	`, e.PlotStart).Scan(&price, &expiryPlace, &units)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM projections.listings WHERE plot_start = $1
	`, e.PlotStart); err != nil {
		return err
	}

	var plotLength uint64
	if err := tx.QueryRowContext(ctx, `
		SELECT length FROM projections.plots WHERE account = $1 AND plot_start = $2
	`, e.Seller.String(), e.PlotStart).Scan(&plotLength); err != nil {
		return err
	}

	effective := units
	if effective == 0 {
		effective = plotLength
	}
	if remainder := effective - e.Units; remainder > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.listings (plot_start, account, price, expiry_place, units, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (plot_start) DO UPDATE
			SET account = $2, price = $3, expiry_place = $4, units = $5, last_sequence = $6
		`, e.PlotStart+e.Units, e.Seller.String(), price, expiryPlace, remainder, seq); err != nil {
			return err
		}
	}
	return nil
}

// RebuildProjections truncates the read model; the next restart
// replays the command log and the core's projection feed repopulates
// the tables.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.plots`,
		`TRUNCATE projections.listings`,
		`TRUNCATE projections.offers`,
		`TRUNCATE projections.balances`,
		`UPDATE projections.line SET total_issued = 0, frontier = 0, harvested = 0,
			reserve_aux = 0, reserve_settlement = 0, last_sequence = 0 WHERE id = 'main'`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	log.Println("INFO: projection reset complete; rebuild happens on next replay")
	return nil
}
