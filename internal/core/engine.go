package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"PlotMarket/internal/command"
	"PlotMarket/internal/event"
	"PlotMarket/internal/field"
	"PlotMarket/internal/market"
	"PlotMarket/internal/observability"
	"PlotMarket/internal/swap"
	"PlotMarket/internal/token"

	"github.com/google/uuid"
)

// MarketCore is the single-threaded command processor. It owns the plot
// ledger, the settlement-token ledger, the swap pair, and the
// marketplace books, and applies one command at a time: dedup, sequence
// validation, dispatch, state hash, emit.
type MarketCore struct {
	sequence          int64
	hasher            *StateHasher
	field             *field.Field
	ledger            *token.Ledger
	pair              *swap.Pair
	market            *market.Marketplace
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is one applied command: its log envelope plus the
// observable events it produced.
type CoreOutput struct {
	Envelope *command.Envelope
	Events   []event.Event
}

func NewMarketCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *MarketCore {
	f := field.NewField()
	ledger := token.NewLedger()
	pair := swap.NewPair(ledger)
	mkt := market.NewMarketplace(f, ledger, pair, market.DefaultAccount)

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &MarketCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		field:             f,
		ledger:            ledger,
		pair:              pair,
		market:            mkt,
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// Apply is the main processing pipeline. It returns the observable
// events for a freshly applied command, (nil, nil) for a duplicate, and
// an error if the command was rejected with no state change.
func (c *MarketCore) Apply(cmd command.Command) ([]event.Event, error) {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(commandType, idempotencyKey)

	// Step 2: Sequence validation. Source sequence 0 marks an unordered
	// source (the HTTP gateway); only sequenced sources are validated.
	sourceSequence := cmd.SourceSequence()
	if sourceSequence != 0 {
		if _, ok := cmd.(*command.SyncReserves); ok {
			// Reserve syncs tolerate gaps; stale ones are dropped.
			if stale := c.sequenceValidator.ValidateReserveSequence(sourceSequence); stale {
				return nil, nil
			}
		} else if err := c.sequenceValidator.ValidateSequence(c.getPartition(cmd), sourceSequence, isDuplicate); err != nil {
			return nil, fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return nil, nil
	}

	// Step 3: Dispatch. A rejected command mutates nothing: every
	// handler validates all legs before the first write.
	events, err := c.dispatch(cmd)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CommandsRejected.WithLabelValues(commandType, "precondition").Inc()
		}
		return nil, err
	}

	// Step 4: Compute state digest and hash
	prevHash := c.hasher.GetPrevHash()
	stateDigest := c.computeStateDigest(events)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// Step 5: Build envelope
	payload, err := json.Marshal(cmd)
	if err != nil {
		panic(fmt.Sprintf("FATAL: command payload not serializable: %v", err))
	}
	envelope := &command.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		Account:        cmd.Account(),
		Timestamp:      cmd.Timestamp(),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	output := CoreOutput{Envelope: envelope, Events: events}
	c.sequence++

	// Step 6: Post-checks
	if err := c.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit outputs.
	// Persistence: blocking send — the core stalls until the
	// persistence worker drains. This guarantees no command is lost.
	c.persistChan <- output

	// Projections: non-blocking send — drop on full. Projection workers
	// can rebuild from the command log if they fall behind.
	select {
	case c.projectionChan <- output:
	default:
		if c.metrics != nil {
			c.metrics.ProjectionDrops.Inc()
		}
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(commandType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CommandsApplied.WithLabelValues(commandType).Inc()
		c.metrics.CommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.EscrowPool.Set(float64(c.ledger.BalanceOf(c.market.Account())))
	}

	return events, nil
}

// getPartition determines partition key for sequence validation
func (c *MarketCore) getPartition(cmd command.Command) string {
	if account := cmd.Account(); account != uuid.Nil {
		return fmt.Sprintf("account:%s", account)
	}
	return "global"
}

func (c *MarketCore) dispatch(cmd command.Command) ([]event.Event, error) {
	switch cm := cmd.(type) {
	case *command.Sow:
		// Sowing burns settlement one-to-one for a place at the back of
		// the line.
		if cm.Units == 0 {
			return nil, field.ErrZeroUnits
		}
		if err := c.ledger.Burn(cm.Farmer, cm.Units); err != nil {
			return nil, err
		}
		start, err := c.field.Issue(cm.Farmer, cm.Units)
		if err != nil {
			return nil, err
		}
		return []event.Event{
			&event.Sowed{Account: cm.Farmer, PlotStart: start, Units: cm.Units},
		}, nil

	case *command.AdvanceFrontier:
		if err := c.field.AdvanceFrontier(cm.Units); err != nil {
			return nil, err
		}
		return []event.Event{
			&event.FrontierAdvanced{Units: cm.Units, Frontier: c.field.Frontier()},
		}, nil

	case *command.Harvest:
		units, err := c.field.Harvest(cm.Farmer, cm.PlotStart)
		if err != nil {
			return nil, err
		}
		// Redeemed line units convert one-to-one into settlement.
		c.ledger.Mint(cm.Farmer, units)
		return []event.Event{
			&event.Harvested{Account: cm.Farmer, PlotStart: cm.PlotStart, Units: units},
		}, nil

	case *command.MintSettlement:
		c.ledger.Mint(cm.To, cm.Amount)
		return []event.Event{
			&event.SettlementMinted{Account: cm.To, Amount: cm.Amount},
		}, nil

	case *command.ApproveSettlement:
		c.ledger.Approve(cm.Owner, cm.Spender, cm.Amount)
		return []event.Event{
			&event.SettlementApproved{Owner: cm.Owner, Spender: cm.Spender, Amount: cm.Amount},
		}, nil

	case *command.ListPlot:
		return c.market.ListPlot(cm.Seller, cm.PlotStart, cm.Price, cm.ExpiryPlace, cm.Units)

	case *command.CancelListing:
		return c.market.CancelListing(cm.Seller, cm.PlotStart)

	case *command.BuyListing:
		return c.market.BuyListing(cm.Buyer, cm.Seller, cm.PlotStart, cm.Payment)

	case *command.ConvertAndBuyListing:
		events, err := c.market.ConvertAndBuyListing(
			cm.Buyer, cm.Seller, cm.PlotStart, cm.ExtraPayment, cm.SettlementOut, cm.MaxAuxIn)
		if err != nil {
			return nil, err
		}
		return append(events, c.reservesEvent()), nil

	case *command.ListBuyOffer:
		return c.market.ListBuyOffer(cm.Buyer, cm.MaxPlaceInLine, cm.Price, cm.Escrow)

	case *command.ConvertAndListBuyOffer:
		events, err := c.market.ConvertAndListBuyOffer(
			cm.Buyer, cm.MaxPlaceInLine, cm.Price, cm.ExtraPayment, cm.SettlementOut, cm.MaxAuxIn)
		if err != nil {
			return nil, err
		}
		return append(events, c.reservesEvent()), nil

	case *command.CancelBuyOffer:
		return c.market.CancelBuyOffer(cm.Buyer, cm.OfferID)

	case *command.SellToBuyOffer:
		return c.market.SellToBuyOffer(cm.Seller, cm.PlotStart, cm.PlotEnd, cm.OfferID, cm.Units)

	case *command.SyncReserves:
		c.pair.SetReserves(cm.ReserveAux, cm.ReserveSettlement)
		return []event.Event{c.reservesEvent()}, nil

	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func (c *MarketCore) reservesEvent() event.Event {
	aux, settlement := c.pair.Reserves()
	return &event.ReservesUpdated{ReserveAux: aux, ReserveSettlement: settlement}
}

// computeStateDigest creates canonical bytes for the state hash: the
// global counters followed by the serialized events of this command.
func (c *MarketCore) computeStateDigest(events []event.Event) []byte {
	digest := make([]byte, 0, 64)
	digest = appendUint64LE(digest, c.field.TotalIssued())
	digest = appendUint64LE(digest, c.field.Frontier())
	digest = appendUint64LE(digest, c.field.Harvested())
	digest = appendUint64LE(digest, c.ledger.TotalSupply())
	digest = appendUint64LE(digest, c.market.NextOfferID())
	digest = appendUint64LE(digest, c.ledger.BalanceOf(c.market.Account()))

	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			panic(fmt.Sprintf("FATAL: event payload not serializable: %v", err))
		}
		digest = append(digest, byte(evt.EventType()))
		digest = append(digest, byte(len(payload)), byte(len(payload)>>8))
		digest = append(digest, payload...)
	}
	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates global invariants after every applied
// command. Violations are unrecoverable: the in-memory state no longer
// matches what the log implies.
func (c *MarketCore) postCheckInvariants() error {
	if err := c.field.ValidateConservation(); err != nil {
		return err
	}
	if err := c.field.ValidateNoOverlap(); err != nil {
		return err
	}
	if err := c.ledger.ValidateSupplyConserved(); err != nil {
		return err
	}
	if err := c.market.ValidateEscrowCovered(); err != nil {
		return err
	}
	return nil
}

// --- Read accessors (single-threaded: callers go through the command loop) ---

// Field returns the plot ledger.
func (c *MarketCore) Field() *field.Field {
	return c.field
}

// Ledger returns the settlement-token ledger.
func (c *MarketCore) Ledger() *token.Ledger {
	return c.ledger
}

// Market returns the marketplace books.
func (c *MarketCore) Market() *market.Marketplace {
	return c.market
}

// Pair returns the swap pair.
func (c *MarketCore) Pair() *swap.Pair {
	return c.pair
}

// GetSequence returns the current global sequence number.
func (c *MarketCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *MarketCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence          int64
	StateHash         [32]byte
	Plots             map[uuid.UUID][]field.Plot
	TotalIssued       uint64
	Frontier          uint64
	Harvested         uint64
	Balances          map[uuid.UUID]uint64
	Approvals         map[uuid.UUID]map[uuid.UUID]uint64
	Listings          map[uint64]market.Listing
	Offers            []market.BuyOffer
	ReserveAux        uint64
	ReserveSettlement uint64
	SequenceState     map[string]int64
	IdempotencyKeys   []string
}

// RestoreFromSnapshot restores the core's in-memory state from a
// snapshot. On warm restart, the latest snapshot is loaded and the
// command log replayed on top.
func (c *MarketCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	c.field.Restore(snap.Plots, snap.TotalIssued, snap.Frontier, snap.Harvested)
	c.ledger.Restore(snap.Balances, snap.Approvals)
	c.market.Restore(snap.Listings, snap.Offers)
	c.pair.SetReserves(snap.ReserveAux, snap.ReserveSettlement)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}
}

// ReplayCommand re-applies a logged command during warm restart. The
// idempotency and ordering checks are skipped — the log already
// deduplicated and ordered it — and nothing is re-emitted to the
// persistence or projection channels. The recomputed state hash is
// checked against the logged one so a corrupted log fails loudly.
func (c *MarketCore) ReplayCommand(cmd command.Command, loggedHash []byte) error {
	events, err := c.dispatch(cmd)
	if err != nil {
		return fmt.Errorf("replay dispatch seq=%d: %w", c.sequence, err)
	}

	digest := c.computeStateDigest(events)
	hash := c.hasher.ComputeHash(c.sequence, digest)
	if len(loggedHash) == 32 && !bytes.Equal(hash[:], loggedHash) {
		return fmt.Errorf("state hash mismatch at sequence %d: log=%x computed=%x",
			c.sequence, loggedHash, hash)
	}
	c.sequence++

	// Restore the per-partition ordering state the command advanced.
	if src := cmd.SourceSequence(); src != 0 {
		if _, ok := cmd.(*command.SyncReserves); ok {
			c.sequenceValidator.SetExpectedSequence("reserves", src+1)
		} else {
			c.sequenceValidator.SetExpectedSequence(c.getPartition(cmd), src+1)
		}
	}

	c.idempotency.MarkProcessed(cmd.CommandType().String(), cmd.IdempotencyKey())
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
// Avoids cold-path DB lookups for recently processed commands.
func (c *MarketCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *MarketCore) CreateSnapshotState() *SnapshotState {
	plots, totalIssued, frontier, harvested := c.field.Snapshot()
	balances, approvals := c.ledger.Snapshot()
	listings, offers := c.market.Snapshot()
	reserveAux, reserveSettlement := c.pair.Reserves()

	return &SnapshotState{
		Sequence:          c.sequence - 1, // Last processed sequence
		StateHash:         c.hasher.GetPrevHash(),
		Plots:             plots,
		TotalIssued:       totalIssued,
		Frontier:          frontier,
		Harvested:         harvested,
		Balances:          balances,
		Approvals:         approvals,
		Listings:          listings,
		Offers:            offers,
		ReserveAux:        reserveAux,
		ReserveSettlement: reserveSettlement,
		SequenceState:     c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:   c.idempotency.lru.GetAllKeys(),
	}
}
