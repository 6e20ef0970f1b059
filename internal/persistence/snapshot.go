package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for
// recovery. Snapshots contain plots, balances, approvals, listings,
// offers, reserves, sequence counters, recent idempotency keys, and
// the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the core's in-memory state
// at a point in time. UUID-keyed maps are flattened to string keys for
// stable JSON.
type SnapshotData struct {
	Sequence          int64                        `json:"sequence"`
	StateHash         []byte                       `json:"state_hash"`
	Plots             map[string][]PlotSnapshot    `json:"plots"`     // account -> sorted plots
	TotalIssued       uint64                       `json:"total_issued"`
	Frontier          uint64                       `json:"frontier"`
	Harvested         uint64                       `json:"harvested"`
	Balances          map[string]uint64            `json:"balances"`  // account -> balance
	Approvals         map[string]map[string]uint64 `json:"approvals"` // owner -> spender -> allowance
	Listings          map[uint64]ListingSnapshot   `json:"listings"`  // plot start -> listing
	Offers            []OfferSnapshot              `json:"offers"`    // id-indexed, tombstones included
	ReserveAux        uint64                       `json:"reserve_aux"`
	ReserveSettlement uint64                       `json:"reserve_settlement"`
	SequenceState     map[string]int64             `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys   []string                     `json:"idempotency_keys"`
	CreatedAt         time.Time                    `json:"created_at"`
}

// PlotSnapshot is a serializable plot.
type PlotSnapshot struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// ListingSnapshot is a serializable listing.
type ListingSnapshot struct {
	Account     string `json:"account"`
	PlotStart   uint64 `json:"plot_start"`
	Price       uint64 `json:"price"`
	ExpiryPlace uint64 `json:"expiry_place"`
	Units       uint64 `json:"units"`
}

// OfferSnapshot is a serializable buy offer.
type OfferSnapshot struct {
	ID             uint64 `json:"id"`
	Account        string `json:"account"`
	Amount         uint64 `json:"amount"`
	Price          uint64 `json:"price"`
	MaxPlaceInLine uint64 `json:"max_place_in_line"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying the command log from the
// snapshot sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO market_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, the snapshot is loaded and the command log replayed from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM market_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE market_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadCommandsFrom loads applied commands from a given sequence for
// replay. Used for warm restart (replay from snapshot) and cold
// restart (replay all).
func (sm *SnapshotManager) LoadCommandsFrom(ctx context.Context, fromSequence int64, limit int) ([]CommandRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_type, idempotency_key, account, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM market_log.commands
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []CommandRow
	for rows.Next() {
		var c CommandRow
		if err := rows.Scan(
			&c.Sequence, &c.CommandType, &c.IdempotencyKey, &c.Account,
			&c.Payload, &c.StateHash, &c.PrevHash, &c.Timestamp, &c.SourceSequence,
		); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}

	return commands, rows.Err()
}

// GetLatestSequence returns the highest sequence in the command log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM market_log.commands
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty command log
	}
	return seq.Int64, nil
}
