package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CommandLogWriter writes applied commands and their events to Postgres
// using batch inserts. Multi-row INSERT is used as a portable
// alternative to the COPY protocol; switch to pgx CopyFrom if write
// throughput ever becomes the bottleneck.
type CommandLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// CommandRow represents a row in market_log.commands.
type CommandRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	Account        *string
	Payload        []byte // JSON-encoded command payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// EventRow represents a row in market_log.events. Events are keyed by
// the sequence of the command that produced them plus their index
// within that command's event slice.
type EventRow struct {
	Sequence   int64
	EventIndex int32
	EventType  string
	Payload    []byte
}

func NewCommandLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *CommandLogWriter {
	return &CommandLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteCommandBatch writes a batch of commands to market_log.commands
// inside the given transaction.
func (w *CommandLogWriter) WriteCommandBatch(ctx context.Context, commands []CommandRow, tx *sql.Tx) error {
	if len(commands) == 0 {
		return nil
	}

	query := `INSERT INTO market_log.commands
		(sequence, command_type, idempotency_key, account, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(commands))
	args := make([]interface{}, 0, len(commands)*9)

	for i, c := range commands {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			c.Sequence, c.CommandType, c.IdempotencyKey, c.Account,
			c.Payload, c.StateHash, c.PrevHash, c.Timestamp, c.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEventBatch writes a batch of events to market_log.events inside
// the given transaction.
func (w *CommandLogWriter) WriteEventBatch(ctx context.Context, events []EventRow, tx *sql.Tx) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO market_log.events
		(sequence, event_index, event_type, payload)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*4)

	for i, e := range events {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, e.Sequence, e.EventIndex, e.EventType, e.Payload)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, event_index) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload serializes a command or event payload to JSON for storage.
func MarshalPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
