package core

import (
	"context"

	"PlotMarket/internal/command"
	"PlotMarket/internal/event"
)

// ApplyResult is the outcome of one submitted command.
type ApplyResult struct {
	Events []event.Event
	Err    error
}

// Submission carries a command into the core's loop. Reply, when
// non-nil, receives exactly one ApplyResult; submitters that don't care
// about the outcome (the NATS path, which acks on enqueue) leave it nil.
type Submission struct {
	Cmd   command.Command
	Reply chan<- ApplyResult
}

// SnapshotRequest asks the loop to capture the in-memory state between
// commands. The reply always receives exactly one snapshot.
type SnapshotRequest struct {
	Reply chan<- *SnapshotState
}

// Run drains submissions into Apply until the context is cancelled.
// This is the single serialization point: every writer — HTTP gateway,
// NATS consumers, admin ingest — funnels through one channel so the
// core stays strictly single-threaded. Snapshot requests are served on
// the same loop, so a snapshot never observes a half-applied command.
func (c *MarketCore) Run(ctx context.Context, submissions <-chan Submission, snapshots <-chan SnapshotRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-submissions:
			events, err := c.Apply(sub.Cmd)
			if sub.Reply != nil {
				sub.Reply <- ApplyResult{Events: events, Err: err}
			}
		case req := <-snapshots:
			req.Reply <- c.CreateSnapshotState()
		}
	}
}
