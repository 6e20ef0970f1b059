package ingestion

import (
	"context"
	"fmt"
	"time"

	"PlotMarket/internal/command"

	"github.com/google/uuid"
)

// AdminIngestService provides manual command injection for operators.
// Admin injection is for bootstrap and recovery, not for throughput
// (use NATS for that). Injected commands carry source sequence 0 and
// skip per-partition ordering checks.
type AdminIngestService struct {
	commandChan chan<- command.Command
}

func NewAdminIngestService(commandChan chan<- command.Command) *AdminIngestService {
	return &AdminIngestService{commandChan: commandChan}
}

// InjectMint manually injects a MintSettlement command.
func (s *AdminIngestService) InjectMint(
	ctx context.Context,
	to uuid.UUID,
	amount uint64,
) error {
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	cmd := &command.MintSettlement{
		CommandID: uuid.New(),
		To:        to,
		Amount:    amount,
		IssuedAt:  time.Now(),
	}

	select {
	case s.commandChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectSow manually injects a Sow command.
func (s *AdminIngestService) InjectSow(
	ctx context.Context,
	farmer uuid.UUID,
	units uint64,
) error {
	if units == 0 {
		return fmt.Errorf("units must be positive")
	}

	cmd := &command.Sow{
		CommandID: uuid.New(),
		Farmer:    farmer,
		Units:     units,
		IssuedAt:  time.Now(),
	}

	select {
	case s.commandChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectAdvanceFrontier manually injects an AdvanceFrontier command.
func (s *AdminIngestService) InjectAdvanceFrontier(
	ctx context.Context,
	units uint64,
) error {
	if units == 0 {
		return fmt.Errorf("units must be positive")
	}

	cmd := &command.AdvanceFrontier{
		CommandID: uuid.New(),
		Units:     units,
		IssuedAt:  time.Now(),
	}

	select {
	case s.commandChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectSyncReserves manually injects a SyncReserves command.
// Admin-injected reserve syncs use the timestamp as the source
// sequence so the gap-tolerant reserve ordering still applies.
func (s *AdminIngestService) InjectSyncReserves(
	ctx context.Context,
	reserveAux, reserveSettlement uint64,
) error {
	if reserveAux == 0 || reserveSettlement == 0 {
		return fmt.Errorf("reserves must be positive")
	}

	cmd := &command.SyncReserves{
		CommandID:         uuid.New(),
		ReserveAux:        reserveAux,
		ReserveSettlement: reserveSettlement,
		Seq:               time.Now().UnixMicro(),
		IssuedAt:          time.Now(),
	}

	select {
	case s.commandChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
