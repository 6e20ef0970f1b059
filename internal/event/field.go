package event

import (
	"github.com/google/uuid"
)

// Sowed records a new plot appended at the back of the line.
type Sowed struct {
	Account   uuid.UUID `json:"account"`
	PlotStart uint64    `json:"plot_start"`
	Units     uint64    `json:"units"`
}

func (e *Sowed) EventType() EventType {
	return EventTypeSowed
}

// FrontierAdvanced records a move of the harvestable frontier.
type FrontierAdvanced struct {
	Units    uint64 `json:"units"`
	Frontier uint64 `json:"frontier"`
}

func (e *FrontierAdvanced) EventType() EventType {
	return EventTypeFrontierAdvanced
}

// Harvested records redemption of the harvestable portion of a plot.
type Harvested struct {
	Account   uuid.UUID `json:"account"`
	PlotStart uint64    `json:"plot_start"`
	Units     uint64    `json:"units"`
}

func (e *Harvested) EventType() EventType {
	return EventTypeHarvested
}
