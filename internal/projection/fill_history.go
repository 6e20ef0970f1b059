package projection

import (
	"sync"

	"github.com/google/uuid"
)

// FillHistoryEntry represents one completed trade, whether against a
// listing or a standing buy offer.
type FillHistoryEntry struct {
	Sequence  int64
	Kind      string // "listing" or "offer"
	Buyer     uuid.UUID
	Seller    uuid.UUID
	PlotStart uint64
	Units     uint64
	Payment   uint64
	Timestamp int64
}

// FillHistoryProjection maintains queryable recent fills in memory.
// The authoritative record lives in market_log.events; this exists so
// the read API can answer "my recent trades" without a table scan.
type FillHistoryProjection struct {
	mu      sync.RWMutex
	entries []FillHistoryEntry
	max     int
}

func NewFillHistoryProjection(max int) *FillHistoryProjection {
	return &FillHistoryProjection{
		entries: make([]FillHistoryEntry, 0, max),
		max:     max,
	}
}

// AddEntry records a fill, evicting the oldest entry when full.
func (p *FillHistoryProjection) AddEntry(entry FillHistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.max > 0 && len(p.entries) >= p.max {
		p.entries = p.entries[1:]
	}
	p.entries = append(p.entries, entry)
}

// QueryByAccount returns the most recent fills where the account was
// buyer or seller, newest first.
func (p *FillHistoryProjection) QueryByAccount(account uuid.UUID, limit int) []FillHistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]FillHistoryEntry, 0)
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Buyer == account || p.entries[i].Seller == account {
			result = append(result, p.entries[i])
		}
	}
	return result
}
