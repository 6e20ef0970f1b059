package field

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPlot is returned when an operation references a plot
	// that does not exist or a range that falls outside one.
	ErrInvalidPlot = errors.New("invalid plot")

	// ErrZeroUnits is returned when an operation is given a zero amount.
	ErrZeroUnits = errors.New("zero units")

	// ErrFrontierOverrun is returned when a frontier advance would pass
	// the total issued line length.
	ErrFrontierOverrun = errors.New("frontier beyond issued line")

	// ErrNotHarvestable is returned when a harvest targets a plot that
	// has no portion below the frontier.
	ErrNotHarvestable = errors.New("plot not harvestable")
)

// Plot is a contiguous range [Start, Start+Length) on the line.
type Plot struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

// End returns the exclusive upper bound of the plot.
func (p Plot) End() uint64 {
	return p.Start + p.Length
}

// Field is the plot ledger: who owns which contiguous ranges of the
// line, plus the issuance and redemption counters. Plots are stored per
// owner in a slice sorted by start index. Not thread-safe — only
// accessed from the single-threaded market core.
type Field struct {
	plots       map[uuid.UUID][]Plot
	totalIssued uint64
	frontier    uint64
	harvested   uint64
}

func NewField() *Field {
	return &Field{
		plots: make(map[uuid.UUID][]Plot),
	}
}

// TotalIssued returns the total line length ever issued.
func (f *Field) TotalIssued() uint64 {
	return f.totalIssued
}

// Frontier returns the harvestable frontier: every index strictly below
// it is redeemable.
func (f *Field) Frontier() uint64 {
	return f.frontier
}

// Harvested returns the total units redeemed and removed from the line.
func (f *Field) Harvested() uint64 {
	return f.harvested
}

// Issue appends a new plot of the given length at the back of the line
// and returns its start index.
func (f *Field) Issue(owner uuid.UUID, units uint64) (uint64, error) {
	if units == 0 {
		return 0, ErrZeroUnits
	}
	start := f.totalIssued
	f.setPlot(owner, start, units)
	f.totalIssued += units
	return start, nil
}

// AdvanceFrontier moves the harvestable frontier forward. The frontier
// can never pass the issued line length.
func (f *Field) AdvanceFrontier(units uint64) error {
	if f.frontier+units > f.totalIssued {
		return fmt.Errorf("%w: frontier=%d advance=%d issued=%d",
			ErrFrontierOverrun, f.frontier, units, f.totalIssued)
	}
	f.frontier += units
	return nil
}

// PlotLength returns the length of the plot starting exactly at start,
// or 0 if the owner has no plot there.
func (f *Field) PlotLength(owner uuid.UUID, start uint64) uint64 {
	plots := f.plots[owner]
	i := searchPlot(plots, start)
	if i < len(plots) && plots[i].Start == start {
		return plots[i].Length
	}
	return 0
}

// FindCovering returns the owner's plot whose range contains index,
// which need not be the plot's start.
func (f *Field) FindCovering(owner uuid.UUID, index uint64) (Plot, bool) {
	plots := f.plots[owner]
	// First plot with Start > index, then step back one.
	i := sort.Search(len(plots), func(i int) bool {
		return plots[i].Start > index
	})
	if i == 0 {
		return Plot{}, false
	}
	p := plots[i-1]
	if index >= p.End() {
		return Plot{}, false
	}
	return p, true
}

// TransferRange moves the head [start, start+units) of the plot at
// (owner, start) to a new owner. The remainder, if any, stays with the
// original owner re-indexed at start+units.
func (f *Field) TransferRange(owner uuid.UUID, start, units uint64, to uuid.UUID) error {
	if units == 0 {
		return ErrZeroUnits
	}
	length := f.PlotLength(owner, start)
	if length == 0 || units > length {
		return fmt.Errorf("%w: owner=%s start=%d units=%d length=%d",
			ErrInvalidPlot, owner, start, units, length)
	}

	f.deletePlot(owner, start)
	if units < length {
		f.setPlot(owner, start+units, length-units)
	}
	f.setPlot(to, start, units)
	return nil
}

// TransferWithin moves [from, from+units) out of the plot at
// (owner, plotStart) to a new owner. The slice need not begin at the
// plot's start: the owner retains a head plot before the slice and a
// tail plot after it, each only if non-empty.
func (f *Field) TransferWithin(owner uuid.UUID, plotStart, from, units uint64, to uuid.UUID) error {
	if units == 0 {
		return ErrZeroUnits
	}
	length := f.PlotLength(owner, plotStart)
	if length == 0 || from < plotStart || from+units > plotStart+length {
		return fmt.Errorf("%w: owner=%s plot=%d from=%d units=%d length=%d",
			ErrInvalidPlot, owner, plotStart, from, units, length)
	}

	f.deletePlot(owner, plotStart)
	if from > plotStart {
		f.setPlot(owner, plotStart, from-plotStart)
	}
	if tail := (plotStart + length) - (from + units); tail > 0 {
		f.setPlot(owner, from+units, tail)
	}
	f.setPlot(to, from, units)
	return nil
}

// Harvest redeems the portion of the plot at (owner, start) that lies
// below the frontier. A fully redeemed plot is removed; a partially
// redeemed one is re-indexed at the frontier. Returns the units redeemed.
func (f *Field) Harvest(owner uuid.UUID, start uint64) (uint64, error) {
	length := f.PlotLength(owner, start)
	if length == 0 {
		return 0, fmt.Errorf("%w: owner=%s start=%d", ErrInvalidPlot, owner, start)
	}
	if f.frontier <= start {
		return 0, fmt.Errorf("%w: start=%d frontier=%d", ErrNotHarvestable, start, f.frontier)
	}

	redeemed := length
	if f.frontier < start+length {
		redeemed = f.frontier - start
	}

	f.deletePlot(owner, start)
	if redeemed < length {
		f.setPlot(owner, start+redeemed, length-redeemed)
	}
	f.harvested += redeemed
	return redeemed, nil
}

// OwnerPlots returns a copy of the owner's plots sorted by start index.
func (f *Field) OwnerPlots(owner uuid.UUID) []Plot {
	plots := f.plots[owner]
	out := make([]Plot, len(plots))
	copy(out, plots)
	return out
}

// TotalOwned sums the lengths of every plot across all owners.
func (f *Field) TotalOwned() uint64 {
	var total uint64
	for _, plots := range f.plots {
		for _, p := range plots {
			total += p.Length
		}
	}
	return total
}

// ValidateConservation checks that owned plot lengths account for every
// issued, unredeemed unit of the line.
func (f *Field) ValidateConservation() error {
	owned := f.TotalOwned()
	if owned != f.totalIssued-f.harvested {
		return fmt.Errorf("plot conservation violated: owned=%d issued=%d harvested=%d",
			owned, f.totalIssued, f.harvested)
	}
	return nil
}

// ValidateNoOverlap checks that no two plots overlap anywhere on the
// line, across all owners.
func (f *Field) ValidateNoOverlap() error {
	all := make([]Plot, 0)
	for _, plots := range f.plots {
		all = append(all, plots...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Start < all[j].Start
	})
	for i := 1; i < len(all); i++ {
		if all[i].Start < all[i-1].End() {
			return fmt.Errorf("plot overlap: [%d,%d) and [%d,%d)",
				all[i-1].Start, all[i-1].End(), all[i].Start, all[i].End())
		}
	}
	return nil
}

// Snapshot captures all plots and counters for state capture.
func (f *Field) Snapshot() (map[uuid.UUID][]Plot, uint64, uint64, uint64) {
	plots := make(map[uuid.UUID][]Plot, len(f.plots))
	for owner, ps := range f.plots {
		cp := make([]Plot, len(ps))
		copy(cp, ps)
		plots[owner] = cp
	}
	return plots, f.totalIssued, f.frontier, f.harvested
}

// Restore replaces field state from a snapshot.
func (f *Field) Restore(plots map[uuid.UUID][]Plot, totalIssued, frontier, harvested uint64) {
	f.plots = make(map[uuid.UUID][]Plot, len(plots))
	for owner, ps := range plots {
		cp := make([]Plot, len(ps))
		copy(cp, ps)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Start < cp[j].Start })
		f.plots[owner] = cp
	}
	f.totalIssued = totalIssued
	f.frontier = frontier
	f.harvested = harvested
}

// searchPlot returns the insertion index for start in a sorted slice.
func searchPlot(plots []Plot, start uint64) int {
	return sort.Search(len(plots), func(i int) bool {
		return plots[i].Start >= start
	})
}

func (f *Field) setPlot(owner uuid.UUID, start, length uint64) {
	plots := f.plots[owner]
	i := searchPlot(plots, start)
	if i < len(plots) && plots[i].Start == start {
		plots[i].Length = length
		return
	}
	plots = append(plots, Plot{})
	copy(plots[i+1:], plots[i:])
	plots[i] = Plot{Start: start, Length: length}
	f.plots[owner] = plots
}

func (f *Field) deletePlot(owner uuid.UUID, start uint64) {
	plots := f.plots[owner]
	i := searchPlot(plots, start)
	if i >= len(plots) || plots[i].Start != start {
		return
	}
	plots = append(plots[:i], plots[i+1:]...)
	if len(plots) == 0 {
		delete(f.plots, owner)
	} else {
		f.plots[owner] = plots
	}
}
