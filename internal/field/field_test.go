package field_test

import (
	"errors"
	"testing"

	"PlotMarket/internal/field"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Issue & AdvanceFrontier
// ============================================================================

func TestIssue_AppendsAtBack(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()

	start, err := f.Issue(alice, 1000)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if start != 0 {
		t.Errorf("first plot start: got %d, want 0", start)
	}

	start, err = f.Issue(bob, 500)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if start != 1000 {
		t.Errorf("second plot start: got %d, want 1000", start)
	}
	if f.TotalIssued() != 1500 {
		t.Errorf("total issued: got %d, want 1500", f.TotalIssued())
	}
}

func TestIssue_ZeroUnits(t *testing.T) {
	f := field.NewField()
	if _, err := f.Issue(uuid.New(), 0); !errors.Is(err, field.ErrZeroUnits) {
		t.Errorf("got %v, want ErrZeroUnits", err)
	}
}

func TestAdvanceFrontier_BoundedByIssued(t *testing.T) {
	f := field.NewField()
	f.Issue(uuid.New(), 1000)

	if err := f.AdvanceFrontier(600); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if f.Frontier() != 600 {
		t.Errorf("frontier: got %d, want 600", f.Frontier())
	}

	if err := f.AdvanceFrontier(500); !errors.Is(err, field.ErrFrontierOverrun) {
		t.Errorf("got %v, want ErrFrontierOverrun", err)
	}
	if f.Frontier() != 600 {
		t.Errorf("failed advance must not move frontier: got %d", f.Frontier())
	}
}

// ============================================================================
// Test: Harvest
// ============================================================================

func TestHarvest_FullPlot(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 300)
	f.AdvanceFrontier(300)

	redeemed, err := f.Harvest(alice, 0)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if redeemed != 300 {
		t.Errorf("redeemed: got %d, want 300", redeemed)
	}
	if f.PlotLength(alice, 0) != 0 {
		t.Error("fully harvested plot should be removed")
	}
	if f.Harvested() != 300 {
		t.Errorf("harvested counter: got %d, want 300", f.Harvested())
	}
}

func TestHarvest_PartialReindexesAtFrontier(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 1000)
	f.AdvanceFrontier(400)

	redeemed, err := f.Harvest(alice, 0)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if redeemed != 400 {
		t.Errorf("redeemed: got %d, want 400", redeemed)
	}
	// Remainder re-indexed at the frontier.
	if got := f.PlotLength(alice, 400); got != 600 {
		t.Errorf("remainder at 400: got %d, want 600", got)
	}
	if err := f.ValidateConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
}

func TestHarvest_NotHarvestable(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 100)

	if _, err := f.Harvest(alice, 0); !errors.Is(err, field.ErrNotHarvestable) {
		t.Errorf("got %v, want ErrNotHarvestable", err)
	}
}

func TestHarvest_UnknownPlot(t *testing.T) {
	f := field.NewField()
	f.Issue(uuid.New(), 100)
	f.AdvanceFrontier(100)

	if _, err := f.Harvest(uuid.New(), 0); !errors.Is(err, field.ErrInvalidPlot) {
		t.Errorf("got %v, want ErrInvalidPlot", err)
	}
}

// ============================================================================
// Test: TransferRange (head peel)
// ============================================================================

func TestTransferRange_FullPlot(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()
	f.Issue(alice, 1000)

	if err := f.TransferRange(alice, 0, 1000, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if f.PlotLength(alice, 0) != 0 {
		t.Error("seller should no longer own plot at 0")
	}
	if got := f.PlotLength(bob, 0); got != 1000 {
		t.Errorf("buyer plot at 0: got %d, want 1000", got)
	}
}

func TestTransferRange_HeadPeelLeavesRemainder(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()
	f.Issue(alice, 1000)

	if err := f.TransferRange(alice, 0, 400, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := f.PlotLength(bob, 0); got != 400 {
		t.Errorf("buyer head: got %d, want 400", got)
	}
	if got := f.PlotLength(alice, 400); got != 600 {
		t.Errorf("seller remainder at 400: got %d, want 600", got)
	}
	if err := f.ValidateNoOverlap(); err != nil {
		t.Errorf("overlap: %v", err)
	}
}

func TestTransferRange_ExceedsPlot(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 100)

	if err := f.TransferRange(alice, 0, 101, uuid.New()); !errors.Is(err, field.ErrInvalidPlot) {
		t.Errorf("got %v, want ErrInvalidPlot", err)
	}
}

// ============================================================================
// Test: TransferWithin (mid-plot slice)
// ============================================================================

func TestTransferWithin_KeepsHeadAndTail(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()
	f.Issue(alice, 1000)

	// Sell [200, 500) out of [0, 1000).
	if err := f.TransferWithin(alice, 0, 200, 300, bob); err != nil {
		t.Fatalf("transfer within: %v", err)
	}
	if got := f.PlotLength(alice, 0); got != 200 {
		t.Errorf("head: got %d, want 200", got)
	}
	if got := f.PlotLength(bob, 200); got != 300 {
		t.Errorf("slice: got %d, want 300", got)
	}
	if got := f.PlotLength(alice, 500); got != 500 {
		t.Errorf("tail: got %d, want 500", got)
	}
	if err := f.ValidateConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
	if err := f.ValidateNoOverlap(); err != nil {
		t.Errorf("overlap: %v", err)
	}
}

func TestTransferWithin_SliceAtPlotStart(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()
	f.Issue(alice, 1000)

	if err := f.TransferWithin(alice, 0, 0, 1000, bob); err != nil {
		t.Fatalf("transfer within: %v", err)
	}
	if len(f.OwnerPlots(alice)) != 0 {
		t.Error("seller should retain nothing after full-range slice")
	}
	if got := f.PlotLength(bob, 0); got != 1000 {
		t.Errorf("slice: got %d, want 1000", got)
	}
}

func TestTransferWithin_RangeOutsidePlot(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 1000)

	if err := f.TransferWithin(alice, 0, 800, 300, uuid.New()); !errors.Is(err, field.ErrInvalidPlot) {
		t.Errorf("got %v, want ErrInvalidPlot", err)
	}
}

// ============================================================================
// Test: FindCovering
// ============================================================================

func TestFindCovering(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	f.Issue(alice, 100)       // [0, 100)
	f.Issue(uuid.New(), 50)   // [100, 150) other owner
	f.Issue(alice, 200)       // [150, 350)

	p, ok := f.FindCovering(alice, 250)
	if !ok {
		t.Fatal("index 250 should be covered")
	}
	if p.Start != 150 || p.Length != 200 {
		t.Errorf("got [%d,%d), want [150,350)", p.Start, p.End())
	}

	if _, ok := f.FindCovering(alice, 120); ok {
		t.Error("index 120 belongs to another owner")
	}
	if _, ok := f.FindCovering(alice, 350); ok {
		t.Error("index 350 is past the last plot")
	}
}

// ============================================================================
// Test: Snapshot & Restore
// ============================================================================

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	f := field.NewField()
	alice := uuid.New()
	bob := uuid.New()
	f.Issue(alice, 1000)
	f.Issue(bob, 500)
	f.AdvanceFrontier(300)
	f.Harvest(alice, 0)

	plots, issued, frontier, harvested := f.Snapshot()

	restored := field.NewField()
	restored.Restore(plots, issued, frontier, harvested)

	if restored.TotalIssued() != f.TotalIssued() ||
		restored.Frontier() != f.Frontier() ||
		restored.Harvested() != f.Harvested() {
		t.Error("counters differ after restore")
	}
	if got := restored.PlotLength(alice, 300); got != 700 {
		t.Errorf("alice remainder: got %d, want 700", got)
	}
	if err := restored.ValidateConservation(); err != nil {
		t.Errorf("conservation after restore: %v", err)
	}
}
