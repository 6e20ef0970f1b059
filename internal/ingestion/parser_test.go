package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"PlotMarket/internal/command"
	"PlotMarket/internal/ingestion"

	"github.com/google/uuid"
)

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseSow(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"farmer":       "660e8400-e29b-41d4-a716-446655440001",
		"units":        int64(1_000),
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.field.sow", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sow, ok := cmd.(*command.Sow)
	if !ok {
		t.Fatalf("expected *command.Sow, got %T", cmd)
	}
	if sow.Units != 1_000 {
		t.Errorf("units: got %d, want 1_000", sow.Units)
	}
	if sow.Seq != 42 {
		t.Errorf("sequence: got %d, want 42", sow.Seq)
	}
	if sow.IssuedAt.UnixMicro() != 1700000000000000 {
		t.Errorf("timestamp: got %d", sow.IssuedAt.UnixMicro())
	}
	if sow.CommandType() != command.TypeSow {
		t.Errorf("command type: got %v, want Sow", sow.CommandType())
	}
}

func TestParseListPlot(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"seller":       "660e8400-e29b-41d4-a716-446655440001",
		"plot_start":   int64(1_000),
		"price":        int64(500_000),
		"expiry_place": int64(10_000),
		"units":        int64(0),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.listings.list", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lp, ok := cmd.(*command.ListPlot)
	if !ok {
		t.Fatalf("expected *command.ListPlot, got %T", cmd)
	}
	if lp.PlotStart != 1_000 {
		t.Errorf("plot_start: got %d, want 1_000", lp.PlotStart)
	}
	if lp.Price != 500_000 {
		t.Errorf("price: got %d, want 500_000", lp.Price)
	}
	if lp.ExpiryPlace != 10_000 {
		t.Errorf("expiry_place: got %d, want 10_000", lp.ExpiryPlace)
	}
	if lp.Units != 0 {
		t.Errorf("units: got %d, want 0", lp.Units)
	}
}

func TestParseOfferSubjectsDisambiguate(t *testing.T) {
	// "list" and "cancel" appear on both the listings and the offers
	// subject families; the middle token decides the command.
	offerPayload := map[string]interface{}{
		"command_id":        "550e8400-e29b-41d4-a716-446655440000",
		"buyer":             "660e8400-e29b-41d4-a716-446655440001",
		"max_place_in_line": int64(100_000),
		"price":             int64(250_000),
		"escrow":            int64(1_000_000),
		"sequence":          int64(3),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.offers.list", offerPayload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lo, ok := cmd.(*command.ListBuyOffer)
	if !ok {
		t.Fatalf("expected *command.ListBuyOffer, got %T", cmd)
	}
	if lo.MaxPlaceInLine != 100_000 {
		t.Errorf("max_place_in_line: got %d, want 100_000", lo.MaxPlaceInLine)
	}
	if lo.Escrow != 1_000_000 {
		t.Errorf("escrow: got %d, want 1_000_000", lo.Escrow)
	}

	cancelPayload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440002",
		"buyer":        "660e8400-e29b-41d4-a716-446655440001",
		"offer_id":     int64(2),
		"sequence":     int64(4),
		"timestamp_us": int64(1700000000000000),
	}

	raw = rawFromJSON(t, "market.offers.cancel", cancelPayload)
	cmd, err = ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	co, ok := cmd.(*command.CancelBuyOffer)
	if !ok {
		t.Fatalf("expected *command.CancelBuyOffer, got %T", cmd)
	}
	if co.OfferID != 2 {
		t.Errorf("offer_id: got %d, want 2", co.OfferID)
	}
}

func TestParseSellToBuyOffer(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"seller":       "660e8400-e29b-41d4-a716-446655440001",
		"offer_id":     int64(0),
		"plot_start":   int64(2_500),
		"plot_end":     int64(3_000),
		"units":        int64(500),
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.offers.fill", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	so, ok := cmd.(*command.SellToBuyOffer)
	if !ok {
		t.Fatalf("expected *command.SellToBuyOffer, got %T", cmd)
	}
	if so.PlotStart != 2_500 || so.PlotEnd != 3_000 || so.Units != 500 {
		t.Errorf("range: got [%d,%d) units=%d", so.PlotStart, so.PlotEnd, so.Units)
	}
}

func TestParseConvertAndListBuyOffer(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":        "550e8400-e29b-41d4-a716-446655440000",
		"buyer":             "660e8400-e29b-41d4-a716-446655440001",
		"max_place_in_line": int64(5_000),
		"price":             int64(500_000),
		"extra_payment":     int64(1_000),
		"settlement_out":    int64(4_000),
		"max_aux_in":        int64(5_000),
		"sequence":          int64(6),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.offers.convert_list", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cl, ok := cmd.(*command.ConvertAndListBuyOffer)
	if !ok {
		t.Fatalf("expected *command.ConvertAndListBuyOffer, got %T", cmd)
	}
	if cl.ExtraPayment != 1_000 || cl.SettlementOut != 4_000 || cl.MaxAuxIn != 5_000 {
		t.Errorf("legs: got extra=%d out=%d max_aux=%d, want 1_000/4_000/5_000",
			cl.ExtraPayment, cl.SettlementOut, cl.MaxAuxIn)
	}
	if cl.Price != 500_000 || cl.MaxPlaceInLine != 5_000 {
		t.Errorf("terms: got price=%d place=%d, want 500_000/5_000", cl.Price, cl.MaxPlaceInLine)
	}
}

func TestParseSyncReserves(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":         "550e8400-e29b-41d4-a716-446655440000",
		"reserve_aux":        int64(1_000),
		"reserve_settlement": int64(4_000),
		"sequence":           int64(12),
		"timestamp_us":       int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.reserves.sync", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sr, ok := cmd.(*command.SyncReserves)
	if !ok {
		t.Fatalf("expected *command.SyncReserves, got %T", cmd)
	}
	if sr.ReserveAux != 1_000 || sr.ReserveSettlement != 4_000 {
		t.Errorf("reserves: got (%d, %d), want (1_000, 4_000)", sr.ReserveAux, sr.ReserveSettlement)
	}
	if sr.Account() != uuid.Nil {
		t.Errorf("sync reserves should have no acting account")
	}
}

func TestParseInvalidUUID(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "not-a-uuid",
		"farmer":       "660e8400-e29b-41d4-a716-446655440001",
		"units":        int64(100),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, "market.field.sow", payload)
	if _, err := ingestion.ParseRawCommand(raw); err == nil {
		t.Fatal("expected error for malformed command_id")
	}
}

func TestParseUnknownSubject(t *testing.T) {
	raw := rawFromJSON(t, "market.field.unknown", map[string]interface{}{})
	if _, err := ingestion.ParseRawCommand(raw); err == nil {
		t.Fatal("expected error for unknown subject")
	}
}
