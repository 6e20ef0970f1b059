package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PlotMarket/internal/command"

	"github.com/google/uuid"
)

// ParseRawCommand converts a RawCommand (JSON bytes on a market.*
// subject) into a typed command.Command. The ingestion shell validates,
// parses, and converts raw commands before sending to the core; the
// final subject token names the operation.
func ParseRawCommand(raw RawCommand) (command.Command, error) {
	idx := strings.LastIndex(raw.Subject, ".")
	if idx < 0 {
		return nil, fmt.Errorf("malformed subject: %s", raw.Subject)
	}
	op := raw.Subject[idx+1:]

	switch op {
	case "sow":
		return parseSow(raw.Data)
	case "advance":
		return parseAdvanceFrontier(raw.Data)
	case "harvest":
		return parseHarvest(raw.Data)
	case "mint":
		return parseMintSettlement(raw.Data)
	case "approve":
		return parseApproveSettlement(raw.Data)
	case "list":
		if strings.Contains(raw.Subject, ".offers.") {
			return parseListBuyOffer(raw.Data)
		}
		return parseListPlot(raw.Data)
	case "cancel":
		if strings.Contains(raw.Subject, ".offers.") {
			return parseCancelBuyOffer(raw.Data)
		}
		return parseCancelListing(raw.Data)
	case "buy":
		return parseBuyListing(raw.Data)
	case "convert_buy":
		return parseConvertAndBuyListing(raw.Data)
	case "fill":
		return parseSellToBuyOffer(raw.Data)
	case "convert_list":
		return parseConvertAndListBuyOffer(raw.Data)
	case "sync":
		return parseSyncReserves(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command subject: %s", raw.Subject)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type headerJSON struct {
	CommandID   string `json:"command_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (h headerJSON) parse() (uuid.UUID, int64, time.Time, error) {
	id, err := uuid.Parse(h.CommandID)
	if err != nil {
		return uuid.Nil, 0, time.Time{}, fmt.Errorf("parse command_id: %w", err)
	}
	return id, h.Sequence, time.UnixMicro(h.TimestampUs), nil
}

type sowJSON struct {
	headerJSON
	Farmer string `json:"farmer"`
	Units  uint64 `json:"units"`
}

func parseSow(data []byte) (*command.Sow, error) {
	var j sowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Sow: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	farmer, err := uuid.Parse(j.Farmer)
	if err != nil {
		return nil, fmt.Errorf("parse farmer: %w", err)
	}
	return &command.Sow{
		CommandID: id,
		Farmer:    farmer,
		Units:     j.Units,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type advanceJSON struct {
	headerJSON
	Units uint64 `json:"units"`
}

func parseAdvanceFrontier(data []byte) (*command.AdvanceFrontier, error) {
	var j advanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AdvanceFrontier: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	return &command.AdvanceFrontier{
		CommandID: id,
		Units:     j.Units,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type harvestJSON struct {
	headerJSON
	Farmer    string `json:"farmer"`
	PlotStart uint64 `json:"plot_start"`
}

func parseHarvest(data []byte) (*command.Harvest, error) {
	var j harvestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Harvest: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	farmer, err := uuid.Parse(j.Farmer)
	if err != nil {
		return nil, fmt.Errorf("parse farmer: %w", err)
	}
	return &command.Harvest{
		CommandID: id,
		Farmer:    farmer,
		PlotStart: j.PlotStart,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type mintJSON struct {
	headerJSON
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func parseMintSettlement(data []byte) (*command.MintSettlement, error) {
	var j mintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MintSettlement: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	to, err := uuid.Parse(j.To)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}
	return &command.MintSettlement{
		CommandID: id,
		To:        to,
		Amount:    j.Amount,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type approveJSON struct {
	headerJSON
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

func parseApproveSettlement(data []byte) (*command.ApproveSettlement, error) {
	var j approveJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ApproveSettlement: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	spender, err := uuid.Parse(j.Spender)
	if err != nil {
		return nil, fmt.Errorf("parse spender: %w", err)
	}
	return &command.ApproveSettlement{
		CommandID: id,
		Owner:     owner,
		Spender:   spender,
		Amount:    j.Amount,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type listPlotJSON struct {
	headerJSON
	Seller      string `json:"seller"`
	PlotStart   uint64 `json:"plot_start"`
	Price       uint64 `json:"price"`
	ExpiryPlace uint64 `json:"expiry_place"`
	Units       uint64 `json:"units"`
}

func parseListPlot(data []byte) (*command.ListPlot, error) {
	var j listPlotJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ListPlot: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller: %w", err)
	}
	return &command.ListPlot{
		CommandID:   id,
		Seller:      seller,
		PlotStart:   j.PlotStart,
		Price:       j.Price,
		ExpiryPlace: j.ExpiryPlace,
		Units:       j.Units,
		Seq:         seq,
		IssuedAt:    ts,
	}, nil
}

type cancelListingJSON struct {
	headerJSON
	Seller    string `json:"seller"`
	PlotStart uint64 `json:"plot_start"`
}

func parseCancelListing(data []byte) (*command.CancelListing, error) {
	var j cancelListingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelListing: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller: %w", err)
	}
	return &command.CancelListing{
		CommandID: id,
		Seller:    seller,
		PlotStart: j.PlotStart,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type buyListingJSON struct {
	headerJSON
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	PlotStart uint64 `json:"plot_start"`
	Payment   uint64 `json:"payment"`
}

func parseBuyListing(data []byte) (*command.BuyListing, error) {
	var j buyListingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyListing: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller: %w", err)
	}
	return &command.BuyListing{
		CommandID: id,
		Buyer:     buyer,
		Seller:    seller,
		PlotStart: j.PlotStart,
		Payment:   j.Payment,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type convertBuyJSON struct {
	headerJSON
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	PlotStart     uint64 `json:"plot_start"`
	ExtraPayment  uint64 `json:"extra_payment"`
	SettlementOut uint64 `json:"settlement_out"`
	MaxAuxIn      uint64 `json:"max_aux_in"`
}

func parseConvertAndBuyListing(data []byte) (*command.ConvertAndBuyListing, error) {
	var j convertBuyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConvertAndBuyListing: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller: %w", err)
	}
	return &command.ConvertAndBuyListing{
		CommandID:     id,
		Buyer:         buyer,
		Seller:        seller,
		PlotStart:     j.PlotStart,
		ExtraPayment:  j.ExtraPayment,
		SettlementOut: j.SettlementOut,
		MaxAuxIn:      j.MaxAuxIn,
		Seq:           seq,
		IssuedAt:      ts,
	}, nil
}

type listOfferJSON struct {
	headerJSON
	Buyer          string `json:"buyer"`
	MaxPlaceInLine uint64 `json:"max_place_in_line"`
	Price          uint64 `json:"price"`
	Escrow         uint64 `json:"escrow"`
}

func parseListBuyOffer(data []byte) (*command.ListBuyOffer, error) {
	var j listOfferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ListBuyOffer: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &command.ListBuyOffer{
		CommandID:      id,
		Buyer:          buyer,
		MaxPlaceInLine: j.MaxPlaceInLine,
		Price:          j.Price,
		Escrow:         j.Escrow,
		Seq:            seq,
		IssuedAt:       ts,
	}, nil
}

type convertListOfferJSON struct {
	headerJSON
	Buyer          string `json:"buyer"`
	MaxPlaceInLine uint64 `json:"max_place_in_line"`
	Price          uint64 `json:"price"`
	ExtraPayment   uint64 `json:"extra_payment"`
	SettlementOut  uint64 `json:"settlement_out"`
	MaxAuxIn       uint64 `json:"max_aux_in"`
}

func parseConvertAndListBuyOffer(data []byte) (*command.ConvertAndListBuyOffer, error) {
	var j convertListOfferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConvertAndListBuyOffer: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &command.ConvertAndListBuyOffer{
		CommandID:      id,
		Buyer:          buyer,
		MaxPlaceInLine: j.MaxPlaceInLine,
		Price:          j.Price,
		ExtraPayment:   j.ExtraPayment,
		SettlementOut:  j.SettlementOut,
		MaxAuxIn:       j.MaxAuxIn,
		Seq:            seq,
		IssuedAt:       ts,
	}, nil
}

type cancelOfferJSON struct {
	headerJSON
	Buyer   string `json:"buyer"`
	OfferID uint64 `json:"offer_id"`
}

func parseCancelBuyOffer(data []byte) (*command.CancelBuyOffer, error) {
	var j cancelOfferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelBuyOffer: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	buyer, err := uuid.Parse(j.Buyer)
	if err != nil {
		return nil, fmt.Errorf("parse buyer: %w", err)
	}
	return &command.CancelBuyOffer{
		CommandID: id,
		Buyer:     buyer,
		OfferID:   j.OfferID,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type fillOfferJSON struct {
	headerJSON
	Seller    string `json:"seller"`
	OfferID   uint64 `json:"offer_id"`
	PlotStart uint64 `json:"plot_start"`
	PlotEnd   uint64 `json:"plot_end"`
	Units     uint64 `json:"units"`
}

func parseSellToBuyOffer(data []byte) (*command.SellToBuyOffer, error) {
	var j fillOfferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SellToBuyOffer: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	seller, err := uuid.Parse(j.Seller)
	if err != nil {
		return nil, fmt.Errorf("parse seller: %w", err)
	}
	return &command.SellToBuyOffer{
		CommandID: id,
		Seller:    seller,
		OfferID:   j.OfferID,
		PlotStart: j.PlotStart,
		PlotEnd:   j.PlotEnd,
		Units:     j.Units,
		Seq:       seq,
		IssuedAt:  ts,
	}, nil
}

type syncReservesJSON struct {
	headerJSON
	ReserveAux        uint64 `json:"reserve_aux"`
	ReserveSettlement uint64 `json:"reserve_settlement"`
}

func parseSyncReserves(data []byte) (*command.SyncReserves, error) {
	var j syncReservesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SyncReserves: %w", err)
	}
	id, seq, ts, err := j.parse()
	if err != nil {
		return nil, err
	}
	return &command.SyncReserves{
		CommandID:         id,
		ReserveAux:        j.ReserveAux,
		ReserveSettlement: j.ReserveSettlement,
		Seq:               seq,
		IssuedAt:          ts,
	}, nil
}
