package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"PlotMarket/internal/core"
	"PlotMarket/internal/event"
	"PlotMarket/internal/field"
	"PlotMarket/internal/ingestion"
	"PlotMarket/internal/market"
	"PlotMarket/internal/observability"
	"PlotMarket/internal/projection"
	"PlotMarket/internal/query"
	"PlotMarket/internal/swap"
	"PlotMarket/internal/token"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// HTTPServer serves the JSON API: command submission into the core's
// serialization loop, and reads against the projection tables. Routes
// are registered on a grpc-gateway ServeMux so path parameters and
// error shapes match the rest of the fleet.
type HTTPServer struct {
	httpAddr      string
	submissions   chan<- core.Submission
	queries       *query.QueryService
	fills         *projection.FillHistoryProjection
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	admin         *ingestion.AdminIngestService
	rebuild       func(context.Context) error
	httpServer    *http.Server
}

type HTTPDeps struct {
	Submissions   chan<- core.Submission
	QueryService  *query.QueryService
	FillHistory   *projection.FillHistoryProjection
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Admin         *ingestion.AdminIngestService
	Rebuild       func(context.Context) error
}

func NewHTTPServer(httpAddr string, deps *HTTPDeps) *HTTPServer {
	return &HTTPServer{
		httpAddr:      httpAddr,
		submissions:   deps.Submissions,
		queries:       deps.QueryService,
		fills:         deps.FillHistory,
		healthChecker: deps.HealthChecker,
		metrics:       deps.Metrics,
		admin:         deps.Admin,
		rebuild:       deps.Rebuild,
	}
}

// Start runs the HTTP server (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		path    string
		handler runtime.HandlerFunc
	}{
		{"POST", "/v1/commands/{family}/{op}", s.handleCommand},
		{"GET", "/v1/accounts/{account}/balance", s.handleBalance},
		{"GET", "/v1/accounts/{account}/plots", s.handlePlots},
		{"GET", "/v1/accounts/{account}/fills", s.handleFills},
		{"GET", "/v1/listings", s.handleListings},
		{"GET", "/v1/listings/{plot_start}", s.handleListing},
		{"GET", "/v1/offers", s.handleOffers},
		{"GET", "/v1/offers/{id}", s.handleOffer},
		{"GET", "/v1/line", s.handleLineStats},
		{"GET", "/v1/admin/integrity", s.handleIntegrity},
		{"POST", "/v1/admin/inject/{op}", s.handleInject},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuild},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.path, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleCommand parses the body as a command on the synthetic subject
// market.{family}.{op} and routes it through the core's submission
// loop, waiting for the applied result.
func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	start := time.Now()
	family := pathParams["family"]
	op := pathParams["op"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	cmd, err := ingestion.ParseRawCommand(ingestion.RawCommand{
		Subject: fmt.Sprintf("market.%s.%s", family, op),
		Data:    body,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reply := make(chan core.ApplyResult, 1)
	select {
	case s.submissions <- core.Submission{Cmd: cmd, Reply: reply}:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		return
	}

	var result core.ApplyResult
	select {
	case result = <-reply:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		return
	}

	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues("command").Observe(time.Since(start).Seconds())
	}

	if result.Err != nil {
		writeError(w, statusFromError(result.Err), result.Err)
		return
	}

	type appliedEvent struct {
		Type string      `json:"type"`
		Data event.Event `json:"data"`
	}
	events := make([]appliedEvent, 0, len(result.Events))
	for _, evt := range result.Events {
		events = append(events, appliedEvent{Type: evt.EventType().String(), Data: evt})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accepted": true,
		"events":   events,
	})
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}
	resp, err := s.queries.GetBalance(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePlots(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}
	plots, err := s.queries.GetPlots(r.Context(), account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plots": plots})
}

func (s *HTTPServer) handleFills(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return
	}
	limit := queryInt(r, "limit", 50, 500)
	fills := []projection.FillHistoryEntry{}
	if s.fills != nil {
		fills = s.fills.QueryByAccount(account, limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fills": fills})
}

func (s *HTTPServer) handleListings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := queryInt(r, "limit", 50, 500)
	var after *uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid after cursor: %w", err))
			return
		}
		after = &n
	}
	listings, err := s.queries.GetListings(r.Context(), limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"listings": listings})
}

func (s *HTTPServer) handleListing(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	plotStart, err := strconv.ParseUint(pathParams["plot_start"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid plot_start: %w", err))
		return
	}
	listing, err := s.queries.GetListing(r.Context(), plotStart)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no listing at %d", plotStart))
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *HTTPServer) handleOffers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := queryInt(r, "limit", 50, 500)
	var after *uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid after cursor: %w", err))
			return
		}
		after = &n
	}
	offers, err := s.queries.GetOpenOffers(r.Context(), limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": offers})
}

func (s *HTTPServer) handleOffer(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id, err := strconv.ParseUint(pathParams["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offer id: %w", err))
		return
	}
	offer, err := s.queries.GetOffer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if offer == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no offer %d", id))
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (s *HTTPServer) handleLineStats(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	stats, err := s.queries.GetLineStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.queries.VerifyIntegrity(r.Context(), market.DefaultAccount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleInject routes operator injections through the AdminIngestService.
// Unlike /v1/commands, injected commands get fresh command ids, so each
// call is a new command — this is the bootstrap and recovery surface,
// not an idempotent submission path.
func (s *HTTPServer) handleInject(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if s.admin == nil {
		writeError(w, http.StatusNotImplemented, errors.New("admin ingest not configured"))
		return
	}

	var body struct {
		Account           string `json:"account"`
		Amount            uint64 `json:"amount"`
		Units             uint64 `json:"units"`
		ReserveAux        uint64 `json:"reserve_aux"`
		ReserveSettlement uint64 `json:"reserve_settlement"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	var err error
	switch pathParams["op"] {
	case "mint":
		var account uuid.UUID
		if account, err = uuid.Parse(body.Account); err == nil {
			err = s.admin.InjectMint(r.Context(), account, body.Amount)
		}
	case "sow":
		var account uuid.UUID
		if account, err = uuid.Parse(body.Account); err == nil {
			err = s.admin.InjectSow(r.Context(), account, body.Units)
		}
	case "advance":
		err = s.admin.InjectAdvanceFrontier(r.Context(), body.Units)
	case "sync_reserves":
		err = s.admin.InjectSyncReserves(r.Context(), body.ReserveAux, body.ReserveSettlement)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown injection op %q", pathParams["op"]))
		return
	}

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (s *HTTPServer) handleRebuild(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.rebuild == nil {
		writeError(w, http.StatusNotImplemented, errors.New("rebuild not configured"))
		return
	}
	if err := s.rebuild(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

// statusFromError maps core rejection errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, market.ErrNoSuchListing),
		errors.Is(err, market.ErrNoSuchOffer),
		errors.Is(err, field.ErrInvalidPlot):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, market.ErrExpired),
		errors.Is(err, market.ErrTooFarInLine),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientApproval),
		errors.Is(err, swap.ErrExcessiveInput),
		errors.Is(err, swap.ErrSlippage):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidPlot),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidExpiry),
		errors.Is(err, field.ErrZeroUnits),
		errors.Is(err, field.ErrNotHarvestable),
		errors.Is(err, field.ErrFrontierOverrun):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
