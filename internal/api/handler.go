package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"investment-tracker/config"
	"investment-tracker/internal/app"
	"investment-tracker/models"
	"investment-tracker/observability"
	"investment-tracker/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// SellRequest is the body of a close or a reduce
type SellRequest struct {
	Quantity  int64           `json:"quantity,omitempty"`
	SellPrice decimal.Decimal `json:"sell_price"`
	SellDate  string          `json:"sell_date"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  models.ErrorKind `json:"kind,omitempty"`
	ID    string           `json:"id,omitempty"`
	Codes []string         `json:"codes,omitempty"`
}

// HealthResponse reports storage and quote source state
type HealthResponse struct {
	Status       string                   `json:"status"`
	Database     string                   `json:"database"`
	LastRefresh  *time.Time               `json:"last_refresh,omitempty"`
	QuoteSources []services.BreakerStatus `json:"quote_sources"`
}

// HandleHealth is degraded when storage is unreachable or a quote source breaker is open
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "not_configured"}

	switch repo := h.app.Repo(); {
	case repo == nil:
		resp.Status = "degraded"
	case repo.Health(r.Context()) != nil:
		resp.Database = "disconnected"
		resp.Status = "degraded"
	default:
		resp.Database = "connected"
	}

	if latest := h.app.GetLatestProfitLoss(); latest != nil {
		resp.LastRefresh = &latest.ComputedAt
	}

	breakers := services.GetGlobalRegistry()
	resp.QuoteSources = breakers.Status()
	if breakers.Open() {
		resp.Status = "degraded"
	}

	h.jsonResponse(w, resp)
}

// HandleBuy records a new OPEN lot
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := h.app.Buy(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(pos)
}

// HandleGetPositions returns every OPEN lot
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.app.GetPositions()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, positions)
}

// HandleClosePosition sells a whole lot
func (h *Handler) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := h.app.ClosePosition(chi.URLParam(r, "id"), req.SellPrice, req.SellDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, pos)
}

// HandleReducePosition sells part of a lot
func (h *Handler) HandleReducePosition(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.app.ReducePosition(chi.URLParam(r, "id"), req.Quantity, req.SellPrice, req.SellDate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, result)
}

// HandleDeletePosition removes a record permanently
func (h *Handler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeletePosition(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetCodes returns the codes with OPEN lots
func (h *Handler) HandleGetCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.app.GetCodesInPosition()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, codes)
}

// HandleGetPositionRecords returns every record of a code
func (h *Handler) HandleGetPositionRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.app.GetPositionRecords(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, records)
}

// HandleGetPositionStats aggregates the OPEN lots of a code
func (h *Handler) HandleGetPositionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.GetPositionStats(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, stats)
}

// HandleGetProfitLoss values every OPEN lot; ?mock=true uses mock quotes
func (h *Handler) HandleGetProfitLoss(w http.ResponseWriter, r *http.Request) {
	useMock, err := ParseBoolParam(r, "mock")
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot, err := h.app.ComputeProfitLoss(r.Context(), useMock)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, snapshot.Portfolios)
}

// HandleGetLatestProfitLoss returns the last scheduled snapshot
func (h *Handler) HandleGetLatestProfitLoss(w http.ResponseWriter, r *http.Request) {
	snapshot := h.app.GetLatestProfitLoss()
	if snapshot == nil {
		h.jsonError(w, "no profit/loss snapshot yet", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, snapshot)
}

// HandleGetClosedTrades returns every realized trade with summary statistics
func (h *Handler) HandleGetClosedTrades(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.GetClosedTradesSummary()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, summary)
}

// HandleGetPortfolios returns the portfolios holding OPEN lots
func (h *Handler) HandleGetPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.app.GetPortfolios()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, portfolios)
}

// HandleGetPortfolioSummaries summarizes every portfolio
func (h *Handler) HandleGetPortfolioSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.app.GetAllPortfolioSummaries()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, summaries)
}

// HandleGetPortfolioPositions returns the OPEN lots of one portfolio
func (h *Handler) HandleGetPortfolioPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.app.GetPortfolioPositions(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, positions)
}

// HandleGetPortfolioSummary totals the cost of one portfolio
func (h *Handler) HandleGetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.GetPortfolioSummary(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, summary)
}

// HandleGetQuote looks up the name and price of one code
func (h *Handler) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	name, err := h.app.FetchStockName(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonResponse(w, name)
}

// HandleReset removes every record
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.HTTP.AllowReset {
		h.jsonError(w, "reset is disabled", http.StatusForbidden)
		return
	}
	if err := h.app.ResetDatabase(); err != nil {
		h.writeError(w, err)
		return
	}
	observability.Warn("database reset over HTTP", "remote", r.RemoteAddr)
	h.jsonResponse(w, StatusResponse{Status: "ok", Message: "database reset"})
}

// ParseBoolParam parses an optional boolean query parameter; absent means false
func ParseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, models.NewValidationError("invalid %s parameter %q", name, raw)
	}
	return v, nil
}

// StatusCode maps a ledger error to its HTTP status
func StatusCode(err error) int {
	switch models.KindOf(err) {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindInvalidState:
		return http.StatusConflict
	case models.KindQuoteUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	resp := ErrorResponse{Error: err.Error()}

	var e *models.Error
	if errors.As(err, &e) {
		resp.Kind = e.Kind
		resp.ID = e.ID
		resp.Codes = e.Codes
	}
	if status >= http.StatusInternalServerError {
		observability.WithError(err).Error("request failed", "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// StatusResponse represents a status response
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
