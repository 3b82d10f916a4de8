package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/exchange"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/middleware"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/services"
	"github.com/lendly/backend/internal/store"
)

// ExchangeHandler serves /api/v1/exchanges endpoints.
type ExchangeHandler struct {
	Exchanges exchange.Service
	Validator *services.Validator
	Logger    *slog.Logger
}

// --- POST /api/v1/exchanges ---

type createExchangeRequest struct {
	ItemID        string `json:"item_id"`
	ItemOwnerID   string `json:"item_owner_id"`
	Type          string `json:"type"`
	ProposedPrice *int64 `json:"proposed_price"`
	Message       string `json:"message"`
	DurationDays  *int   `json:"duration_days"`
}

// CreateExchange handles POST /api/v1/exchanges.
// Auth -> Schema -> CreateRequest -> 201.
func (h *ExchangeHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createExchangeRequest
	if !h.decode(w, r, services.SchemaExchangeCreate, &req) {
		return
	}
	// Schema already enforced the uuid pattern.
	itemID, _ := uuid.Parse(req.ItemID)
	ownerID, _ := uuid.Parse(req.ItemOwnerID)

	ex, err := h.Exchanges.CreateRequest(r.Context(), exchange.CreateRequestInput{
		RequesterID:   uid,
		ItemOwnerID:   ownerID,
		ItemID:        itemID,
		Type:          req.Type,
		ProposedPrice: req.ProposedPrice,
		Message:       req.Message,
		DurationDays:  req.DurationDays,
	})
	if err != nil {
		h.writeError(w, "create exchange", err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

// --- POST /api/v1/exchanges/{id}/respond ---

type respondRequest struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func (h *ExchangeHandler) Respond(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !h.decode(w, r, services.SchemaExchangeRespond, &req) {
		return
	}
	ex, err := h.Exchanges.Respond(r.Context(), exchange.RespondInput{
		ExchangeID: id,
		OwnerID:    uid,
		Action:     req.Action,
		Message:    req.Message,
	})
	if err != nil {
		h.writeError(w, "respond", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- POST /api/v1/exchanges/{id}/complete ---

type completeRequest struct {
	Rating *int   `json:"rating"`
	Review string `json:"review"`
}

func (h *ExchangeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !h.decode(w, r, services.SchemaExchangeComplete, &req) {
		return
	}
	ex, err := h.Exchanges.Complete(r.Context(), exchange.CompleteInput{
		ExchangeID: id,
		CallerID:   uid,
		Rating:     req.Rating,
		Review:     req.Review,
	})
	if err != nil {
		h.writeError(w, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- POST /api/v1/exchanges/{id}/cancel ---

func (h *ExchangeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.identify(w, r)
	if !ok {
		return
	}
	ex, err := h.Exchanges.Cancel(r.Context(), id, uid)
	if err != nil {
		h.writeError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- POST /api/v1/exchanges/{id}/mark-late ---

type markLateRequest struct {
	DaysLate int `json:"days_late"`
}

func (h *ExchangeHandler) MarkLate(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req markLateRequest
	if !h.decode(w, r, services.SchemaExchangeMarkLate, &req) {
		return
	}
	ex, err := h.Exchanges.MarkLate(r.Context(), exchange.MarkLateInput{
		ExchangeID: id,
		OwnerID:    uid,
		DaysLate:   req.DaysLate,
	})
	if err != nil {
		h.writeError(w, "mark late", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- GET /api/v1/exchanges/{id} ---

func (h *ExchangeHandler) GetExchange(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.identify(w, r)
	if !ok {
		return
	}
	ex, err := h.Exchanges.Get(r.Context(), id, uid)
	if err != nil {
		h.writeError(w, "get exchange", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- GET /api/v1/exchanges ---

func (h *ExchangeHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Exchanges.ListForUser(r.Context(), uid, limit)
	if err != nil {
		h.writeError(w, "list exchanges", err)
		return
	}
	if list == nil {
		list = []*models.Exchange{}
	}
	writeJSON(w, http.StatusOK, list)
}

// identify resolves the caller and the {id} path value.
func (h *ExchangeHandler) identify(w http.ResponseWriter, r *http.Request) (uid, id uuid.UUID, ok bool) {
	uid, ok = middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid exchange id"}`, http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return uid, id, true
}

// decode validates the body against the named schema and unmarshals it into dst.
func (h *ExchangeHandler) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := h.Validator.Validate(schema, body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func (h *ExchangeHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger().Error(op+" failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exchange.ErrInvalidInput), errors.Is(err, exchange.ErrSelfRequest):
		return http.StatusBadRequest
	case errors.Is(err, exchange.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, exchange.ErrItemNotFound), errors.Is(err, exchange.ErrExchangeNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrDuplicateRequest),
		errors.Is(err, exchange.ErrItemUnavailable),
		errors.Is(err, exchange.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ExchangeHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
