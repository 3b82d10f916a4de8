package registry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/middleware"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/services"
)

type CreateItemRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type PromoteItemRequest struct {
	Kind string `json:"kind"`
}

type ItemResponse struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	Price         int64      `json:"price"`
	Available     bool       `json:"available"`
	BoostedUntil  *time.Time `json:"boosted_until,omitempty"`
	FeaturedUntil *time.Time `json:"featured_until,omitempty"`
}

type Handler struct {
	svc       Service
	validator *services.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, validator *services.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

// POST /api/v1/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(services.SchemaItemCreate, body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req CreateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	it, err := h.svc.CreateItem(r.Context(), ownerID, req.Name, req.Price)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidItem):
			http.Error(w, `{"error":"invalid item"}`, http.StatusBadRequest)
		case errors.Is(err, ledger.ErrInsufficientBalance):
			writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "insufficient balance", "cost": ledger.CostListItem})
		default:
			h.log.Error("create item failed", "owner_id", ownerID, "error", err)
			http.Error(w, `{"error":"create item failed"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, itemToResponse(it))
}

// POST /api/v1/items/{id}/promote
func (h *Handler) PromoteItem(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid item id"}`, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if err := h.validator.Validate(services.SchemaItemPromote, body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req PromoteItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	it, err := h.svc.Promote(r.Context(), ownerID, itemID, req.Kind)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPromotion):
			http.Error(w, `{"error":"invalid promotion"}`, http.StatusBadRequest)
		case errors.Is(err, ErrItemNotFound):
			http.Error(w, `{"error":"item not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			http.Error(w, `{"error":"not the item owner"}`, http.StatusForbidden)
		case errors.Is(err, ledger.ErrInsufficientBalance):
			writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "insufficient balance", "cost": promotionCost(req.Kind)})
		default:
			h.log.Error("promote item failed", "item_id", itemID, "error", err)
			http.Error(w, `{"error":"promote item failed"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(it))
}

// GET /api/v1/items?limit=N
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.ListAvailable(r.Context(), limit)
	if err != nil {
		h.log.Error("list items failed", "error", err)
		http.Error(w, `{"error":"list items failed"}`, http.StatusInternalServerError)
		return
	}
	resp := make([]ItemResponse, 0, len(list))
	for _, it := range list {
		resp = append(resp, itemToResponse(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func promotionCost(kind string) int64 {
	if kind == PromotionFeatured {
		return ledger.CostFeaturedListing3d
	}
	return ledger.CostBoostListing7d
}

func itemToResponse(it *models.Item) ItemResponse {
	return ItemResponse{
		ID:            it.ID.String(),
		OwnerID:       it.OwnerID.String(),
		Name:          it.Name,
		Price:         it.Price,
		Available:     it.Available,
		BoostedUntil:  it.BoostedUntil,
		FeaturedUntil: it.FeaturedUntil,
	}
}
