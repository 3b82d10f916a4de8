package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/middleware"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/trust"
)

// Wallets is the read side of the ledger. Satisfied by ledger.Service.
type Wallets interface {
	Wallet(ctx context.Context, uid uuid.UUID) (*models.Wallet, error)
	History(ctx context.Context, uid uuid.UUID, limit int) ([]*models.CoinTransaction, error)
}

// Scores is satisfied by trust.Service.
type Scores interface {
	Summary(ctx context.Context, uid uuid.UUID, limit int) (*trust.Summary, error)
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Handler struct {
	wallets Wallets
	scores  Scores
	users   Users
	log     *slog.Logger
}

func NewHandler(wallets Wallets, scores Scores, users Users, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{wallets: wallets, scores: scores, users: users, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	u, err := h.users.GetByID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		h.log.Error("get account failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"display_name":   u.DisplayName,
		"trust_score":    u.TrustScore,
		"trust_tier":     u.TrustTier,
		"is_verified":    u.IsVerified,
		"borrowed":       u.Borrowed,
		"lent":           u.Lent,
		"average_rating": u.AverageRating(),
		"total_ratings":  u.TotalRatings,
		"created_at":     u.CreatedAt,
	})
}

// GET /api/v1/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	wallet, err := h.wallets.Wallet(r.Context(), uid)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// GET /api/v1/wallet/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.wallets.History(r.Context(), uid, limitParam(r))
	if err != nil {
		h.log.Error("list coin transactions failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CoinTransaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/trust-score
func (h *Handler) GetTrustScore(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sum, err := h.scores.Summary(r.Context(), uid, limitParam(r))
	if err != nil {
		if errors.Is(err, trust.ErrUserNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		h.log.Error("get trust score failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sum.History == nil {
		sum.History = []*models.TrustScoreHistory{}
	}
	writeJSON(w, http.StatusOK, sum)
}
