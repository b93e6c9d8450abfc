package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	pgrepo "github.com/nyckye/starshop/backend/internal/repo/postgres"
	authsvc "github.com/nyckye/starshop/backend/internal/services/auth"
	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type StatsStore interface {
	Statistics(ctx context.Context) (pgrepo.PurchaseStats, error)
}

type SecurityEventStore interface {
	ListRecent(ctx context.Context, limit int) ([]pgrepo.SecurityEventRecord, error)
}

type AdminHandler struct {
	adminToken string
	tokens     *authsvc.JWTManager
	stats      StatsStore
	events     SecurityEventStore
	wallet     BalanceProvider
}

type AdminHandlerDeps struct {
	AdminToken string
	Tokens     *authsvc.JWTManager
	Stats      StatsStore
	Events     SecurityEventStore
	Wallet     BalanceProvider
}

func NewAdminHandler(deps AdminHandlerDeps) *AdminHandler {
	return &AdminHandler{
		adminToken: deps.AdminToken,
		tokens:     deps.Tokens,
		stats:      deps.Stats,
		events:     deps.Events,
		wallet:     deps.Wallet,
	}
}

// Login exchanges the shared admin token for a short-lived JWT.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil || h.adminToken == "" {
		writeInternal(w, "ADMIN_AUTH_UNAVAILABLE", "admin auth is not configured")
		return
	}

	var req dto.AdminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.adminToken)) != 1 {
		writeUnauthorized(w, "UNAUTHORIZED", "invalid admin token")
		return
	}

	token, expiresAt, err := h.tokens.GenerateAdminToken("admin")
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AdminLoginResponse{
		AccessToken:  token,
		ExpiresInSec: int64(time.Until(expiresAt).Seconds()),
	})
}

func (h *AdminHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeInternal(w, "STATS_UNAVAILABLE", "statistics are unavailable")
		return
	}

	stats, err := h.stats.Statistics(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := dto.AdminStatisticsResponse{
		TotalPurchases: stats.Total,
		Succeeded:      stats.Succeeded,
		Failed:         stats.Failed,
		Pending:        stats.Pending,
		StarsDelivered: stats.StarsDelivered,
		DistinctBuyers: stats.DistinctBuyers,
	}
	if h.wallet != nil {
		if balance, err := h.wallet.Balance(r.Context()); err == nil {
			resp.WalletBalance = balance
			resp.WalletAvailable = true
		}
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *AdminHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeInternal(w, "EVENTS_UNAVAILABLE", "security events are unavailable")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	records, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
		return
	}

	items := make([]dto.SecurityEventItem, 0, len(records))
	for _, record := range records {
		items = append(items, dto.SecurityEventItem{
			Kind:       record.Kind,
			Path:       record.Path,
			Method:     record.Method,
			Pattern:    record.Pattern,
			ClientIP:   record.ClientIP,
			OccurredAt: record.OccurredAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.SecurityEventsResponse{Events: items})
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Service: "starshop-admin",
	})
}
