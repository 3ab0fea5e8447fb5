// Package handler exposes the invoice analytics read side over HTTP.
package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tmcunha/billsight/internal/domain/analytics"
	"github.com/tmcunha/billsight/pkg/httpx"
	"github.com/tmcunha/billsight/pkg/middleware"
)

type Handler struct {
	svc    *analytics.Service
	logger *slog.Logger
}

func New(svc *analytics.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analytics/summary", h.Summary).Methods(http.MethodGet)
	r.HandleFunc("/analytics/trend", h.RevenueTrend).Methods(http.MethodGet)
	r.HandleFunc("/analytics/top-customers", h.TopCustomers).Methods(http.MethodGet)
	r.HandleFunc("/analytics/status-distribution", h.StatusDistribution).Methods(http.MethodGet)
	r.HandleFunc("/analytics/dashboard", h.Dashboard).Methods(http.MethodGet)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, rng, ok := h.authAndRange(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.Summary(r.Context(), userID, rng)
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) RevenueTrend(w http.ResponseWriter, r *http.Request) {
	userID, rng, ok := h.authAndRange(w, r)
	if !ok {
		return
	}

	period := analytics.Period(r.URL.Query().Get("period"))
	trend, err := h.svc.RevenueTrend(r.Context(), userID, rng, period)
	if err != nil {
		h.internal(w, err)
		return
	}
	if trend == nil {
		trend = []analytics.TrendPoint{}
	}
	httpx.JSON(w, http.StatusOK, trend)
}

func (h *Handler) TopCustomers(w http.ResponseWriter, r *http.Request) {
	userID, rng, ok := h.authAndRange(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	customers, err := h.svc.TopCustomers(r.Context(), userID, rng, limit)
	if err != nil {
		h.internal(w, err)
		return
	}
	if customers == nil {
		customers = []analytics.CustomerStat{}
	}
	httpx.JSON(w, http.StatusOK, customers)
}

func (h *Handler) StatusDistribution(w http.ResponseWriter, r *http.Request) {
	userID, rng, ok := h.authAndRange(w, r)
	if !ok {
		return
	}

	dist, err := h.svc.StatusDistribution(r.Context(), userID, rng)
	if err != nil {
		h.internal(w, err)
		return
	}
	if dist == nil {
		dist = []analytics.StatusSlice{}
	}
	httpx.JSON(w, http.StatusOK, dist)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, rng, ok := h.authAndRange(w, r)
	if !ok {
		return
	}

	period := analytics.Period(r.URL.Query().Get("period"))
	dash, err := h.svc.Dashboard(r.Context(), userID, rng, period)
	if err != nil {
		h.internal(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

// authAndRange resolves the authenticated user and the optional from/to date
// filters. Dates are inclusive calendar days; "to" extends to end of day.
func (h *Handler) authAndRange(w http.ResponseWriter, r *http.Request) (userID uuid.UUID, rng analytics.Range, ok bool) {
	userID, found := middleware.UserID(r.Context())
	if !found {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return userID, rng, false
	}

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid from date %q, want YYYY-MM-DD", raw))
			return userID, rng, false
		}
		rng.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid to date %q, want YYYY-MM-DD", raw))
			return userID, rng, false
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		rng.To = &end
	}
	return userID, rng, true
}

func (h *Handler) internal(w http.ResponseWriter, err error) {
	h.logger.Error("analytics query failed", "error", err)
	httpx.Error(w, http.StatusInternalServerError, "internal error")
}
