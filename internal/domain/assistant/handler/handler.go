// Package handler exposes the analytics question assistant over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tmcunha/billsight/internal/domain/assistant"
	"github.com/tmcunha/billsight/pkg/httpx"
	"github.com/tmcunha/billsight/pkg/middleware"
)

const maxQuestionLen = 2000

type Handler struct {
	svc    *assistant.Service
	logger *slog.Logger
}

func New(svc *assistant.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/assistant/ask", h.Ask).Methods(http.MethodPost)
	r.HandleFunc("/assistant/history", h.History).Methods(http.MethodGet)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req askRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		httpx.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.Question) > maxQuestionLen {
		httpx.Error(w, http.StatusBadRequest, "question is too long")
		return
	}

	q, err := h.svc.Ask(r.Context(), userID, req.Question)
	if err != nil {
		var ext *assistant.ExternalServiceError
		if errors.As(err, &ext) {
			httpx.Error(w, http.StatusBadGateway, ext.Reason)
			return
		}
		h.logger.Error("assistant question failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	queries, err := h.svc.History(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list query history", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if queries == nil {
		queries = []assistant.Query{}
	}
	httpx.JSON(w, http.StatusOK, queries)
}
