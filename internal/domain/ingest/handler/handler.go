// Package handler exposes the upload pipeline over HTTP.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tmcunha/billsight/internal/domain/ingest"
	"github.com/tmcunha/billsight/internal/domain/ingest/coerce"
	"github.com/tmcunha/billsight/internal/domain/ingest/reader"
	"github.com/tmcunha/billsight/internal/domain/ingest/repository"
	"github.com/tmcunha/billsight/internal/domain/ingest/service"
	"github.com/tmcunha/billsight/pkg/httpx"
	"github.com/tmcunha/billsight/pkg/middleware"
)

// maxUploadBytes caps a single uploaded file at 50 MiB.
const maxUploadBytes = 50 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the upload and record endpoints on r. The router is
// expected to already carry the auth middleware.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/uploads", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/uploads", h.List).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/uploads/{id}/preview", h.Preview).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{id}/mappings", h.SaveMappings).Methods(http.MethodPut)
	r.HandleFunc("/uploads/{id}/process", h.Process).Methods(http.MethodPost)
	r.HandleFunc("/uploads/{id}/progress", h.Progress).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{id}/cancel", h.Cancel).Methods(http.MethodPost)
	r.HandleFunc("/uploads/{id}/records", h.Records).Methods(http.MethodGet)
	r.HandleFunc("/uploads/{id}/export", h.Export).Methods(http.MethodGet)
	r.HandleFunc("/records", h.UserRecords).Methods(http.MethodGet)
	r.HandleFunc("/records/bulk-delete", h.DeleteRecords).Methods(http.MethodPost)
	r.HandleFunc("/records/{id}", h.DeleteRecord).Methods(http.MethodDelete)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Error(w, http.StatusBadRequest, "file too large or malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	dateFormat := coerce.DateFormat(r.FormValue("date_format"))

	u, err := h.svc.Upload(r.Context(), userID, header.Filename, file, dateFormat)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	uploads, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if uploads == nil {
		uploads = []ingest.Upload{}
	}
	httpx.JSON(w, http.StatusOK, uploads)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	preview, err := h.svc.Preview(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

type saveMappingsRequest struct {
	DateFormat coerce.DateFormat     `json:"date_format"`
	Mappings   []ingest.FieldMapping `json:"mappings"`
}

func (h *Handler) SaveMappings(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	var req saveMappingsRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SaveMappings(r.Context(), id, userID, req.Mappings, req.DateFormat); err != nil {
		h.respondError(w, err)
		return
	}

	u, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Process(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type progressResponse struct {
	Status             ingest.Status `json:"status"`
	TotalRows          *int          `json:"total_rows"`
	ProcessedRows      int           `json:"processed_rows"`
	ProgressPercentage float64       `json:"progress_percentage"`
	ErrorMessage       string        `json:"error_message,omitempty"`
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	u, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := progressResponse{
		Status:        u.Status,
		TotalRows:     u.TotalRows,
		ProcessedRows: u.ProcessedRows,
		ErrorMessage:  u.ErrorMessage,
	}
	if u.TotalRows != nil && *u.TotalRows > 0 {
		resp.ProgressPercentage = float64(u.ProcessedRows) / float64(*u.TotalRows) * 100
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), id, userID); err != nil {
		h.respondError(w, err)
		return
	}

	u, err := h.svc.Get(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	records, err := h.svc.Records(r.Context(), id, userID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if records == nil {
		records = []ingest.Record{}
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	data, filename, err := h.svc.ExportCSV(r.Context(), id, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) UserRecords(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	limit, offset := pagination(r)
	records, err := h.svc.UserRecords(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if records == nil {
		records = []ingest.Record{}
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.authAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteRecord(r.Context(), id, userID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type bulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

func (h *Handler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req bulkDeleteRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		httpx.Error(w, http.StatusBadRequest, "no record ids given")
		return
	}

	deleted, err := h.svc.DeleteRecords(r.Context(), userID, req.IDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bulkDeleteResponse{Deleted: deleted})
}

// authAndID pulls the authenticated user and the {id} path variable, writing
// the error response itself when either is missing.
func (h *Handler) authAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unreadable *reader.UnreadableFileError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "upload not found")
	case errors.Is(err, repository.ErrStatusConflict), errors.Is(err, service.ErrUploadTerminal):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidMapping), errors.Is(err, service.ErrInvalidDateFormat):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unreadable):
		httpx.Error(w, http.StatusBadRequest, unreadable.Error())
	default:
		h.logger.Error("request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}
