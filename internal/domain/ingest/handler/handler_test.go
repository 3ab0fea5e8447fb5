package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcunha/billsight/internal/domain/catalog"
	"github.com/tmcunha/billsight/internal/domain/ingest"
	"github.com/tmcunha/billsight/internal/domain/ingest/repository"
	"github.com/tmcunha/billsight/internal/domain/ingest/service"
	"github.com/tmcunha/billsight/pkg/metrics"
	"github.com/tmcunha/billsight/pkg/middleware"
)

type stubUploads struct {
	byID map[uuid.UUID]*ingest.Upload
}

func (s *stubUploads) Create(_ context.Context, u *ingest.Upload) error {
	u.ID = uuid.New()
	return nil
}

func (s *stubUploads) GetByID(_ context.Context, id, _ uuid.UUID) (*ingest.Upload, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubUploads) ListByUser(context.Context, uuid.UUID) ([]ingest.Upload, error) {
	return nil, nil
}
func (s *stubUploads) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (s *stubUploads) Transition(_ context.Context, id uuid.UUID, from, to ingest.Status) error {
	u, ok := s.byID[id]
	if !ok || u.Status != from {
		return repository.ErrStatusConflict
	}
	u.Status = to
	return nil
}
func (s *stubUploads) MarkProcessing(context.Context, uuid.UUID) error      { return nil }
func (s *stubUploads) SetTotalRows(context.Context, uuid.UUID, int) error   { return nil }
func (s *stubUploads) UpdateProgress(context.Context, uuid.UUID, int) error { return nil }
func (s *stubUploads) Finish(context.Context, uuid.UUID, ingest.Status, string, int) error {
	return nil
}
func (s *stubUploads) SetDateFormat(context.Context, uuid.UUID, string) error { return nil }
func (s *stubUploads) FailStale(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}

type stubMappings struct{}

func (stubMappings) Replace(context.Context, uuid.UUID, []ingest.FieldMapping) error { return nil }
func (stubMappings) ListByUpload(context.Context, uuid.UUID) ([]ingest.FieldMapping, error) {
	return nil, nil
}

type stubRecords struct{}

func (stubRecords) Insert(context.Context, *ingest.Record) error { return nil }
func (stubRecords) ListByUpload(context.Context, uuid.UUID, int, int) ([]ingest.Record, error) {
	return nil, nil
}
func (stubRecords) ListByUser(context.Context, uuid.UUID, int, int) ([]ingest.Record, error) {
	return nil, nil
}
func (stubRecords) DeleteByUpload(context.Context, uuid.UUID) error     { return nil }
func (stubRecords) Delete(context.Context, uuid.UUID, uuid.UUID) error  { return nil }
func (stubRecords) DeleteBatch(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int64, error) {
	return int64(len(ids)), nil
}

type stubStorage struct{}

func (stubStorage) Save(_ context.Context, _, _ string, r io.Reader) (string, int64, error) {
	n, _ := io.Copy(io.Discard, r)
	return "key", n, nil
}
func (stubStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (stubStorage) Delete(context.Context, string) error { return nil }

func newTestRouter(uploads *stubUploads) (*mux.Router, uuid.UUID) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(uploads, stubMappings{}, stubRecords{}, stubStorage{},
		catalog.Default(), metrics.NewPipeline(nil), logger)

	userID := uuid.New()
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), userID)))
		})
	})
	New(svc, logger).RegisterRoutes(r)
	return r, userID
}

func TestGet_UnknownUploadIs404(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGet_MalformedIDIs400(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	req := httptest.NewRequest(http.MethodGet, "/uploads/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgress_Percentage(t *testing.T) {
	id := uuid.New()
	total := 200
	uploads := &stubUploads{byID: map[uuid.UUID]*ingest.Upload{
		id: {ID: id, Status: ingest.StatusProcessing, TotalRows: &total, ProcessedRows: 50},
	}}
	r, _ := newTestRouter(uploads)

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+id.String()+"/progress", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 25.0, resp.ProgressPercentage, 0.001)
	assert.Equal(t, ingest.StatusProcessing, resp.Status)
}

func TestProgress_UnknownTotalIsZeroPercent(t *testing.T) {
	id := uuid.New()
	uploads := &stubUploads{byID: map[uuid.UUID]*ingest.Upload{
		id: {ID: id, Status: ingest.StatusPending},
	}}
	r, _ := newTestRouter(uploads)

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+id.String()+"/progress", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.ProgressPercentage)
}

func TestCancel_TerminalUploadIs409(t *testing.T) {
	id := uuid.New()
	uploads := &stubUploads{byID: map[uuid.UUID]*ingest.Upload{
		id: {ID: id, Status: ingest.StatusCompleted},
	}}
	r, _ := newTestRouter(uploads)

	req := httptest.NewRequest(http.MethodPost, "/uploads/"+id.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBulkDelete_EmptyIDsIs400(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	body := bytes.NewBufferString(`{"ids":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/records/bulk-delete", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkDelete_ReturnsCount(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	body := bytes.NewBufferString(`{"ids":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`)
	req := httptest.NewRequest(http.MethodPost, "/records/bulk-delete", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp bulkDeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Deleted)
}

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, "report.pdf", "hello")
	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newMultipart(t *testing.T, buf *bytes.Buffer, filename, content string) (contentType string) {
	t.Helper()
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType()
}

func TestUpload_CreatesPendingUpload(t *testing.T) {
	r, _ := newTestRouter(&stubUploads{byID: map[uuid.UUID]*ingest.Upload{}})

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, "invoices.csv", "date,amount\n2024-01-01,10\n")
	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}
