package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcunha/billsight/internal/domain/analytics"
)

func TestClient_Complete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Revenue is trending up."}}]}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", "gpt-4o-mini", srv.URL)
	answer, err := c.Complete(context.Background(), "system text", "user text")
	require.NoError(t, err)

	assert.Equal(t, "Revenue is trending up.", answer)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestClient_MissingKeyIsRecoverable(t *testing.T) {
	c := NewClient("", "gpt-4o-mini", "")

	_, err := c.Complete(context.Background(), "s", "u")

	var ext *ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Contains(t, ext.Reason, "API key")
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", "gpt-4o-mini", srv.URL)
	_, err := c.Complete(context.Background(), "s", "u")

	var ext *ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Contains(t, ext.Reason, "rate limited")
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json at all`)
	}))
	defer srv.Close()

	c := NewClient("sk-test", "gpt-4o-mini", srv.URL)
	_, err := c.Complete(context.Background(), "s", "u")

	var ext *ExternalServiceError
	assert.ErrorAs(t, err, &ext)
}

// ---------------------------------------------------------------------------

type fakeCompleter struct {
	lastSystem string
	lastUser   string
	answer     string
	err        error
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.lastSystem, f.lastUser = system, user
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeDashboards struct{ dash *analytics.Dashboard }

func (f *fakeDashboards) Dashboard(context.Context, uuid.UUID, analytics.Range, analytics.Period) (*analytics.Dashboard, error) {
	return f.dash, nil
}

type memStore struct{ saved []Query }

func (m *memStore) Save(_ context.Context, q *Query) error {
	m.saved = append(m.saved, *q)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, _ uuid.UUID, limit int) ([]Query, error) {
	if limit > len(m.saved) {
		limit = len(m.saved)
	}
	return m.saved[:limit], nil
}

func testDashboard() *analytics.Dashboard {
	return &analytics.Dashboard{
		Summary: analytics.Summary{
			TotalRevenue: decimal.RequireFromString("1000.00"),
			TotalRecords: 10,
		},
		TopCustomers: []analytics.CustomerStat{
			{CustomerName: "Acme Corp", TotalRevenue: decimal.RequireFromString("600.00"), InvoiceCount: 3},
			{CustomerName: "Globex", TotalRevenue: decimal.RequireFromString("400.00"), InvoiceCount: 2},
		},
	}
}

func newTestService(llm Completer, store QueryStore) *Service {
	return NewService(llm, &fakeDashboards{dash: testDashboard()}, store,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAsk_AnonymizesCustomerNames(t *testing.T) {
	llm := &fakeCompleter{answer: "Your top customer drives 60% of revenue."}
	store := &memStore{}
	svc := newTestService(llm, store)

	q, err := svc.Ask(context.Background(), uuid.New(), "Who is my biggest customer?")
	require.NoError(t, err)

	assert.True(t, q.Success)
	assert.Equal(t, "Your top customer drives 60% of revenue.", q.Answer)

	// Real names never reach the collaborator.
	assert.NotContains(t, llm.lastUser, "Acme Corp")
	assert.NotContains(t, llm.lastUser, "Globex")
	assert.Contains(t, llm.lastUser, "Customer_1")
	assert.Contains(t, llm.lastUser, "Customer_2")
	assert.Contains(t, llm.lastUser, "Who is my biggest customer?")

	require.Len(t, store.saved, 1)
	assert.True(t, store.saved[0].Success)
}

func TestAsk_CollaboratorFailureRecordedInHistory(t *testing.T) {
	llm := &fakeCompleter{err: &ExternalServiceError{Reason: "request failed", Err: errors.New("timeout")}}
	store := &memStore{}
	svc := newTestService(llm, store)

	_, err := svc.Ask(context.Background(), uuid.New(), "How are sales?")

	var ext *ExternalServiceError
	require.ErrorAs(t, err, &ext)

	require.Len(t, store.saved, 1)
	assert.False(t, store.saved[0].Success)
	assert.Contains(t, store.saved[0].ErrorText, "request failed")
}

func TestHistory_LimitClamped(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 5; i++ {
		store.saved = append(store.saved, Query{Question: strings.Repeat("q", i+1)})
	}
	svc := newTestService(&fakeCompleter{}, store)

	qs, err := svc.History(context.Background(), uuid.New(), -1)
	require.NoError(t, err)
	assert.Len(t, qs, 5)
}
