package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/analytics"
)

const systemPrompt = `You are a billing data analytics assistant. You help users analyze their billing and invoice data.

You will be provided with summarized billing data (no personal information) and asked questions about it.

Guidelines:
- Provide clear, actionable insights
- Use business terminology appropriately
- Include specific numbers and percentages when relevant
- Suggest practical recommendations when appropriate
- Keep responses concise but informative
- If data is insufficient, mention what additional data would be helpful

The data provided is anonymized and aggregated for privacy.`

// Query is one question/answer exchange kept for history.
type Query struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer,omitempty"`
	Success   bool      `json:"success"`
	ErrorText string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Completer is the chat collaborator; Client implements it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// QueryStore persists the question history.
type QueryStore interface {
	Save(ctx context.Context, q *Query) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Query, error)
}

// DashboardProvider supplies the aggregates used as question context.
type DashboardProvider interface {
	Dashboard(ctx context.Context, userID uuid.UUID, rng analytics.Range, period analytics.Period) (*analytics.Dashboard, error)
}

// Service builds anonymized context, queries the collaborator and records the
// exchange. Collaborator failures surface to the caller but are still logged
// to history.
type Service struct {
	llm       Completer
	analytics DashboardProvider
	store     QueryStore
	logger    *slog.Logger
}

func NewService(llm Completer, analytics DashboardProvider, store QueryStore, logger *slog.Logger) *Service {
	return &Service{llm: llm, analytics: analytics, store: store, logger: logger}
}

// anonCustomer replaces the customer name with a positional alias before the
// data leaves the system.
type anonCustomer struct {
	CustomerID     string          `json:"customer_id"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	InvoiceCount   int             `json:"invoice_count"`
	AverageInvoice decimal.Decimal `json:"average_invoice"`
}

type contextPayload struct {
	SummaryStats analytics.Summary       `json:"summary_stats"`
	TopCustomers []anonCustomer          `json:"top_customers"`
	RevenueTrend []analytics.TrendPoint  `json:"revenue_trend"`
	Distribution []analytics.StatusSlice `json:"payment_status_distribution"`
}

// Ask answers one natural-language question over the user's aggregates.
func (s *Service) Ask(ctx context.Context, userID uuid.UUID, question string) (*Query, error) {
	q := &Query{ID: uuid.New(), UserID: userID, Question: question}

	dash, err := s.analytics.Dashboard(ctx, userID, analytics.Range{}, analytics.PeriodMonthly)
	if err != nil {
		return nil, fmt.Errorf("failed to build question context: %w", err)
	}

	payload := anonymize(dash)
	contextJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode question context: %w", err)
	}

	userPrompt := fmt.Sprintf(
		"Here is the billing data context:\n%s\n\nUser Question: %s\n\nPlease analyze this data and provide insights to answer the user's question.",
		contextJSON, question,
	)

	answer, err := s.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		q.ErrorText = err.Error()
		s.saveHistory(ctx, q)
		return nil, err
	}

	q.Answer = answer
	q.Success = true
	s.saveHistory(ctx, q)
	return q, nil
}

// History lists the user's past questions, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]Query, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *Service) saveHistory(ctx context.Context, q *Query) {
	if err := s.store.Save(ctx, q); err != nil {
		s.logger.Warn("failed to save query history", "user_id", q.UserID, "error", err)
	}
}

func anonymize(dash *analytics.Dashboard) contextPayload {
	customers := make([]anonCustomer, len(dash.TopCustomers))
	for i, c := range dash.TopCustomers {
		customers[i] = anonCustomer{
			CustomerID:     fmt.Sprintf("Customer_%d", i+1),
			TotalRevenue:   c.TotalRevenue,
			InvoiceCount:   c.InvoiceCount,
			AverageInvoice: c.AverageInvoice,
		}
	}
	return contextPayload{
		SummaryStats: dash.Summary,
		TopCustomers: customers,
		RevenueTrend: dash.RevenueTrend,
		Distribution: dash.Distribution,
	}
}
