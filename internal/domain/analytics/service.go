package analytics

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

const defaultTopCustomers = 10

// Aggregator is what the service needs from the read side.
type Aggregator interface {
	Summary(ctx context.Context, userID uuid.UUID, rng Range) (*Summary, error)
	RevenueTrend(ctx context.Context, userID uuid.UUID, rng Range, period Period) ([]TrendPoint, error)
	TopCustomers(ctx context.Context, userID uuid.UUID, rng Range, limit int) ([]CustomerStat, error)
	StatusDistribution(ctx context.Context, userID uuid.UUID, rng Range) ([]StatusSlice, error)
}

// Service normalizes caller input and assembles dashboard responses.
type Service struct {
	agg    Aggregator
	logger *slog.Logger
}

func NewService(agg Aggregator, logger *slog.Logger) *Service {
	return &Service{agg: agg, logger: logger}
}

func (s *Service) Summary(ctx context.Context, userID uuid.UUID, rng Range) (*Summary, error) {
	return s.agg.Summary(ctx, userID, rng)
}

// RevenueTrend validates the period token, defaulting to daily buckets.
func (s *Service) RevenueTrend(ctx context.Context, userID uuid.UUID, rng Range, period Period) ([]TrendPoint, error) {
	switch period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		period = PeriodDaily
	}
	return s.agg.RevenueTrend(ctx, userID, rng, period)
}

// TopCustomers clamps the limit to a sane window, defaulting to 10.
func (s *Service) TopCustomers(ctx context.Context, userID uuid.UUID, rng Range, limit int) ([]CustomerStat, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultTopCustomers
	}
	return s.agg.TopCustomers(ctx, userID, rng, limit)
}

func (s *Service) StatusDistribution(ctx context.Context, userID uuid.UUID, rng Range) ([]StatusSlice, error) {
	return s.agg.StatusDistribution(ctx, userID, rng)
}

// Dashboard bundles all four aggregates. Partial failure fails the whole
// call; the read side has no sensible degraded mode.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID, rng Range, period Period) (*Dashboard, error) {
	summary, err := s.Summary(ctx, userID, rng)
	if err != nil {
		return nil, err
	}
	trend, err := s.RevenueTrend(ctx, userID, rng, period)
	if err != nil {
		return nil, err
	}
	customers, err := s.TopCustomers(ctx, userID, rng, 0)
	if err != nil {
		return nil, err
	}
	dist, err := s.agg.StatusDistribution(ctx, userID, rng)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Summary:      *summary,
		RevenueTrend: trend,
		TopCustomers: customers,
		Distribution: dist,
	}, nil
}
