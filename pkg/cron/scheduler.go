// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tmcunha/billsight/internal/domain/ingest/repository"
)

// staleAfter is how long a PROCESSING upload may run before the sweep marks
// it failed. Processing is synchronous, so anything older than this belongs
// to a crashed request.
const staleAfter = time.Hour

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	uploads repository.UploadRepository
	logger  *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(uploads repository.UploadRepository, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		uploads: uploads,
		logger:  logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Stale upload sweep: hourly, on the hour
	_, err := s.cron.AddFunc("0 * * * *", s.sweepStaleUploads)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the stale sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleUploads()
}

// sweepStaleUploads fails uploads stuck in PROCESSING past the cutoff.
func (s *Scheduler) sweepStaleUploads() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	swept, err := s.uploads.FailStale(ctx, time.Now().Add(-staleAfter), "processing timed out")
	if err != nil {
		s.logger.Error("stale upload sweep failed", slog.Any("error", err))
		return
	}
	if swept > 0 {
		s.logger.Warn("swept stale uploads", slog.Int64("count", swept))
	}
}
