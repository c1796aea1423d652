// Package maintenance runs periodic housekeeping against the festlist
// database.
package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultUsageRetentionDays is how many days of per-user usage rows are kept.
const DefaultUsageRetentionDays = 30

// SessionCleaner removes expired login sessions.
type SessionCleaner interface {
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// UsagePruner removes old daily usage counters.
type UsagePruner interface {
	Prune(ctx context.Context, keepDays int) (int64, error)
}

// Report summarises one sweep.
type Report struct {
	SessionsRemoved int64     `json:"sessions_removed"`
	UsageRowsPruned int64     `json:"usage_rows_pruned"`
	OptimizedAt     time.Time `json:"optimized_at"`
}

// Service provides database maintenance operations.
type Service struct {
	db       *sql.DB
	sessions SessionCleaner
	usage    UsagePruner
	keepDays int
	logger   *slog.Logger
}

// NewService creates a maintenance service. sessions and usage may be nil.
func NewService(db *sql.DB, sessions SessionCleaner, usage UsagePruner, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		usage:    usage,
		keepDays: DefaultUsageRetentionDays,
		logger:   logger.With(slog.String("component", "maintenance")),
	}
}

// LastOptimize returns when Optimize last completed, or the zero time.
func (s *Service) LastOptimize(ctx context.Context) time.Time {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = 'db_maintenance.last_optimize_at'`).Scan(&v)
	if err != nil {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, v)
	return t
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) (time.Time, error) {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return time.Time{}, fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return time.Time{}, fmt.Errorf("WAL checkpoint: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	stamp := now.Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ('db_maintenance.last_optimize_at', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		stamp, stamp)
	if err != nil {
		s.logger.Warn("recording optimize timestamp", slog.Any("error", err))
	}
	return now, nil
}

// Sweep removes expired sessions, prunes old usage rows and optimizes the
// database. Every step runs even if an earlier one fails.
func (s *Service) Sweep(ctx context.Context) (Report, error) {
	var (
		rep  Report
		errs []error
	)

	if s.sessions != nil {
		n, err := s.sessions.CleanExpiredSessions(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("cleaning sessions: %w", err))
		}
		rep.SessionsRemoved = n
	}
	if s.usage != nil {
		n, err := s.usage.Prune(ctx, s.keepDays)
		if err != nil {
			errs = append(errs, fmt.Errorf("pruning usage: %w", err))
		}
		rep.UsageRowsPruned = n
	}

	at, err := s.Optimize(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	rep.OptimizedAt = at

	s.logger.Info("maintenance sweep complete",
		slog.Int64("sessions_removed", rep.SessionsRemoved),
		slog.Int64("usage_rows_pruned", rep.UsageRowsPruned))
	return rep, errors.Join(errs...)
}

// StartScheduler runs Sweep on a fixed interval until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduled maintenance failed", slog.Any("error", err))
			}
		}
	}
}
