package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/config"
)

// Maintainer is the session state the scheduler keeps tidy
type Maintainer interface {
	CleanupCaches() int
	SaveAll(ctx context.Context) error
	EvictIdle(ctx context.Context) int
}

// Scheduler runs periodic maintenance on the session manager: expired model
// lists are dropped, tracker snapshots are flushed and idle sessions evicted.
type Scheduler struct {
	cron     *cron.Cron
	sessions Maintainer
	logger   *zap.Logger
	timeout  time.Duration
}

// NewScheduler registers the maintenance jobs. Non-positive intervals disable a job.
func NewScheduler(sessions Maintainer, cfg config.RoutingConfig, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Named("cron").Sugar()}
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sessions: sessions,
		logger:   logger,
		timeout:  30 * time.Second,
	}

	if cfg.ModelCacheTTL > 0 {
		if _, err := s.cron.AddFunc(every(cfg.ModelCacheTTL), s.CleanupCaches); err != nil {
			return nil, fmt.Errorf("failed to schedule cache cleanup: %w", err)
		}
	}
	if cfg.SnapshotFlushInterval > 0 {
		if _, err := s.cron.AddFunc(every(cfg.SnapshotFlushInterval), s.FlushSnapshots); err != nil {
			return nil, fmt.Errorf("failed to schedule snapshot flush: %w", err)
		}
	}
	if cfg.SessionIdleTTL > 0 {
		if _, err := s.cron.AddFunc(every(cfg.SessionIdleTTL/2), s.EvictIdleSessions); err != nil {
			return nil, fmt.Errorf("failed to schedule session eviction: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for a running job, or until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// CleanupCaches drops expired provider model lists
func (s *Scheduler) CleanupCaches() {
	if removed := s.sessions.CleanupCaches(); removed > 0 {
		s.logger.Debug("expired model lists removed", zap.Int("count", removed))
	}
}

// FlushSnapshots persists every session's tracker snapshot
func (s *Scheduler) FlushSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.sessions.SaveAll(ctx); err != nil {
		s.logger.Warn("failed to flush tracker snapshots", zap.Error(err))
	}
}

// EvictIdleSessions drops sessions nobody used within the idle TTL
func (s *Scheduler) EvictIdleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if evicted := s.sessions.EvictIdle(ctx); evicted > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", evicted))
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes cron's logging through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
