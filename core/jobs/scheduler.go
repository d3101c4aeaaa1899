// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/auth"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler purges audit records past retention and drops expired or
// revoked sessions.
type Scheduler struct {
	enabled     bool
	purgeSpec   string
	cleanupSpec string
	retention   time.Duration
	audits      store.AuditStore
	sessions    *auth.SessionManager
	logger      *utils.Logger
	now         func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg *config.AppConfig, audits store.AuditStore, sessions *auth.SessionManager, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		enabled:     cfg.Scheduler.Enabled,
		purgeSpec:   cfg.Audit.PurgeSchedule,
		cleanupSpec: cfg.Scheduler.SessionCleanupSchedule,
		retention:   cfg.EffectiveAuditRetention(),
		audits:      audits,
		sessions:    sessions,
		logger:      logger,
		now:         utils.NowUTC,
	}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || !s.enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cron.PrintfLogger(s.logger)))
	if _, err := c.AddFunc(s.purgeSpec, func() { s.runPurge(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("audit purge schedule %q: %w", s.purgeSpec, err)
	}
	if _, err := c.AddFunc(s.cleanupSpec, func() { s.runCleanup(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("session cleanup schedule %q: %w", s.cleanupSpec, err)
	}
	c.Start()
	s.cron, s.cancel, s.running = c, cancel, true
	s.logger.Printf("jobs scheduler started purge=%s cleanup=%s", s.purgeSpec, s.cleanupSpec)
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runPurge(ctx context.Context) {
	if _, err := s.PurgeAudit(ctx); err != nil {
		s.logger.Errorf("audit purge: %v", err)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, err := s.CleanupSessions(ctx); err != nil {
		s.logger.Errorf("session cleanup: %v", err)
	}
}

func (s *Scheduler) PurgeAudit(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.audits.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("audit purge removed=%d before=%s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func (s *Scheduler) CleanupSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.Cleanup(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("session cleanup removed=%d", n)
	}
	return n, nil
}
