// Package scheduler runs the periodic maintenance jobs: conversation cleanup and
// snapshot flushes.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// specParser accepts 5-field expressions and descriptors such as "@every 5m".
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Maintainer interface {
	Cleanup(ctx context.Context, req dto.CleanupConversationsRequest) (*dto.CleanupConversationsResponse, error)
	ForceSave(ctx context.Context) (*dto.ForceSaveResponse, error)
}

type Config struct {
	// Empty disables the job.
	CleanupSpec   string
	ForceSaveSpec string
}

type Scheduler struct {
	cron   *cron.Cron
	target Maintainer
	logger logger.ILogger
}

func New(target Maintainer, cfg Config, log logger.ILogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithParser(specParser)),
		target: target,
		logger: log,
	}

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"cleanup", cfg.CleanupSpec, s.cleanup},
		{"force_save", cfg.ForceSaveSpec, s.forceSave},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler", "Scheduler started", map[string]interface{}{"jobs": len(s.cron.Entries())})
}

// Stop prevents new runs and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	res, err := s.target.Cleanup(ctx, dto.CleanupConversationsRequest{})
	if err != nil {
		s.logger.Error("Scheduler", "Conversation cleanup failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("Scheduler", "Conversation cleanup done", map[string]interface{}{
		"removed_sessions": res.RemovedSessions,
		"removed_users":    res.RemovedUsers,
	})
}

func (s *Scheduler) forceSave() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	res, err := s.target.ForceSave(ctx)
	if err != nil {
		s.logger.Error("Scheduler", "Periodic snapshot failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Debug("Scheduler", "Periodic snapshot written", map[string]interface{}{
		"documents": len(res.Documents),
		"backed_up": len(res.BackedUp),
	})
}
