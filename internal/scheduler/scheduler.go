// Package scheduler starts a recurring extraction workflow for a fixed set
// of target accounts, replacing manual kicks for always-on deployments.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// Scheduler owns the cron runner for recurring workflows.
type Scheduler struct {
	c         *cron.Cron
	orc       *engine.Orchestrator
	accounts  []string
	platforms []string
}

// New builds a scheduler that starts a workflow every interval.
func New(orc *engine.Orchestrator, accounts, platforms []string) *Scheduler {
	return &Scheduler{
		c:         cron.New(),
		orc:       orc,
		accounts:  accounts,
		platforms: platforms,
	}
}

// Start registers the recurring job and starts the cron runner.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive")
	}
	if len(s.accounts) == 0 {
		return fmt.Errorf("scheduler: no target accounts configured")
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.c.AddFunc(spec, s.kick); err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}
	s.c.Start()
	slog.Info("scheduler started",
		slog.Duration("interval", interval),
		slog.Int("accounts", len(s.accounts)),
	)
	return nil
}

// Stop halts the runner; a job already kicked off keeps running.
func (s *Scheduler) Stop() {
	s.c.Stop()
}

func (s *Scheduler) kick() {
	req := engine.StartRequest{Platforms: s.platforms}
	for _, handle := range s.accounts {
		req.Accounts = append(req.Accounts, engine.TargetAccount{Handle: handle})
	}

	id, err := s.orc.Start(context.Background(), req)
	if err != nil {
		slog.Error("scheduled workflow failed to start", slog.Any("error", err))
		return
	}
	slog.Info("scheduled workflow started", slog.String("run", id))
}
