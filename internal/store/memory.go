// Package store persists workflow runs and their publish-attempt logs.
// Two implementations: an in-memory store for tests and ephemeral runs,
// and a SQLite store that survives process restarts.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// Memory is a mutex-guarded in-memory Store.
type Memory struct {
	mu        sync.Mutex
	runs      map[string]*engine.WorkflowRun
	order     []string        // insertion order, for stable listing
	successes map[string]bool // sourceID + "\x00" + platform
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[string]*engine.WorkflowRun),
		successes: make(map[string]bool),
	}
}

func successKey(sourceID, platform string) string {
	return sourceID + "\x00" + platform
}

func (m *Memory) CreateRun(_ context.Context, run *engine.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	cp.Attempts = append([]engine.PublishAttempt(nil), run.Attempts...)
	m.runs[run.ID] = &cp
	m.order = append(m.order, run.ID)
	return nil
}

func (m *Memory) SetRunStatus(_ context.Context, id string, status engine.WorkflowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return engine.ErrRunNotFound
	}
	if run.Status.Terminal() {
		return nil
	}
	run.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	return nil
}

func (m *Memory) AddExtracted(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return engine.ErrRunNotFound
	}
	run.Summary.ItemsExtracted += n
	return nil
}

func (m *Memory) AppendAttempt(_ context.Context, runID string, a engine.PublishAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return engine.ErrRunNotFound
	}
	run.Attempts = append(run.Attempts, a)
	if a.Outcome == engine.OutcomeSuccess {
		m.successes[successKey(a.SourceID, a.Platform)] = true
	}
	if a.Terminal {
		switch a.Outcome {
		case engine.OutcomeSuccess:
			run.Summary.ItemsPublished++
		case engine.OutcomeSkipped:
			run.Summary.ItemsSkipped++
		case engine.OutcomeFailed:
			run.Summary.ItemsFailed++
		}
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*engine.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, engine.ErrRunNotFound
	}
	cp := *run
	cp.Attempts = append([]engine.PublishAttempt(nil), run.Attempts...)
	return &cp, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]engine.WorkflowSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.WorkflowSummary, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.runs[m.order[i]].Summarize())
	}
	return out, nil
}

func (m *Memory) HasSuccess(_ context.Context, sourceID, platform string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successes[successKey(sourceID, platform)], nil
}
