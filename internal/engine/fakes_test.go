package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu        sync.Mutex
	runs      map[string]*WorkflowRun
	order     []string
	successes map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      make(map[string]*WorkflowRun),
		successes: make(map[string]bool),
	}
}

func (s *fakeStore) CreateRun(_ context.Context, run *WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	return nil
}

func (s *fakeStore) SetRunStatus(_ context.Context, id string, status WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
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

func (s *fakeStore) AddExtracted(_ context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.Summary.ItemsExtracted += n
	return nil
}

func (s *fakeStore) AppendAttempt(_ context.Context, runID string, a PublishAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Attempts = append(run.Attempts, a)
	if a.Outcome == OutcomeSuccess {
		s.successes[a.SourceID+"|"+a.Platform] = true
	}
	if a.Terminal {
		switch a.Outcome {
		case OutcomeSuccess:
			run.Summary.ItemsPublished++
		case OutcomeSkipped:
			run.Summary.ItemsSkipped++
		case OutcomeFailed:
			run.Summary.ItemsFailed++
		}
	}
	return nil
}

func (s *fakeStore) GetRun(_ context.Context, id string) (*WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	cp.Attempts = append([]PublishAttempt(nil), run.Attempts...)
	return &cp, nil
}

func (s *fakeStore) ListRuns(_ context.Context) ([]WorkflowSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkflowSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].Summarize())
	}
	return out, nil
}

func (s *fakeStore) HasSuccess(_ context.Context, sourceID, platform string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successes[sourceID+"|"+platform], nil
}

// attemptsFor filters a run's log down to one (item, platform) pair.
func attemptsFor(run *WorkflowRun, sourceID, platform string) []PublishAttempt {
	var out []PublishAttempt
	for _, a := range run.Attempts {
		if a.SourceID == sourceID && a.Platform == platform {
			out = append(out, a)
		}
	}
	return out
}

// fakeSource serves canned items or errors per account handle.
type fakeSource struct {
	items map[string][]MediaItem
	errs  map[string]error
}

func (s *fakeSource) Fetch(_ context.Context, account TargetAccount) ([]MediaItem, error) {
	if err := s.errs[account.Handle]; err != nil {
		return nil, err
	}
	items := s.items[account.Handle]
	if account.MaxItems > 0 && len(items) > account.MaxItems {
		items = items[:account.MaxItems]
	}
	return items, nil
}

func testItem(sourceID string) MediaItem {
	return MediaItem{
		SourceID:    sourceID,
		Account:     "alice",
		Caption:     "A day in the studio #bts",
		MediaURL:    "https://example.com/" + sourceID + ".mp4",
		ExtractedAt: time.Now().UTC(),
	}
}

// fakeTransformer echoes the caption, failing where scripted.
type fakeTransformer struct {
	failOn map[string]error // sourceID|platform
}

func (t *fakeTransformer) Transform(_ context.Context, item MediaItem, platform string, _ Constraints) (*PlatformContent, error) {
	if t.failOn != nil {
		if err := t.failOn[item.SourceID+"|"+platform]; err != nil {
			return nil, err
		}
	}
	return &PlatformContent{
		Platform: platform,
		SourceID: item.SourceID,
		Text:     item.Caption,
	}, nil
}

// scriptedPublisher returns the scripted error sequence per (item, platform)
// pair, then succeeds. A nil script entry means immediate success.
type scriptedPublisher struct {
	mu        sync.Mutex
	script    map[string][]error // sourceID|platform → errors in call order
	calls     map[string]int
	onPublish func() // called inside every Publish, before returning
	verifyErr error
}

func newScriptedPublisher() *scriptedPublisher {
	return &scriptedPublisher{
		script: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (p *scriptedPublisher) Publish(_ context.Context, content *PlatformContent) (string, error) {
	p.mu.Lock()
	key := content.SourceID + "|" + content.Platform
	n := p.calls[key]
	p.calls[key]++
	script := p.script[key]
	hook := p.onPublish
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if n < len(script) && script[n] != nil {
		return "", script[n]
	}
	return fmt.Sprintf("post-%s-%d", key, n+1), nil
}

func (p *scriptedPublisher) VerifyCredentials(context.Context) error {
	return p.verifyErr
}

func (p *scriptedPublisher) callCount(sourceID, platform string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[sourceID+"|"+platform]
}

// fastRetry keeps test backoffs in the microsecond range.
func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: time.Microsecond,
		MaxWait:     time.Millisecond,
		Multiplier:  2,
		jitter:      func() float64 { return 0 },
	}
}
