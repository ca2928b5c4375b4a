package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(store Store, source ContentSource, pub *scriptedPublisher) *Orchestrator {
	return NewOrchestrator(
		Options{
			SupportedPlatforms: []string{"twitter", "linkedin"},
			AccountWorkers:     2,
			MaxItemsPerAccount: 5,
			CallTimeout:        time.Second,
		},
		source,
		&fakeTransformer{},
		map[string]Publisher{"twitter": pub, "linkedin": pub},
		map[string]Constraints{
			"twitter":  {MaxLength: 280, HashtagLimit: 10},
			"linkedin": {MaxLength: 3000, HashtagLimit: 30},
		},
		NewRateLimiter(nil),
		fastRetry(),
		store,
	)
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *WorkflowRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := o.Status(context.Background(), id)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal status", id)
	return nil
}

func TestStartValidatesRequest(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeSource{}, newScriptedPublisher())

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"no accounts", StartRequest{Platforms: []string{"twitter"}}},
		{"no platforms", StartRequest{Accounts: []TargetAccount{{Handle: "alice"}}}},
		{"unsupported platform", StartRequest{
			Accounts:  []TargetAccount{{Handle: "alice"}},
			Platforms: []string{"myspace"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Start(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, KindValidation, Classify(err))
		})
	}
}

func TestRunCompletesAndCountsItems(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{
		"alice": {testItem("vid1"), testItem("vid2")},
	}}
	pub := newScriptedPublisher()
	pub.script["vid2|twitter"] = []error{Errorf(KindValidation, "rejected")}
	o := newTestOrchestrator(store, source, pub)

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	run := waitTerminal(t, o, id)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Summary.ItemsExtracted)
	assert.Equal(t, 1, run.Summary.ItemsPublished)
	assert.Equal(t, 1, run.Summary.ItemsFailed)
	require.NotNil(t, run.FinishedAt)
}

func TestRunCompletesWhenEveryAccountFails(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{errs: map[string]error{
		"alice": Errorf(KindNotFound, "profile not found"),
		"bob":   Errorf(KindTransient, "source unreachable"),
	}}
	o := newTestOrchestrator(store, source, newScriptedPublisher())

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}, {Handle: "bob"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	run := waitTerminal(t, o, id)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Zero(t, run.Summary.ItemsExtracted)
	assert.Zero(t, run.Summary.ItemsPublished)
	assert.Empty(t, run.Attempts)
}

func TestMaxItemsPerAccountCapsExtraction(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{
		"alice": {testItem("vid1"), testItem("vid2"), testItem("vid3")},
	}}
	o := newTestOrchestrator(store, source, newScriptedPublisher())

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice", MaxItems: 2}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	run := waitTerminal(t, o, id)
	assert.Equal(t, 2, run.Summary.ItemsExtracted)
	assert.Equal(t, 2, run.Summary.ItemsPublished)
	assert.Empty(t, attemptsFor(run, "vid3", "twitter"))
}

// brokenCountStore fails every AddExtracted write.
type brokenCountStore struct {
	*fakeStore
}

func (s *brokenCountStore) AddExtracted(context.Context, string, int) error {
	return Errorf(KindUnknown, "disk full")
}

func TestRunFailsWhenProgressCannotBePersisted(t *testing.T) {
	st := &brokenCountStore{fakeStore: newFakeStore()}
	source := &fakeSource{items: map[string][]MediaItem{
		"alice": {testItem("vid1"), testItem("vid2")},
	}}
	pub := newScriptedPublisher()
	o := newTestOrchestrator(st, source, pub)

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	run := waitTerminal(t, o, id)
	assert.Equal(t, StatusFailed, run.Status)
	// No publish happens without durable progress records.
	assert.Equal(t, 0, pub.callCount("vid1", "twitter"))
	assert.Empty(t, run.Attempts)
}

func TestCancelStopsNewAttempts(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{
		"alice": {testItem("vid1"), testItem("vid2"), testItem("vid3")},
	}}
	pub := newScriptedPublisher()

	started := make(chan struct{})
	release := make(chan struct{})
	var once bool
	pub.onPublish = func() {
		pub.mu.Lock()
		first := !once
		once = true
		pub.mu.Unlock()
		if first {
			close(started)
			<-release
		}
	}
	o := newTestOrchestrator(store, source, pub)

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, o.Cancel(context.Background(), id))
	close(release)

	run := waitTerminal(t, o, id)
	assert.Equal(t, StatusCancelled, run.Status)

	// The in-flight attempt still reaches a terminal record; items queued
	// behind the cancel never start.
	require.Len(t, attemptsFor(run, "vid1", "twitter"), 1)
	assert.Empty(t, attemptsFor(run, "vid2", "twitter"))
	assert.Empty(t, attemptsFor(run, "vid3", "twitter"))
}

func TestCancelTerminalRunIsNoOp(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{"alice": {testItem("vid1")}}}
	o := newTestOrchestrator(store, source, newScriptedPublisher())

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	require.NoError(t, o.Cancel(context.Background(), id))
	run, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
}

func TestStatusUnknownRun(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeSource{}, newScriptedPublisher())
	_, err := o.Status(context.Background(), "no-such-run")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = o.Cancel(context.Background(), "no-such-run")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListReturnsNewestFirst(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{"alice": {testItem("vid1")}}}
	o := newTestOrchestrator(store, source, newScriptedPublisher())

	req := StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	}
	first, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	waitTerminal(t, o, first)
	second, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	waitTerminal(t, o, second)

	runs, err := o.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestSecondRunSkipsPublishedItems(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{"alice": {testItem("vid1")}}}
	pub := newScriptedPublisher()
	o := newTestOrchestrator(store, source, pub)

	req := StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	}
	first, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	waitTerminal(t, o, first)

	second, err := o.Start(context.Background(), req)
	require.NoError(t, err)
	run := waitTerminal(t, o, second)

	assert.Equal(t, 1, pub.callCount("vid1", "twitter"))
	assert.Equal(t, 1, run.Summary.ItemsSkipped)
	assert.Zero(t, run.Summary.ItemsPublished)
}

func TestHealthReportsPerPlatform(t *testing.T) {
	pub := newScriptedPublisher()
	pub.verifyErr = Errorf(KindAuth, "token expired")
	o := newTestOrchestrator(newFakeStore(), &fakeSource{}, pub)

	health := o.Health(context.Background())
	require.Len(t, health, 2)
	for _, detail := range health {
		assert.Contains(t, detail, "token expired")
	}
}

func TestShutdownWaitsForRuns(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{items: map[string][]MediaItem{"alice": {testItem("vid1")}}}
	o := newTestOrchestrator(store, source, newScriptedPublisher())

	id, err := o.Start(context.Background(), StartRequest{
		Accounts:  []TargetAccount{{Handle: "alice"}},
		Platforms: []string{"twitter"},
	})
	require.NoError(t, err)

	o.Shutdown()

	run, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, run.Status.Terminal())
}
