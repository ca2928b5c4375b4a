package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options configures an Orchestrator.
type Options struct {
	SupportedPlatforms []string
	AccountWorkers     int // bounded concurrency over accounts
	MaxItemsPerAccount int // default per-account extraction cap
	CallTimeout        time.Duration
}

// StartRequest is the input to Start.
type StartRequest struct {
	Accounts  []TargetAccount `json:"accounts"`
	Platforms []string        `json:"platforms"`
}

// Orchestrator fans a batch of target accounts out into item pipelines,
// tracks aggregate state, and exposes workflow lifecycle operations.
type Orchestrator struct {
	opts     Options
	source   ContentSource
	pipeline *Pipeline
	store    Store

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup // in-flight runs, for Shutdown
}

// NewOrchestrator wires the engine together. All collaborators are injected;
// nothing is process-global.
func NewOrchestrator(opts Options, source ContentSource, transformer Transformer,
	publishers map[string]Publisher, constraints map[string]Constraints,
	limiter *RateLimiter, retry RetryPolicy, store Store) *Orchestrator {

	if opts.AccountWorkers <= 0 {
		opts.AccountWorkers = 3
	}
	if opts.MaxItemsPerAccount <= 0 {
		opts.MaxItemsPerAccount = 5
	}
	return &Orchestrator{
		opts:   opts,
		source: source,
		pipeline: &Pipeline{
			Transformer: transformer,
			Publishers:  publishers,
			Constraints: constraints,
			Limiter:     limiter,
			Retry:       retry,
			Store:       store,
			CallTimeout: opts.CallTimeout,
		},
		store:  store,
		active: make(map[string]context.CancelFunc),
	}
}

// Start validates the request, creates a pending run, transitions it to
// running and begins execution in the background. Returns the workflow id.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (string, error) {
	if len(req.Accounts) == 0 {
		return "", Errorf(KindValidation, "at least one target account is required")
	}
	if len(req.Platforms) == 0 {
		return "", Errorf(KindValidation, "at least one destination platform is required")
	}
	for _, p := range req.Platforms {
		if !o.supported(p) {
			return "", Errorf(KindValidation, "unsupported platform %q", p)
		}
	}

	run := &WorkflowRun{
		ID:        uuid.NewString(),
		Accounts:  req.Accounts,
		Platforms: req.Platforms,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	// Runs outlive the Start caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.active[run.ID] = cancel
	o.mu.Unlock()

	if err := o.store.SetRunStatus(ctx, run.ID, StatusRunning); err != nil {
		cancel()
		o.forget(run.ID)
		return "", fmt.Errorf("start run: %w", err)
	}

	metrics.WorkflowsStarted.Add(1)
	slog.Info("workflow started",
		slog.String("run", run.ID),
		slog.Int("accounts", len(req.Accounts)),
		slog.Any("platforms", req.Platforms),
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(runCtx, run.ID, req)
	}()
	return run.ID, nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, req StartRequest) {
	halt := NewPlatformHalt()

	// Set when run state cannot be persisted mid-run; the run then ends
	// failed rather than pretending it completed.
	var storeBroken atomic.Bool

	// errgroup only bounds concurrency here: one failing account must not
	// abort the others, so account errors never reach g.Wait.
	g := new(errgroup.Group)
	g.SetLimit(o.opts.AccountWorkers)
	for _, acct := range req.Accounts {
		acct := acct
		g.Go(func() error {
			o.processAccount(ctx, runID, acct, req.Platforms, halt, &storeBroken)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	final := StatusCompleted
	switch {
	case ctx.Err() != nil:
		final = StatusCancelled
	case storeBroken.Load():
		final = StatusFailed
	}
	if err := o.store.SetRunStatus(context.Background(), runID, final); err != nil {
		slog.Error("finalize run failed", slog.String("run", runID), slog.Any("error", err))
	}
	o.forget(runID)

	if run, err := o.store.GetRun(context.Background(), runID); err == nil {
		slog.Info("workflow finished",
			slog.String("run", runID),
			slog.String("status", string(run.Status)),
			slog.Int("extracted", run.Summary.ItemsExtracted),
			slog.Int("published", run.Summary.ItemsPublished),
			slog.Int("failed", run.Summary.ItemsFailed),
			slog.Int("skipped", run.Summary.ItemsSkipped),
		)
	}
}

// processAccount extracts one account's items and drives each through the
// pipeline. Extraction failure marks this account's contribution as failed
// without aborting other accounts.
func (o *Orchestrator) processAccount(ctx context.Context, runID string, acct TargetAccount, platforms []string, halt *PlatformHalt, storeBroken *atomic.Bool) {
	if ctx.Err() != nil {
		return
	}
	if acct.MaxItems <= 0 {
		acct.MaxItems = o.opts.MaxItemsPerAccount
	}

	metrics.ExtractionCalls.Add(1)
	items, err := o.source.Fetch(ctx, acct)
	if err != nil {
		metrics.ExtractionErrors.Add(1)
		slog.Warn("extraction failed",
			slog.String("run", runID),
			slog.String("account", acct.Handle),
			slog.String("kind", string(Classify(err))),
			slog.Any("error", err),
		)
		return
	}
	if len(items) > acct.MaxItems {
		items = items[:acct.MaxItems]
	}

	metrics.ItemsExtracted.Add(int64(len(items)))
	if err := o.store.AddExtracted(ctx, runID, len(items)); err != nil {
		// Publishing without durable progress records risks untracked
		// external posts. Stop this account and fail the run.
		slog.Error("count extracted failed", slog.String("run", runID), slog.Any("error", err))
		storeBroken.Store(true)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		o.pipeline.Process(ctx, runID, item, platforms, halt)
	}
}

// Status returns a consistent snapshot of a run. Safe to call concurrently
// with an in-progress run.
func (o *Orchestrator) Status(ctx context.Context, id string) (*WorkflowRun, error) {
	return o.store.GetRun(ctx, id)
}

// Cancel marks the run cancelled. In-flight pipelines complete their current
// attempt but initiate no new ones; already-terminal runs are left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	run, err := o.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	cancel, ok := o.active[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}

	metrics.WorkflowsCancelled.Add(1)
	slog.Info("workflow cancelled", slog.String("run", id))
	return o.store.SetRunStatus(ctx, id, StatusCancelled)
}

// List returns summaries of all known runs, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]WorkflowSummary, error) {
	return o.store.ListRuns(ctx)
}

// Health verifies each publisher's credentials. The map value is empty for
// healthy platforms and holds the error detail otherwise.
func (o *Orchestrator) Health(ctx context.Context) map[string]string {
	out := make(map[string]string, len(o.pipeline.Publishers))
	for platform, pub := range o.pipeline.Publishers {
		if err := pub.VerifyCredentials(ctx); err != nil {
			out[platform] = err.Error()
		} else {
			out[platform] = ""
		}
	}
	return out
}

// Shutdown waits for in-flight runs to finish recording state.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, cancel := range o.active {
		cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) supported(platform string) bool {
	for _, p := range o.opts.SupportedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}
