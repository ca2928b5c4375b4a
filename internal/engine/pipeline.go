package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PlatformHalt records platforms whose credentials failed during a run.
// Once a platform is halted, every queued (item, platform) pair is marked
// failed immediately: retrying cannot help an auth failure.
type PlatformHalt struct {
	mu     sync.Mutex
	halted map[string]string // platform → error detail
}

// NewPlatformHalt creates an empty halt set for one workflow run.
func NewPlatformHalt() *PlatformHalt {
	return &PlatformHalt{halted: make(map[string]string)}
}

// Halt marks a platform as dead for the rest of the run.
func (h *PlatformHalt) Halt(platform, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.halted[platform]; !ok {
		h.halted[platform] = detail
	}
}

// Halted returns the recorded error detail if the platform is halted.
func (h *PlatformHalt) Halted(platform string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.halted[platform]
	return d, ok
}

// Pipeline drives a single media item through transform → publish for each
// requested platform, applying rate limiting and retries. Platforms are
// processed independently: failure on one never blocks another.
type Pipeline struct {
	Transformer Transformer
	Publishers  map[string]Publisher
	Constraints map[string]Constraints
	Limiter     *RateLimiter
	Retry       RetryPolicy
	Store       Store
	CallTimeout time.Duration

	// sleep is a cancellable wait, overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Process runs the item through every requested platform and returns when
// each (item, platform) pair has reached a terminal record, or the context
// was cancelled before a new attempt started.
func (p *Pipeline) Process(ctx context.Context, runID string, item MediaItem, platforms []string, halt *PlatformHalt) {
	var wg sync.WaitGroup
	for _, platform := range platforms {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()
			p.processPlatform(ctx, runID, item, platform, halt)
		}(platform)
	}
	wg.Wait()
}

func (p *Pipeline) processPlatform(ctx context.Context, runID string, item MediaItem, platform string, halt *PlatformHalt) {
	// Idempotency: (source id, platform) publishes at most once, ever.
	// If the gate cannot be read the pair fails; publishing blind could
	// double-post an item the store already recorded as published.
	done, err := p.Store.HasSuccess(ctx, item.SourceID, platform)
	if err != nil {
		p.record(ctx, runID, PublishAttempt{
			SourceID:    item.SourceID,
			Platform:    platform,
			Attempt:     1,
			Outcome:     OutcomeFailed,
			ErrorKind:   string(Classify(err)),
			ErrorDetail: fmt.Sprintf("idempotency check: %v", err),
			Terminal:    true,
		})
		return
	}
	if done {
		metrics.PublishSkipped.Add(1)
		p.record(ctx, runID, PublishAttempt{
			SourceID: item.SourceID,
			Platform: platform,
			Attempt:  1,
			Outcome:  OutcomeSkipped,
			Terminal: true,
		})
		return
	}

	if detail, dead := halt.Halted(platform); dead {
		p.record(ctx, runID, PublishAttempt{
			SourceID:    item.SourceID,
			Platform:    platform,
			Attempt:     1,
			Outcome:     OutcomeFailed,
			ErrorKind:   string(KindAuth),
			ErrorDetail: detail,
			Terminal:    true,
		})
		return
	}

	pub, ok := p.Publishers[platform]
	if !ok {
		p.record(ctx, runID, PublishAttempt{
			SourceID:    item.SourceID,
			Platform:    platform,
			Attempt:     1,
			Outcome:     OutcomeFailed,
			ErrorKind:   string(KindValidation),
			ErrorDetail: "no publisher configured for platform",
			Terminal:    true,
		})
		return
	}

	metrics.TransformCalls.Add(1)
	content, err := p.transform(ctx, item, platform)
	if err != nil {
		// Transformer failure is terminal: identical input yields an
		// identical result.
		metrics.TransformErrors.Add(1)
		p.record(ctx, runID, PublishAttempt{
			SourceID:    item.SourceID,
			Platform:    platform,
			Attempt:     1,
			Outcome:     OutcomeFailed,
			ErrorKind:   string(Classify(err)),
			ErrorDetail: err.Error(),
			Terminal:    true,
		})
		return
	}

	for attempt := 1; ; attempt++ {
		// A cancel is observed here, before a new attempt starts.
		if ctx.Err() != nil {
			return
		}

		if !p.waitForSlot(ctx, platform) {
			return
		}

		metrics.PublishCalls.Add(1)
		postID, err := p.publish(ctx, pub, content)
		if err == nil {
			metrics.PublishSuccesses.Add(1)
			p.record(ctx, runID, PublishAttempt{
				SourceID: item.SourceID,
				Platform: platform,
				Attempt:  attempt,
				Outcome:  OutcomeSuccess,
				PostID:   postID,
				Terminal: true,
			})
			return
		}

		kind := Classify(err)
		if kind == KindAuth {
			halt.Halt(platform, err.Error())
		}

		if kind == KindAuth || !p.Retry.ShouldRetry(attempt, kind) {
			metrics.PublishFailures.Add(1)
			p.record(ctx, runID, PublishAttempt{
				SourceID:    item.SourceID,
				Platform:    platform,
				Attempt:     attempt,
				Outcome:     OutcomeFailed,
				ErrorKind:   string(kind),
				ErrorDetail: err.Error(),
				Terminal:    true,
			})
			return
		}

		metrics.PublishRetries.Add(1)
		p.record(ctx, runID, PublishAttempt{
			SourceID:    item.SourceID,
			Platform:    platform,
			Attempt:     attempt,
			Outcome:     OutcomeFailed,
			ErrorKind:   string(kind),
			ErrorDetail: err.Error(),
		})

		if err := p.doSleep(ctx, p.Retry.BackoffDelay(attempt)); err != nil {
			return
		}
	}
}

func (p *Pipeline) transform(ctx context.Context, item MediaItem, platform string) (*PlatformContent, error) {
	tctx, cancel := context.WithTimeout(ctx, p.callTimeout())
	defer cancel()
	return p.Transformer.Transform(tctx, item, platform, p.Constraints[platform])
}

func (p *Pipeline) publish(ctx context.Context, pub Publisher, content *PlatformContent) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, p.callTimeout())
	defer cancel()
	return pub.Publish(pctx, content)
}

// waitForSlot loops on the rate limiter until a slot is reserved. Returns
// false if the context was cancelled while waiting.
func (p *Pipeline) waitForSlot(ctx context.Context, platform string) bool {
	for {
		d := p.Limiter.Reserve(platform)
		if d <= 0 {
			return true
		}
		metrics.RateLimitWaits.Add(1)
		slog.Debug("rate limited, waiting",
			slog.String("platform", platform),
			slog.Duration("wait", d),
		)
		if err := p.doSleep(ctx, d); err != nil {
			return false
		}
	}
}

func (p *Pipeline) record(ctx context.Context, runID string, a PublishAttempt) {
	a.Timestamp = time.Now().UTC()
	// The attempt log is append-only and must never silently drop a record.
	// Use a detached context so a cancelled run still logs in-flight results.
	if err := p.Store.AppendAttempt(context.WithoutCancel(ctx), runID, a); err != nil {
		slog.Error("append attempt failed",
			slog.String("run", runID),
			slog.String("item", a.SourceID),
			slog.String("platform", a.Platform),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) callTimeout() time.Duration {
	if p.CallTimeout > 0 {
		return p.CallTimeout
	}
	return 30 * time.Second
}

func (p *Pipeline) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
