package engine

import (
	"context"
	"time"
)

// Constraints are the destination platform's content limits, passed to the
// Transformer and pre-checked by Publishers.
type Constraints struct {
	MaxLength        int
	HashtagLimit     int
	MaxVideoDuration time.Duration
	MaxVideoBytes    int64
}

// ContentSource yields candidate media items for an account. The account's
// MaxItems caps extraction even if more items are available.
type ContentSource interface {
	Fetch(ctx context.Context, account TargetAccount) ([]MediaItem, error)
}

// Transformer maps a media item plus target platform to publishable content.
// Failures are terminal for the (item, platform) pair: regenerating the same
// input yields the same result.
type Transformer interface {
	Transform(ctx context.Context, item MediaItem, platform string, c Constraints) (*PlatformContent, error)
}

// Publisher posts content to one destination platform and returns the
// external post id.
type Publisher interface {
	Publish(ctx context.Context, content *PlatformContent) (string, error)
	// VerifyCredentials reports whether the publisher's credentials are
	// currently valid. Used by the health check.
	VerifyCredentials(ctx context.Context) error
}

// Store persists workflow runs and their publish-attempt logs. Implementations
// must serialize mutation so status reads always see a consistent snapshot.
type Store interface {
	CreateRun(ctx context.Context, run *WorkflowRun) error
	// SetRunStatus updates a run's lifecycle status. Transitions out of a
	// terminal status are ignored.
	SetRunStatus(ctx context.Context, id string, status WorkflowStatus) error
	// AddExtracted bumps the run's extracted-items counter.
	AddExtracted(ctx context.Context, id string, n int) error
	// AppendAttempt records one publish attempt and, when the attempt is
	// terminal, updates the run's summary counters atomically with it.
	AppendAttempt(ctx context.Context, runID string, attempt PublishAttempt) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)
	ListRuns(ctx context.Context) ([]WorkflowSummary, error)
	// HasSuccess reports whether a success was ever recorded for the
	// idempotency key (sourceID, platform), across all runs.
	HasSuccess(ctx context.Context, sourceID, platform string) (bool, error)
}
