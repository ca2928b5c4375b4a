package engine

import "time"

// TargetAccount identifies one source-platform account to extract from.
// Immutable for the life of a workflow run.
type TargetAccount struct {
	Handle   string `json:"handle"`
	MaxItems int    `json:"max_items,omitempty"` // 0 = orchestrator default
}

// MediaItem is a single unit of extracted source media plus metadata.
type MediaItem struct {
	SourceID     string    `json:"source_id"` // platform shortcode, unique per item
	Account      string    `json:"account"`
	Caption      string    `json:"caption"`
	Hashtags     []string  `json:"hashtags,omitempty"`
	Mentions     []string  `json:"mentions,omitempty"`
	MediaURL     string    `json:"media_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// PlatformContent is publish-ready content for exactly one destination platform.
type PlatformContent struct {
	Platform string   `json:"platform"`
	SourceID string   `json:"source_id"`
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	MediaURL string   `json:"media_url,omitempty"`
}

// AttemptOutcome is the result of a single publish attempt.
type AttemptOutcome string

const (
	OutcomePending AttemptOutcome = "pending"
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
	OutcomeSkipped AttemptOutcome = "skipped"
)

// PublishAttempt is one append-only log entry for a (item, platform) pair.
// The attempt log is the authoritative record of what happened.
type PublishAttempt struct {
	SourceID    string         `json:"source_id"`
	Platform    string         `json:"platform"`
	Attempt     int            `json:"attempt"`
	Outcome     AttemptOutcome `json:"outcome"`
	PostID      string         `json:"post_id,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Terminal    bool           `json:"terminal"` // no further attempts for this pair
	Timestamp   time.Time      `json:"timestamp"`
}

// WorkflowStatus is the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	StatusPending   WorkflowStatus = "pending"
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether no further state changes can happen to a run.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Counters summarizes workflow progress. Published/failed/skipped count
// terminal (item, platform) pairs.
type Counters struct {
	ItemsExtracted int `json:"items_extracted"`
	ItemsPublished int `json:"items_published"`
	ItemsFailed    int `json:"items_failed"`
	ItemsSkipped   int `json:"items_skipped"`
}

// WorkflowRun is the full state of one orchestration run. Mutated only
// through the Store as pipelines report progress.
type WorkflowRun struct {
	ID         string           `json:"id"`
	Accounts   []TargetAccount  `json:"accounts"`
	Platforms  []string         `json:"platforms"`
	Status     WorkflowStatus   `json:"status"`
	Attempts   []PublishAttempt `json:"attempts"`
	Summary    Counters         `json:"summary"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// WorkflowSummary is the list-view projection of a run (no attempt log).
type WorkflowSummary struct {
	ID         string          `json:"id"`
	Accounts   []TargetAccount `json:"accounts"`
	Platforms  []string        `json:"platforms"`
	Status     WorkflowStatus  `json:"status"`
	Summary    Counters        `json:"summary"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Summarize projects a run into its list view.
func (r *WorkflowRun) Summarize() WorkflowSummary {
	return WorkflowSummary{
		ID:         r.ID,
		Accounts:   r.Accounts,
		Platforms:  r.Platforms,
		Status:     r.Status,
		Summary:    r.Summary,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
}
