package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	WorkflowsStarted   atomic.Int64
	WorkflowsCancelled atomic.Int64
	ExtractionCalls    atomic.Int64
	ExtractionErrors   atomic.Int64
	ItemsExtracted     atomic.Int64
	TransformCalls     atomic.Int64
	TransformErrors    atomic.Int64
	PublishCalls       atomic.Int64
	PublishSuccesses   atomic.Int64
	PublishFailures    atomic.Int64
	PublishRetries     atomic.Int64
	PublishSkipped     atomic.Int64
	RateLimitWaits     atomic.Int64
}

// GetMetrics returns a snapshot of all operational counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"workflows_started":   metrics.WorkflowsStarted.Load(),
		"workflows_cancelled": metrics.WorkflowsCancelled.Load(),
		"extraction_calls":    metrics.ExtractionCalls.Load(),
		"extraction_errors":   metrics.ExtractionErrors.Load(),
		"items_extracted":     metrics.ItemsExtracted.Load(),
		"transform_calls":     metrics.TransformCalls.Load(),
		"transform_errors":    metrics.TransformErrors.Load(),
		"publish_calls":       metrics.PublishCalls.Load(),
		"publish_successes":   metrics.PublishSuccesses.Load(),
		"publish_failures":    metrics.PublishFailures.Load(),
		"publish_retries":     metrics.PublishRetries.Load(),
		"publish_skipped":     metrics.PublishSkipped.Load(),
		"rate_limit_waits":    metrics.RateLimitWaits.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for the HTTP endpoint.
func FormatMetrics() string {
	snapshot := GetMetrics()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %d\n", k, snapshot[k])
	}
	return b.String()
}
