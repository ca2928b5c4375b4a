package engine

import (
	"sync"
	"time"
)

// RateWindow is one platform's call budget: at most Limit calls within any
// rolling Window.
type RateWindow struct {
	Limit  int
	Window time.Duration
}

// RateLimiter tracks a rolling window of outbound calls per platform.
// Reserve never blocks; callers decide whether to wait or defer. State is
// independent per platform, serialized within a platform.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*platformWindow
	limits  map[string]RateWindow
	now     func() time.Time // overridable in tests
}

type platformWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time // timestamps still inside the window, oldest first
}

// NewRateLimiter builds a limiter from per-platform windows. Platforms
// without a configured window are not limited.
func NewRateLimiter(limits map[string]RateWindow) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*platformWindow),
		limits:  limits,
		now:     time.Now,
	}
}

// Reserve consumes one slot for the platform if capacity is available and
// returns 0. When the window is exhausted it returns the time until the
// oldest recorded call exits the window; no slot is consumed.
func (l *RateLimiter) Reserve(platform string) time.Duration {
	w := l.windowFor(platform)
	if w == nil {
		return 0
	}

	now := l.clock()()

	w.mu.Lock()
	defer w.mu.Unlock()

	// Drop calls that have left the window.
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}

	if len(w.calls) < w.limit {
		w.calls = append(w.calls, now)
		return 0
	}
	return w.calls[0].Add(w.window).Sub(now)
}

func (l *RateLimiter) windowFor(platform string) *platformWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[platform]; ok {
		return w
	}
	cfg, ok := l.limits[platform]
	if !ok || cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil
	}
	w := &platformWindow{limit: cfg.Limit, window: cfg.Window}
	l.windows[platform] = w
	return w
}

func (l *RateLimiter) clock() func() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// SetClock replaces the time source. Tests use this to drive a synthetic clock.
func (l *RateLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
