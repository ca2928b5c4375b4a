package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
	"github.com/Bravine-Kulei/social-agent/internal/source"
	"github.com/Bravine-Kulei/social-agent/internal/store"
	"github.com/Bravine-Kulei/social-agent/internal/transform"
)

// stubPublisher always succeeds, unless verifyErr is set for health checks.
type stubPublisher struct {
	posts     atomic.Int64
	verifyErr error
}

func (p *stubPublisher) Publish(_ context.Context, content *engine.PlatformContent) (string, error) {
	n := p.posts.Add(1)
	return fmt.Sprintf("post-%s-%d", content.Platform, n), nil
}

func (p *stubPublisher) VerifyCredentials(context.Context) error { return p.verifyErr }

func newTestServer(pub engine.Publisher) *Server {
	orc := engine.NewOrchestrator(
		engine.Options{
			SupportedPlatforms: []string{"twitter", "linkedin"},
			AccountWorkers:     2,
			MaxItemsPerAccount: 3,
			CallTimeout:        time.Second,
		},
		source.NewSample(2),
		&transform.RuleBased{},
		map[string]engine.Publisher{"twitter": pub, "linkedin": pub},
		map[string]engine.Constraints{
			"twitter":  {MaxLength: 280, HashtagLimit: 10},
			"linkedin": {MaxLength: 3000, HashtagLimit: 30},
		},
		engine.NewRateLimiter(nil),
		engine.DefaultRetryPolicy,
		store.NewMemory(),
	)
	return New(orc)
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)

	var parsed map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}
	return resp, parsed
}

func startWorkflow(t *testing.T, s *Server) string {
	t.Helper()
	resp, body := doJSON(t, s, http.MethodPost, "/api/workflows",
		`{"accounts": ["alice"], "platforms": ["twitter"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["workflow_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func waitCompleted(t *testing.T, s *Server, id string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := doJSON(t, s, http.MethodGet, "/api/workflows/"+id, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		switch body["status"] {
		case "completed", "failed", "cancelled":
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not finish", id)
	return nil
}

func TestStartWorkflowEndpoint(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	id := startWorkflow(t, s)

	body := waitCompleted(t, s, id)
	assert.Equal(t, "completed", body["status"])

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), summary["items_extracted"])
	assert.Equal(t, float64(2), summary["items_published"])
}

func TestStartWorkflowRejectsBadRequests(t *testing.T) {
	s := newTestServer(&stubPublisher{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"accounts": [`},
		{"no accounts", `{"platforms": ["twitter"]}`},
		{"no platforms", `{"accounts": ["alice"]}`},
		{"empty account handle", `{"accounts": [""], "platforms": ["twitter"]}`},
		{"unsupported platform", `{"accounts": ["alice"], "platforms": ["myspace"]}`},
		{"max items out of range", `{"accounts": ["alice"], "platforms": ["twitter"], "max_items": 500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, s, http.MethodPost, "/api/workflows", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWorkflowStatusUnknownID(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	resp, body := doJSON(t, s, http.MethodGet, "/api/workflows/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestCancelWorkflowEndpoint(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	id := startWorkflow(t, s)

	resp, body := doJSON(t, s, http.MethodPost, "/api/workflows/"+id+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	resp, _ = doJSON(t, s, http.MethodPost, "/api/workflows/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkflowsEndpoint(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	first := startWorkflow(t, s)
	waitCompleted(t, s, first)

	resp, body := doJSON(t, s, http.MethodGet, "/api/workflows", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	workflows, ok := body["workflows"].([]any)
	require.True(t, ok)
	require.Len(t, workflows, 1)
	run, ok := workflows[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first, run["id"])
	// The list view carries no attempt log.
	assert.NotContains(t, run, "attempts")
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	resp, body := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	platforms, ok := body["platforms"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, platforms, 2)

	unhealthy := newTestServer(&stubPublisher{verifyErr: engine.Errorf(engine.KindAuth, "token expired")})
	resp, body = doJSON(t, unhealthy, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	platforms, ok = body["platforms"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, platforms["twitter"], "token expired")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&stubPublisher{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "workflows_started")
}
