package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/waypoint/internal/adapters/server/common"
	"github.com/hylla/waypoint/internal/adapters/storage/sqlite"
	"github.com/hylla/waypoint/internal/app"
	"github.com/hylla/waypoint/internal/metrics"
)

// newTestDependencies wires an in-memory repository through the real service stack.
func newTestDependencies(t *testing.T) (Dependencies, *bytes.Buffer) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	recorder := metrics.NewRecorder()
	ids := 0
	svc := app.NewService(repo, func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}, func() time.Time {
		return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	}, app.ServiceConfig{Observer: recorder})

	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel})
	return Dependencies{
		Service: common.NewAppServiceAdapter(svc),
		Metrics: recorder,
		Logger:  logger,
		Ready:   repo.Ping,
	}, &logs
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "org1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestNewHandlerRoutesEndToEnd verifies probes, API and metrics share one mux.
func TestNewHandlerRoutesEndToEnd(t *testing.T) {
	deps, logs := newTestDependencies(t)
	handler, cfg, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.ServerName != "waypoint" {
		t.Fatalf("normalized config = %#v", cfg)
	}

	if rec := doRequest(t, handler, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, handler, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", rec.Code)
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/milestones", `{"name":"Alpha","start_date":"2026-01-01","due_date":"2026-01-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/milestones", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Alpha") {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/milestones/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "waypoint_http_request_duration_seconds") {
		t.Fatalf("metrics body missing http histogram")
	}
	if !strings.Contains(logs.String(), "/api/v1/milestones/missing") {
		t.Fatalf("logs = %q, want 404 request logged", logs.String())
	}
	if strings.Contains(logs.String(), "/healthz") {
		t.Fatalf("logs = %q, want probes skipped", logs.String())
	}
}

// TestReadinessReportsProbeFailure verifies /readyz fails closed.
func TestReadinessReportsProbeFailure(t *testing.T) {
	deps, _ := newTestDependencies(t)
	deps.Ready = func(context.Context) error {
		return errors.New("database locked")
	}
	handler, _, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if rec := doRequest(t, handler, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
}

// TestNewHandlerRequiresService verifies the planning service dependency is enforced.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
}

// TestNormalizeConfig verifies defaults and endpoint collision checks.
func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{APIEndpoint: "api//", MCPEndpoint: " /tools/mcp/ "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api" || cfg.MCPEndpoint != "/tools/mcp" {
		t.Fatalf("normalizeConfig() = %#v", cfg)
	}
	if cfg.ServerVersion != "dev" {
		t.Fatalf("ServerVersion = %q, want dev", cfg.ServerVersion)
	}

	if _, err := normalizeConfig(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}); err == nil {
		t.Fatalf("expected collision error")
	}
	if _, err := normalizeConfig(Config{APIEndpoint: "/metrics"}); err == nil {
		t.Fatalf("expected reserved endpoint error")
	}
}

// TestRunStopsOnContextCancel verifies graceful shutdown on cancellation.
func TestRunStopsOnContextCancel(t *testing.T) {
	deps, _ := newTestDependencies(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, deps)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
