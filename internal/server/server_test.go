package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/audiolibrelab/autopause/internal/monitor"
)

type staticProvider struct {
	snap monitor.Snapshot
}

func (p staticProvider) Snapshot() monitor.Snapshot { return p.snap }

func TestStatusReturnsSnapshot(t *testing.T) {
	snap := monitor.Snapshot{
		State:        monitor.StatePaused,
		Ticks:        12,
		HaveFrame:    true,
		DiffFraction: 0.002,
		LevelDB:      -72.5,
		Still:        true,
		Silent:       true,
		Settings:     monitor.DefaultSettings(),
	}
	s := New(staticProvider{snap: snap}, "127.0.0.1:0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}

	var got monitor.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if got.State != monitor.StatePaused || got.Ticks != 12 || got.LevelDB != -72.5 {
		t.Errorf("Unexpected snapshot: %+v", got)
	}
	if got.Settings.CheckInterval != 1 {
		t.Errorf("Expected settings in snapshot, got %+v", got.Settings)
	}
}

func TestHealth(t *testing.T) {
	s := New(staticProvider{}, "127.0.0.1:0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if got.Status != "ok" {
		t.Errorf("Expected status ok, got %s", got.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(staticProvider{}, "127.0.0.1:0", nil)

	for _, path := range []string{"/status", "/healthz"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", path, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
			t.Errorf("%s: expected Allow GET, got %q", path, allow)
		}
	}
}

func TestUnknownPath(t *testing.T) {
	s := New(staticProvider{}, "127.0.0.1:0", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := New(staticProvider{snap: monitor.Snapshot{State: monitor.StateRecording}}, "127.0.0.1:0", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if _, err := http.Get("http://" + s.Addr() + "/status"); err == nil {
		t.Error("Expected request after shutdown to fail")
	}
}
