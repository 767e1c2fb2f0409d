package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matrixwatcher/watchctl/internal/history"
)

func TestSendRoutesByEventType(t *testing.T) {
	var gotPath string
	var gotDoc map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "watcher")
	e := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Label: "Main Sensors", PID: 7, OK: true}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/watcher-start/_doc" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotDoc["process"] != "Main Sensors" || gotDoc["pid"] != float64(7) {
		t.Fatalf("document mismatch: %#v", gotDoc)
	}
	if _, ok := gotDoc["@timestamp"]; !ok {
		t.Fatalf("missing @timestamp: %#v", gotDoc)
	}
}

func TestIndexFor(t *testing.T) {
	s := New("http://localhost:9200", "watcher")
	if got := s.IndexFor(history.EventHealth); got != "watcher-health" {
		t.Fatalf("IndexFor(health)=%q", got)
	}
	if got := s.IndexFor(""); got != "watcher" {
		t.Fatalf("IndexFor(\"\")=%q", got)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(srv.URL, "watcher")
	if err := s.Send(context.Background(), history.Event{Type: history.EventStop}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestNewWithTimeoutDefault(t *testing.T) {
	s := NewWithTimeout("http://localhost:9200/", "watcher", 0)
	if s.client.Timeout != DefaultTimeout {
		t.Fatalf("timeout=%v", s.client.Timeout)
	}
	if s.baseURL != "http://localhost:9200" {
		t.Fatalf("baseURL=%q", s.baseURL)
	}
}
