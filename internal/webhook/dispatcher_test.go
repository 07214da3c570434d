package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
)

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (r *recordingMetrics) RecordWebhookDelivery(destination, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[destination+":"+status]++
}

func (r *recordingMetrics) count(destination, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[destination+":"+status]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testMitigation() domain.Mitigation {
	return domain.Mitigation{
		MitigationID: "mit-1",
		VictimIP:     "203.0.113.10",
		Vector:       domain.VectorUDPFlood,
		ActionType:   domain.ActionPolice,
		POP:          "iad1",
	}
}

func TestNotifyDeliversToGenericDestination(t *testing.T) {
	var received genericPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Prefixd-Signature") == "" {
			t.Error("missing signature header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.AlertingConfig{
		Destinations: []config.DestinationConfig{
			{Type: "generic", URL: srv.URL, Secret: "s3cret"},
		},
	}
	metrics := newRecordingMetrics()
	d := NewDispatcher(cfg, zap.NewNop(), metrics)

	d.Notify(MitigationCreated(testMitigation()))

	waitFor(t, func() bool { return metrics.count("generic", "success") == 1 })
	if received.Alert.EventType != EventMitigationCreated {
		t.Fatalf("EventType = %q, want %q", received.Alert.EventType, EventMitigationCreated)
	}
}

func TestNotifySkipsUnlistedEventType(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.AlertingConfig{
		Destinations: []config.DestinationConfig{{Type: "generic", URL: srv.URL}},
		Events:       []string{string(EventMitigationEscalated)},
	}
	d := NewDispatcher(cfg, zap.NewNop(), nil)

	d.Notify(MitigationCreated(testMitigation()))
	time.Sleep(100 * time.Millisecond)

	if called {
		t.Fatal("destination received a call for an event type not in the allowlist")
	}
}

func TestNotifyRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.AlertingConfig{
		Destinations: []config.DestinationConfig{{Type: "generic", URL: srv.URL}},
	}
	metrics := newRecordingMetrics()
	d := NewDispatcher(cfg, zap.NewNop(), metrics)

	d.Notify(MitigationWithdrawn(testMitigation()))

	waitFor(t, func() bool { return metrics.count("generic", "success") == 1 })
	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestNoDestinationsIsNoop(t *testing.T) {
	d := NewDispatcher(config.AlertingConfig{}, zap.NewNop(), nil)
	d.Notify(MitigationCreated(testMitigation()))
}
