package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/httpapi/ratelimit"
	"github.com/lance0/prefixd-sub000/internal/orchestrator"
	"github.com/lance0/prefixd-sub000/internal/policy"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

type noopNotifier struct{}

func (noopNotifier) Notify(webhook.Alert) {}

// newTestLimiter returns a limiter with zero burst capacity so the very
// first request against it is rejected, exercising the 429 path.
func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(1, 0)
}

func testServer(t *testing.T) (*Server, *repository.Mock, *announcer.Mock) {
	t.Helper()
	repo := repository.NewMock()
	ann := announcer.NewMock()
	inv := config.NewInventory([]config.Customer{
		{CustomerID: "cust-1", Name: "Acme", Prefixes: []string{"203.0.113.0/24"}, PolicyProfile: domain.ProfileNormal},
	})
	settings := config.DefaultSettings()
	settings.Mode = config.ModeEnforced
	settings.POP = "iad1"
	settings.HTTP.RateLimit = config.RateLimitConfig{EventsPerSecond: 1000, Burst: 1000}

	rate := uint64(5_000_000)
	playbooks := &config.Playbooks{Playbooks: []config.Playbook{
		{
			Name:  "udp_flood",
			Match: config.PlaybookMatch{Vector: domain.VectorUDPFlood},
			Steps: []config.PlaybookStep{{Action: config.PlaybookActionPolice, RateBPS: &rate, TTLSeconds: 120}},
		},
	}}
	engine := policy.NewEngine(playbooks, "iad1", 120)
	guardrails := policy.NewGuardrails(config.DefaultSettings().Guardrails, config.DefaultSettings().Quotas)
	correlator := policy.NewEventCorrelator(300)

	orch := orchestrator.New(repo, ann, inv, engine, guardrails, correlator, noopNotifier{}, settings, zap.NewNop())

	srv := New(orch, repo, ann, inv, settings, nil, zap.NewNop())
	return srv, repo, ann
}

func TestHealthEndpointReportsStatus(t *testing.T) {
	srv, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("Status = %q, want healthy", resp.Status)
	}
}

func TestIngestEventReturns202(t *testing.T) {
	srv, _, ann := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"source":        "detector-1",
		"victim_ip":     "203.0.113.10",
		"vector":        "udp_flood",
		"top_dst_ports": []int{53},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body = %s", w.Code, w.Body.String())
	}
	if ann.AnnouncedCount() != 1 {
		t.Fatalf("AnnouncedCount() = %d, want 1", ann.AnnouncedCount())
	}
}

func TestIngestEventInvalidVectorReturns400(t *testing.T) {
	srv, _, _ := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    "detector-1",
		"victim_ip": "203.0.113.10",
		"vector":    "not_a_real_vector",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
}

func TestListAndGetMitigation(t *testing.T) {
	srv, repo, _ := testServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	m := domain.Mitigation{
		MitigationID: "mit-1",
		ScopeHash:    "hash-1",
		POP:          "iad1",
		VictimIP:     "203.0.113.10",
		Vector:       domain.VectorUDPFlood,
		MatchCriteria: domain.MatchCriteria{DstPrefix: "203.0.113.10/32"},
		ActionType:   domain.ActionPolice,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
	if err := repo.InsertMitigation(ctx, m); err != nil {
		t.Fatalf("InsertMitigation() error = %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/mitigations", nil)
	listW := httptest.NewRecorder()
	srv.router().ServeHTTP(listW, listReq)
	if listW.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listW.Code)
	}
	var listResp mitigationsListResponse
	if err := json.Unmarshal(listW.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if listResp.Total != 1 {
		t.Fatalf("Total = %d, want 1", listResp.Total)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/mitigations/mit-1", nil)
	getW := httptest.NewRecorder()
	srv.router().ServeHTTP(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200, body = %s", getW.Code, getW.Body.String())
	}
}

func TestGetMitigationNotFoundReturns404(t *testing.T) {
	srv, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/mitigations/does-not-exist", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSafelistAddListRemove(t *testing.T) {
	srv, _, _ := testServer(t)

	addBody, _ := json.Marshal(addSafelistRequest{OperatorID: "operator-1", Prefix: "198.51.100.0/24"})
	addReq := httptest.NewRequest(http.MethodPost, "/v1/safelist", bytes.NewReader(addBody))
	addW := httptest.NewRecorder()
	srv.router().ServeHTTP(addW, addReq)
	if addW.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201, body = %s", addW.Code, addW.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/safelist", nil)
	listW := httptest.NewRecorder()
	srv.router().ServeHTTP(listW, listReq)
	var entries []safelistEntryResponse
	if err := json.Unmarshal(listW.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/v1/safelist/198.51.100.0%2F24", nil)
	delW := httptest.NewRecorder()
	srv.router().ServeHTTP(delW, delReq)
	if delW.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204, body = %s", delW.Code, delW.Body.String())
	}
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.limiter = newTestLimiter()

	req := httptest.NewRequest(http.MethodGet, "/v1/mitigations", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestShutdownRejectsNewIngest(t *testing.T) {
	srv, _, _ := testServer(t)
	srv.shutdown.Store(true)

	body, _ := json.Marshal(map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    "detector-1",
		"victim_ip": "203.0.113.10",
		"vector":    "udp_flood",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
