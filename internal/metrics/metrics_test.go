package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryExposesExpectedMetricNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordEventIngested("detector-1", "udp_flood")
	r.RecordGuardrailRejection("rate_limit_exceeded")
	r.RecordAnnouncement("peer-1", "ok", 5*time.Millisecond)
	r.SetBGPSessionUp("peer-1", true)
	r.RecordWebhookDelivery("slack", "success")
	r.RecordReconcileTick("success", 10*time.Millisecond)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body := new(strings.Builder)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		body.Write(buf[:n])
		if readErr != nil {
			break
		}
	}
	out := body.String()

	for _, name := range []string{
		"prefixd_events_ingested_total",
		"prefixd_guardrail_rejections_total",
		"prefixd_announcements_total",
		"prefixd_announcements_latency_seconds",
		"prefixd_bgp_session_up",
		"prefixd_alerts_sent_total",
		"prefixd_reconciliation_runs_total",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestRecordReconcileTickIncrementsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordReconcileTick("success", time.Millisecond)
	r.RecordReconcileTick("failure", time.Millisecond)
	r.RecordReconcileTick("success", time.Millisecond)

	if got := testutil.ToFloat64(r.ReconciliationRuns.WithLabelValues("success")); got != 2 {
		t.Fatalf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.ReconciliationRuns.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failure count = %v, want 1", got)
	}
}

func TestRecordWebhookDeliveryIncrementsByDestination(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordWebhookDelivery("slack", "success")
	r.RecordWebhookDelivery("slack", "error")
	r.RecordWebhookDelivery("discord", "success")

	if got := testutil.ToFloat64(r.AlertsSent.WithLabelValues("slack", "success")); got != 1 {
		t.Fatalf("slack/success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.AlertsSent.WithLabelValues("discord", "success")); got != 1 {
		t.Fatalf("discord/success count = %v, want 1", got)
	}
}

func TestSetBGPSessionUpReflectsState(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.SetBGPSessionUp("peer-1", true)
	if got := testutil.ToFloat64(r.BGPSessionUp.WithLabelValues("peer-1")); got != 1 {
		t.Fatalf("peer-1 up = %v, want 1", got)
	}
	r.SetBGPSessionUp("peer-1", false)
	if got := testutil.ToFloat64(r.BGPSessionUp.WithLabelValues("peer-1")); got != 0 {
		t.Fatalf("peer-1 up = %v, want 0", got)
	}
}
