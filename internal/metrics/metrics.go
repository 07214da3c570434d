// Package metrics is the Prometheus exposition surface: one Registry
// bundling every counter/gauge/histogram the daemon's subsystems report
// through, plus the adapter methods that satisfy the narrow recorder
// interfaces internal/webhook and internal/reconcile each declare for
// themselves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the daemon exposes on GET /metrics.
type Registry struct {
	EventsIngested *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec

	MitigationsActive    *prometheus.GaugeVec
	MitigationsCreated   *prometheus.CounterVec
	MitigationsExpired   *prometheus.CounterVec
	MitigationsWithdrawn *prometheus.CounterVec
	MitigationsEscalated *prometheus.CounterVec

	AnnouncementsTotal   *prometheus.CounterVec
	AnnouncementsLatency *prometheus.HistogramVec
	BGPSessionUp         *prometheus.GaugeVec

	GuardrailRejections *prometheus.CounterVec

	ReconciliationRuns    *prometheus.CounterVec
	ReconciliationLatency prometheus.Histogram

	AlertsSent *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_events_ingested_total",
			Help: "Total number of attack events ingested",
		}, []string{"source", "vector"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_events_rejected_total",
			Help: "Total number of attack events rejected at ingest",
		}, []string{"source", "reason"}),

		MitigationsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prefixd_mitigations_active",
			Help: "Number of currently active mitigations",
		}, []string{"action_type", "pop"}),
		MitigationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_mitigations_created_total",
			Help: "Total number of mitigations created",
		}, []string{"action_type", "pop"}),
		MitigationsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_mitigations_expired_total",
			Help: "Total number of mitigations expired",
		}, []string{"action_type", "pop"}),
		MitigationsWithdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_mitigations_withdrawn_total",
			Help: "Total number of mitigations withdrawn",
		}, []string{"action_type", "pop", "reason"}),
		MitigationsEscalated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_mitigations_escalated_total",
			Help: "Total number of mitigations escalated from police to discard",
		}, []string{"pop"}),

		AnnouncementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_announcements_total",
			Help: "Total number of BGP announcements",
		}, []string{"peer", "status"}),
		AnnouncementsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prefixd_announcements_latency_seconds",
			Help:    "BGP announcement latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"peer"}),
		BGPSessionUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prefixd_bgp_session_up",
			Help: "BGP session state (1 = established, 0 = down)",
		}, []string{"peer"}),

		GuardrailRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_guardrail_rejections_total",
			Help: "Total number of guardrail rejections",
		}, []string{"reason"}),

		ReconciliationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_reconciliation_runs_total",
			Help: "Total number of reconciliation loop runs",
		}, []string{"status"}),
		ReconciliationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prefixd_reconciliation_latency_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefixd_alerts_sent_total",
			Help: "Total number of webhook alerts dispatched",
		}, []string{"destination", "status"}),
	}

	reg.MustRegister(
		r.EventsIngested, r.EventsRejected,
		r.MitigationsActive, r.MitigationsCreated, r.MitigationsExpired,
		r.MitigationsWithdrawn, r.MitigationsEscalated,
		r.AnnouncementsTotal, r.AnnouncementsLatency, r.BGPSessionUp,
		r.GuardrailRejections,
		r.ReconciliationRuns, r.ReconciliationLatency,
		r.AlertsSent,
	)
	return r
}

// RecordWebhookDelivery satisfies webhook.DeliveryRecorder.
func (r *Registry) RecordWebhookDelivery(destination, status string) {
	r.AlertsSent.WithLabelValues(destination, status).Inc()
}

// RecordReconcileTick satisfies reconcile.MetricsRecorder.
func (r *Registry) RecordReconcileTick(outcome string, duration time.Duration) {
	r.ReconciliationRuns.WithLabelValues(outcome).Inc()
	r.ReconciliationLatency.Observe(duration.Seconds())
}

// RecordAnnouncement records a single BGP announce/withdraw RPC outcome.
func (r *Registry) RecordAnnouncement(peer, status string, latency time.Duration) {
	r.AnnouncementsTotal.WithLabelValues(peer, status).Inc()
	r.AnnouncementsLatency.WithLabelValues(peer).Observe(latency.Seconds())
}

// RecordGuardrailRejection increments the rejection counter for reason.
func (r *Registry) RecordGuardrailRejection(reason string) {
	r.GuardrailRejections.WithLabelValues(reason).Inc()
}

// RecordEventIngested increments the ingest counter for (source, vector).
func (r *Registry) RecordEventIngested(source, vector string) {
	r.EventsIngested.WithLabelValues(source, vector).Inc()
}

// SetBGPSessionUp records a peer's established/down state as 1/0.
func (r *Registry) SetBGPSessionUp(peer string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	r.BGPSessionUp.WithLabelValues(peer).Set(v)
}
