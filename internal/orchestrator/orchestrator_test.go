package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/policy"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

type recordingNotifier struct {
	alerts []webhook.Alert
}

func (n *recordingNotifier) Notify(a webhook.Alert) { n.alerts = append(n.alerts, a) }

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.Mode = config.ModeEnforced
	s.POP = "iad1"
	return s
}

func testInventory() *config.Inventory {
	return config.NewInventory([]config.Customer{
		{
			CustomerID:    "cust-1",
			Name:          "Acme",
			Prefixes:      []string{"203.0.113.0/24"},
			PolicyProfile: domain.ProfileNormal,
		},
	})
}

func testPlaybooks() *config.Playbooks {
	rate := uint64(5_000_000)
	return &config.Playbooks{
		Playbooks: []config.Playbook{
			{
				Name:  "udp_flood",
				Match: config.PlaybookMatch{Vector: domain.VectorUDPFlood},
				Steps: []config.PlaybookStep{
					{Action: config.PlaybookActionPolice, RateBPS: &rate, TTLSeconds: 120},
				},
			},
		},
	}
}

func newTestOrchestrator() (*Orchestrator, *repository.Mock, *announcer.Mock, *recordingNotifier) {
	repo := repository.NewMock()
	ann := announcer.NewMock()
	inv := testInventory()
	engine := policy.NewEngine(testPlaybooks(), "iad1", 120)
	guardrails := policy.NewGuardrails(config.DefaultSettings().Guardrails, config.DefaultSettings().Quotas)
	correlator := policy.NewEventCorrelator(300)
	notifier := &recordingNotifier{}
	settings := testSettings()

	o := New(repo, ann, inv, engine, guardrails, correlator, notifier, settings, zap.NewNop())
	return o, repo, ann, notifier
}

func testInput() domain.AttackEventInput {
	return domain.AttackEventInput{
		Timestamp:   time.Now().UTC(),
		Source:      "detector-1",
		VictimIP:    "203.0.113.10",
		Vector:      domain.VectorUDPFlood,
		TopDstPorts: []uint16{53},
	}
}

func TestIngestCreatesMitigation(t *testing.T) {
	o, _, ann, notifier := newTestOrchestrator()
	ctx := context.Background()

	resp, err := o.Ingest(ctx, testInput())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if resp.Status != StatusCreated {
		t.Fatalf("Status = %q, want %q", resp.Status, StatusCreated)
	}
	if resp.MitigationID == nil {
		t.Fatal("MitigationID is nil")
	}
	if ann.AnnouncedCount() != 1 {
		t.Fatalf("AnnouncedCount() = %d, want 1", ann.AnnouncedCount())
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].EventType != webhook.EventMitigationCreated {
		t.Fatalf("alerts = %+v, want one mitigation.created", notifier.alerts)
	}
}

func TestIngestExtendsOnRepeatedScope(t *testing.T) {
	o, _, ann, _ := newTestOrchestrator()
	ctx := context.Background()

	first, err := o.Ingest(ctx, testInput())
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	second, err := o.Ingest(ctx, testInput())
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if second.Status != StatusExtended {
		t.Fatalf("Status = %q, want %q", second.Status, StatusExtended)
	}
	if *second.MitigationID != *first.MitigationID {
		t.Fatal("second ingest created a new mitigation instead of extending")
	}
	if ann.AnnouncedCount() != 1 {
		t.Fatalf("AnnouncedCount() = %d, want 1 (no re-announce on extend)", ann.AnnouncedCount())
	}
}

func TestIngestWithoutInventoryContextProducesNoMitigation(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()

	input := testInput()
	input.VictimIP = "198.51.100.5" // outside the test inventory's owned prefixes

	resp, err := o.Ingest(ctx, input)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if resp.Status != StatusNoMitigation {
		t.Fatalf("Status = %q, want %q", resp.Status, StatusNoMitigation)
	}
	if resp.MitigationID != nil {
		t.Fatal("MitigationID should be nil when no mitigation was produced")
	}
}

func TestIngestCorrelatesSupersetOntoExistingMitigation(t *testing.T) {
	o, _, ann, _ := newTestOrchestrator()
	ctx := context.Background()

	first := testInput()
	first.TopDstPorts = []uint16{53}
	resp1, err := o.Ingest(ctx, first)
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	second := testInput()
	second.TopDstPorts = []uint16{53, 123} // superset of the first mitigation's ports
	resp2, err := o.Ingest(ctx, second)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if *resp2.MitigationID != *resp1.MitigationID {
		t.Fatal("superset event should coalesce onto the existing mitigation")
	}
	if ann.AnnouncedCount() != 1 {
		t.Fatalf("AnnouncedCount() = %d, want 1", ann.AnnouncedCount())
	}
}

func TestIngestCorrelatesSubsetKeepsExisting(t *testing.T) {
	o, _, ann, _ := newTestOrchestrator()
	ctx := context.Background()

	first := testInput()
	first.TopDstPorts = []uint16{53, 123}
	if _, err := o.Ingest(ctx, first); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	second := testInput()
	second.TopDstPorts = []uint16{53} // subset of the first mitigation's ports
	resp2, err := o.Ingest(ctx, second)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if resp2.Status != StatusCoalesced {
		t.Fatalf("Status = %q, want %q", resp2.Status, StatusCoalesced)
	}
	if ann.AnnouncedCount() != 1 {
		t.Fatalf("AnnouncedCount() = %d, want 1 (no new announcement for a subset event)", ann.AnnouncedCount())
	}
}

func TestIngestRejectsSafelistedVictim(t *testing.T) {
	o, repo, ann, notifier := newTestOrchestrator()
	ctx := context.Background()

	if err := repo.InsertSafelist(ctx, "203.0.113.10/32", "operator-1", nil); err != nil {
		t.Fatalf("InsertSafelist() error = %v", err)
	}

	_, err := o.Ingest(ctx, testInput())
	if err == nil {
		t.Fatal("Ingest() with safelisted victim: want error, got nil")
	}
	if ann.AnnouncedCount() != 0 {
		t.Fatalf("AnnouncedCount() = %d, want 0", ann.AnnouncedCount())
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].EventType != webhook.EventGuardrailRejected {
		t.Fatalf("alerts = %+v, want one guardrail.rejected", notifier.alerts)
	}
}

func TestIngestDuplicateExternalEventID(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()

	extID := "ext-1"
	input := testInput()
	input.ExternalEventID = &extID

	if _, err := o.Ingest(ctx, input); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if _, err := o.Ingest(ctx, input); err == nil {
		t.Fatal("duplicate external_event_id: want error, got nil")
	}
}

func TestWithdrawStopsActiveMitigation(t *testing.T) {
	o, _, ann, notifier := newTestOrchestrator()
	ctx := context.Background()

	resp, err := o.Ingest(ctx, testInput())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	m, err := o.Withdraw(ctx, *resp.MitigationID, "resolved", "operator-1")
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if m.Status != domain.StatusWithdrawn {
		t.Fatalf("Status = %q, want withdrawn", m.Status)
	}
	if ann.AnnouncedCount() != 0 {
		t.Fatalf("AnnouncedCount() = %d, want 0 after withdraw", ann.AnnouncedCount())
	}
	if len(notifier.alerts) != 2 { // created + withdrawn
		t.Fatalf("alerts = %d, want 2", len(notifier.alerts))
	}
}

func TestWithdrawRejectsNonActiveMitigation(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()

	resp, err := o.Ingest(ctx, testInput())
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := o.Withdraw(ctx, *resp.MitigationID, "first", "operator-1"); err != nil {
		t.Fatalf("first Withdraw() error = %v", err)
	}
	if _, err := o.Withdraw(ctx, *resp.MitigationID, "second", "operator-1"); err == nil {
		t.Fatal("withdrawing an already-withdrawn mitigation: want error, got nil")
	}
}
