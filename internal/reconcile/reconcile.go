// Package reconcile is the L11 reconciliation loop: a periodic,
// non-reentrant tick that expires overdue mitigations, repairs drift
// between the desired and actually-announced FlowSpec rule set, and scans
// for escalation candidates.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/flowspec"
	"github.com/lance0/prefixd-sub000/internal/policy"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

const driftSyncBatchSize = 1000

// MetricsRecorder is the subset of internal/metrics the loop reports tick
// outcomes to; kept as an interface so this package has no import on
// metrics.
type MetricsRecorder interface {
	RecordReconcileTick(outcome string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordReconcileTick(string, time.Duration) {}

// Notifier is the webhook fan-out surface the loop depends on for
// expiry and escalation alerts.
type Notifier interface {
	Notify(alert webhook.Alert)
}

// Loop runs the periodic reconciliation cycle for one POP.
type Loop struct {
	repo       repository.Repository
	announcer  announcer.Announcer
	escalator  *policy.EscalationEvaluator
	inventory  *config.Inventory
	notifier   Notifier
	settings   *config.Settings
	metrics    MetricsRecorder
	logger     *zap.Logger
	interval   time.Duration
	escalation bool

	running chan struct{} // buffered 1; acts as a non-reentrancy lock
}

func New(
	repo repository.Repository,
	ann announcer.Announcer,
	escalator *policy.EscalationEvaluator,
	inventory *config.Inventory,
	notifier Notifier,
	settings *config.Settings,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Loop {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	running := make(chan struct{}, 1)
	running <- struct{}{}
	return &Loop{
		repo:       repo,
		announcer:  ann,
		escalator:  escalator,
		inventory:  inventory,
		notifier:   notifier,
		settings:   settings,
		metrics:    metrics,
		logger:     logger,
		interval:   time.Duration(settings.Timers.ReconciliationIntervalSeconds) * time.Second,
		escalation: settings.Escalation.Enabled,
		running:    running,
	}
}

// Run ticks every interval until ctx is canceled, with an immediate pass on
// start. A missed tick (the previous cycle still running) is skipped, never
// queued. Shutdown is cooperative: the current cycle is allowed to finish.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("starting reconciliation loop",
		zap.Duration("interval", l.interval), zap.Bool("dry_run", l.settings.DryRun()))

	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-ctx.Done():
			l.logger.Info("reconciliation loop shutting down")
			return
		}
	}
}

// tick runs one cycle if the previous one has finished, otherwise skips.
func (l *Loop) tick(ctx context.Context) {
	select {
	case <-l.running:
	default:
		l.logger.Warn("reconciliation tick skipped: previous cycle still running")
		return
	}
	defer func() { l.running <- struct{}{} }()

	start := time.Now()
	err := l.reconcile(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failure"
		l.logger.Error("reconciliation cycle failed", zap.Error(err))
	}
	l.metrics.RecordReconcileTick(outcome, time.Since(start))
}

// reconcile runs one full cycle: expiry sweep, drift repair, escalation scan.
func (l *Loop) reconcile(ctx context.Context) error {
	if err := l.expireMitigations(ctx); err != nil {
		return err
	}
	if err := l.syncAnnouncements(ctx); err != nil {
		return err
	}
	if l.escalation {
		l.scanEscalations(ctx)
	}
	return nil
}

func (l *Loop) expireMitigations(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := l.repo.FindExpiredMitigations(ctx, now)
	if err != nil {
		return err
	}

	for _, m := range expired {
		l.logger.Info("expiring mitigation", zap.String("mitigation_id", m.MitigationID), zap.String("victim_ip", m.VictimIP))

		if !l.settings.DryRun() {
			if err := l.announcer.Withdraw(ctx, flowspec.RuleFromMitigation(m)); err != nil {
				l.logger.Warn("failed to withdraw expired mitigation",
					zap.String("mitigation_id", m.MitigationID), zap.Error(err))
			}
		}

		m.Expire(now)
		if err := l.repo.UpdateMitigation(ctx, m); err != nil {
			return err
		}
		l.notifier.Notify(webhook.MitigationExpired(m))
	}
	return nil
}

func (l *Loop) syncAnnouncements(ctx context.Context) error {
	active, err := l.repo.ListMitigations(ctx, domain.ActiveStatuses, nil, driftSyncBatchSize, 0)
	if err != nil {
		return err
	}
	active = filterByPOP(active, l.settings.POP)

	announced, err := l.announcer.ListActive(ctx)
	if err != nil {
		return err
	}
	announcedHashes := make(map[string]struct{}, len(announced))
	for _, rule := range announced {
		announcedHashes[rule.ScopeHash()] = struct{}{}
	}

	desiredHashes := make(map[string]struct{}, len(active))
	for _, m := range active {
		rule := flowspec.RuleFromMitigation(m)
		hash := rule.ScopeHash()
		desiredHashes[hash] = struct{}{}

		if _, ok := announcedHashes[hash]; ok {
			continue
		}
		l.logger.Warn("re-announcing missing rule", zap.String("mitigation_id", m.MitigationID), zap.String("scope_hash", hash))
		if !l.settings.DryRun() {
			if err := l.announcer.Announce(ctx, rule); err != nil {
				l.logger.Error("failed to re-announce", zap.String("mitigation_id", m.MitigationID), zap.Error(err))
			}
		}
	}

	for _, rule := range announced {
		if _, ok := desiredHashes[rule.ScopeHash()]; !ok {
			l.logger.Warn("unknown route in BGP RIB", zap.String("scope_hash", rule.ScopeHash()), zap.String("dst_prefix", rule.Nlri.DstPrefix))
		}
	}
	return nil
}

func (l *Loop) scanEscalations(ctx context.Context) {
	active, err := l.repo.ListMitigations(ctx, []domain.MitigationStatus{domain.StatusActive}, nil, driftSyncBatchSize, 0)
	if err != nil {
		l.logger.Error("escalation scan: listing active mitigations failed", zap.Error(err))
		return
	}
	active = filterByPOP(active, l.settings.POP)

	now := time.Now().UTC()
	for _, m := range active {
		if m.ActionType != domain.ActionPolice {
			continue
		}

		profile := domain.ProfileNormal
		var confidence *float64
		if m.CustomerID != nil {
			if ctx2 := l.inventory.LookupIP(m.VictimIP); ctx2 != nil {
				profile = ctx2.PolicyProfile
			}
			events, err := l.repo.ListEventsByIP(ctx, m.VictimIP, 1)
			if err == nil && len(events) > 0 {
				confidence = events[0].Confidence
			}
		}

		decision := l.escalator.Evaluate(m, profile, confidence, now)
		if decision.Kind != policy.EscalationEscalate {
			continue
		}

		l.escalate(ctx, m, decision.Reason, now)
	}
}

func (l *Loop) escalate(ctx context.Context, m domain.Mitigation, reason string, now time.Time) {
	oldRule := flowspec.RuleFromMitigation(m)
	if !l.settings.DryRun() {
		if err := l.announcer.Withdraw(ctx, oldRule); err != nil {
			l.logger.Warn("failed to withdraw pre-escalation rule", zap.String("mitigation_id", m.MitigationID), zap.Error(err))
		}
	}

	fromID := m.MitigationID
	m.Escalate(domain.ActionDiscard, fromID, now)

	if !l.settings.DryRun() {
		if err := l.announcer.Announce(ctx, flowspec.RuleFromMitigation(m)); err != nil {
			l.logger.Error("failed to announce escalated rule", zap.String("mitigation_id", m.MitigationID), zap.Error(err))
			return
		}
	}

	if err := l.repo.UpdateMitigation(ctx, m); err != nil {
		l.logger.Error("failed to persist escalation", zap.String("mitigation_id", m.MitigationID), zap.Error(err))
		return
	}

	l.logger.Info("escalated mitigation", zap.String("mitigation_id", m.MitigationID), zap.String("reason", reason))
	l.notifier.Notify(webhook.MitigationEscalated(m))
}

func filterByPOP(mitigations []domain.Mitigation, pop string) []domain.Mitigation {
	out := mitigations[:0]
	for _, m := range mitigations {
		if m.POP == pop {
			out = append(out, m)
		}
	}
	return out
}
