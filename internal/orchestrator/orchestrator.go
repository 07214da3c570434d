// Package orchestrator is the L10 ingestion pipeline: it turns an
// AttackEventInput into a durable mitigation decision, running dedup,
// inventory resolution, policy evaluation, scope coalescing, guardrails,
// and BGP announcement in sequence, and auditing every step.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/flowspec"
	"github.com/lance0/prefixd-sub000/internal/perr"
	"github.com/lance0/prefixd-sub000/internal/policy"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

// EventStatus is the outcome reported back to the event submitter.
type EventStatus string

const (
	StatusCreated      EventStatus = "created"
	StatusExtended     EventStatus = "extended"
	StatusCoalesced    EventStatus = "coalesced"
	StatusNoMitigation EventStatus = "accepted_no_mitigation"
)

// EventResponse is returned to whatever ingested the event (HTTP handler
// or detector adapter).
type EventResponse struct {
	EventID         string      `json:"event_id"`
	ExternalEventID *string     `json:"external_event_id,omitempty"`
	Status          EventStatus `json:"status"`
	MitigationID    *string     `json:"mitigation_id,omitempty"`
}

// Notifier is the webhook fan-out surface the orchestrator depends on;
// satisfied by *webhook.Dispatcher, narrowed here so tests can stub it.
type Notifier interface {
	Notify(alert webhook.Alert)
}

// Orchestrator wires the policy engine, repository, announcer, and alert
// dispatcher into the event-ingestion pipeline.
type Orchestrator struct {
	repo       repository.Repository
	announcer  announcer.Announcer
	inventory  *config.Inventory
	engine     *policy.Engine
	guardrails *policy.Guardrails
	correlator *policy.EventCorrelator
	notifier   Notifier
	settings   *config.Settings
	logger     *zap.Logger
}

func New(
	repo repository.Repository,
	ann announcer.Announcer,
	inventory *config.Inventory,
	engine *policy.Engine,
	guardrails *policy.Guardrails,
	correlator *policy.EventCorrelator,
	notifier Notifier,
	settings *config.Settings,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		announcer:  ann,
		inventory:  inventory,
		engine:     engine,
		guardrails: guardrails,
		correlator: correlator,
		notifier:   notifier,
		settings:   settings,
		logger:     logger,
	}
}

// Ingest runs the full pipeline for one attack observation.
func (o *Orchestrator) Ingest(ctx context.Context, input domain.AttackEventInput) (EventResponse, error) {
	now := time.Now().UTC()

	// 1. dedup.
	if input.ExternalEventID != nil {
		existing, err := o.repo.FindEventByExternalID(ctx, input.Source, *input.ExternalEventID)
		if err != nil {
			return EventResponse{}, perr.Wrap(perr.KindDatabase, "checking event dedup", err)
		}
		if existing != nil {
			return EventResponse{}, perr.DuplicateEvent(input.Source, *input.ExternalEventID)
		}
	}

	// 2. persist event. The dedup check above is a TOCTOU race under
	// concurrent ingests of the same external event; the database's
	// partial unique index is the real backstop.
	event := domain.NewAttackEvent(input, uuid.NewString())
	if err := o.repo.InsertEvent(ctx, event); err != nil {
		if err == repository.ErrScopeConflict {
			extID := ""
			if input.ExternalEventID != nil {
				extID = *input.ExternalEventID
			}
			return EventResponse{}, perr.DuplicateEvent(input.Source, extID)
		}
		return EventResponse{}, perr.Wrap(perr.KindDatabase, "persisting event", err)
	}

	// 3. resolve inventory context.
	ipCtx := o.inventory.LookupIP(event.VictimIP)
	if ipCtx == nil {
		o.audit(ctx, domain.ActorSystem, nil, "event.accepted_no_mitigation", "event", &event.EventID, map[string]any{
			"reason": "victim ip not owned by any customer",
		})
		return EventResponse{EventID: event.EventID, ExternalEventID: event.ExternalEventID, Status: StatusNoMitigation}, nil
	}

	// 4. evaluate policy.
	intent, err := o.engine.Evaluate(event, ipCtx)
	if err != nil {
		return EventResponse{}, err
	}

	scopeHash := flowspec.FromMatchCriteria(intent.MatchCriteria).ScopeHash()

	// 5. scope-hash lookup is authoritative and runs first; only on a miss
	// do we fall back to the correlator's richer same-victim comparison.
	if existing, err := o.repo.FindActiveByScope(ctx, scopeHash, intent.POP); err != nil {
		return EventResponse{}, perr.Wrap(perr.KindDatabase, "looking up mitigation by scope", err)
	} else if existing != nil {
		return o.extend(ctx, *existing, intent, event, now)
	}

	if resp, handled, err := o.correlate(ctx, event, intent, now); handled {
		return resp, err
	}

	// 6. guardrails.
	isSafelisted, err := o.repo.IsSafelisted(ctx, event.VictimIP)
	if err != nil {
		return EventResponse{}, perr.Wrap(perr.KindDatabase, "checking safelist", err)
	}
	if err := o.guardrails.Validate(ctx, intent, o.repo, isSafelisted); err != nil {
		o.audit(ctx, domain.ActorSystem, nil, "guardrail.rejected", "event", &event.EventID, map[string]any{
			"reason": err.Error(),
		})
		o.notifier.Notify(webhook.GuardrailRejected(event.VictimIP, err.Error()))
		return EventResponse{}, err
	}

	// 7. construct and announce.
	mitigationID := uuid.NewString()
	m := domain.FromIntent(intent, event.VictimIP, event.Vector, mitigationID, scopeHash, now)

	if err := o.announceAndActivate(ctx, &m, now); err != nil {
		if insertErr := o.repo.InsertMitigation(ctx, m); insertErr != nil && insertErr != repository.ErrScopeConflict {
			o.logger.Warn("failed to persist rejected mitigation", zap.Error(insertErr))
		}
		return EventResponse{}, err
	}

	if err := o.repo.InsertMitigation(ctx, m); err != nil {
		if err == repository.ErrScopeConflict {
			// Lost the race to another concurrent ingest of the same scope;
			// withdraw our own announcement and coalesce onto the winner.
			_ = o.announcer.Withdraw(ctx, flowspec.RuleFromMitigation(m))
			winner, findErr := o.repo.FindActiveByScope(ctx, scopeHash, intent.POP)
			if findErr == nil && winner != nil {
				return o.extend(ctx, *winner, intent, event, now)
			}
		}
		return EventResponse{}, perr.Wrap(perr.KindDatabase, "persisting mitigation", err)
	}

	o.audit(ctx, domain.ActorSystem, nil, "mitigation.created", "mitigation", &m.MitigationID, map[string]any{
		"victim_ip": m.VictimIP, "vector": m.Vector, "action_type": m.ActionType,
	})
	o.notifier.Notify(webhook.MitigationCreated(m))

	return EventResponse{
		EventID:         event.EventID,
		ExternalEventID: event.ExternalEventID,
		Status:          StatusCreated,
		MitigationID:    &m.MitigationID,
	}, nil
}

// correlate runs the event correlator against the victim's active
// mitigations when the scope-hash lookup missed, and handles every
// CorrelationAction that short-circuits the rest of the pipeline. The
// returned bool reports whether the caller should return immediately.
func (o *Orchestrator) correlate(ctx context.Context, event domain.AttackEvent, intent domain.MitigationIntent, now time.Time) (EventResponse, bool, error) {
	active, err := o.repo.FindActiveByVictim(ctx, event.VictimIP)
	if err != nil {
		return EventResponse{}, true, perr.Wrap(perr.KindDatabase, "looking up active mitigations for victim", err)
	}

	result := o.correlator.Correlate(event, active)
	switch result.Kind {
	case policy.ResultNewScope:
		return EventResponse{}, false, nil
	case policy.ResultExactMatch:
		m, findErr := o.repo.GetMitigation(ctx, result.MitigationID)
		if findErr != nil || m == nil {
			return EventResponse{}, false, nil
		}
		resp, err := o.extend(ctx, *m, intent, event, now)
		return resp, true, err
	case policy.ResultRelatedMatch:
		m, findErr := o.repo.GetMitigation(ctx, result.MitigationID)
		if findErr != nil || m == nil {
			return EventResponse{}, false, nil
		}
		switch result.Action {
		case policy.ActionExtendTTL, policy.ActionReplace:
			resp, err := o.extend(ctx, *m, intent, event, now)
			return resp, true, err
		case policy.ActionKeepExisting:
			o.audit(ctx, domain.ActorSystem, nil, "event.coalesced", "mitigation", &m.MitigationID, map[string]any{
				"reason": "event port set is a subset of an existing mitigation",
			})
			return EventResponse{
				EventID:         event.EventID,
				ExternalEventID: event.ExternalEventID,
				Status:          StatusCoalesced,
				MitigationID:    &m.MitigationID,
			}, true, nil
		default: // ActionCreateParallel falls through to guardrails+create.
			return EventResponse{}, false, nil
		}
	}
	return EventResponse{}, false, nil
}

func (o *Orchestrator) extend(ctx context.Context, m domain.Mitigation, intent domain.MitigationIntent, event domain.AttackEvent, now time.Time) (EventResponse, error) {
	m.ExtendTTL(intent.TTLSeconds, event.EventID, now)
	if err := o.repo.UpdateMitigation(ctx, m); err != nil {
		return EventResponse{}, perr.Wrap(perr.KindDatabase, "extending mitigation ttl", err)
	}
	o.audit(ctx, domain.ActorSystem, nil, "mitigation.extended", "mitigation", &m.MitigationID, map[string]any{
		"new_expires_at": m.ExpiresAt,
	})
	return EventResponse{
		EventID:         event.EventID,
		ExternalEventID: event.ExternalEventID,
		Status:          StatusExtended,
		MitigationID:    &m.MitigationID,
	}, nil
}

// announceAndActivate calls the BGP speaker unless running dry-run, and
// transitions the in-memory mitigation to active/rejected accordingly.
// Callers persist m afterward regardless of outcome.
func (o *Orchestrator) announceAndActivate(ctx context.Context, m *domain.Mitigation, now time.Time) error {
	if o.settings.DryRun() {
		m.Activate(now)
		return nil
	}
	rule := flowspec.RuleFromMitigation(*m)
	if err := o.announcer.Announce(ctx, rule); err != nil {
		m.Reject(err.Error(), now)
		return perr.Wrap(perr.KindBgpAnnouncementFailed, "announcing flowspec rule", err)
	}
	m.Activate(now)
	return nil
}

// Withdraw cancels an active mitigation on operator request. Only
// mitigations currently in the active status set may be withdrawn.
func (o *Orchestrator) Withdraw(ctx context.Context, mitigationID, reason string, actorID string) (*domain.Mitigation, error) {
	m, err := o.repo.GetMitigation(ctx, mitigationID)
	if err != nil {
		return nil, perr.Wrap(perr.KindDatabase, "loading mitigation", err)
	}
	if m == nil {
		return nil, perr.New(perr.KindMitigationNotFound, fmt.Sprintf("mitigation %s not found", mitigationID))
	}
	if !m.IsActive() {
		return nil, perr.New(perr.KindInvalidRequest, fmt.Sprintf("mitigation %s is not active (status=%s)", mitigationID, m.Status))
	}

	if !o.settings.DryRun() {
		if err := o.announcer.Withdraw(ctx, flowspec.RuleFromMitigation(*m)); err != nil {
			o.logger.Warn("withdraw announcement failed", zap.String("mitigation_id", mitigationID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	reasonCopy := reason
	m.Withdraw(&reasonCopy, now)
	if err := o.repo.UpdateMitigation(ctx, *m); err != nil {
		return nil, perr.Wrap(perr.KindDatabase, "persisting withdrawal", err)
	}

	actor := actorID
	o.audit(ctx, domain.ActorOperator, &actor, "mitigation.withdrawn", "mitigation", &m.MitigationID, map[string]any{
		"reason": reason,
	})
	o.notifier.Notify(webhook.MitigationWithdrawn(*m))
	return m, nil
}

// CreateManual builds a mitigation directly from operator-supplied match
// criteria and action, bypassing policy evaluation but not guardrails.
func (o *Orchestrator) CreateManual(ctx context.Context, intent domain.MitigationIntent, victimIP string, vector domain.AttackVector, actorID string) (*domain.Mitigation, error) {
	now := time.Now().UTC()
	scopeHash := flowspec.FromMatchCriteria(intent.MatchCriteria).ScopeHash()

	isSafelisted, err := o.repo.IsSafelisted(ctx, victimIP)
	if err != nil {
		return nil, perr.Wrap(perr.KindDatabase, "checking safelist", err)
	}
	if err := o.guardrails.Validate(ctx, intent, o.repo, isSafelisted); err != nil {
		return nil, err
	}

	mitigationID := uuid.NewString()
	m := domain.FromIntent(intent, victimIP, vector, mitigationID, scopeHash, now)

	if err := o.announceAndActivate(ctx, &m, now); err != nil {
		_ = o.repo.InsertMitigation(ctx, m)
		return nil, err
	}
	if err := o.repo.InsertMitigation(ctx, m); err != nil {
		return nil, perr.Wrap(perr.KindDatabase, "persisting manual mitigation", err)
	}

	actor := actorID
	o.audit(ctx, domain.ActorOperator, &actor, "mitigation.created", "mitigation", &m.MitigationID, map[string]any{
		"source": "manual",
	})
	o.notifier.Notify(webhook.MitigationCreated(m))
	return &m, nil
}

func (o *Orchestrator) audit(ctx context.Context, actorType domain.ActorType, actorID *string, action, targetType string, targetID *string, details map[string]any) {
	entry := domain.AuditEntry{
		AuditID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		SchemaVersion: 1,
		ActorType:     actorType,
		ActorID:       actorID,
		Action:        action,
		TargetType:    &targetType,
		TargetID:      targetID,
		Details:       details,
	}
	if err := o.repo.InsertAudit(ctx, entry); err != nil {
		o.logger.Warn("failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}
