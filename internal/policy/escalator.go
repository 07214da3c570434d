package policy

import (
	"fmt"
	"time"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
)

// EscalationDecisionKind discriminates the evaluate() outcome.
type EscalationDecisionKind int

const (
	EscalationNone EscalationDecisionKind = iota
	EscalationEscalate
	EscalationBlocked
)

type EscalationDecision struct {
	Kind   EscalationDecisionKind
	Reason string
}

// EscalationEvaluator decides whether a persistent, high-confidence police
// mitigation should be promoted to discard.
type EscalationEvaluator struct {
	config config.EscalationConfig
}

func NewEscalationEvaluator(cfg config.EscalationConfig) *EscalationEvaluator {
	return &EscalationEvaluator{config: cfg}
}

// Evaluate applies the promotion gate: only active police mitigations are
// eligible; escalation must be enabled and the customer's policy profile
// must not forbid it; the mitigation must have persisted past the minimum
// window at or above the minimum confidence; and escalating must not leave
// a discard rule live longer than the configured maximum.
func (e *EscalationEvaluator) Evaluate(m domain.Mitigation, profile domain.PolicyProfile, latestConfidence *float64, now time.Time) EscalationDecision {
	if m.Status != domain.StatusActive {
		return EscalationDecision{Kind: EscalationNone}
	}
	if m.ActionType != domain.ActionPolice {
		return EscalationDecision{Kind: EscalationNone}
	}

	if !e.config.Enabled {
		return EscalationDecision{Kind: EscalationBlocked, Reason: "escalation disabled globally"}
	}
	if profile == domain.ProfileStrict {
		return EscalationDecision{Kind: EscalationBlocked, Reason: "customer policy_profile=strict forbids escalation"}
	}

	persistence := now.Sub(m.CreatedAt)
	minPersistence := time.Duration(e.config.MinPersistenceSeconds) * time.Second
	if persistence < minPersistence {
		return EscalationDecision{Kind: EscalationNone}
	}

	confidence := 0.0
	if latestConfidence != nil {
		confidence = *latestConfidence
	}
	if confidence < e.config.MinConfidence {
		return EscalationDecision{Kind: EscalationNone}
	}

	maxEscalated := time.Duration(e.config.MaxEscalatedDurationSeconds) * time.Second
	remainingTTL := m.ExpiresAt.Sub(now)
	if remainingTTL > maxEscalated {
		return EscalationDecision{
			Kind: EscalationBlocked,
			Reason: fmt.Sprintf("remaining TTL %ds exceeds max_escalated_duration %ds",
				int(remainingTTL.Seconds()), e.config.MaxEscalatedDurationSeconds),
		}
	}

	return EscalationDecision{
		Kind: EscalationEscalate,
		Reason: fmt.Sprintf("persistence=%ds >= %ds, confidence=%.2f >= %.2f",
			int(persistence.Seconds()), e.config.MinPersistenceSeconds, confidence, e.config.MinConfidence),
	}
}
