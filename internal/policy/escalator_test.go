package policy

import (
	"testing"
	"time"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
)

func testEscalationConfig() config.EscalationConfig {
	return config.EscalationConfig{
		Enabled:                     true,
		MinPersistenceSeconds:       120,
		MinConfidence:               0.7,
		MaxEscalatedDurationSeconds: 1800,
	}
}

func escalationTestMitigation(createdSecondsAgo int, action domain.ActionType) domain.Mitigation {
	now := time.Now().UTC()
	rate := uint64(5_000_000)
	return domain.Mitigation{
		MitigationID: "mit1",
		VictimIP:     "203.0.113.10",
		Vector:       domain.VectorUDPFlood,
		MatchCriteria: domain.MatchCriteria{
			DstPrefix: "203.0.113.10/32",
			DstPorts:  []uint16{53},
		},
		ActionType:   action,
		ActionParams: domain.ActionParams{RateBPS: &rate},
		Status:       domain.StatusActive,
		CreatedAt:    now.Add(-time.Duration(createdSecondsAgo) * time.Second),
		ExpiresAt:    now.Add(5 * time.Minute),
	}
}

func TestEscalationNoneIfNotPersisted(t *testing.T) {
	e := NewEscalationEvaluator(testEscalationConfig())
	m := escalationTestMitigation(60, domain.ActionPolice)
	confidence := 0.9

	decision := e.Evaluate(m, domain.ProfileNormal, &confidence, time.Now().UTC())
	if decision.Kind != EscalationNone {
		t.Fatalf("Evaluate() = %+v, want EscalationNone", decision)
	}
}

func TestEscalationNoneIfLowConfidence(t *testing.T) {
	e := NewEscalationEvaluator(testEscalationConfig())
	m := escalationTestMitigation(200, domain.ActionPolice)
	confidence := 0.5

	decision := e.Evaluate(m, domain.ProfileNormal, &confidence, time.Now().UTC())
	if decision.Kind != EscalationNone {
		t.Fatalf("Evaluate() = %+v, want EscalationNone", decision)
	}
}

func TestEscalatesWhenConditionsMet(t *testing.T) {
	e := NewEscalationEvaluator(testEscalationConfig())
	m := escalationTestMitigation(200, domain.ActionPolice)
	confidence := 0.9

	decision := e.Evaluate(m, domain.ProfileNormal, &confidence, time.Now().UTC())
	if decision.Kind != EscalationEscalate {
		t.Fatalf("Evaluate() = %+v, want EscalationEscalate", decision)
	}
}

func TestStrictProfileBlocksEscalation(t *testing.T) {
	e := NewEscalationEvaluator(testEscalationConfig())
	m := escalationTestMitigation(200, domain.ActionPolice)
	confidence := 0.9

	decision := e.Evaluate(m, domain.ProfileStrict, &confidence, time.Now().UTC())
	if decision.Kind != EscalationBlocked {
		t.Fatalf("Evaluate() = %+v, want EscalationBlocked", decision)
	}
}

func TestDiscardDoesNotEscalate(t *testing.T) {
	e := NewEscalationEvaluator(testEscalationConfig())
	m := escalationTestMitigation(200, domain.ActionDiscard)
	confidence := 0.9

	decision := e.Evaluate(m, domain.ProfileNormal, &confidence, time.Now().UTC())
	if decision.Kind != EscalationNone {
		t.Fatalf("Evaluate() = %+v, want EscalationNone", decision)
	}
}

func TestEscalationBlockedWhenRemainingTTLTooLong(t *testing.T) {
	cfg := testEscalationConfig()
	cfg.MaxEscalatedDurationSeconds = 60
	e := NewEscalationEvaluator(cfg)
	m := escalationTestMitigation(200, domain.ActionPolice)
	m.ExpiresAt = time.Now().UTC().Add(time.Hour)
	confidence := 0.9

	decision := e.Evaluate(m, domain.ProfileNormal, &confidence, time.Now().UTC())
	if decision.Kind != EscalationBlocked {
		t.Fatalf("Evaluate() = %+v, want EscalationBlocked", decision)
	}
}
