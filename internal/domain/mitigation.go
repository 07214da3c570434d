package domain

import "time"

// MatchCriteria is the predicate a FlowSpec rule matches on.
type MatchCriteria struct {
	DstPrefix string   `json:"dst_prefix"`
	Protocol  *uint8   `json:"protocol,omitempty"`
	DstPorts  []uint16 `json:"dst_ports,omitempty"`
}

// ActionParams carries the rate for a police action; empty for discard.
type ActionParams struct {
	RateBPS *uint64 `json:"rate_bps,omitempty"`
}

// MitigationIntent is the policy engine's output, before guardrails run.
type MitigationIntent struct {
	EventID       string
	CustomerID    *string
	ServiceID     *string
	POP           string
	MatchCriteria MatchCriteria
	ActionType    ActionType
	ActionParams  ActionParams
	TTLSeconds    uint32
	Reason        string
}

// Mitigation is a durable policy decision and its current lifecycle state.
type Mitigation struct {
	MitigationID      string
	ScopeHash         string
	POP               string
	CustomerID        *string
	ServiceID         *string
	VictimIP          string
	Vector            AttackVector
	MatchCriteria     MatchCriteria
	ActionType        ActionType
	ActionParams      ActionParams
	Status            MitigationStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
	WithdrawnAt       *time.Time
	TriggeringEventID string
	LastEventID       string
	EscalatedFromID   *string
	Reason            string
	RejectionReason   *string
}

// FromIntent materializes a pending mitigation from a policy intent.
func FromIntent(intent MitigationIntent, victimIP string, vector AttackVector, mitigationID, scopeHash string, now time.Time) Mitigation {
	return Mitigation{
		MitigationID:      mitigationID,
		ScopeHash:         scopeHash,
		POP:               intent.POP,
		CustomerID:        intent.CustomerID,
		ServiceID:         intent.ServiceID,
		VictimIP:          victimIP,
		Vector:            vector,
		MatchCriteria:     intent.MatchCriteria,
		ActionType:        intent.ActionType,
		ActionParams:      intent.ActionParams,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(intent.TTLSeconds) * time.Second),
		TriggeringEventID: intent.EventID,
		LastEventID:       intent.EventID,
		Reason:            intent.Reason,
	}
}

func (m *Mitigation) IsActive() bool { return m.Status.IsActive() }

// ExtendTTL pushes expires_at forward if the new deadline is later, and
// records the triggering event. Never shortens the deadline.
func (m *Mitigation) ExtendTTL(ttlSeconds uint32, eventID string, now time.Time) {
	newExpiry := now.Add(time.Duration(ttlSeconds) * time.Second)
	if newExpiry.After(m.ExpiresAt) {
		m.ExpiresAt = newExpiry
	}
	m.UpdatedAt = now
	m.LastEventID = eventID
}

func (m *Mitigation) Activate(now time.Time) {
	m.Status = StatusActive
	m.UpdatedAt = now
}

func (m *Mitigation) Withdraw(reason *string, now time.Time) {
	m.Status = StatusWithdrawn
	m.WithdrawnAt = &now
	m.UpdatedAt = now
	if reason != nil {
		m.Reason = *reason
	}
}

func (m *Mitigation) Expire(now time.Time) {
	m.Status = StatusExpired
	m.WithdrawnAt = &now
	m.UpdatedAt = now
}

func (m *Mitigation) Reject(reason string, now time.Time) {
	m.Status = StatusRejected
	m.RejectionReason = &reason
	m.UpdatedAt = now
}

func (m *Mitigation) Escalate(newActionType ActionType, fromID string, now time.Time) {
	m.EscalatedFromID = &fromID
	m.ActionType = newActionType
	m.ActionParams = ActionParams{}
	m.Status = StatusEscalated
	m.UpdatedAt = now
}

// SafelistEntry is a CIDR exempted from mitigation.
type SafelistEntry struct {
	Prefix    string
	AddedBy   string
	AddedAt   time.Time
	Reason    *string
	ExpiresAt *time.Time
}

// ActorType is the closed set of audit-entry originators.
type ActorType string

const (
	ActorSystem   ActorType = "system"
	ActorDetector ActorType = "detector"
	ActorOperator ActorType = "operator"
)

// AuditEntry is an append-only log record.
type AuditEntry struct {
	AuditID       string
	Timestamp     time.Time
	SchemaVersion int
	ActorType     ActorType
	ActorID       *string
	Action        string
	TargetType    *string
	TargetID      *string
	Details       map[string]any
}
