// Package webhook is the L12 alert fan-out: a best-effort, fire-and-forget
// dispatcher that turns a domain event into a per-destination payload and
// posts it with retry. Nothing here blocks the caller — Notify spawns its
// own delivery goroutine per configured destination.
package webhook

import (
	"fmt"
	"time"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

type AlertEventType string

const (
	EventMitigationCreated   AlertEventType = "mitigation.created"
	EventMitigationEscalated AlertEventType = "mitigation.escalated"
	EventMitigationWithdrawn AlertEventType = "mitigation.withdrawn"
	EventMitigationExpired   AlertEventType = "mitigation.expired"
	EventConfigReloaded      AlertEventType = "config.reloaded"
	EventGuardrailRejected   AlertEventType = "guardrail.rejected"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// ColorHex returns the accent color conventionally used by chat-webhook
// payloads (Slack attachments, Discord embeds) for this severity.
func (s AlertSeverity) ColorHex() int {
	switch s {
	case SeverityWarning:
		return 0xff9900
	case SeverityCritical:
		return 0xff0000
	default:
		return 0x36a64f
	}
}

// Alert is the provider-agnostic payload every destination encoder builds
// its own wire format from.
type Alert struct {
	EventType    AlertEventType `json:"event_type"`
	Severity     AlertSeverity  `json:"severity"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Source       string         `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	MitigationID *string        `json:"mitigation_id,omitempty"`
	VictimIP     *string        `json:"victim_ip,omitempty"`
	CustomerID   *string        `json:"customer_id,omitempty"`
	Vector       *string        `json:"vector,omitempty"`
	ActionType   *string        `json:"action_type,omitempty"`
	POP          *string        `json:"pop,omitempty"`
}

func fromMitigation(eventType AlertEventType, severity AlertSeverity, title, message string, m domain.Mitigation) Alert {
	vector := string(m.Vector)
	action := string(m.ActionType)
	return Alert{
		EventType:    eventType,
		Severity:     severity,
		Title:        title,
		Message:      message,
		Source:       "prefixd",
		Timestamp:    time.Now().UTC(),
		MitigationID: &m.MitigationID,
		VictimIP:     &m.VictimIP,
		CustomerID:   m.CustomerID,
		Vector:       &vector,
		ActionType:   &action,
		POP:          &m.POP,
	}
}

func MitigationCreated(m domain.Mitigation) Alert {
	return fromMitigation(EventMitigationCreated, SeverityWarning, "Mitigation Created",
		fmt.Sprintf("%s mitigation for %s (%s) in %s", m.ActionType, m.VictimIP, m.Vector, m.POP), m)
}

func MitigationEscalated(m domain.Mitigation) Alert {
	return fromMitigation(EventMitigationEscalated, SeverityCritical, "Mitigation Escalated",
		fmt.Sprintf("Escalated to %s for %s — attack persisting", m.ActionType, m.VictimIP), m)
}

func MitigationWithdrawn(m domain.Mitigation) Alert {
	return fromMitigation(EventMitigationWithdrawn, SeverityInfo, "Mitigation Withdrawn",
		fmt.Sprintf("Withdrawn %s for %s", m.ActionType, m.VictimIP), m)
}

func MitigationExpired(m domain.Mitigation) Alert {
	return fromMitigation(EventMitigationExpired, SeverityInfo, "Mitigation Expired",
		fmt.Sprintf("TTL expired for %s (%s)", m.VictimIP, m.Vector), m)
}

func GuardrailRejected(victimIP, reason string) Alert {
	return Alert{
		EventType: EventGuardrailRejected,
		Severity:  SeverityWarning,
		Title:     "Guardrail Rejected",
		Message:   fmt.Sprintf("rejected mitigation for %s: %s", victimIP, reason),
		Source:    "prefixd",
		Timestamp: time.Now().UTC(),
		VictimIP:  &victimIP,
	}
}
