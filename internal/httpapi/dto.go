package httpapi

import (
	"time"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// mitigationResponse is the wire shape for a single mitigation, independent
// of the domain.Mitigation field names so the persisted struct is free to
// evolve without breaking the API contract.
type mitigationResponse struct {
	MitigationID string     `json:"mitigation_id"`
	Status       string     `json:"status"`
	CustomerID   *string    `json:"customer_id,omitempty"`
	VictimIP     string     `json:"victim_ip"`
	Vector       string     `json:"vector"`
	ActionType   string     `json:"action_type"`
	RateBPS      *uint64    `json:"rate_bps,omitempty"`
	CreatedAt    string     `json:"created_at"`
	ExpiresAt    string     `json:"expires_at"`
	ScopeHash    string     `json:"scope_hash"`
	WithdrawnAt  *time.Time `json:"withdrawn_at,omitempty"`
}

func newMitigationResponse(m domain.Mitigation) mitigationResponse {
	return mitigationResponse{
		MitigationID: m.MitigationID,
		Status:       string(m.Status),
		CustomerID:   m.CustomerID,
		VictimIP:     m.VictimIP,
		Vector:       string(m.Vector),
		ActionType:   string(m.ActionType),
		RateBPS:      m.ActionParams.RateBPS,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		ExpiresAt:    m.ExpiresAt.Format(time.RFC3339),
		ScopeHash:    m.ScopeHash,
		WithdrawnAt:  m.WithdrawnAt,
	}
}

type mitigationsListResponse struct {
	Mitigations []mitigationResponse `json:"mitigations"`
	Total       int                  `json:"total"`
}

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
}

type createMitigationRequest struct {
	OperatorID string   `json:"operator_id"`
	Reason     string   `json:"reason"`
	VictimIP   string   `json:"victim_ip"`
	Protocol   string   `json:"protocol"`
	DstPorts   []uint16 `json:"dst_ports"`
	Action     string   `json:"action"`
	RateBPS    *uint64  `json:"rate_bps,omitempty"`
	TTLSeconds uint32   `json:"ttl_seconds"`
}

type withdrawRequest struct {
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason"`
}

type addSafelistRequest struct {
	OperatorID string  `json:"operator_id"`
	Prefix     string  `json:"prefix"`
	Reason     *string `json:"reason,omitempty"`
}

type safelistEntryResponse struct {
	Prefix    string     `json:"prefix"`
	AddedBy   string     `json:"added_by"`
	AddedAt   string     `json:"added_at"`
	Reason    *string    `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newSafelistEntryResponse(e domain.SafelistEntry) safelistEntryResponse {
	return safelistEntryResponse{
		Prefix:    e.Prefix,
		AddedBy:   e.AddedBy,
		AddedAt:   e.AddedAt.Format(time.RFC3339),
		Reason:    e.Reason,
		ExpiresAt: e.ExpiresAt,
	}
}

type healthResponse struct {
	Status             string            `json:"status"`
	BGPSessions        map[string]string `json:"bgp_sessions"`
	ActiveMitigations  uint32            `json:"active_mitigations"`
}
