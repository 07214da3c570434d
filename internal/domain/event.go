package domain

import "time"

// AttackEventInput is the wire payload accepted by POST /v1/events.
type AttackEventInput struct {
	ExternalEventID *string      `json:"event_id,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	Source          string       `json:"source"`
	VictimIP        string       `json:"victim_ip"`
	Vector          AttackVector `json:"vector"`
	BPS             *int64       `json:"bps,omitempty"`
	PPS             *int64       `json:"pps,omitempty"`
	TopDstPorts     []uint16     `json:"top_dst_ports,omitempty"`
	Confidence      *float64     `json:"confidence,omitempty"`
}

// AttackEvent is the persisted, immutable record of an ingested observation.
type AttackEvent struct {
	EventID         string
	ExternalEventID *string
	Source          string
	EventTimestamp  time.Time
	IngestedAt      time.Time
	VictimIP        string
	Vector          AttackVector
	Protocol        *uint8
	BPS             *int64
	PPS             *int64
	TopDstPorts     []uint16
	Confidence      *float64
}

// NewAttackEvent builds the internal record from an API input, assigning
// event_id and ingested_at, and deriving protocol from the vector.
func NewAttackEvent(in AttackEventInput, eventID string) AttackEvent {
	var proto *uint8
	if p, ok := in.Vector.Protocol(); ok {
		proto = &p
	}
	return AttackEvent{
		EventID:         eventID,
		ExternalEventID: in.ExternalEventID,
		Source:          in.Source,
		EventTimestamp:  in.Timestamp,
		IngestedAt:      time.Now().UTC(),
		VictimIP:        in.VictimIP,
		Vector:          in.Vector,
		Protocol:        proto,
		BPS:             in.BPS,
		PPS:             in.PPS,
		TopDstPorts:     in.TopDstPorts,
		Confidence:      in.Confidence,
	}
}
