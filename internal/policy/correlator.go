package policy

import "github.com/lance0/prefixd-sub000/internal/domain"

// PortRelationship describes how an incoming event's destination ports
// relate to an existing mitigation's.
type PortRelationship int

const (
	PortsSuperset PortRelationship = iota
	PortsSubset
	PortsOverlap
	PortsDisjoint
)

// CorrelationAction is what the orchestrator should do with a correlated
// event.
type CorrelationAction int

const (
	ActionExtendTTL CorrelationAction = iota
	ActionReplace
	ActionKeepExisting
	ActionCreateParallel
)

// CorrelationResultKind discriminates the correlate() outcome.
type CorrelationResultKind int

const (
	ResultNewScope CorrelationResultKind = iota
	ResultExactMatch
	ResultRelatedMatch
)

// CorrelationResult is the outcome of correlating an event against the
// victim's currently active mitigations.
type CorrelationResult struct {
	Kind             CorrelationResultKind
	MitigationID     string
	PortRelationship PortRelationship
	Action           CorrelationAction
}

// EventCorrelator matches an incoming event's scope against active
// mitigations for the same victim, so a repeated or expanded attack
// coalesces onto one mitigation instead of spawning duplicates.
type EventCorrelator struct {
	correlationWindowSeconds uint32
}

func NewEventCorrelator(correlationWindowSeconds uint32) *EventCorrelator {
	return &EventCorrelator{correlationWindowSeconds: correlationWindowSeconds}
}

// Correlate finds the active mitigations for event.VictimIP and decides
// whether the event exactly matches one (same vector + same port set),
// relates to one (same vector, different ports), or opens a new scope.
func (c *EventCorrelator) Correlate(event domain.AttackEvent, activeMitigations []domain.Mitigation) CorrelationResult {
	eventPorts := portSet(event.TopDstPorts)

	var victimMitigations []domain.Mitigation
	for _, m := range activeMitigations {
		if m.VictimIP == event.VictimIP {
			victimMitigations = append(victimMitigations, m)
		}
	}
	if len(victimMitigations) == 0 {
		return CorrelationResult{Kind: ResultNewScope}
	}

	for _, m := range victimMitigations {
		if m.Vector != event.Vector {
			continue
		}
		mitigationPorts := portSet(m.MatchCriteria.DstPorts)
		if setsEqual(eventPorts, mitigationPorts) {
			return CorrelationResult{Kind: ResultExactMatch, MitigationID: m.MitigationID, Action: ActionExtendTTL}
		}
	}

	for _, m := range victimMitigations {
		if m.Vector != event.Vector {
			continue
		}
		mitigationPorts := portSet(m.MatchCriteria.DstPorts)
		relationship := comparePorts(eventPorts, mitigationPorts)
		return CorrelationResult{
			Kind:             ResultRelatedMatch,
			MitigationID:     m.MitigationID,
			PortRelationship: relationship,
			Action:           decideAction(relationship),
		}
	}

	return CorrelationResult{Kind: ResultNewScope}
}

func portSet(ports []uint16) map[uint16]struct{} {
	set := make(map[uint16]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[uint16]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for p := range a {
		if _, ok := b[p]; !ok {
			return false
		}
	}
	return true
}

func comparePorts(eventPorts, mitigationPorts map[uint16]struct{}) PortRelationship {
	if len(eventPorts) == 0 || len(mitigationPorts) == 0 {
		return PortsDisjoint
	}

	eventSuperset := isSubset(mitigationPorts, eventPorts)
	eventSubset := isSubset(eventPorts, mitigationPorts)
	hasOverlap := intersects(eventPorts, mitigationPorts)

	switch {
	case eventSuperset && eventSubset:
		return PortsSubset // equal sets, handled as exact match earlier in practice
	case eventSuperset:
		return PortsSuperset
	case eventSubset:
		return PortsSubset
	case hasOverlap:
		return PortsOverlap
	default:
		return PortsDisjoint
	}
}

func isSubset(sub, super map[uint16]struct{}) bool {
	for p := range sub {
		if _, ok := super[p]; !ok {
			return false
		}
	}
	return true
}

func intersects(a, b map[uint16]struct{}) bool {
	for p := range a {
		if _, ok := b[p]; ok {
			return true
		}
	}
	return false
}

// decideAction picks what to do given how an event's ports relate to an
// existing mitigation's. Event covers more ports -> expand; event covers
// fewer -> existing mitigation already suffices; partial overlap -> extend
// TTL conservatively rather than expanding scope; disjoint -> separate
// mitigation.
func decideAction(r PortRelationship) CorrelationAction {
	switch r {
	case PortsSuperset:
		return ActionReplace
	case PortsSubset:
		return ActionKeepExisting
	case PortsOverlap:
		return ActionExtendTTL
	default:
		return ActionCreateParallel
	}
}
