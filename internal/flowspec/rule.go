package flowspec

import "github.com/lance0/prefixd-sub000/internal/domain"

// AFI/SAFI constants for the two address families FlowSpec rules may target.
const (
	AFIIPv4     = 1
	AFIIPv6     = 2
	SAFIFlowSpec = 133
)

// Action is the single (police|discard) effect a rule carries.
type Action struct {
	Type   domain.ActionType
	RateBPS *uint64 // only meaningful for ActionPolice
}

func Police(rateBPS uint64) Action {
	return Action{Type: domain.ActionPolice, RateBPS: &rateBPS}
}

func Discard() Action {
	return Action{Type: domain.ActionDiscard}
}

// Rule is a single match/action pair, the unit announced to and withdrawn
// from the BGP speaker.
type Rule struct {
	Nlri   Nlri
	Action Action
}

func NewRule(nlri Nlri, action Action) Rule {
	return Rule{Nlri: nlri, Action: action}
}

// ScopeHash delegates to the NLRI; the action never participates in
// coalescing identity.
func (r Rule) ScopeHash() string { return r.Nlri.ScopeHash() }

// FromMatchCriteria builds the NLRI half of a rule from a domain match.
func FromMatchCriteria(m domain.MatchCriteria) Nlri {
	return Nlri{DstPrefix: m.DstPrefix, Protocol: m.Protocol, DstPorts: m.DstPorts}
}

// FromAction builds the Action half of a rule from a domain action/params.
func FromAction(actionType domain.ActionType, params domain.ActionParams) Action {
	if actionType == domain.ActionDiscard {
		return Discard()
	}
	if params.RateBPS != nil {
		return Police(*params.RateBPS)
	}
	return Action{Type: domain.ActionPolice}
}

// RuleFromMitigation reconstructs the wire rule for a mitigation, used by
// the orchestrator, reconciler, and escalator to build announce/withdraw
// calls.
func RuleFromMitigation(m domain.Mitigation) Rule {
	return NewRule(FromMatchCriteria(m.MatchCriteria), FromAction(m.ActionType, m.ActionParams))
}
