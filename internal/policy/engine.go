package policy

import (
	"fmt"

	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/domain"
	"github.com/lance0/prefixd-sub000/internal/perr"
)

// Engine turns an ingested event plus its (possibly absent) inventory
// context into a mitigation intent, by looking up the matching playbook's
// initial step and narrowing the match criteria's ports to what the
// service actually exposes.
type Engine struct {
	playbooks  *config.Playbooks
	pop        string
	defaultTTL uint32
}

func NewEngine(playbooks *config.Playbooks, pop string, defaultTTL uint32) *Engine {
	return &Engine{playbooks: playbooks, pop: pop, defaultTTL: defaultTTL}
}

func (e *Engine) Evaluate(event domain.AttackEvent, ctx *config.IPContext) (domain.MitigationIntent, error) {
	vector := event.Vector
	hasPorts := len(event.TopDstPorts) > 0

	playbook := e.playbooks.Find(vector, hasPorts)
	if playbook == nil {
		return domain.MitigationIntent{}, perr.New(perr.KindNoPlaybookFound, fmt.Sprintf("no playbook matches vector %s", vector))
	}

	step := playbook.InitialStep()
	if step == nil {
		return domain.MitigationIntent{}, perr.New(perr.KindNoPlaybookFound, fmt.Sprintf("playbook %s (no steps)", playbook.Name))
	}

	dstPorts := e.computePortIntersection(event.TopDstPorts, ctx, vector)
	var protoPtr *uint8
	if p, ok := vector.Protocol(); ok {
		protoPtr = &p
	}

	matchCriteria := domain.MatchCriteria{
		DstPrefix: event.VictimIP + "/32",
		Protocol:  protoPtr,
		DstPorts:  dstPorts,
	}

	var actionType domain.ActionType
	var actionParams domain.ActionParams
	switch step.Action {
	case config.PlaybookActionPolice:
		actionType = domain.ActionPolice
		actionParams = domain.ActionParams{RateBPS: step.RateBPS}
	case config.PlaybookActionDiscard:
		actionType = domain.ActionDiscard
		actionParams = domain.ActionParams{}
	}

	ttl := e.defaultTTL
	if step.TTLSeconds > 0 {
		ttl = step.TTLSeconds
	}

	serviceName := "unknown service"
	var customerID, serviceID *string
	if ctx != nil {
		customerID = &ctx.CustomerID
		serviceID = ctx.ServiceID
		if ctx.ServiceName != nil {
			serviceName = *ctx.ServiceName
		}
	}

	reason := fmt.Sprintf("%s to %s (playbook: %s)", vector, serviceName, playbook.Name)

	return domain.MitigationIntent{
		EventID:       event.EventID,
		CustomerID:    customerID,
		ServiceID:     serviceID,
		POP:           e.pop,
		MatchCriteria: matchCriteria,
		ActionType:    actionType,
		ActionParams:  actionParams,
		TTLSeconds:    ttl,
		Reason:        reason,
	}, nil
}

// computePortIntersection narrows an event's reported ports to the ports a
// service actually exposes, when inventory context has a port allowlist for
// the event's protocol family. Vectors outside UDP/TCP pass through
// unfiltered.
func (e *Engine) computePortIntersection(eventPorts []uint16, ctx *config.IPContext, vector domain.AttackVector) []uint16 {
	var allowed []uint16
	switch vector {
	case domain.VectorUDPFlood:
		if ctx != nil {
			allowed = ctx.AllowedPorts.UDP
		}
	case domain.VectorSYNFlood, domain.VectorACKFlood:
		if ctx != nil {
			allowed = ctx.AllowedPorts.TCP
		}
	default:
		return eventPorts
	}

	if len(allowed) == 0 {
		return eventPorts
	}
	if len(eventPorts) == 0 {
		return allowed
	}

	allowedSet := make(map[uint16]struct{}, len(allowed))
	for _, p := range allowed {
		allowedSet[p] = struct{}{}
	}

	var out []uint16
	for _, p := range eventPorts {
		if _, ok := allowedSet[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
