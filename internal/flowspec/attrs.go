package flowspec

import (
	"math"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// Path attribute type codes this codec cares about.
const (
	AttrOrigin              = 1
	AttrExtendedCommunities = 16
)

const originIGP = 0

// trafficRateSubtype is the BGP extended-community subtype carrying the
// FlowSpec rate-limit/discard action (RFC 5575 §7).
const trafficRateSubtype = 0x06

// ExtendedCommunity is the 8-byte traffic-rate community that carries a
// FlowSpec action: type/subtype bytes and a 4-byte big-endian float32 rate.
type ExtendedCommunity struct {
	Type    uint8
	Subtype uint8
	RateBPS float32 // bytes/sec; 0 means discard
}

// EncodeAction renders the Action as path attributes: Origin=IGP always
// first, followed by an extended-communities attribute carrying the
// traffic-rate community. rate_bps/8 converts bits/sec to bytes/sec.
func EncodeAction(a Action) (originCode int, communities []ExtendedCommunity) {
	var rate float32
	if a.Type == domain.ActionPolice && a.RateBPS != nil {
		rate = float32(*a.RateBPS) / 8
	}
	return originIGP, []ExtendedCommunity{{Type: 0x80, Subtype: trafficRateSubtype, RateBPS: rate}}
}

// DecodeAction is the inverse: the first traffic-rate community found
// determines the action. rate == 0 means discard; otherwise police with
// rate_bps = round(rate_bytes_per_second) * 8. Absence of any traffic-rate
// community defaults to discard, matching the speaker-side convention that
// an un-rated FlowSpec path is a blackhole.
func DecodeAction(communities []ExtendedCommunity) Action {
	for _, c := range communities {
		if c.Subtype != trafficRateSubtype {
			continue
		}
		if c.RateBPS == 0 {
			return Discard()
		}
		rateBPS := uint64(math.Round(float64(c.RateBPS))) * 8
		return Police(rateBPS)
	}
	return Discard()
}
