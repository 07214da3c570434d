// Package announcer is the BGP speaker contract (L2/L4.5): announce a
// FlowSpec rule, withdraw one, list what's currently announced, and report
// peer session state. Two drivers satisfy it: grpcdriver talks to a real
// speaker process, mock is an in-memory double for tests.
package announcer

import (
	"context"

	"github.com/lance0/prefixd-sub000/internal/bgpapi"
	"github.com/lance0/prefixd-sub000/internal/flowspec"
)

type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionConnect     SessionState = "connect"
	SessionActive      SessionState = "active"
	SessionOpenSent    SessionState = "opensent"
	SessionOpenConfirm SessionState = "openconfirm"
	SessionEstablished SessionState = "established"
)

func (s SessionState) Established() bool { return s == SessionEstablished }

type PeerStatus struct {
	Name    string
	Address string
	State   SessionState
}

// Announcer is the BGP speaker RPC contract the orchestrator, reconciler,
// and escalator all depend on.
type Announcer interface {
	Announce(ctx context.Context, rule flowspec.Rule) error
	Withdraw(ctx context.Context, rule flowspec.Rule) error
	ListActive(ctx context.Context) ([]flowspec.Rule, error)
	SessionStatus(ctx context.Context) ([]PeerStatus, error)
}

func fromAPIState(s bgpapi.PeerState) SessionState {
	switch s {
	case bgpapi.PeerIdle:
		return SessionIdle
	case bgpapi.PeerConnect:
		return SessionConnect
	case bgpapi.PeerActive:
		return SessionActive
	case bgpapi.PeerOpenSent:
		return SessionOpenSent
	case bgpapi.PeerOpenConfirm:
		return SessionOpenConfirm
	case bgpapi.PeerEstablished:
		return SessionEstablished
	default:
		return SessionIdle
	}
}
