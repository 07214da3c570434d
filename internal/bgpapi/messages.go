// Package bgpapi defines the wire messages and client surface for the BGP
// speaker's FlowSpec RPC service. The speaker is a separate process (a BGP
// daemon acting as a route reflector peer); this package is the contract
// between prefixd and that process, modeled directly off the speaker's own
// path/NLRI API rather than generated from a .proto file.
package bgpapi

// Nlri is the destination-prefix/protocol/port match predicate of a single
// FlowSpec path, in the flat component form internal/flowspec produces.
type Nlri struct {
	AFI        uint16  `json:"afi"`
	PrefixBits uint8   `json:"prefix_bits"`
	PrefixAddr []byte  `json:"prefix_addr"`
	Protocol   *uint16 `json:"protocol,omitempty"` // operator byte in high 8 bits, value in low 8
	DstPorts   []uint32 `json:"dst_ports,omitempty"` // operator byte in high 16 bits, value in low 16
}

// ExtendedCommunity mirrors flowspec.ExtendedCommunity on the wire.
type ExtendedCommunity struct {
	Type    uint8   `json:"type"`
	Subtype uint8   `json:"subtype"`
	RateBPS float32 `json:"rate_bps"`
}

// Path is a single announced/withdrawn FlowSpec route: NLRI plus the
// path attributes (origin is always IGP, so it's implicit) carrying the
// rate-limit or discard action.
type Path struct {
	SAFI        uint32              `json:"safi"`
	Nlri        Nlri                `json:"nlri"`
	Communities []ExtendedCommunity `json:"communities"`
}

// AddPathRequest announces a path. Re-announcing the same NLRI replaces the
// previous path attributes at the speaker (implicit withdraw+add).
type AddPathRequest struct {
	Path Path `json:"path"`
}

type AddPathResponse struct{}

// DeletePathRequest withdraws a previously announced path, matched by NLRI.
type DeletePathRequest struct {
	Path Path `json:"path"`
}

type DeletePathResponse struct{}

type ListPathRequest struct {
	AFI  uint16 `json:"afi"`
	SAFI uint32 `json:"safi"`
}

type ListPathResponse struct {
	Paths []Path `json:"paths"`
}

// PeerState mirrors a BGP FSM state.
type PeerState string

const (
	PeerIdle        PeerState = "idle"
	PeerConnect     PeerState = "connect"
	PeerActive      PeerState = "active"
	PeerOpenSent    PeerState = "opensent"
	PeerOpenConfirm PeerState = "openconfirm"
	PeerEstablished PeerState = "established"
)

func (s PeerState) Established() bool { return s == PeerEstablished }

type Peer struct {
	Name    string    `json:"name"`
	Address string    `json:"address"`
	PeerASN uint32    `json:"peer_asn"`
	State   PeerState `json:"state"`
}

type ListPeerRequest struct{}

type ListPeerResponse struct {
	Peers []Peer `json:"peers"`
}
