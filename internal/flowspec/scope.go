// Package flowspec encodes and decodes BGP FlowSpec NLRI and action
// path-attributes, and computes the scope hash used to coalesce mitigations.
//
// Wire layout follows RFC 5575/8956 component typing (destination prefix,
// protocol, destination port) at the level of numeric-operator semantics;
// it is modeled as typed Go values rather than a raw byte buffer, since the
// values cross to the BGP speaker over a typed RPC (internal/bgpapi), not a
// raw socket this process owns.
package flowspec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Nlri is the match predicate of a FlowSpec rule.
type Nlri struct {
	DstPrefix string
	Protocol  *uint8
	DstPorts  []uint16
}

// ScopeHash is the stable 128-bit fingerprint of an Nlri, computed from
// dst_prefix bytes, the optional protocol byte, and the sorted,
// de-duplicated destination ports (each as 2 big-endian bytes). Port input
// order and duplicates never affect the result.
func (n Nlri) ScopeHash() string {
	h := sha256.New()
	h.Write([]byte(n.DstPrefix))
	if n.Protocol != nil {
		h.Write([]byte{*n.Protocol})
	}
	ports := dedupSorted(n.DstPorts)
	var buf [2]byte
	for _, p := range ports {
		binary.BigEndian.PutUint16(buf[:], p)
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func dedupSorted(ports []uint16) []uint16 {
	if len(ports) == 0 {
		return nil
	}
	sorted := make([]uint16, len(ports))
	copy(sorted, ports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
