package flowspec

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NLRI component types used by this codec (RFC 5575 §4).
const (
	compTypeDestPrefix = 1
	compTypeProtocol   = 3
	compTypeDestPort   = 5
)

// Numeric-operator bits (RFC 5575 §4.2.1).
const (
	opEOL    = 0x80 // end-of-list: this is the last item in the component
	opEquals = 0x01
)

// numericOp is a single (operator-byte, value) item within a Type 3/5
// component's item list.
type numericOp struct {
	Op    uint8
	Value uint16 // protocol items only use the low byte
}

// EncodedNlri is the flat component list produced by Encode, ready to embed
// in an MP_REACH_NLRI for the speaker RPC. AFI is derived from DstPrefix.
type EncodedNlri struct {
	AFI        uint16
	PrefixBits uint8
	PrefixAddr []byte // 4 or 16 bytes, network order
	Protocol   *numericOp
	DstPorts   []numericOp
}

// Encode converts a typed Nlri into its component-list wire representation.
// Ports are emitted in input order; the last numeric-operator item in the
// protocol and port components carries the end-of-list bit.
func Encode(n Nlri) (EncodedNlri, error) {
	ip, bits, afi, err := parsePrefix(n.DstPrefix)
	if err != nil {
		return EncodedNlri{}, err
	}
	enc := EncodedNlri{AFI: afi, PrefixBits: bits, PrefixAddr: ip}

	if n.Protocol != nil {
		enc.Protocol = &numericOp{Op: opEOL | opEquals, Value: uint16(*n.Protocol)}
	}

	for i, port := range n.DstPorts {
		op := uint8(opEquals)
		if i == len(n.DstPorts)-1 {
			op |= opEOL
		}
		enc.DstPorts = append(enc.DstPorts, numericOp{Op: op, Value: port})
	}

	return enc, nil
}

// Decode is the inverse of Encode: it walks the component list and
// reconstructs dst_prefix/protocol/dst_ports. Ports are returned in the
// order the items were encountered (input order is preserved on the wire).
func Decode(enc EncodedNlri) (Nlri, error) {
	if len(enc.PrefixAddr) == 0 {
		return Nlri{}, fmt.Errorf("flowspec: destination prefix absent")
	}
	prefix, err := formatPrefix(enc.AFI, enc.PrefixAddr, enc.PrefixBits)
	if err != nil {
		return Nlri{}, err
	}

	n := Nlri{DstPrefix: prefix}
	if enc.Protocol != nil {
		p := uint8(enc.Protocol.Value)
		n.Protocol = &p
	}
	for _, item := range enc.DstPorts {
		n.DstPorts = append(n.DstPorts, item.Value)
	}
	return n, nil
}

func parsePrefix(s string) (addr []byte, bits uint8, afi uint16, err error) {
	parts := strings.SplitN(s, "/", 2)
	ip := net.ParseIP(parts[0])
	if ip == nil {
		return nil, 0, 0, fmt.Errorf("flowspec: invalid prefix %q", s)
	}
	if v4 := ip.To4(); v4 != nil {
		defaultBits := 32
		if len(parts) == 2 {
			defaultBits, err = strconv.Atoi(parts[1])
			if err != nil {
				return nil, 0, 0, fmt.Errorf("flowspec: invalid prefix length in %q: %w", s, err)
			}
		}
		return v4, uint8(defaultBits), AFIIPv4, nil
	}
	v6 := ip.To16()
	defaultBits := 128
	if len(parts) == 2 {
		defaultBits, err = strconv.Atoi(parts[1])
		if err != nil {
			return nil, 0, 0, fmt.Errorf("flowspec: invalid prefix length in %q: %w", s, err)
		}
	}
	return v6, uint8(defaultBits), AFIIPv6, nil
}

func formatPrefix(afi uint16, addr []byte, bits uint8) (string, error) {
	switch afi {
	case AFIIPv4:
		if len(addr) != 4 {
			return "", fmt.Errorf("flowspec: malformed ipv4 prefix address")
		}
		return fmt.Sprintf("%s/%d", net.IP(addr).String(), bits), nil
	case AFIIPv6:
		if len(addr) != 16 {
			return "", fmt.Errorf("flowspec: malformed ipv6 prefix address")
		}
		return fmt.Sprintf("%s/%d", net.IP(addr).String(), bits), nil
	default:
		return "", fmt.Errorf("flowspec: unknown AFI %d", afi)
	}
}

// MarshalComponents renders the component list exactly as it would appear
// on the wire, for tests that assert on the end-of-list bit placement
// rather than on the library used to build it.
func MarshalComponents(enc EncodedNlri) []byte {
	var buf []byte

	buf = append(buf, compTypeDestPrefix, enc.PrefixBits)
	buf = append(buf, enc.PrefixAddr...)

	if enc.Protocol != nil {
		buf = append(buf, compTypeProtocol, enc.Protocol.Op, uint8(enc.Protocol.Value))
	}

	if len(enc.DstPorts) > 0 {
		buf = append(buf, compTypeDestPort)
		for _, item := range enc.DstPorts {
			var v [2]byte
			binary.BigEndian.PutUint16(v[:], item.Value)
			buf = append(buf, item.Op, v[0], v[1])
		}
	}

	return buf
}
