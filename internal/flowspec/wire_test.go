package flowspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u8(v uint8) *uint8 { return &v }

func TestScopeHashIgnoresPortOrderAndDuplicates(t *testing.T) {
	a := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(17), DstPorts: []uint16{53, 123, 53}}
	b := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(17), DstPorts: []uint16{123, 53}}
	assert.Equal(t, a.ScopeHash(), b.ScopeHash())
}

func TestScopeHashDiffersOnPrefixOrProtocol(t *testing.T) {
	base := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(17), DstPorts: []uint16{53}}
	diffPrefix := Nlri{DstPrefix: "203.0.113.11/32", Protocol: u8(17), DstPorts: []uint16{53}}
	diffProto := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(6), DstPorts: []uint16{53}}
	assert.NotEqual(t, base.ScopeHash(), diffPrefix.ScopeHash())
	assert.NotEqual(t, base.ScopeHash(), diffProto.ScopeHash())
}

func TestRoundTripIPv4ProtocolAndPorts(t *testing.T) {
	n := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(17), DstPorts: []uint16{53, 123}}
	enc, err := Encode(n)
	require.NoError(t, err)
	assert.Equal(t, uint16(AFIIPv4), enc.AFI)

	back, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, n.DstPrefix, back.DstPrefix)
	assert.Equal(t, *n.Protocol, *back.Protocol)
	assert.Equal(t, n.DstPorts, back.DstPorts)
	assert.Equal(t, n.ScopeHash(), back.ScopeHash())
}

func TestRoundTripIPv6NoProtocolNoPorts(t *testing.T) {
	n := Nlri{DstPrefix: "2001:db8::1/128"}
	enc, err := Encode(n)
	require.NoError(t, err)
	assert.Equal(t, uint16(AFIIPv6), enc.AFI)
	assert.Nil(t, enc.Protocol)
	assert.Empty(t, enc.DstPorts)

	back, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, n.DstPrefix, back.DstPrefix)
	assert.Nil(t, back.Protocol)
	assert.Equal(t, n.ScopeHash(), back.ScopeHash())
}

func TestDecodeRejectsAbsentPrefix(t *testing.T) {
	_, err := Decode(EncodedNlri{})
	require.Error(t, err)
}

func TestParsePrefixRejectsUnparseablePrefix(t *testing.T) {
	_, err := parsePrefixForTest("not-an-ip")
	require.Error(t, err)
}

func parsePrefixForTest(s string) (any, error) {
	_, _, _, err := parsePrefix(s)
	return nil, err
}

// TestEndOfListBitPlacement directly inspects the marshaled wire bytes,
// not the Go structures the encoder built them from, per the contract that
// the end-of-list bit must be asserted on the wire format itself.
func TestEndOfListBitPlacement(t *testing.T) {
	n := Nlri{DstPrefix: "203.0.113.10/32", Protocol: u8(17), DstPorts: []uint16{53, 80, 443}}
	enc, err := Encode(n)
	require.NoError(t, err)

	wire := MarshalComponents(enc)

	// Protocol component: type(1) op(1) value(1) -> op must carry EOL+equals.
	protoStart := 1 + 1 + 4 // dest-prefix type, len byte, 4 address bytes
	require.GreaterOrEqual(t, len(wire), protoStart+3)
	assert.Equal(t, uint8(compTypeProtocol), wire[protoStart])
	assert.Equal(t, uint8(opEOL|opEquals), wire[protoStart+1])

	// Port component items: only the last item carries EOL.
	portStart := protoStart + 3
	assert.Equal(t, uint8(compTypeDestPort), wire[portStart])
	item := func(i int) uint8 { return wire[portStart+1+i*3] }
	assert.Equal(t, uint8(opEquals), item(0))
	assert.Equal(t, uint8(opEquals), item(1))
	assert.Equal(t, uint8(opEquals|opEOL), item(2))
}

func TestEncodeDecodeActionDiscard(t *testing.T) {
	_, comms := EncodeAction(Discard())
	action := DecodeAction(comms)
	assert.Equal(t, Discard(), action)
}

func TestEncodeDecodeActionPolice(t *testing.T) {
	_, comms := EncodeAction(Police(5_000_000))
	action := DecodeAction(comms)
	require.NotNil(t, action.RateBPS)
	assert.Equal(t, uint64(5_000_000), *action.RateBPS)
}

func TestDecodeActionDefaultsToDiscardWhenNoCommunity(t *testing.T) {
	action := DecodeAction(nil)
	assert.Equal(t, Discard(), action)
}
