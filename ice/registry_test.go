package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindLocalAndFindRemote(t *testing.T) {
	a := newTestAgent(t, true)

	addr := hostAddr("127.0.0.1", 10000)
	lid, err := a.AddLocal(1, ProtocolUDP, 100, addr, addr, TypeHost, TCPTypeNone, nil, 0)
	assert.NoError(t, err)

	got, ok := a.FindLocal(1, ProtocolUDP, addr)
	assert.True(t, ok)
	assert.Equal(t, lid, got)

	_, ok = a.FindLocal(1, ProtocolUDP, hostAddr("127.0.0.1", 10001))
	assert.False(t, ok)

	raddr := hostAddr("127.0.0.1", 20000)
	rid, err := a.AddRemote(1, "fdn1", ProtocolUDP, 100, raddr, TypeHost, TCPTypeNone)
	assert.NoError(t, err)

	gotR, ok := a.FindRemote(1, ProtocolUDP, raddr)
	assert.True(t, ok)
	assert.Equal(t, rid, gotR)
}

func TestAddLocalRejectsAddressFamilyMismatch(t *testing.T) {
	a := newTestAgent(t, true)

	base := MakeTransportAddress(net.ParseIP("127.0.0.1"), 10000)
	srflxV6 := MakeTransportAddress(net.ParseIP("::1"), 20000)

	_, err := a.AddLocal(1, ProtocolUDP, 100, srflxV6, base, TypeServerReflexive, TCPTypeNone, nil, 0)
	assert.Error(t, err)

	var iceErr *Error
	assert.ErrorAs(t, err, &iceErr)
	assert.Equal(t, AddressFamilyUnsupported, iceErr.Kind)
}

func TestAddLocalRejectsMissingBaseForNonHost(t *testing.T) {
	a := newTestAgent(t, true)

	srflx := hostAddr("203.0.113.5", 20000)
	_, err := a.AddLocal(1, ProtocolUDP, 100, srflx, TransportAddress{}, TypeServerReflexive, TCPTypeNone, nil, 0)
	assert.Error(t, err)
}

func TestAddRemoteStoresPeerFoundationVerbatim(t *testing.T) {
	a := newTestAgent(t, true)
	raddr := hostAddr("127.0.0.1", 20000)
	rid, err := a.AddRemote(1, "peer-supplied", ProtocolUDP, 100, raddr, TypeHost, TCPTypeNone)
	assert.NoError(t, err)
	assert.Equal(t, "peer-supplied", a.remoteCandidates[rid].Foundation)
}
