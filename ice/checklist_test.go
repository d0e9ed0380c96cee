package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestAgent(t *testing.T, controlling bool) *Agent {
	a, err := NewAgent(AgentConfig{
		Controlling:   controlling,
		LocalUfrag:    "ufrg",
		LocalPassword: "supersecretpassword2024",
	})
	assert.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func hostAddr(ip string, port int) TransportAddress {
	return MakeTransportAddress(net.ParseIP(ip), port)
}

func TestAddLocalThenAddRemotePairs(t *testing.T) {
	a := newTestAgent(t, true)

	addr := hostAddr("127.0.0.1", 10000)
	lid, err := a.AddLocal(1, ProtocolUDP, computePriority(TypeHost, 1), addr, addr, TypeHost, TCPTypeNone, nil, 0)
	assert.NoError(t, err)

	raddr := hostAddr("127.0.0.1", 10001)
	_, err = a.AddRemote(1, "abcd1234", ProtocolUDP, computePriority(TypeHost, 1), raddr, TypeHost, TCPTypeNone)
	assert.NoError(t, err)

	assert.Len(t, a.allPairs, 1)
	assert.Equal(t, lid, a.allPairs[0].Local)
	assert.Equal(t, Frozen, a.allPairs[0].State)
}

func TestAddLocalUDPDedupByPriority(t *testing.T) {
	a := newTestAgent(t, true)

	addr := hostAddr("127.0.0.1", 10000)
	id1, err := a.AddLocal(1, ProtocolUDP, 100, addr, addr, TypeHost, TCPTypeNone, nil, 0)
	assert.NoError(t, err)

	id2, err := a.AddLocal(1, ProtocolUDP, 200, addr, addr, TypeHost, TCPTypeNone, nil, 0)
	assert.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, a.localCandidates, 1)
	assert.Equal(t, uint32(200), a.localCandidates[id1].Priority)

	id3, err := a.AddLocal(1, ProtocolUDP, 50, addr, addr, TypeHost, TCPTypeNone, nil, 0)
	assert.NoError(t, err)
	assert.Equal(t, id1, id3)
	assert.Equal(t, uint32(200), a.localCandidates[id1].Priority)
}

func TestAddLocalValidation(t *testing.T) {
	a := newTestAgent(t, true)

	_, err := a.AddLocal(0, ProtocolUDP, 100, hostAddr("127.0.0.1", 1), TransportAddress{}, TypeHost, TCPTypeNone, nil, 0)
	assert.Error(t, err)

	var iceErr *Error
	assert.ErrorAs(t, err, &iceErr)
	assert.Equal(t, InvalidArgument, iceErr.Kind)
}

func TestNewAgentRejectsShortCredentials(t *testing.T) {
	_, err := NewAgent(AgentConfig{LocalUfrag: "abc", LocalPassword: "supersecretpassword2024"})
	assert.Error(t, err)

	_, err = NewAgent(AgentConfig{LocalUfrag: "abcd", LocalPassword: "tooshort"})
	assert.Error(t, err)

	a, err := NewAgent(AgentConfig{LocalUfrag: "abcd", LocalPassword: "supersecretpassword2024"})
	assert.NoError(t, err)
	a.Close()
}

func TestSetWaitingForAllFoundationsUnfreezesOnePerFoundation(t *testing.T) {
	a := newTestAgent(t, true)

	local := hostAddr("127.0.0.1", 10000)
	_, _ = a.AddLocal(1, ProtocolUDP, computePriority(TypeHost, 1), local, local, TypeHost, TCPTypeNone, nil, 0)

	remote1 := hostAddr("127.0.0.1", 20001)
	remote2 := hostAddr("127.0.0.1", 20002)
	_, _ = a.AddRemote(1, "sameFoundation", ProtocolUDP, computePriority(TypeHost, 1), remote1, TypeHost, TCPTypeNone)
	_, _ = a.AddRemote(1, "sameFoundation", ProtocolUDP, computePriority(TypeHost, 1), remote2, TypeHost, TCPTypeNone)

	a.SetRemotePwd("remotesupersecretpassword2024")
	err := a.StartChecklist(20, true, nil, nil, nil)
	assert.NoError(t, err)

	waiting := 0
	for _, p := range a.checklist.pairs {
		if p.State == Waiting {
			waiting++
		}
	}
	assert.LessOrEqual(t, waiting, 1)
}

func TestStartChecklistRequiresRemotePassword(t *testing.T) {
	a := newTestAgent(t, true)
	err := a.StartChecklist(20, true, nil, nil, nil)
	assert.Error(t, err)

	var iceErr *Error
	assert.ErrorAs(t, err, &iceErr)
	assert.Equal(t, PreconditionFailed, iceErr.Kind)
}

func TestStartChecklistAlreadyStartedIsSuccessfulNoOp(t *testing.T) {
	a := newTestAgent(t, true)
	a.SetRemotePwd("remotesupersecretpassword2024")

	assert.NoError(t, a.StartChecklist(20, true, nil, nil, nil))
	first := a.checklist
	assert.NoError(t, a.StartChecklist(20, true, nil, nil, nil))
	assert.Same(t, first, a.checklist)
}

func TestChecklistKeepsOnePairPerLocalRemoteWithNoRedundancyPruning(t *testing.T) {
	a := newTestAgent(t, true)

	base := hostAddr("127.0.0.1", 10000)
	_, _ = a.AddLocal(1, ProtocolUDP, 100, base, base, TypeHost, TCPTypeNone, nil, 0)
	srflx := hostAddr("203.0.113.1", 10000)
	_, _ = a.AddLocal(1, ProtocolUDP, 200, srflx, base, TypeServerReflexive, TCPTypeNone, nil, 0)

	remote := hostAddr("198.51.100.1", 20000)
	_, _ = a.AddRemote(1, "fdn", ProtocolUDP, 500, remote, TypeHost, TCPTypeNone)

	a.SetRemotePwd("remotesupersecretpassword2024")
	assert.NoError(t, a.StartChecklist(20, true, nil, nil, nil))

	// §3 requires exactly one pair per (local, remote) with matching
	// componentId and compatible transport, with no exception for two
	// local candidates sharing a base address: both pairs survive.
	count := 0
	for _, p := range a.checklist.pairs {
		if p.Remote == remoteCandidateID(0) {
			count++
		}
	}
	assert.Equal(t, 2, count)
}
