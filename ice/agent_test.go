package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSingleUDPHostPairSucceeds is scenario 1 from §8: two agents, each
// with a single UDP host candidate on loopback; the controlling agent's
// onEstablished fires for a pair that is valid and Succeeded.
func TestSingleUDPHostPairSucceeds(t *testing.T) {
	a := newTestAgent(t, true)
	b := newTestAgent(t, false)

	aAddr := hostAddr("127.0.0.1", 0)
	aSock, err := newUDPSocket(nil, &net.UDPAddr{IP: aAddr.IP, Port: 0})
	assert.NoError(t, err)
	aLocalAddr := transportAddressFromNetAddr(aSock.LocalAddr())

	bSock, err := newUDPSocket(nil, &net.UDPAddr{IP: aAddr.IP, Port: 0})
	assert.NoError(t, err)
	bLocalAddr := transportAddressFromNetAddr(bSock.LocalAddr())

	_, err = a.AddLocal(1, ProtocolUDP, computePriority(TypeHost, 1), aLocalAddr, aLocalAddr, TypeHost, TCPTypeNone, aSock, 0)
	assert.NoError(t, err)
	_, err = b.AddLocal(1, ProtocolUDP, computePriority(TypeHost, 1), bLocalAddr, bLocalAddr, TypeHost, TCPTypeNone, bSock, 0)
	assert.NoError(t, err)

	_, err = a.AddRemote(1, "bfdn", ProtocolUDP, computePriority(TypeHost, 1), bLocalAddr, TypeHost, TCPTypeNone)
	assert.NoError(t, err)
	_, err = b.AddRemote(1, "afdn", ProtocolUDP, computePriority(TypeHost, 1), aLocalAddr, TypeHost, TCPTypeNone)
	assert.NoError(t, err)

	a.localUfrag = "aufrg"
	b.localUfrag = "bufrg"
	a.SetRemoteUfrag("bufrg")
	a.SetRemotePwd("bsupersecretpassword2024")
	b.SetRemoteUfrag("aufrg")
	b.SetRemotePwd("asupersecretpassword2024")
	a.localPassword = "asupersecretpassword2024"
	b.localPassword = "bsupersecretpassword2024"

	established := make(chan *CandidatePair, 1)
	failed := make(chan struct{}, 1)

	assert.NoError(t, b.StartChecklist(20, false, nil, nil, nil))
	assert.NoError(t, a.StartChecklist(20, true,
		func(p *CandidatePair, msg []byte, arg interface{}) { established <- p },
		func(errCode int, stunCode uint16, p *CandidatePair, arg interface{}) { failed <- struct{}{} },
		nil))

	select {
	case p := <-established:
		assert.True(t, p.Valid)
		assert.Equal(t, Succeeded, p.State)
	case <-failed:
		t.Fatal("connectivity check failed")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pair to establish")
	}
}
