package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/iceagent/ice/stun"
)

// TestTCPActiveConnCheckDialsAndSendsRequest exercises the TCP dial-out
// path end to end: an Active local candidate has no connection until its
// pair's first check, at which point ConnCheckSend must dial the remote
// address itself and write a real Binding Request down the new
// connection, rather than panicking on a nil socket.
func TestTCPActiveConnCheckDialsAndSendsRequest(t *testing.T) {
	a := newTestAgent(t, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	remoteAddr := ln.Addr().(*net.TCPAddr)

	localAddr := hostAddr("127.0.0.1", 0)
	_, err = a.AddLocal(1, ProtocolTCP, computePriority(TypeHost, 1), localAddr, localAddr, TypeHost, TCPTypeActive, nil, 0)
	assert.NoError(t, err)

	raddr := MakeTransportAddress(remoteAddr.IP, remoteAddr.Port)
	_, err = a.AddRemote(1, "fdn", ProtocolTCP, computePriority(TypeHost, 1), raddr, TypeHost, TCPTypePassive)
	assert.NoError(t, err)

	a.SetRemoteUfrag("peerufrg")
	a.SetRemotePwd("peersupersecretpassword2024")

	if !assert.Len(t, a.allPairs, 1) {
		return
	}
	p := a.allPairs[0]

	assert.NoError(t, a.ConnCheckSend(p, false))
	assert.NotNil(t, p.tcpConn)

	select {
	case conn := <-accepted:
		defer conn.Close()
		assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		buf := make([]byte, 1500)
		n, err := conn.Read(buf)
		assert.NoError(t, err)

		msg, err := stun.Decode(buf[:n])
		assert.NoError(t, err)
		assert.Equal(t, stun.ClassRequest, msg.Class)
		assert.Equal(t, stun.MethodBinding, msg.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the dialed TCP connection")
	}
}

// TestTCPPassiveConnCheckWaitsForInboundConnection is the mirror case: a
// Passive local candidate must not dial out, and a check attempted before
// any inbound connection exists reports errTCPNotReady rather than
// panicking on a nil writer.
func TestTCPPassiveConnCheckWaitsForInboundConnection(t *testing.T) {
	a := newTestAgent(t, true)

	localAddr := hostAddr("127.0.0.1", 20500)
	_, err := a.AddLocal(1, ProtocolTCP, computePriority(TypeHost, 1), localAddr, localAddr, TypeHost, TCPTypePassive, nil, 0)
	assert.NoError(t, err)

	raddr := hostAddr("203.0.113.20", 20501)
	_, err = a.AddRemote(1, "fdn", ProtocolTCP, computePriority(TypeHost, 1), raddr, TypeHost, TCPTypeActive)
	assert.NoError(t, err)

	a.SetRemoteUfrag("peerufrg")
	a.SetRemotePwd("peersupersecretpassword2024")

	if !assert.Len(t, a.allPairs, 1) {
		return
	}
	p := a.allPairs[0]

	err = a.ConnCheckSend(p, false)
	assert.Equal(t, errTCPNotReady, err)
	assert.Nil(t, p.tcpConn)
	assert.NotEqual(t, InProgress, p.State)
}
