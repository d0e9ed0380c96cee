package ice

import (
	"fmt"
	"net"
)

// tcpConnection is the shared connection record described in §5: exactly
// one per (componentId, localAddress, peerAddress) triple, owned by the
// agent and referenced by any pair that uses it.
type tcpConnection struct {
	componentID int
	local       TransportAddress
	peer        TransportAddress
	conn        net.Conn
}

func tcpConnectionKey(componentID int, local, peer TransportAddress) string {
	return fmt.Sprintf("%d|%s|%s", componentID, local, peer)
}

// tcpWriter adapts a net.Conn to the WriteTo(b, addr) shape
// stun.Transport.Submit wants from its Writer collaborator. A TCP
// candidate pair's connection has exactly one peer, so addr is ignored.
type tcpWriter struct {
	conn net.Conn
}

func (w tcpWriter) WriteTo(b []byte, _ net.Addr) (int, error) {
	return w.conn.Write(b)
}
