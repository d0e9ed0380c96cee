package stun

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransportSubmitAndDeliver(t *testing.T) {
	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	assert.NoError(t, err)
	defer clientConn.Close()

	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	assert.NoError(t, err)
	defer serverConn.Close()

	transport := NewTransport(nil)
	req := New(ClassRequest, MethodBinding)

	go func() {
		buf := make([]byte, 1500)
		for {
			n, _, err := clientConn.ReadFrom(buf)
			if err != nil {
				return
			}
			if decoded, err := Decode(buf[:n]); err == nil {
				transport.Deliver(decoded)
			}
		}
	}()

	resultCh := make(chan *Message, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := transport.Submit(context.Background(), serverConn.LocalAddr(), req, clientConn)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- resp
	}()

	buf := make([]byte, 1500)
	n, clientAddr, err := serverConn.ReadFrom(buf)
	assert.NoError(t, err)

	decoded, err := Decode(buf[:n])
	assert.NoError(t, err)
	assert.Equal(t, req.TransactionID, decoded.TransactionID)

	resp := NewResponse(ClassSuccessResponse, MethodBinding, decoded.TransactionID)
	_, err = serverConn.WriteTo(resp.Encode(), clientAddr)
	assert.NoError(t, err)

	select {
	case got := <-resultCh:
		assert.Equal(t, ClassSuccessResponse, got.Class)
	case err := <-errCh:
		t.Fatalf("transport.Submit returned error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transaction to resolve")
	}
}

// This exercises Deliver's routing logic directly, the way the ICE
// demultiplexer invokes it from processSTUN.
func TestTransportDeliverUnknownTransaction(t *testing.T) {
	transport := NewTransport(nil)
	msg := NewResponse(ClassSuccessResponse, MethodBinding, NewTransactionID())
	assert.False(t, transport.Deliver(msg))
}
