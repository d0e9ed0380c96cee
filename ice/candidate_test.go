package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFoundationDeterministic(t *testing.T) {
	base := MakeTransportAddress(net.ParseIP("192.168.1.1"), 10000)
	f1 := computeFoundation(base, TypeHost)
	f2 := computeFoundation(base, TypeHost)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 8)
}

func TestComputeFoundationDiffersByType(t *testing.T) {
	base := MakeTransportAddress(net.ParseIP("192.168.1.1"), 10000)
	assert.NotEqual(t, computeFoundation(base, TypeHost), computeFoundation(base, TypeServerReflexive))
}

func TestComputePriorityOrdersByType(t *testing.T) {
	host := computePriority(TypeHost, 1)
	prflx := computePriority(TypePeerReflexive, 1)
	srflx := computePriority(TypeServerReflexive, 1)
	relay := computePriority(TypeRelayed, 1)

	assert.Greater(t, host, prflx)
	assert.Greater(t, prflx, srflx)
	assert.Greater(t, srflx, relay)
}

func TestComputePriorityComponentTieBreak(t *testing.T) {
	p1 := computePriority(TypeHost, 1)
	p2 := computePriority(TypeHost, 2)
	assert.Greater(t, p1, p2)
}

func TestReverseOfIsIdempotentInvolution(t *testing.T) {
	for _, tt := range []TCPType{TCPTypeActive, TCPTypePassive, TCPTypeSimultaneousOpen, TCPTypeNone} {
		assert.Equal(t, tt, reverseOf(reverseOf(tt)))
	}
	assert.Equal(t, TCPTypePassive, reverseOf(TCPTypeActive))
	assert.Equal(t, TCPTypeActive, reverseOf(TCPTypePassive))
	assert.Equal(t, TCPTypeSimultaneousOpen, reverseOf(TCPTypeSimultaneousOpen))
}
