package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairPriorityFormula(t *testing.T) {
	// Controlling local, controlled remote: G=local, D=remote.
	g := uint32(200)
	d := uint32(100)
	got := pairPriority(g, d, true)
	want := (uint64(100) << 32) + (uint64(200) << 1) + 1
	assert.Equal(t, want, got)
}

func TestPairPriorityFlipsWithRole(t *testing.T) {
	local := uint32(200)
	remote := uint32(100)

	controlling := pairPriority(local, remote, true)
	controlled := pairPriority(local, remote, false)

	// Flipping role swaps which side is G, which changes the B bit and
	// can change the result unless local==remote.
	assert.NotEqual(t, controlling, controlled)
}

func TestPairStateCompleted(t *testing.T) {
	assert.False(t, Frozen.completed())
	assert.False(t, Waiting.completed())
	assert.False(t, InProgress.completed())
	assert.True(t, Succeeded.completed())
	assert.True(t, Failed.completed())
}
