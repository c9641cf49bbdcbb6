package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignNameFreeDesired(t *testing.T) {
	taken := map[string]struct{}{"bob": {}}
	assert.Equal(t, "alice", assignName("alice", taken))
}

func TestAssignNameEmptySet(t *testing.T) {
	assert.Equal(t, "alice", assignName("alice", map[string]struct{}{}))
}

func TestAssignNameProbesInOrder(t *testing.T) {
	taken := map[string]struct{}{
		"alice":   {},
		"alice_1": {},
		"alice_2": {},
	}
	assert.Equal(t, "alice_3", assignName("alice", taken))
}

func TestAssignNameSkipsHoles(t *testing.T) {
	taken := map[string]struct{}{
		"alice":   {},
		"alice_2": {},
	}
	assert.Equal(t, "alice_1", assignName("alice", taken))
}

// Joining the same desired name n times must yield exactly
// {x, x_1, …, x_(n-1)} with no duplicates.
func TestAssignNameUniquenessSequence(t *testing.T) {
	const n = 20
	taken := map[string]struct{}{}

	for i := 0; i < n; i++ {
		name := assignName("x", taken)
		_, dup := taken[name]
		assert.False(t, dup, "duplicate assignment %q", name)
		taken[name] = struct{}{}
	}

	assert.Contains(t, taken, "x")
	for i := 1; i < n; i++ {
		assert.Contains(t, taken, fmt.Sprintf("x_%d", i))
	}
}
