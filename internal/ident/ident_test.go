package ident

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// PathHash Tests
// =============================================================================

func TestPathHash_Deterministic(t *testing.T) {
	a := PathHash("/archives/game.zip")
	b := PathHash("/archives/game.zip")
	require.Equal(t, a, b)
	require.Len(t, a, HashIDLength)
}

func TestPathHash_DistinctPaths(t *testing.T) {
	require.NotEqual(t, PathHash("/archives/a.zip"), PathHash("/archives/b.zip"))
}

func TestPathHash_LowercaseHex(t *testing.T) {
	h := PathHash("/archives/game.zip")
	for _, r := range h {
		require.Contains(t, "0123456789abcdef", string(r))
	}
}
