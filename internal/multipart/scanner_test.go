package multipart

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// Scan Tests
// =============================================================================

func TestScan_FindsNeedle(t *testing.T) {
	require.Equal(t, 0, Scan([]byte("abcdef"), []byte("abc")))
	require.Equal(t, 3, Scan([]byte("abcdef"), []byte("def")))
	require.Equal(t, 2, Scan([]byte("ababc"), []byte("abc")))
}

func TestScan_NotFound(t *testing.T) {
	require.Equal(t, -1, Scan([]byte("abcdef"), []byte("xyz")))
	require.Equal(t, -1, Scan([]byte("ab"), []byte("abc")))
	require.Equal(t, -1, Scan(nil, []byte("a")))
}

func TestScan_RepeatedFirstByte(t *testing.T) {
	// Runs of the needle's first byte must not confuse the skip.
	require.Equal(t, 3, Scan([]byte("aaaab"), []byte("ab")))
	require.Equal(t, 4, Scan([]byte("----x--y"), []byte("x-")))
}

func TestScan_EmptyNeedle(t *testing.T) {
	require.Equal(t, 0, Scan([]byte("abc"), nil))
	require.Equal(t, 0, Scan(nil, nil))
}

func TestScan_NeedleAtEnd(t *testing.T) {
	require.Equal(t, 4, Scan([]byte("xxxxabc"), []byte("abc")))
}

// =============================================================================
// HasPrefix Tests
// =============================================================================

func TestHasPrefix(t *testing.T) {
	require.True(t, HasPrefix([]byte("abcdef"), []byte("abc")))
	require.True(t, HasPrefix([]byte("abc"), []byte("abc")))
	require.True(t, HasPrefix([]byte("abc"), nil))
	require.False(t, HasPrefix([]byte("ab"), []byte("abc")))
	require.False(t, HasPrefix([]byte("xbc"), []byte("abc")))
}
