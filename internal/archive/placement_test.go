package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// =============================================================================
// Helper Functions
// =============================================================================

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	c, err := NewCollection(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

// writeTemp creates a file outside the collection holding content.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.part")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Place Tests
// =============================================================================

func TestCollection_Place_Success(t *testing.T) {
	c := newTestCollection(t)
	temp := writeTemp(t, "archive bytes")

	require.NoError(t, c.Place(temp, "game.zip"))
	require.True(t, c.Exists("game.zip"))

	data, err := os.ReadFile(c.Path("game.zip"))
	require.NoError(t, err)
	require.Equal(t, "archive bytes", string(data))

	// The temp file is gone after the move.
	_, err = os.Stat(temp)
	require.True(t, os.IsNotExist(err))
}

func TestCollection_Place_DuplicateName(t *testing.T) {
	c := newTestCollection(t)

	require.NoError(t, c.Place(writeTemp(t, "first"), "game.zip"))

	second := writeTemp(t, "second")
	err := c.Place(second, "game.zip")
	require.ErrorIs(t, err, domain.ErrArchiveExists)

	// Neither file was touched by the rejected placement.
	data, err := os.ReadFile(c.Path("game.zip"))
	require.NoError(t, err)
	require.Equal(t, "first", string(data))

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestCollection_Place_MissingSource(t *testing.T) {
	c := newTestCollection(t)
	err := c.Place(filepath.Join(t.TempDir(), "nope.part"), "game.zip")
	require.Error(t, err)
	require.False(t, c.Exists("game.zip"))
}

// =============================================================================
// Stat / Remove Tests
// =============================================================================

func TestCollection_Stat(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.Place(writeTemp(t, "12345"), "game.zip"))

	info, err := c.Stat("game.zip")
	require.NoError(t, err)
	require.Equal(t, int64(5), info.Size())
}

func TestCollection_Stat_NotFound(t *testing.T) {
	c := newTestCollection(t)
	_, err := c.Stat("missing.zip")
	require.ErrorIs(t, err, domain.ErrArchiveNotFound)
}

func TestCollection_Remove(t *testing.T) {
	c := newTestCollection(t)
	require.NoError(t, c.Place(writeTemp(t, "x"), "game.zip"))

	require.NoError(t, c.Remove("game.zip"))
	require.False(t, c.Exists("game.zip"))

	require.ErrorIs(t, c.Remove("game.zip"), domain.ErrArchiveNotFound)
}
