package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-app/archive-ingest/internal/domain"
	"github.com/vitrine-app/archive-ingest/internal/ident"
)

// =============================================================================
// Helper Functions
// =============================================================================

func newTestDescriber(t *testing.T) (*Describer, *Collection) {
	t.Helper()
	c := newTestCollection(t)
	index, err := ident.NewFileIndex(filepath.Join(t.TempDir(), "ids.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return NewDescriber(c, index, "/archives", "/thumbs"), c
}

// =============================================================================
// Describe Tests
// =============================================================================

func TestDescriber_Describe(t *testing.T) {
	d, c := newTestDescriber(t)
	require.NoError(t, c.Place(writeTemp(t, "abcde"), "game.zip"))

	desc, err := d.Describe(context.Background(), "game.zip")
	require.NoError(t, err)
	require.Equal(t, "game.zip", desc.Name)
	require.Equal(t, "game", desc.Title)
	require.Equal(t, int64(5), desc.Size)
	require.Equal(t, "/archives/game.zip", desc.URL)
	require.Len(t, desc.HashID, ident.HashIDLength)
	require.Equal(t, "/thumbs/"+desc.HashID+".png", desc.ThumbnailURL)
	require.NotEmpty(t, desc.ArchiveID)
}

func TestDescriber_Describe_StableIdentifiers(t *testing.T) {
	d, c := newTestDescriber(t)
	require.NoError(t, c.Place(writeTemp(t, "x"), "game.zip"))

	first, err := d.Describe(context.Background(), "game.zip")
	require.NoError(t, err)
	second, err := d.Describe(context.Background(), "game.zip")
	require.NoError(t, err)

	require.Equal(t, first.HashID, second.HashID)
	require.Equal(t, first.ArchiveID, second.ArchiveID)
}

func TestDescriber_Describe_NotFound(t *testing.T) {
	d, _ := newTestDescriber(t)
	_, err := d.Describe(context.Background(), "missing.zip")
	require.ErrorIs(t, err, domain.ErrArchiveNotFound)
}

// =============================================================================
// Rename / Forget Tests
// =============================================================================

func TestDescriber_Rename_KeepsOpaqueID(t *testing.T) {
	d, c := newTestDescriber(t)
	ctx := context.Background()
	require.NoError(t, c.Place(writeTemp(t, "x"), "old.zip"))

	before, err := d.Describe(ctx, "old.zip")
	require.NoError(t, err)

	require.NoError(t, c.Place(writeTemp(t, "x"), "new.zip"))
	require.NoError(t, c.Remove("old.zip"))
	require.NoError(t, d.Rename(ctx, "old.zip", "new.zip"))

	after, err := d.Describe(ctx, "new.zip")
	require.NoError(t, err)

	// The opaque id survives the rename; the path hash does not.
	require.Equal(t, before.ArchiveID, after.ArchiveID)
	require.NotEqual(t, before.HashID, after.HashID)
}

func TestDescriber_Rename_UnknownMapping(t *testing.T) {
	d, _ := newTestDescriber(t)
	err := d.Rename(context.Background(), "never-seen.zip", "new.zip")
	require.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestDescriber_Forget_MintsFreshIDNextTime(t *testing.T) {
	d, c := newTestDescriber(t)
	ctx := context.Background()
	require.NoError(t, c.Place(writeTemp(t, "x"), "game.zip"))

	before, err := d.Describe(ctx, "game.zip")
	require.NoError(t, err)

	require.NoError(t, d.Forget(ctx, "game.zip"))

	after, err := d.Describe(ctx, "game.zip")
	require.NoError(t, err)
	require.NotEqual(t, before.ArchiveID, after.ArchiveID)
}
