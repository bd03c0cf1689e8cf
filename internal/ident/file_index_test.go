package ident

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// =============================================================================
// Helper Functions
// =============================================================================

func newTestFileIndex(t *testing.T) (*FileIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.json")
	idx, err := NewFileIndex(path, zerolog.Nop())
	require.NoError(t, err)
	return idx, path
}

// =============================================================================
// Assign / Lookup Tests
// =============================================================================

func TestFileIndex_Assign_MintsOnce(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	ctx := context.Background()

	first, err := idx.Assign(ctx, "/archives/game.zip")
	require.NoError(t, err)
	require.Len(t, first, 16)

	second, err := idx.Assign(ctx, "/archives/game.zip")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := idx.Assign(ctx, "/archives/other.zip")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestFileIndex_Lookup(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	ctx := context.Background()

	_, err := idx.Lookup(ctx, "/archives/game.zip")
	require.ErrorIs(t, err, domain.ErrMappingNotFound)

	id, err := idx.Assign(ctx, "/archives/game.zip")
	require.NoError(t, err)

	got, err := idx.Lookup(ctx, "/archives/game.zip")
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestFileIndex_PersistsAcrossReopen(t *testing.T) {
	idx, path := newTestFileIndex(t)
	ctx := context.Background()

	id, err := idx.Assign(ctx, "/archives/game.zip")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := NewFileIndex(path, zerolog.Nop())
	require.NoError(t, err)

	got, err := reopened.Lookup(ctx, "/archives/game.zip")
	require.NoError(t, err)
	require.Equal(t, id, got)
}

// =============================================================================
// Migrate / Delete Tests
// =============================================================================

func TestFileIndex_Migrate(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	ctx := context.Background()

	id, err := idx.Assign(ctx, "/archives/old.zip")
	require.NoError(t, err)

	require.NoError(t, idx.Migrate(ctx, "/archives/old.zip", "/archives/new.zip"))

	got, err := idx.Lookup(ctx, "/archives/new.zip")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = idx.Lookup(ctx, "/archives/old.zip")
	require.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestFileIndex_Migrate_UnknownSource(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	err := idx.Migrate(context.Background(), "/archives/nope.zip", "/archives/new.zip")
	require.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestFileIndex_Delete(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	ctx := context.Background()

	_, err := idx.Assign(ctx, "/archives/game.zip")
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, "/archives/game.zip"))
	_, err = idx.Lookup(ctx, "/archives/game.zip")
	require.ErrorIs(t, err, domain.ErrMappingNotFound)

	// Deleting an absent entry is not an error.
	require.NoError(t, idx.Delete(ctx, "/archives/game.zip"))
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestFileIndex_ConcurrentAssign(t *testing.T) {
	idx, _ := newTestFileIndex(t)
	ctx := context.Background()

	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			id, err := idx.Assign(ctx, "/archives/game.zip")
			require.NoError(t, err)
			ids <- id
		}()
	}

	first := <-ids
	for i := 1; i < 8; i++ {
		require.Equal(t, first, <-ids)
	}
}
