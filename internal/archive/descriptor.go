package archive

import (
	"context"

	"github.com/vitrine-app/archive-ingest/internal/domain"
	"github.com/vitrine-app/archive-ingest/internal/ident"
)

// Describer assembles the JSON archive descriptor returned after an upload.
// It combines file metadata from the collection with both identifier
// schemes: the deterministic path hash and the persisted opaque id.
type Describer struct {
	collection *Collection
	index      ident.Index
	baseURL    string
	thumbBase  string
}

// NewDescriber creates a Describer. baseURL is the logical URL prefix
// archives are served under; thumbBase is the sidecar thumbnail prefix.
func NewDescriber(collection *Collection, index ident.Index, baseURL, thumbBase string) *Describer {
	return &Describer{
		collection: collection,
		index:      index,
		baseURL:    baseURL,
		thumbBase:  thumbBase,
	}
}

// LogicalPath returns the logical URL path for a stored archive name.
// Identifiers are derived from this path, not from the on-disk location.
func (d *Describer) LogicalPath(name string) string {
	return d.baseURL + "/" + name
}

// Describe builds the descriptor for a stored archive.
// A missing index entry mints a fresh opaque id, persisted before return.
func (d *Describer) Describe(ctx context.Context, name string) (*domain.Archive, error) {
	info, err := d.collection.Stat(name)
	if err != nil {
		return nil, err
	}

	logicalPath := d.LogicalPath(name)
	hashID := ident.PathHash(logicalPath)

	archiveID, err := d.index.Assign(ctx, logicalPath)
	if err != nil {
		return nil, err
	}

	return &domain.Archive{
		Name:         name,
		Title:        domain.TitleFromName(name),
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		URL:          logicalPath,
		ThumbnailURL: d.thumbBase + "/" + hashID + ".png",
		HashID:       hashID,
		ArchiveID:    archiveID,
	}, nil
}

// Rename migrates the identifier mapping when an archive is renamed, so
// externally shared links keep resolving.
func (d *Describer) Rename(ctx context.Context, oldName, newName string) error {
	return d.index.Migrate(ctx, d.LogicalPath(oldName), d.LogicalPath(newName))
}

// Forget drops the identifier mapping for a deleted archive.
func (d *Describer) Forget(ctx context.Context, name string) error {
	return d.index.Delete(ctx, d.LogicalPath(name))
}
