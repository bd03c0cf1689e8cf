package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// Collection is the archive collection directory.
// It owns placement of completed uploads and duplicate-name rejection.
type Collection struct {
	dir    string
	logger zerolog.Logger
}

// NewCollection opens (creating if needed) the collection directory.
func NewCollection(dir string, logger zerolog.Logger) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection dir: %w", err)
	}
	return &Collection{
		dir:    dir,
		logger: logger.With().Str("component", "collection").Logger(),
	}, nil
}

// Dir returns the collection directory path.
func (c *Collection) Dir() string {
	return c.dir
}

// Path returns the full path of an archive inside the collection.
func (c *Collection) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Exists reports whether an archive with the given name is present.
func (c *Collection) Exists(name string) bool {
	_, err := os.Stat(c.Path(name))
	return err == nil
}

// Stat returns file info for a stored archive.
func (c *Collection) Stat(name string) (os.FileInfo, error) {
	info, err := os.Stat(c.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrArchiveNotFound
		}
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return info, nil
}

// Place moves a completed upload from tempPath into the collection under
// name. The name must not already be taken; duplicates are rejected without
// touching either file. Rename is attempted first; when temp storage and the
// collection live on different devices the move falls back to copy-then-
// delete, so the archive only appears under its final name once fully
// written.
//
// The existence check and the rename are not atomic together; two
// concurrent placements of the same name can race. Callers serialize per
// target name via the lock package.
func (c *Collection) Place(tempPath, name string) error {
	dest := c.Path(name)
	if c.Exists(name) {
		return domain.ErrArchiveExists
	}

	if err := os.Rename(tempPath, dest); err != nil {
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) {
			return fmt.Errorf("place archive: %w", err)
		}
		// Cross-device move: stream a copy, then drop the temp file.
		if err := copyFile(tempPath, dest); err != nil {
			_ = os.Remove(dest)
			return fmt.Errorf("place archive across devices: %w", err)
		}
		if err := os.Remove(tempPath); err != nil {
			c.logger.Warn().Err(err).Str("path", tempPath).Msg("failed to remove temp file after copy")
		}
	}

	c.logger.Info().Str("name", name).Msg("archive placed in collection")
	return nil
}

// Remove deletes a stored archive.
func (c *Collection) Remove(name string) error {
	if err := os.Remove(c.Path(name)); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrArchiveNotFound
		}
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

// copyFile streams src into dst without loading it into memory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
