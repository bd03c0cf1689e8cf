// Package domain contains the core business entities for the archive
// ingestion service.
package domain

import (
	"strings"
	"time"
)

// Archive describes a stored archive file in the collection directory.
// It is the JSON descriptor returned to admin clients after an upload.
type Archive struct {
	// Name is the filename inside the collection directory.
	Name string `json:"name"`

	// Title is the display title, derived from Name without its extension.
	Title string `json:"title"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// ModTime is the file's last-modified time.
	ModTime time.Time `json:"mtime"`

	// URL is the logical URL path under which the archive is served.
	URL string `json:"url"`

	// ThumbnailURL points at the sidecar thumbnail, named by the path hash.
	ThumbnailURL string `json:"thumbnailUrl"`

	// HashID is the deterministic content address of the logical path.
	// Recomputed on demand, never stored.
	HashID string `json:"hashId"`

	// ArchiveID is the persisted opaque identifier, stable across renames.
	ArchiveID string `json:"archiveId"`
}

// TitleFromName strips the archive extension from a filename.
func TitleFromName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
