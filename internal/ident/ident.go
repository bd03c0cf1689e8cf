// Package ident implements content addressing for stored archives.
//
// Two identifier schemes coexist for backward compatibility: a deterministic
// hash of the archive's logical URL path (recomputed on demand, used for
// sidecar naming) and a persisted opaque id that survives renames via an
// explicit migration step.
package ident

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashIDLength is the length of the deterministic path hash in hex chars.
const HashIDLength = 16

// PathHash derives the deterministic content address of a logical URL path.
// The digest is recomputed on demand and never stored.
func PathHash(logicalPath string) string {
	sum := sha256.Sum256([]byte(logicalPath))
	return hex.EncodeToString(sum[:])[:HashIDLength]
}

// Index is the durable mapping from logical path to opaque archive id.
// The index is the only record of that relationship: a missing entry means a
// fresh id is minted and persisted before it is ever returned to a caller.
type Index interface {
	// Lookup returns the id for a logical path, or domain.ErrMappingNotFound.
	Lookup(ctx context.Context, logicalPath string) (string, error)

	// Assign returns the id for a logical path, minting and persisting a
	// fresh one if no entry exists. Assignment happens at most once per
	// path; the mutation is serialized by the implementation.
	Assign(ctx context.Context, logicalPath string) (string, error)

	// Migrate moves an entry from oldPath to newPath so externally shared
	// links keep resolving after a rename. Returns
	// domain.ErrMappingNotFound when oldPath has no entry.
	Migrate(ctx context.Context, oldPath, newPath string) error

	// Delete removes the entry for a logical path. Deleting an absent
	// entry is not an error.
	Delete(ctx context.Context, logicalPath string) error

	// Close releases index resources.
	Close() error
}

// mintID generates a fresh opaque archive id: 16 hex chars of entropy.
func mintID() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("mint archive id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
