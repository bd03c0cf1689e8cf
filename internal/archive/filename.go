// Package archive manages the archive collection directory: filename
// hygiene, placement of completed uploads, and descriptor assembly.
package archive

import (
	"strings"
)

// DefaultExtension is appended when an upload's name carries no recognized
// archive extension.
const DefaultExtension = ".zip"

// syntheticName is used when sanitization leaves nothing usable.
const syntheticName = "archive" + DefaultExtension

// recognizedExtensions are the archive extensions accepted as-is.
var recognizedExtensions = map[string]bool{
	".zip": true,
}

// SanitizeFilename maps any input string to a safe, non-empty filename
// ending in a recognized archive extension.
//
// Path components are stripped, the character set is restricted to
// [A-Za-z0-9._ -], leading dots are dropped so the result is never hidden or
// a traversal token, and an unrecognized extension is replaced. The function
// is total and idempotent: sanitizing an already-sanitized name returns it
// unchanged.
func SanitizeFilename(name string) string {
	// Strip path components, both separator styles.
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name = b.String()

	// No hidden files, no "." / ".." leftovers.
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, " ")

	if stem := strings.TrimSuffix(name, ext(name)); stem == "" || strings.Trim(stem, "._- ") == "" {
		return syntheticName
	}

	if !recognizedExtensions[strings.ToLower(ext(name))] {
		name += DefaultExtension
	}
	return name
}

// ext returns the final extension of name including the dot, or "".
func ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
