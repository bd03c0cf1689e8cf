// Package multipart implements the incremental multipart/form-data parser
// used by the ingestion path. The parser consumes an inbound byte stream in
// arbitrary increments, extracts exactly one file-bearing field, and streams
// its payload to a sink while holding only a bounded window in memory.
//
// Parsing is done directly on the byte stream; no multipart library is used.
package multipart

// Scan returns the offset of the first occurrence of needle in haystack,
// or -1 if needle is not present. An empty needle matches at offset 0.
//
// This is the boundary scanner the parser uses to locate boundary tokens and
// header terminators inside its accumulating buffer.
func Scan(haystack, needle []byte) int {
	if len(needle) == 0 {
		return 0
	}
	if len(needle) > len(haystack) {
		return -1
	}

	first := needle[0]
	limit := len(haystack) - len(needle)
	for i := 0; i <= limit; i++ {
		if haystack[i] != first {
			continue
		}
		if matchAt(haystack, needle, i) {
			return i
		}
	}
	return -1
}

// matchAt reports whether needle occurs in haystack at offset i.
// The caller guarantees i+len(needle) <= len(haystack).
func matchAt(haystack, needle []byte, i int) bool {
	for j := 0; j < len(needle); j++ {
		if haystack[i+j] != needle[j] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether b begins with prefix.
func HasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && matchAt(b, prefix, 0)
}
