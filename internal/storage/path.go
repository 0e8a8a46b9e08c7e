package storage

import (
	"strings"

	"github.com/gupta2140/sensenet/internal/models"
)

// PathsOverlap reports whether two repository paths claim overlapping
// subtrees: equal, ancestor, or descendant. Comparison is case-insensitive.
func PathsOverlap(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return true
	}
	return strings.HasPrefix(la, lb+models.PathSeparator) ||
		strings.HasPrefix(lb, la+models.PathSeparator)
}

// IsDescendantOf reports whether path lies strictly below ancestor,
// case-insensitively.
func IsDescendantOf(path, ancestor string) bool {
	return strings.HasPrefix(strings.ToLower(path), strings.ToLower(ancestor)+models.PathSeparator)
}

// ReplacePathPrefix rewrites the leading oldPrefix of path with newPrefix.
// The prefix match is case-insensitive; the tail keeps its original casing.
// Returns path unchanged if the prefix does not match.
func ReplacePathPrefix(path, oldPrefix, newPrefix string) string {
	if strings.EqualFold(path, oldPrefix) {
		return newPrefix
	}
	if !IsDescendantOf(path, oldPrefix) {
		return path
	}
	return newPrefix + path[len(oldPrefix):]
}

// ParentPath returns the parent of a repository path, or "" for the root.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, models.PathSeparator)
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
