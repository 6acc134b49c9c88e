package zarr

import (
	"fmt"
	"strings"
)

// SplitPath splits a slash-separated path into its segments.
// Empty segments are discarded, so "/a//b/" -> ["a", "b"].
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// CleanPath normalizes a path to its segments joined by "/", without a
// leading or trailing slash. The root is "".
func CleanPath(path string) string {
	return strings.Join(SplitPath(path), "/")
}

// JoinPath joins parent and name into a clean path.
func JoinPath(parent, name string) string {
	return CleanPath(parent + "/" + name)
}

// splitParent returns the parent path and the last segment.
func splitParent(path string) (string, string, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return "", "", fmt.Errorf("%w: %q has no name", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "." || s == ".." || strings.HasPrefix(s, ".z") {
			return "", "", fmt.Errorf("%w: reserved segment %q in %q", ErrInvalidPath, s, path)
		}
	}
	last := len(segments) - 1
	return strings.Join(segments[:last], "/"), segments[last], nil
}

// storeKey returns the blob key for name inside the node at path.
func storeKey(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}
