// Package pagepath provides slash-path utilities for content-delivery page
// trees: parent/leaf decomposition, ancestor chains, and media path
// classification.
//
// Paths are site-relative and slash-separated ("/site/page"). Media
// resources follow the "media_<hash>.<ext>" naming convention.
package pagepath

import "strings"

const (
	// MediaMarker prefixes hashed media file names ("media_1a2b3c.png").
	MediaMarker = "media_"

	// VideoMarker identifies video resources by URL substring.
	VideoMarker = ".mp4"

	// RootMarker terminates ancestor chains in author-style content trees.
	RootMarker = "/content"
)

// Crumb is one ancestor in a page's chain, leaf name plus full path.
type Crumb struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Parent returns everything before the last slash.
// Parent("/a/b/c") = "/a/b", Parent("/a") = "", Parent("a") = "".
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Leaf returns everything after the last slash.
// Leaf("/a/b/c") = "c". A path without a slash is its own leaf.
func Leaf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// AncestorChain collects the ancestors of path, walking upward from
// Parent(path) until RootMarker or the empty string (neither is
// included), then reverses the walk so the chain reads root-to-leaf.
func AncestorChain(path string) []Crumb {
	var chain []Crumb
	for p := Parent(path); p != "" && p != RootMarker; p = Parent(p) {
		chain = append(chain, Crumb{Title: Leaf(p), Path: p})
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsMedia reports whether path references a hashed media resource.
func IsMedia(path string) bool {
	return strings.Contains(path, MediaMarker)
}

// MediaHash extracts the content hash from a media path: the substring
// between MediaMarker and the first dot after it. When no dot follows,
// the rest of the path is the hash. Returns "" for non-media paths.
func MediaHash(path string) string {
	i := strings.Index(path, MediaMarker)
	if i < 0 {
		return ""
	}
	rest := path[i+len(MediaMarker):]
	if j := strings.Index(rest, "."); j >= 0 {
		return rest[:j]
	}
	return rest
}

// MediaSuffix returns the trailing "/media_..." segment of path, from the
// last "/media_" occurrence to the end. Returns "" when path has no such
// segment.
func MediaSuffix(path string) string {
	i := strings.LastIndex(path, "/"+MediaMarker)
	if i < 0 {
		return ""
	}
	return path[i:]
}

// IsVideoURL reports whether the trimmed url references a video resource.
func IsVideoURL(url string) bool {
	return strings.Contains(strings.TrimSpace(url), VideoMarker)
}
