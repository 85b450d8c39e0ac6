// Package manifest assembles deployment manifests for pages in a
// Franklin-style content-delivery system.
//
// A manifest lists every resource a page deployment touches: the page
// itself, its scripts, styles, assets, inline images, dependencies, and
// the transitive contents of its fragments. Each entry carries either a
// timestamp (from the origin's Last-Modified) or a content hash (media
// resources), never both.
package manifest

import (
	"context"
	"strings"
)

// Wire constants. Version and the provider descriptor are fixed by the
// delivery contract and emitted verbatim.
const (
	Version          = "3.0"
	ProviderName     = "franklin"
	ProviderEndpoint = "/"
)

// Entry is one resource line in a manifest.
type Entry struct {
	Path      string `json:"path"`
	Timestamp *int64 `json:"timestamp,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

// Provider identifies one content-delivery backend.
type Provider struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// ContentDelivery names the providers able to serve the manifest's entries.
type ContentDelivery struct {
	Providers       []Provider `json:"providers"`
	DefaultProvider string     `json:"defaultProvider"`
}

// Manifest is the complete deployment descriptor for one page.
// Timestamp is the max over all contributing entries and fragment
// aggregates, 0 when nothing contributed one.
type Manifest struct {
	Version         string          `json:"version"`
	Timestamp       int64           `json:"timestamp"`
	Entries         []Entry         `json:"entries"`
	ContentDelivery ContentDelivery `json:"contentDelivery"`
}

// Resources lists a page's known references by category, as recorded in
// the content graph.
type Resources struct {
	Scripts      []string `json:"scripts"`
	Styles       []string `json:"styles"`
	Assets       []string `json:"assets"`
	InlineImages []string `json:"inlineImages"`
	Dependencies []string `json:"dependencies"`
	Fragments    []string `json:"fragments"`
}

// Source looks up a page's resource metadata. A nil result with nil error
// means the page is unknown; the assembler treats it as empty lists.
type Source interface {
	Resources(ctx context.Context, pagePath string) (*Resources, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, pagePath string) (*Resources, error)

// Resources calls f.
func (f SourceFunc) Resources(ctx context.Context, pagePath string) (*Resources, error) {
	return f(ctx, pagePath)
}

// DirtyChecker reports whether a path is known locally modified. It is
// the fallback consulted when a resource probe fails: dirty resources
// stay in the manifest, clean misses are skipped.
type DirtyChecker interface {
	LocallyModified(path string) bool
}

// DirtyFunc adapts a function to DirtyChecker.
type DirtyFunc func(path string) bool

// LocallyModified calls f.
func (f DirtyFunc) LocallyModified(path string) bool { return f(path) }

// NormalizePath cleans asset and inline-image references as authored in
// page content: trims whitespace, drops one leading dot ("./img.png" →
// "/img.png"), and cuts at the first query separator. Scripts, styles,
// and dependencies are stored clean and do not pass through here.
func NormalizePath(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, ".") {
		s = s[1:]
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	return s
}
