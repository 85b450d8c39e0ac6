// CLAUDE:SUMMARY Re-exports graph and manifest types as the lading public API.
// Package lading builds content-delivery manifests for a Franklin-style
// site.
//
// It keeps a content graph of pages and their resource references in
// SQLite, refreshes the graph by scanning rendered pages on the origin,
// and assembles versioned manifests by probing each referenced resource
// for availability and freshness. Fragments embedded in a page contribute
// their own entries, with fragment media rebased under the page's parent
// path.
package lading

import (
	"github.com/hazyhaar/lading/internal/graph"
	"github.com/hazyhaar/lading/manifest"
	"github.com/hazyhaar/lading/pagepath"
)

// Re-export stored and wire types for public API.
type (
	Page     = graph.Page
	Build    = graph.Build
	Stats    = graph.Stats
	Manifest = manifest.Manifest
	Entry    = manifest.Entry
	Crumb    = pagepath.Crumb
)
