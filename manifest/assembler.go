// CLAUDE:SUMMARY Manifest assembly — ordered resource union, fragment recursion with media rebasing, last-wins merge, aggregate timestamps.
package manifest

import (
	"context"
	"fmt"

	"github.com/hazyhaar/lading/pagepath"
)

// Assembler builds complete manifests: the page entry, one entry per
// unique resource, and the merged entries of every fragment the page
// embeds, with fragment media rebased under the page's parent path.
//
// Probing is sequential, so entry order is deterministic for a given
// content graph. Fragment recursion carries no cycle guard: a fragment
// chain that loops back on itself recurses until the stack gives out.
type Assembler struct {
	builder *Builder
}

// NewAssembler creates an Assembler on top of a Builder.
func NewAssembler(builder *Builder) *Assembler {
	return &Assembler{builder: builder}
}

// Build assembles the manifest for pagePath against host. src supplies
// per-page resource metadata; updated maps page paths to a "just
// regenerated" flag consulted for page-entry timestamps. The flags map
// is shared by the whole fragment tree.
func (a *Assembler) Build(ctx context.Context, host, pagePath string, src Source, updated map[string]bool) (*Manifest, error) {
	return a.createManifest(ctx, host, src, pagePath, updated, nil)
}

func (a *Assembler) createManifest(ctx context.Context, host string, src Source, pagePath string, updated map[string]bool, additionalAssets []string) (*Manifest, error) {
	res, err := src.Resources(ctx, pagePath)
	if err != nil {
		return nil, fmt.Errorf("resources %s: %w", pagePath, err)
	}
	if res == nil {
		res = &Resources{}
	}

	entries, lastModified := a.createEntries(ctx, host, pagePath, res, updated[pagePath], additionalAssets)

	merged := newEntryMap()
	for _, e := range entries {
		merged.set(e)
	}

	var fragmentsLastModified int64
	parent := pagepath.Parent(pagePath)
	for _, fragment := range res.Fragments {
		sub, err := a.createManifest(ctx, host, src, fragment, updated, []string{fragment + ".plain.html"})
		if err != nil {
			return nil, err
		}
		if sub.Timestamp > fragmentsLastModified {
			fragmentsLastModified = sub.Timestamp
		}
		for _, e := range sub.Entries {
			// A media path with no /media_ segment has nothing to
			// splice and merges unchanged rather than collapsing to
			// the bare parent path.
			if suffix := pagepath.MediaSuffix(e.Path); suffix != "" {
				e.Path = parent + suffix
			}
			merged.set(e)
		}
	}

	timestamp := lastModified
	if fragmentsLastModified > timestamp {
		timestamp = fragmentsLastModified
	}

	return &Manifest{
		Version:   Version,
		Timestamp: timestamp,
		Entries:   merged.values(),
		ContentDelivery: ContentDelivery{
			Providers:       []Provider{{Name: ProviderName, Endpoint: ProviderEndpoint}},
			DefaultProvider: ProviderName,
		},
	}, nil
}

// createEntries emits the page entry first, then one entry per unique
// resource path. Returns the entries plus the max timestamp any of them
// carries (0 when none do).
func (a *Assembler) createEntries(ctx context.Context, host, pagePath string, res *Resources, updated bool, additionalAssets []string) ([]Entry, int64) {
	pageEntry := a.builder.PageEntry(ctx, host, pagePath, updated)
	entries := []Entry{pageEntry}

	var lastModified int64
	if pageEntry.Timestamp != nil {
		lastModified = *pageEntry.Timestamp
	}

	parent := pagepath.Parent(pagePath)
	for _, resource := range resourceUnion(res, additionalAssets) {
		entry := a.builder.ResourceEntry(ctx, host, parent, resource)
		if entry == nil {
			continue
		}
		entries = append(entries, *entry)
		if entry.Timestamp != nil && *entry.Timestamp > lastModified {
			lastModified = *entry.Timestamp
		}
	}
	return entries, lastModified
}

// resourceUnion dedups the page's resource references preserving first
// occurrence order: scripts, styles, normalized assets, normalized inline
// images, dependencies, then caller-supplied additional assets. Empty
// references are dropped.
func resourceUnion(res *Resources, additionalAssets []string) []string {
	var union []string
	seen := make(map[string]struct{})
	add := func(paths []string, normalize bool) {
		for _, p := range paths {
			if normalize {
				p = NormalizePath(p)
			}
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	add(res.Scripts, false)
	add(res.Styles, false)
	add(res.Assets, true)
	add(res.InlineImages, true)
	add(res.Dependencies, false)
	add(additionalAssets, false)
	return union
}

// entryMap is an insertion-ordered path→Entry map. Writing an existing
// path overwrites the entry but keeps its original position.
type entryMap struct {
	order  []string
	byPath map[string]Entry
}

func newEntryMap() *entryMap {
	return &entryMap{byPath: make(map[string]Entry)}
}

func (m *entryMap) set(e Entry) {
	if _, ok := m.byPath[e.Path]; !ok {
		m.order = append(m.order, e.Path)
	}
	m.byPath[e.Path] = e
}

func (m *entryMap) values() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.byPath[p])
	}
	return out
}
