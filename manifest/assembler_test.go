package manifest

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/hazyhaar/lading/probe"
)

// graphSource serves canned Resources by page path; unknown pages return
// nil, as the content graph store does.
func graphSource(pages map[string]*Resources) SourceFunc {
	return func(_ context.Context, pagePath string) (*Resources, error) {
		return pages[pagePath], nil
	}
}

// recordingProber notes each probed path in order and reports every
// resource as available without metadata.
func recordingProber(paths *[]string) probe.Func {
	return func(_ context.Context, _ string, path string) (*probe.Metadata, error) {
		*paths = append(*paths, path)
		return &probe.Metadata{}, nil
	}
}

func newTestAssembler(avail map[string]string, dirty DirtyChecker) *Assembler {
	return NewAssembler(newTestBuilder(avail, dirty))
}

func TestBuild_EndToEnd(t *testing.T) {
	// WHAT: A page with one media asset produces the documented wire
	// shape: page entry with the origin timestamp, parent-prefixed media
	// entry with hash, aggregate timestamp, franklin delivery descriptor.
	// WHY: This is the contract consumers of the manifest depend on.
	src := graphSource(map[string]*Resources{
		"/site/page": {Assets: []string{"./media_1a2b3c.png?x=1"}},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":   httpDate,
		"/media_1a2b3c.png": "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if m.Version != "3.0" {
		t.Errorf("version: got %q", m.Version)
	}
	if m.Timestamp != httpDateMs {
		t.Errorf("timestamp: got %d, want %d", m.Timestamp, httpDateMs)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2 (%+v)", len(m.Entries), m.Entries)
	}

	page := m.Entries[0]
	if page.Path != "/site/page.html" || page.Timestamp == nil || *page.Timestamp != httpDateMs || page.Hash != "" {
		t.Errorf("page entry: got %+v", page)
	}

	media := m.Entries[1]
	if media.Path != "/site/media_1a2b3c.png" || media.Hash != "1a2b3c" || media.Timestamp != nil {
		t.Errorf("media entry: got %+v", media)
	}

	cd := m.ContentDelivery
	if cd.DefaultProvider != "franklin" || len(cd.Providers) != 1 ||
		cd.Providers[0].Name != "franklin" || cd.Providers[0].Endpoint != "/" {
		t.Errorf("contentDelivery: got %+v", cd)
	}
}

func TestBuild_MaxTimestampAcrossFragments(t *testing.T) {
	// WHAT: The manifest timestamp is the max over the page's own entries
	// and every fragment aggregate.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {},
	})
	// Fragment page is newer than the embedding page.
	asm := newTestAssembler(map[string]string{
		"/site/page.html":              "Mon, 01 Jan 2024 00:00:00 GMT",
		"/fragments/footer.html":       "Mon, 15 Jan 2024 00:00:00 GMT",
		"/fragments/footer.plain.html": "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	const fragmentMs = int64(1705276800000) // Jan 15 2024
	if m.Timestamp != fragmentMs {
		t.Errorf("timestamp: got %d, want fragment max %d", m.Timestamp, fragmentMs)
	}
}

func TestBuild_UniquePathsLastWins(t *testing.T) {
	// WHAT: A path contributed by both the page and a fragment appears
	// once, with the fragment's (later) entry winning but keeping the
	// original position.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Scripts: []string{"/scripts/shared.js"}, Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {Scripts: []string{"/scripts/shared.js"}},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":              "",
		"/scripts/shared.js":           httpDate,
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	seen := make(map[string]int)
	for _, e := range m.Entries {
		seen[e.Path]++
	}
	for path, n := range seen {
		if n != 1 {
			t.Errorf("path %q appears %d times", path, n)
		}
	}
	// Page entry first, shared script keeps its position from the page's
	// own entry list.
	if m.Entries[0].Path != "/site/page.html" {
		t.Errorf("entries[0]: got %q", m.Entries[0].Path)
	}
	if m.Entries[1].Path != "/scripts/shared.js" {
		t.Errorf("entries[1]: got %q", m.Entries[1].Path)
	}
}

func TestBuild_MediaTimestampExclusivity(t *testing.T) {
	// WHAT: Every entry carries a hash or possibly a timestamp, never
	// both; media always hash, non-media never hash.
	src := graphSource(map[string]*Resources{
		"/site/page": {
			Scripts:      []string{"/scripts/main.js"},
			Assets:       []string{"/media_aa.png", "./media_bb.jpg?w=100"},
			InlineImages: []string{"/media_cc.png"},
		},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":  httpDate,
		"/scripts/main.js": httpDate,
		"/media_aa.png":    httpDate, // header present, must still be ignored
		"/media_bb.jpg":    "",
		"/media_cc.png":    "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, e := range m.Entries {
		if e.Hash != "" && e.Timestamp != nil {
			t.Errorf("entry %q has both hash and timestamp", e.Path)
		}
	}
	if len(m.Entries) != 5 {
		t.Fatalf("entries: got %d, want 5 (%+v)", len(m.Entries), m.Entries)
	}
}

func TestBuild_FragmentMediaRebased(t *testing.T) {
	// WHAT: Fragment media entries are rebased under the embedding page's
	// parent path before merging.
	// WHY: The delivery layer serves page-adjacent media paths; fragment
	// internal paths would 404.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {Assets: []string{"/media_9f.png"}},
	})
	avail := map[string]string{
		"/site/page.html":              "",
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": "",
		"/media_9f.png":                "",
	}

	asm := newTestAssembler(avail, nil)
	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var paths []string
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	found := false
	for _, p := range paths {
		if p == "/site/media_9f.png" {
			found = true
		}
		if p == "/fragments/media_9f.png" {
			t.Errorf("unrebased fragment media path %q in %v", p, paths)
		}
	}
	if !found {
		t.Errorf("rebased media entry missing: %v", paths)
	}

	// The fragment built standalone keeps its own parent prefix.
	frag, err := asm.Build(context.Background(), "https://origin", "/fragments/footer", src, nil)
	if err != nil {
		t.Fatalf("fragment build: %v", err)
	}
	found = false
	for _, e := range frag.Entries {
		if e.Path == "/fragments/media_9f.png" {
			found = true
		}
	}
	if !found {
		t.Errorf("fragment standalone media entry missing: %+v", frag.Entries)
	}
}

func TestBuild_SlashlessFragmentMediaKeepsPath(t *testing.T) {
	// WHAT: A fragment media reference with no slash before the marker has
	// no /media_ segment to splice; its entry merges with the path the
	// builder gave it instead of collapsing to the bare parent path.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {Assets: []string{"media_9f.png"}},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":              "",
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": "",
		"media_9f.png":                 "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	found := false
	for _, e := range m.Entries {
		if e.Path == "/site" {
			t.Errorf("media entry collapsed to bare parent: %+v", m.Entries)
		}
		if e.Path == "/fragmentsmedia_9f.png" && e.Hash == "9f" && e.Timestamp == nil {
			found = true
		}
	}
	if !found {
		t.Errorf("slashless media entry missing or malformed: %+v", m.Entries)
	}
}

func TestBuild_FragmentPlainHTMLIncluded(t *testing.T) {
	// WHAT: Recursion hands each fragment its ".plain.html" as an
	// additional asset, so the parent manifest carries it.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":              "",
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": httpDate,
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	found := false
	for _, e := range m.Entries {
		if e.Path == "/fragments/footer.plain.html" {
			found = true
			if e.Timestamp == nil || *e.Timestamp != httpDateMs {
				t.Errorf("plain.html timestamp: got %v", e.Timestamp)
			}
		}
	}
	if !found {
		t.Errorf("plain.html entry missing: %+v", m.Entries)
	}
	if m.Timestamp != httpDateMs {
		t.Errorf("timestamp: got %d, want %d via fragment aggregate", m.Timestamp, httpDateMs)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	// WHAT: Static inputs produce byte-identical manifests on repeat runs.
	// WHY: Deployments diff manifests; nondeterministic ordering would
	// force spurious redeploys.
	src := graphSource(map[string]*Resources{
		"/site/page": {
			Scripts:   []string{"/scripts/main.js"},
			Styles:    []string{"/styles/site.css"},
			Assets:    []string{"/media_aa.png"},
			Fragments: []string{"/fragments/footer"},
		},
		"/fragments/footer": {Assets: []string{"/media_9f.png"}},
	})
	avail := map[string]string{
		"/site/page.html":              httpDate,
		"/scripts/main.js":             httpDate,
		"/styles/site.css":             "",
		"/media_aa.png":                "",
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": "",
		"/media_9f.png":                "",
	}
	asm := newTestAssembler(avail, nil)

	first, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("builds differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestBuild_SkipsUnavailableCleanResource(t *testing.T) {
	// WHAT: A resource that neither probes nor shows dirty vanishes from
	// the manifest without failing the build.
	src := graphSource(map[string]*Resources{
		"/site/page": {Scripts: []string{"/scripts/gone.js", "/scripts/main.js"}},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":  httpDate,
		"/scripts/main.js": "",
	}, DirtyFunc(func(string) bool { return false }))

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2 (%+v)", len(m.Entries), m.Entries)
	}
	for _, e := range m.Entries {
		if e.Path == "/scripts/gone.js" {
			t.Error("skipped resource leaked into the manifest")
		}
	}
}

func TestBuild_UnknownPage(t *testing.T) {
	// WHAT: A page absent from the graph builds a page-entry-only
	// manifest.
	asm := newTestAssembler(map[string]string{"/site/page.html": ""}, nil)
	m, err := asm.Build(context.Background(), "https://origin", "/site/page", graphSource(nil), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].Path != "/site/page.html" {
		t.Errorf("entries: got %+v", m.Entries)
	}
	if m.Timestamp != 0 {
		t.Errorf("timestamp: got %d, want 0", m.Timestamp)
	}
}

func TestBuild_UpdatedFlagPropagatesToFragments(t *testing.T) {
	// WHAT: The updated-flags mapping is shared by the fragment tree; a
	// flagged fragment stamps "now" on its own page entry and pushes the
	// aggregate forward.
	src := graphSource(map[string]*Resources{
		"/site/page":        {Fragments: []string{"/fragments/footer"}},
		"/fragments/footer": {},
	})
	asm := newTestAssembler(map[string]string{
		"/site/page.html":              httpDate,
		"/fragments/footer.html":       "",
		"/fragments/footer.plain.html": "",
	}, nil)

	m, err := asm.Build(context.Background(), "https://origin", "/site/page", src,
		map[string]bool{"/fragments/footer": true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.Timestamp != fixedNow.UnixMilli() {
		t.Errorf("timestamp: got %d, want flagged-fragment now %d", m.Timestamp, fixedNow.UnixMilli())
	}
}

func TestBuild_NormalizationScope(t *testing.T) {
	// WHAT: Assets and inline images are normalized before probing;
	// scripts keep their stored form, query string included.
	var probed []string
	src := graphSource(map[string]*Resources{
		"/site/page": {
			Scripts: []string{"/scripts/main.js?v=2"},
			Assets:  []string{" ./media_aa.png?w=100 "},
		},
	})
	asm := NewAssembler(NewBuilder(recordingProber(&probed), nil, nil))

	if _, err := asm.Build(context.Background(), "https://origin", "/site/page", src, nil); err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{"/site/page.html", "/scripts/main.js?v=2", "/media_aa.png"}
	if !reflect.DeepEqual(probed, want) {
		t.Errorf("probed paths: got %v, want %v", probed, want)
	}
}

func TestManifest_JSONShape(t *testing.T) {
	// WHAT: The serialized manifest matches the wire contract exactly,
	// omitting absent timestamps and hashes.
	ts := httpDateMs
	m := &Manifest{
		Version:   Version,
		Timestamp: ts,
		Entries: []Entry{
			{Path: "/site/page.html", Timestamp: &ts},
			{Path: "/site/media_1a2b3c.png", Hash: "1a2b3c"},
		},
		ContentDelivery: ContentDelivery{
			Providers:       []Provider{{Name: ProviderName, Endpoint: ProviderEndpoint}},
			DefaultProvider: ProviderName,
		},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"version":"3.0","timestamp":1704067200000,` +
		`"entries":[{"path":"/site/page.html","timestamp":1704067200000},` +
		`{"path":"/site/media_1a2b3c.png","hash":"1a2b3c"}],` +
		`"contentDelivery":{"providers":[{"name":"franklin","endpoint":"/"}],` +
		`"defaultProvider":"franklin"}}`
	if string(data) != want {
		t.Errorf("json:\ngot  %s\nwant %s", data, want)
	}
}
