package graph

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/lading/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return NewStore(db)
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	s := openTestStore(t)
	for _, table := range []string{"pages", "dirty_paths", "builds"} {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestUpsertPage_RoundTrip(t *testing.T) {
	// WHAT: A stored page comes back with all six resource lists intact.
	s := openTestStore(t)
	ctx := context.Background()

	scanned := int64(1704067200000)
	in := &Page{
		Path:         "/site/page",
		Title:        "Example",
		Scripts:      []string{"/scripts/main.js"},
		Styles:       []string{"/styles/site.css"},
		Assets:       []string{"/media_1a2b3c.png"},
		InlineImages: []string{"/media_9f.jpg"},
		Dependencies: []string{"/site/other.html"},
		Fragments:    []string{"/fragments/header"},
		ScannedAt:    &scanned,
	}
	if err := s.UpsertPage(ctx, in); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	got, err := s.Page(ctx, "/site/page")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if got == nil {
		t.Fatal("Page returned nil for stored path")
	}
	if got.Title != "Example" {
		t.Errorf("title = %q", got.Title)
	}
	if !reflect.DeepEqual(got.Scripts, in.Scripts) {
		t.Errorf("scripts = %v, want %v", got.Scripts, in.Scripts)
	}
	if !reflect.DeepEqual(got.Fragments, in.Fragments) {
		t.Errorf("fragments = %v, want %v", got.Fragments, in.Fragments)
	}
	if got.ScannedAt == nil || *got.ScannedAt != scanned {
		t.Errorf("scanned_at = %v, want %d", got.ScannedAt, scanned)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Error("timestamps not populated")
	}
}

func TestUpsertPage_UpdateKeepsFlagAndCreatedAt(t *testing.T) {
	// WHAT: Re-upserting a page refreshes its lists but never clears the
	// regenerated flag or created_at.
	// WHY: rescans run concurrently with publishes; a scan must not eat
	// a pending regeneration signal.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPage(ctx, &Page{Path: "/site/page"}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	first, _ := s.Page(ctx, "/site/page")
	if err := s.SetRegenerated(ctx, "/site/page", true); err != nil {
		t.Fatalf("SetRegenerated: %v", err)
	}

	if err := s.UpsertPage(ctx, &Page{
		Path:    "/site/page",
		Scripts: []string{"/scripts/new.js"},
	}); err != nil {
		t.Fatalf("second UpsertPage: %v", err)
	}

	got, err := s.Page(ctx, "/site/page")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !got.Regenerated {
		t.Error("regenerated flag lost on upsert")
	}
	if got.CreatedAt != first.CreatedAt {
		t.Errorf("created_at changed: %d -> %d", first.CreatedAt, got.CreatedAt)
	}
	if !reflect.DeepEqual(got.Scripts, []string{"/scripts/new.js"}) {
		t.Errorf("scripts not refreshed: %v", got.Scripts)
	}
}

func TestPage_Unknown(t *testing.T) {
	// WHAT: Unknown paths return nil, not an error.
	s := openTestStore(t)

	got, err := s.Page(context.Background(), "/nope")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestPages_OrderedByPath(t *testing.T) {
	// WHAT: Pages lists every page sorted by path.
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/site/b", "/site/a", "/fragments/header"} {
		if err := s.UpsertPage(ctx, &Page{Path: p}); err != nil {
			t.Fatalf("UpsertPage(%s): %v", p, err)
		}
	}

	pages, err := s.Pages(ctx)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	var paths []string
	for _, p := range pages {
		paths = append(paths, p.Path)
	}
	want := []string{"/fragments/header", "/site/a", "/site/b"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestDeletePage_RemovesDirtyMarker(t *testing.T) {
	// WHAT: Deleting a page also drops its dirty marker.
	// WHY: a stale marker would keep resurrecting entries for a page
	// that no longer exists.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPage(ctx, &Page{Path: "/site/page"}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if err := s.MarkDirty(ctx, "/site/page"); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := s.DeletePage(ctx, "/site/page"); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}

	if got, _ := s.Page(ctx, "/site/page"); got != nil {
		t.Error("page still present after delete")
	}
	dirty, err := s.IsDirty(ctx, "/site/page")
	if err != nil {
		t.Fatalf("IsDirty: %v", err)
	}
	if dirty {
		t.Error("dirty marker survived page deletion")
	}
}

func TestStalePages(t *testing.T) {
	// WHAT: Never-scanned pages come first, then pages scanned before the
	// cutoff; fresh pages are excluded.
	s := openTestStore(t)
	ctx := context.Background()

	old := int64(1000)
	fresh := int64(9000)
	if err := s.UpsertPage(ctx, &Page{Path: "/site/never"}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if err := s.UpsertPage(ctx, &Page{Path: "/site/old", ScannedAt: &old}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}
	if err := s.UpsertPage(ctx, &Page{Path: "/site/fresh", ScannedAt: &fresh}); err != nil {
		t.Fatalf("UpsertPage: %v", err)
	}

	stale, err := s.StalePages(ctx, 5000, 10)
	if err != nil {
		t.Fatalf("StalePages: %v", err)
	}
	var paths []string
	for _, p := range stale {
		paths = append(paths, p.Path)
	}
	want := []string{"/site/never", "/site/old"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}

	limited, err := s.StalePages(ctx, 5000, 1)
	if err != nil {
		t.Fatalf("StalePages limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Path != "/site/never" {
		t.Errorf("limited = %v", limited)
	}
}

func TestSetRegenerated_UnknownPage(t *testing.T) {
	// WHAT: Flagging an unknown page reports sql.ErrNoRows.
	s := openTestStore(t)

	err := s.SetRegenerated(context.Background(), "/nope", true)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestRegeneratedPaths(t *testing.T) {
	// WHAT: Only flagged pages appear, sorted by path.
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/site/a", "/site/b", "/site/c"} {
		if err := s.UpsertPage(ctx, &Page{Path: p}); err != nil {
			t.Fatalf("UpsertPage(%s): %v", p, err)
		}
	}
	s.SetRegenerated(ctx, "/site/c", true)
	s.SetRegenerated(ctx, "/site/a", true)

	paths, err := s.RegeneratedPaths(ctx)
	if err != nil {
		t.Fatalf("RegeneratedPaths: %v", err)
	}
	want := []string{"/site/a", "/site/c"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestDirtyPaths_Lifecycle(t *testing.T) {
	// WHAT: Mark, list, check and clear dirty paths; marking twice is
	// idempotent.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.MarkDirty(ctx, "/styles/site.css"); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := s.MarkDirty(ctx, "/styles/site.css"); err != nil {
		t.Fatalf("MarkDirty twice: %v", err)
	}
	if err := s.MarkDirty(ctx, "/scripts/main.js"); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	paths, err := s.DirtyPaths(ctx)
	if err != nil {
		t.Fatalf("DirtyPaths: %v", err)
	}
	want := []string{"/scripts/main.js", "/styles/site.css"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}

	dirty, err := s.IsDirty(ctx, "/scripts/main.js")
	if err != nil || !dirty {
		t.Errorf("IsDirty = %v, %v; want true, nil", dirty, err)
	}

	if err := s.ClearDirty(ctx, "/scripts/main.js"); err != nil {
		t.Fatalf("ClearDirty: %v", err)
	}
	dirty, _ = s.IsDirty(ctx, "/scripts/main.js")
	if dirty {
		t.Error("path still dirty after clear")
	}
}

func TestFinishBuild_ConsumesFlags(t *testing.T) {
	// WHAT: FinishBuild records the build row and resets the regenerated
	// flag on exactly the consumed pages.
	// WHY: a consumed flag must not force a fresh timestamp on the next
	// build, and an unconsumed one must persist.
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/site/page", "/fragments/header", "/site/other"} {
		if err := s.UpsertPage(ctx, &Page{Path: p}); err != nil {
			t.Fatalf("UpsertPage(%s): %v", p, err)
		}
		if err := s.SetRegenerated(ctx, p, true); err != nil {
			t.Fatalf("SetRegenerated(%s): %v", p, err)
		}
	}

	b := &Build{
		ID:           "bld_test1",
		PagePath:     "/site/page",
		ManifestJSON: `{"version":"3.0"}`,
		EntryCount:   3,
		Timestamp:    1704067200000,
	}
	if err := s.FinishBuild(ctx, b, []string{"/site/page", "/fragments/header"}); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}
	if b.BuiltAt == 0 {
		t.Error("BuiltAt not populated")
	}

	remaining, err := s.RegeneratedPaths(ctx)
	if err != nil {
		t.Fatalf("RegeneratedPaths: %v", err)
	}
	if !reflect.DeepEqual(remaining, []string{"/site/other"}) {
		t.Errorf("remaining flags = %v, want [/site/other]", remaining)
	}

	builds, err := s.RecentBuilds(ctx, "/site/page", 5)
	if err != nil {
		t.Fatalf("RecentBuilds: %v", err)
	}
	if len(builds) != 1 || builds[0].ID != "bld_test1" {
		t.Fatalf("builds = %+v, want the recorded one", builds)
	}
	if builds[0].Timestamp != 1704067200000 || builds[0].EntryCount != 3 {
		t.Errorf("build fields corrupted: %+v", builds[0])
	}
}

func TestRecentBuilds_FilterAndLimit(t *testing.T) {
	// WHAT: RecentBuilds filters by page and honours the limit, newest
	// first.
	s := openTestStore(t)
	ctx := context.Background()

	for i, built := range []int64{100, 200, 300} {
		b := &Build{
			ID:           "bld_" + string(rune('a'+i)),
			PagePath:     "/site/page",
			ManifestJSON: "{}",
			BuiltAt:      built,
		}
		if err := s.FinishBuild(ctx, b, nil); err != nil {
			t.Fatalf("FinishBuild: %v", err)
		}
	}
	other := &Build{ID: "bld_x", PagePath: "/site/other", ManifestJSON: "{}", BuiltAt: 400}
	if err := s.FinishBuild(ctx, other, nil); err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	builds, err := s.RecentBuilds(ctx, "/site/page", 2)
	if err != nil {
		t.Fatalf("RecentBuilds: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("len = %d, want 2", len(builds))
	}
	if builds[0].BuiltAt != 300 || builds[1].BuiltAt != 200 {
		t.Errorf("order wrong: %d, %d", builds[0].BuiltAt, builds[1].BuiltAt)
	}

	all, err := s.RecentBuilds(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentBuilds all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all builds = %d, want 4", len(all))
	}
}

func TestStats(t *testing.T) {
	// WHAT: Stats aggregates page, flag, dirty and build counters.
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertPage(ctx, &Page{Path: "/site/a"})
	s.UpsertPage(ctx, &Page{Path: "/site/b"})
	s.SetRegenerated(ctx, "/site/a", true)
	s.MarkDirty(ctx, "/styles/site.css")
	s.FinishBuild(ctx, &Build{ID: "bld_1", PagePath: "/site/a", ManifestJSON: "{}", BuiltAt: 500}, nil)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Pages != 2 || st.Regenerated != 1 || st.DirtyPaths != 1 || st.Builds != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastBuiltAt == nil || *st.LastBuiltAt != 500 {
		t.Errorf("last_built_at = %v, want 500", st.LastBuiltAt)
	}
}

func TestStats_EmptyGraph(t *testing.T) {
	// WHAT: Stats on an empty database returns zeros and no last-build
	// time rather than an error.
	s := openTestStore(t)

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Pages != 0 || st.Builds != 0 {
		t.Errorf("stats = %+v, want zeros", st)
	}
	if st.LastBuiltAt != nil {
		t.Errorf("last_built_at = %v, want nil", st.LastBuiltAt)
	}
}
