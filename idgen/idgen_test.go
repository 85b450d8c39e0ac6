package idgen_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hazyhaar/lading/idgen"
)

func TestNew_Valid(t *testing.T) {
	// WHAT: generated IDs parse back as version-7 UUIDs.
	id := idgen.New()

	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Parse(%q): %v", id, err)
	}
	if u.Version() != 7 {
		t.Errorf("version = %d, want 7", u.Version())
	}
}

func TestNew_Unique(t *testing.T) {
	// WHAT: consecutive IDs never collide.
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := idgen.New()
		if seen[id] {
			t.Fatalf("duplicate ID %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	// WHAT: Prefixed prepends the type tag and keeps the UUID intact.
	g := idgen.Prefixed("bld_", idgen.Default)
	id := g()

	if !strings.HasPrefix(id, "bld_") {
		t.Fatalf("id %q missing prefix", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "bld_")); err != nil {
		t.Errorf("suffix of %q is not a UUID: %v", id, err)
	}
}

func TestNanoID_Shape(t *testing.T) {
	// WHAT: NanoID yields exactly n URL-safe characters.
	g := idgen.NanoID(8)
	for i := 0; i < 100; i++ {
		id := g()
		if len(id) != 8 {
			t.Fatalf("length of %q = %d, want 8", id, len(id))
		}
		for _, c := range id {
			ok := c == '_' || c == '-' ||
				(c >= '0' && c <= '9') ||
				(c >= 'a' && c <= 'z') ||
				(c >= 'A' && c <= 'Z')
			if !ok {
				t.Fatalf("id %q contains %q", id, c)
			}
		}
	}
}

func TestNanoID_Unique(t *testing.T) {
	// WHAT: 8 random characters do not collide over a small sample.
	g := idgen.NanoID(8)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g()
		if seen[id] {
			t.Fatalf("duplicate ID %q after %d draws", id, i)
		}
		seen[id] = true
	}
}
