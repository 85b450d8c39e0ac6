package graph

// Page is a site page and the resources its markup references.
type Page struct {
	Path         string   `json:"path"`
	Title        string   `json:"title,omitempty"`
	Scripts      []string `json:"scripts,omitempty"`
	Styles       []string `json:"styles,omitempty"`
	Assets       []string `json:"assets,omitempty"`
	InlineImages []string `json:"inlineImages,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Fragments    []string `json:"fragments,omitempty"`
	Regenerated  bool     `json:"regenerated"`
	ScannedAt    *int64   `json:"scanned_at,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

// Build is one recorded manifest build.
type Build struct {
	ID           string `json:"id"`
	PagePath     string `json:"page_path"`
	ManifestJSON string `json:"manifest_json"`
	EntryCount   int    `json:"entry_count"`
	Timestamp    int64  `json:"timestamp"`
	BuiltAt      int64  `json:"built_at"`
}

// Stats holds aggregate counters for the content graph.
type Stats struct {
	Pages       int    `json:"pages"`
	Regenerated int    `json:"regenerated"`
	DirtyPaths  int    `json:"dirty_paths"`
	Builds      int    `json:"builds"`
	LastBuiltAt *int64 `json:"last_built_at,omitempty"`
}
