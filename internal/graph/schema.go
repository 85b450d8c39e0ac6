// CLAUDE:SUMMARY SQLite schema for the content graph: pages, dirty_paths, builds.
package graph

import "database/sql"

// Schema is the complete content-graph schema. Resource lists are stored
// as JSON arrays in TEXT columns; all timestamps are Unix milliseconds.
const Schema = `
-- Pages known to the site, with their scanned resource lists
CREATE TABLE IF NOT EXISTS pages (
    path          TEXT PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    scripts       TEXT NOT NULL DEFAULT '[]',
    styles        TEXT NOT NULL DEFAULT '[]',
    assets        TEXT NOT NULL DEFAULT '[]',
    inline_images TEXT NOT NULL DEFAULT '[]',
    dependencies  TEXT NOT NULL DEFAULT '[]',
    fragments     TEXT NOT NULL DEFAULT '[]',
    regenerated   INTEGER NOT NULL DEFAULT 0,
    scanned_at    INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

-- Paths with local modifications not yet visible on the origin
CREATE TABLE IF NOT EXISTS dirty_paths (
    path      TEXT PRIMARY KEY,
    marked_at INTEGER NOT NULL
);

-- Manifest build history
CREATE TABLE IF NOT EXISTS builds (
    id            TEXT PRIMARY KEY,
    page_path     TEXT NOT NULL,
    manifest_json TEXT NOT NULL,
    entry_count   INTEGER NOT NULL DEFAULT 0,
    timestamp     INTEGER NOT NULL DEFAULT 0,
    built_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_builds_page ON builds(page_path, built_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
