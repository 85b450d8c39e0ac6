// CLAUDE:SUMMARY Content-graph data access: page CRUD, regenerated flags, dirty paths, build history.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/lading/dbopen"
)

// Store wraps the content-graph database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// UpsertPage inserts a page or refreshes its title, resource lists and
// scan time. The regenerated flag and created_at survive an update.
func (s *Store) UpsertPage(ctx context.Context, p *Page) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pages (path, title, scripts, styles, assets, inline_images,
		dependencies, fragments, regenerated, scanned_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET
		  title=excluded.title, scripts=excluded.scripts, styles=excluded.styles,
		  assets=excluded.assets, inline_images=excluded.inline_images,
		  dependencies=excluded.dependencies, fragments=excluded.fragments,
		  scanned_at=excluded.scanned_at, updated_at=excluded.updated_at`,
		p.Path, p.Title, encodeList(p.Scripts), encodeList(p.Styles),
		encodeList(p.Assets), encodeList(p.InlineImages),
		encodeList(p.Dependencies), encodeList(p.Fragments),
		p.Regenerated, p.ScannedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Page retrieves a page by path, or nil if unknown.
func (s *Store) Page(ctx context.Context, path string) (*Page, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT path, title, scripts, styles, assets, inline_images,
		dependencies, fragments, regenerated, scanned_at, created_at, updated_at
		FROM pages WHERE path = ?`, path)
	return scanPage(row)
}

// Pages returns all known pages ordered by path.
func (s *Store) Pages(ctx context.Context) ([]*Page, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT path, title, scripts, styles, assets, inline_images,
		dependencies, fragments, regenerated, scanned_at, created_at, updated_at
		FROM pages ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// DeletePage removes a page and its dirty marker.
func (s *Store) DeletePage(ctx context.Context, path string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE path = ?`, path); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM dirty_paths WHERE path = ?`, path)
		return err
	})
}

// SetRegenerated flips the regenerated flag on a page.
func (s *Store) SetRegenerated(ctx context.Context, path string, flag bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE pages SET regenerated = ?, updated_at = ? WHERE path = ?`,
		flag, time.Now().UnixMilli(), path)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RegeneratedPaths lists pages currently flagged as regenerated.
func (s *Store) RegeneratedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT path FROM pages WHERE regenerated = 1 ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// StalePages returns up to limit pages never scanned or last scanned
// before cutoff, oldest first. Never-scanned pages sort first.
func (s *Store) StalePages(ctx context.Context, cutoff int64, limit int) ([]*Page, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT path, title, scripts, styles, assets, inline_images,
		dependencies, fragments, regenerated, scanned_at, created_at, updated_at
		FROM pages
		WHERE scanned_at IS NULL OR scanned_at < ?
		ORDER BY scanned_at ASC NULLS FIRST
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// MarkDirty records a path as locally modified. Idempotent.
func (s *Store) MarkDirty(ctx context.Context, path string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO dirty_paths (path, marked_at) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET marked_at = excluded.marked_at`,
		path, time.Now().UnixMilli())
	return err
}

// ClearDirty removes a path's dirty marker.
func (s *Store) ClearDirty(ctx context.Context, path string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM dirty_paths WHERE path = ?`, path)
	return err
}

// DirtyPaths lists all locally modified paths ordered by path.
func (s *Store) DirtyPaths(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT path FROM dirty_paths ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// IsDirty reports whether a path carries a dirty marker.
func (s *Store) IsDirty(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dirty_paths WHERE path = ?`, path).Scan(&n)
	return n > 0, err
}

// FinishBuild records a completed manifest build and resets the
// regenerated flag on every page consumed by it, atomically.
func (s *Store) FinishBuild(ctx context.Context, b *Build, consumed []string) error {
	if b.BuiltAt == 0 {
		b.BuiltAt = time.Now().UnixMilli()
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO builds (id, page_path, manifest_json, entry_count, timestamp, built_at)
			VALUES (?,?,?,?,?,?)`,
			b.ID, b.PagePath, b.ManifestJSON, b.EntryCount, b.Timestamp, b.BuiltAt,
		); err != nil {
			return err
		}
		if len(consumed) == 0 {
			return nil
		}
		args := make([]any, 0, len(consumed)+1)
		args = append(args, b.BuiltAt)
		for _, p := range consumed {
			args = append(args, p)
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE pages SET regenerated = 0, updated_at = ? WHERE path IN (%s)`,
			placeholders(len(consumed))), args...)
		return err
	})
}

// RecentBuilds returns the latest builds for a page, newest first.
// An empty pagePath returns builds across all pages.
func (s *Store) RecentBuilds(ctx context.Context, pagePath string, limit int) ([]*Build, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, page_path, manifest_json, entry_count, timestamp, built_at
		FROM builds`
	args := []any{}
	if pagePath != "" {
		query += ` WHERE page_path = ?`
		args = append(args, pagePath)
	}
	query += ` ORDER BY built_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.PagePath, &b.ManifestJSON,
			&b.EntryCount, &b.Timestamp, &b.BuiltAt); err != nil {
			return nil, err
		}
		builds = append(builds, &b)
	}
	return builds, rows.Err()
}

// Stats returns aggregate counters for the content graph.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&st.Pages); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE regenerated = 1`).Scan(&st.Regenerated); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM dirty_paths`).Scan(&st.DirtyPaths); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM builds`).Scan(&st.Builds); err != nil {
		return nil, err
	}
	var last sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(built_at) FROM builds`).Scan(&last); err != nil {
		return nil, err
	}
	if last.Valid {
		st.LastBuiltAt = &last.Int64
	}
	return &st, nil
}

func scanPage(row *sql.Row) (*Page, error) {
	var p Page
	var scripts, styles, assets, inlineImages, dependencies, fragments string
	err := row.Scan(&p.Path, &p.Title, &scripts, &styles, &assets, &inlineImages,
		&dependencies, &fragments, &p.Regenerated, &p.ScannedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	decodeLists(&p, scripts, styles, assets, inlineImages, dependencies, fragments)
	return &p, nil
}

func scanPageRows(rows *sql.Rows) (*Page, error) {
	var p Page
	var scripts, styles, assets, inlineImages, dependencies, fragments string
	err := rows.Scan(&p.Path, &p.Title, &scripts, &styles, &assets, &inlineImages,
		&dependencies, &fragments, &p.Regenerated, &p.ScannedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	decodeLists(&p, scripts, styles, assets, inlineImages, dependencies, fragments)
	return &p, nil
}

func decodeLists(p *Page, scripts, styles, assets, inlineImages, dependencies, fragments string) {
	p.Scripts = decodeList(scripts)
	p.Styles = decodeList(styles)
	p.Assets = decodeList(assets)
	p.InlineImages = decodeList(inlineImages)
	p.Dependencies = decodeList(dependencies)
	p.Fragments = decodeList(fragments)
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
