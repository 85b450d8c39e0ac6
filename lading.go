// CLAUDE:SUMMARY Main Service orchestrator: graph persistence, origin scans, manifest builds, rescan loop.
package lading

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/lading/audit"
	"github.com/hazyhaar/lading/idgen"
	"github.com/hazyhaar/lading/internal/graph"
	"github.com/hazyhaar/lading/internal/scan"
	"github.com/hazyhaar/lading/kit"
	"github.com/hazyhaar/lading/manifest"
	"github.com/hazyhaar/lading/pagepath"
	"github.com/hazyhaar/lading/probe"
)

// Service is the main lading orchestrator.
type Service struct {
	store        *graph.Store
	prober       probe.Prober
	fetcher      *scan.Fetcher
	assembler    *manifest.Assembler
	logger       *slog.Logger
	config       *Config
	audit        audit.Logger // optional — audit trail
	newID        func() string
	now          func() time.Time
	urlValidator func(string) error
}

// New creates a lading Service on an already-opened database. The schema
// is applied idempotently.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := graph.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	svc := &Service{
		store:        graph.NewStore(db),
		logger:       logger,
		config:       cfg,
		newID:        idgen.Prefixed("bld_", idgen.Default),
		now:          time.Now,
		urlValidator: probe.ValidateURL,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.prober == nil {
		svc.prober = probe.NewHTTP(probe.Config{
			Timeout:      cfg.Probe.Timeout,
			UserAgent:    cfg.Probe.UserAgent,
			MaxRetries:   cfg.Probe.MaxRetries,
			RetryBackoff: cfg.Probe.RetryBackoff,
			URLValidator: svc.urlValidator,
		})
	}
	svc.fetcher = scan.NewFetcher(scan.Config{
		Timeout:      cfg.Scan.Timeout,
		MaxBytes:     cfg.Scan.MaxBytes,
		UserAgent:    cfg.Scan.UserAgent,
		URLValidator: svc.urlValidator,
	})

	// Probe failures fall back to the dirty markers in the graph.
	dirty := manifest.DirtyFunc(func(path string) bool {
		d, err := svc.store.IsDirty(context.Background(), path)
		if err != nil {
			svc.logger.Warn("dirty check failed", "path", path, "error", err)
			return false
		}
		return d
	})

	builder := manifest.NewBuilder(svc.prober, dirty, logger)
	builder.SetClock(svc.now)
	svc.assembler = manifest.NewAssembler(builder)

	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithProber overrides the resource prober.
func WithProber(p probe.Prober) ServiceOption {
	return func(svc *Service) { svc.prober = p }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// WithIDGenerator overrides the build ID generator.
func WithIDGenerator(g idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = g }
}

// WithURLValidator overrides URL validation (default: probe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithAudit attaches an audit trail for mutating operations.
func WithAudit(a audit.Logger) ServiceOption {
	return func(svc *Service) { svc.audit = a }
}

// auditLog emits an async audit entry if an audit logger is configured.
// Every lading mutation is path-scoped, so the parameters are just the path.
func (svc *Service) auditLog(ctx context.Context, action, path string) {
	if svc.audit == nil {
		return
	}
	params, _ := json.Marshal(map[string]string{"path": path})
	svc.audit.LogAsync(&audit.Entry{
		Action:     action,
		Parameters: string(params),
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		SessionID:  kit.GetSessionID(ctx),
		RemoteAddr: kit.GetRemoteAddr(ctx),
	})
}

// graphSource adapts the content graph to the assembler's Source.
type graphSource struct {
	store *graph.Store
}

func (s graphSource) Resources(ctx context.Context, pagePath string) (*manifest.Resources, error) {
	p, err := s.store.Page(ctx, pagePath)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	return &manifest.Resources{
		Scripts:      p.Scripts,
		Styles:       p.Styles,
		Assets:       p.Assets,
		InlineImages: p.InlineImages,
		Dependencies: p.Dependencies,
		Fragments:    p.Fragments,
	}, nil
}

// BuildManifest assembles the delivery manifest for a page, records the
// build and consumes the regenerated flags of every page the build
// visited. Unknown pages still yield a minimal manifest.
func (svc *Service) BuildManifest(ctx context.Context, pagePath string) (*Manifest, *Build, error) {
	pagePath, err := svc.cleanPath(pagePath)
	if err != nil {
		return nil, nil, err
	}
	host, err := svc.originHost()
	if err != nil {
		return nil, nil, err
	}

	flagged, err := svc.store.RegeneratedPaths(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("regenerated paths: %w", err)
	}
	updated := make(map[string]bool, len(flagged))
	for _, p := range flagged {
		updated[p] = true
	}

	m, err := svc.assembler.Build(ctx, host, pagePath, graphSource{svc.store}, updated)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", pagePath, err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("encode manifest: %w", err)
	}
	b := &graph.Build{
		ID:           svc.newID(),
		PagePath:     pagePath,
		ManifestJSON: string(raw),
		EntryCount:   len(m.Entries),
		Timestamp:    m.Timestamp,
		BuiltAt:      svc.now().UnixMilli(),
	}
	if err := svc.store.FinishBuild(ctx, b, consumedFlags(m, flagged)); err != nil {
		return nil, nil, fmt.Errorf("record build: %w", err)
	}

	svc.logger.Info("manifest built",
		"page", pagePath, "entries", len(m.Entries), "timestamp", m.Timestamp, "build", b.ID)
	return m, b, nil
}

// consumedFlags returns the flagged paths whose page entry made it into
// the manifest: the page itself and every fragment visited.
func consumedFlags(m *Manifest, flagged []string) []string {
	present := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		present[e.Path] = true
	}
	var consumed []string
	for _, p := range flagged {
		if present[p+".html"] {
			consumed = append(consumed, p)
		}
	}
	return consumed
}

// ScanPage fetches a page's rendered markup from the origin and refreshes
// its resource lists in the graph. When the lists changed, the page is
// flagged regenerated so its next manifest carries a fresh timestamp.
// Curated dependencies survive the scan.
func (svc *Service) ScanPage(ctx context.Context, pagePath string) (*Page, error) {
	pagePath, err := svc.cleanPath(pagePath)
	if err != nil {
		return nil, err
	}
	host, err := svc.originHost()
	if err != nil {
		return nil, err
	}

	pageURL := host + pagePath
	body, err := svc.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pagePath, err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	res, err := scan.Scan(bytes.NewReader(body), base)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pagePath, err)
	}

	existing, err := svc.store.Page(ctx, pagePath)
	if err != nil {
		return nil, err
	}

	scannedAt := svc.now().UnixMilli()
	rec := &graph.Page{
		Path:         pagePath,
		Title:        res.Title,
		Scripts:      res.Scripts,
		Styles:       res.Styles,
		Assets:       res.Assets,
		InlineImages: res.InlineImages,
		Fragments:    res.Fragments,
		ScannedAt:    &scannedAt,
	}
	if existing != nil {
		rec.Dependencies = existing.Dependencies
		rec.CreatedAt = existing.CreatedAt
	}

	if err := svc.store.UpsertPage(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", pagePath, err)
	}
	if changed := existing == nil || !sameResourceLists(existing, rec); changed {
		if err := svc.store.SetRegenerated(ctx, pagePath, true); err != nil {
			return nil, fmt.Errorf("flag %s: %w", pagePath, err)
		}
		svc.logger.Info("page resources changed", "page", pagePath)
	}
	svc.auditLog(ctx, "scan_page", pagePath)

	return svc.store.Page(ctx, pagePath)
}

func sameResourceLists(a, b *graph.Page) bool {
	return slices.Equal(a.Scripts, b.Scripts) &&
		slices.Equal(a.Styles, b.Styles) &&
		slices.Equal(a.Assets, b.Assets) &&
		slices.Equal(a.InlineImages, b.InlineImages) &&
		slices.Equal(a.Fragments, b.Fragments)
}

// UpsertPage stores a curated page record. A true Regenerated flag is
// applied; a false one leaves any pending flag in place.
func (svc *Service) UpsertPage(ctx context.Context, p *Page) (*Page, error) {
	if p == nil {
		return nil, ErrEmptyPath
	}
	path, err := svc.cleanPath(p.Path)
	if err != nil {
		return nil, err
	}
	p.Path = path

	if err := svc.store.UpsertPage(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", path, err)
	}
	if p.Regenerated {
		if err := svc.store.SetRegenerated(ctx, path, true); err != nil {
			return nil, fmt.Errorf("flag %s: %w", path, err)
		}
	}
	svc.auditLog(ctx, "upsert_page", path)
	return svc.store.Page(ctx, path)
}

// Page returns a page record or ErrPageNotFound.
func (svc *Service) Page(ctx context.Context, pagePath string) (*Page, error) {
	pagePath, err := svc.cleanPath(pagePath)
	if err != nil {
		return nil, err
	}
	p, err := svc.store.Page(ctx, pagePath)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pagePath)
	}
	return p, nil
}

// Pages returns all known pages ordered by path.
func (svc *Service) Pages(ctx context.Context) ([]*Page, error) {
	return svc.store.Pages(ctx)
}

// DeletePage removes a page and its dirty marker.
func (svc *Service) DeletePage(ctx context.Context, pagePath string) error {
	pagePath, err := svc.cleanPath(pagePath)
	if err != nil {
		return err
	}
	p, err := svc.store.Page(ctx, pagePath)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPageNotFound, pagePath)
	}
	if err := svc.store.DeletePage(ctx, pagePath); err != nil {
		return err
	}
	svc.auditLog(ctx, "delete_page", pagePath)
	return nil
}

// MarkDirty records a path as locally modified, letting it survive probe
// failures in manifest builds.
func (svc *Service) MarkDirty(ctx context.Context, path string) error {
	path, err := svc.cleanPath(path)
	if err != nil {
		return err
	}
	if err := svc.store.MarkDirty(ctx, path); err != nil {
		return err
	}
	svc.auditLog(ctx, "mark_dirty", path)
	return nil
}

// ClearDirty removes a path's dirty marker.
func (svc *Service) ClearDirty(ctx context.Context, path string) error {
	path, err := svc.cleanPath(path)
	if err != nil {
		return err
	}
	if err := svc.store.ClearDirty(ctx, path); err != nil {
		return err
	}
	svc.auditLog(ctx, "clear_dirty", path)
	return nil
}

// DirtyPaths lists all locally modified paths.
func (svc *Service) DirtyPaths(ctx context.Context) ([]string, error) {
	return svc.store.DirtyPaths(ctx)
}

// Breadcrumbs returns a page's ancestor chain in root-to-leaf order,
// excluding the content root itself.
func (svc *Service) Breadcrumbs(pagePath string) ([]Crumb, error) {
	pagePath, err := svc.cleanPath(pagePath)
	if err != nil {
		return nil, err
	}
	return pagepath.AncestorChain(pagePath), nil
}

// RecentBuilds returns recorded builds, newest first. An empty pagePath
// spans all pages.
func (svc *Service) RecentBuilds(ctx context.Context, pagePath string, limit int) ([]*Build, error) {
	if pagePath != "" {
		var err error
		if pagePath, err = svc.cleanPath(pagePath); err != nil {
			return nil, err
		}
	}
	return svc.store.RecentBuilds(ctx, pagePath, limit)
}

// Stats returns aggregate counters for the content graph.
func (svc *Service) Stats(ctx context.Context) (*Stats, error) {
	return svc.store.Stats(ctx)
}

// Start launches the background rescan loop when enabled. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	if !svc.config.Rescan.Enabled {
		return
	}
	go svc.rescanLoop(ctx)
}

// Close shuts down the service. The database is owned by the caller.
func (svc *Service) Close() error {
	svc.logger.Info("lading: closed")
	return nil
}

func (svc *Service) rescanLoop(ctx context.Context) {
	svc.logger.Info("rescan loop started",
		"interval", svc.config.Rescan.CheckInterval, "freshness", svc.config.Rescan.Freshness)
	ctx = kit.WithTransport(ctx, "internal")
	ticker := time.NewTicker(svc.config.Rescan.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			svc.logger.Info("rescan loop stopped")
			return
		case <-ticker.C:
			svc.rescanStale(ctx)
		}
	}
}

func (svc *Service) rescanStale(ctx context.Context) {
	cutoff := svc.now().Add(-svc.config.Rescan.Freshness).UnixMilli()
	stale, err := svc.store.StalePages(ctx, cutoff, svc.config.Rescan.BatchSize)
	if err != nil {
		svc.logger.Error("stale page query failed", "error", err)
		return
	}
	for _, p := range stale {
		if ctx.Err() != nil {
			return
		}
		if _, err := svc.ScanPage(ctx, p.Path); err != nil {
			svc.logger.Warn("rescan failed", "page", p.Path, "error", err)
		}
	}
	if len(stale) > 0 {
		svc.logger.Info("rescan pass complete", "pages", len(stale))
	}
}

func (svc *Service) cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrEmptyPath
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q is not root-relative", ErrInvalidPath, path)
	}
	return path, nil
}

func (svc *Service) originHost() (string, error) {
	host := strings.TrimRight(strings.TrimSpace(svc.config.Origin.Host), "/")
	if host == "" {
		return "", ErrOriginNotConfigured
	}
	return host, nil
}
