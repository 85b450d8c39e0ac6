package manifest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/lading/pagepath"
	"github.com/hazyhaar/lading/probe"
)

// Builder constructs manifest entries by probing a delivery origin.
type Builder struct {
	prober probe.Prober
	dirty  DirtyChecker
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder. dirty may be nil (every path is treated as
// clean); logger may be nil (slog.Default()).
func NewBuilder(prober probe.Prober, dirty DirtyChecker, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{prober: prober, dirty: dirty, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Tests use this to pin "now".
func (b *Builder) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// PageEntry builds the entry for the page itself by probing
// pagePath+".html". Timestamp priority: updated flag → now; else the
// origin's parsed Last-Modified; else none. A failed probe never
// suppresses the page entry.
func (b *Builder) PageEntry(ctx context.Context, host, pagePath string, updated bool) Entry {
	htmlPath := pagePath + ".html"
	entry := Entry{Path: htmlPath}

	meta, err := b.prober.Probe(ctx, host, htmlPath)
	if err != nil {
		b.logger.Debug("page probe failed", "path", htmlPath, "error", err)
	}

	switch {
	case updated:
		ms := b.now().UnixMilli()
		entry.Timestamp = &ms
	case err == nil:
		if ms, ok := probe.ParseLastModified(meta.LastModified); ok {
			entry.Timestamp = &ms
		}
	}
	return entry
}

// ResourceEntry builds the entry for one resource reference. A failed
// probe falls back to the dirty check; a clean miss skips the resource
// (nil return) with a log line. Media entries are parent-prefixed and
// hash-identified, never timestamped.
func (b *Builder) ResourceEntry(ctx context.Context, host, parentPath, resourcePath string) *Entry {
	meta, err := b.prober.Probe(ctx, host, resourcePath)
	if err != nil && !b.locallyModified(resourcePath) {
		b.logger.Info("resource unavailable, skipped", "path", resourcePath, "error", err)
		return nil
	}

	if pagepath.IsMedia(resourcePath) {
		return &Entry{
			Path: parentPath + resourcePath,
			Hash: pagepath.MediaHash(resourcePath),
		}
	}

	entry := &Entry{Path: resourcePath}
	if meta != nil {
		if ms, ok := probe.ParseLastModified(meta.LastModified); ok {
			entry.Timestamp = &ms
		}
	}
	return entry
}

func (b *Builder) locallyModified(path string) bool {
	return b.dirty != nil && b.dirty.LocallyModified(path)
}
