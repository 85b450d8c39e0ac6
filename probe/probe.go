// Package probe checks resources on content-delivery origins with
// lightweight HTTP HEAD requests and reports their Last-Modified metadata.
//
// A probe has three outcomes: the resource is available with a
// Last-Modified value, available without one, or unavailable
// (ErrUnavailable). Callers decide what unavailability means; nothing
// here is fatal.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Metadata is what a probe learns about a remote resource.
type Metadata struct {
	// LastModified is the raw Last-Modified header value, "" when the
	// origin sent none.
	LastModified string
}

// ErrUnavailable reports that the origin does not serve the probed path.
var ErrUnavailable = errors.New("probe: resource unavailable")

// Prober checks a single resource on a delivery origin.
type Prober interface {
	Probe(ctx context.Context, host, path string) (*Metadata, error)
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, host, path string) (*Metadata, error)

// Probe calls f.
func (f Func) Probe(ctx context.Context, host, path string) (*Metadata, error) {
	return f(ctx, host, path)
}

// Config configures the HTTP prober.
type Config struct {
	Timeout   time.Duration // per-probe timeout. Default: 10s.
	UserAgent string        // sent with requests. Default: "lading-probe/1.0".
	// MaxRetries is the number of additional attempts after a network
	// error or 5xx answer. Default: 0 (single attempt).
	MaxRetries int
	// RetryBackoff is the wait before the first retry, doubled each
	// attempt. Default: 500ms.
	RetryBackoff time.Duration
	// URLValidator validates URLs before probing (SSRF prevention).
	// Default: ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "lading-probe/1.0"
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// HTTP probes origins with HEAD requests.
type HTTP struct {
	client *http.Client
	config Config
}

// NewHTTP creates an HTTP prober with SSRF protection on redirects.
func NewHTTP(cfg Config) *HTTP {
	cfg.defaults()
	validate := cfg.URLValidator
	return &HTTP{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Probe sends HEAD host+path. A 2xx answer yields Metadata (LastModified
// may be empty). Any other answer or a network error wraps ErrUnavailable.
func (h *HTTP) Probe(ctx context.Context, host, path string) (*Metadata, error) {
	url := host + path
	if err := h.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("URL blocked (SSRF): %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, h.config.RetryBackoff*(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}
		meta, retriable, err := h.head(ctx, url)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if !retriable {
			break
		}
	}
	return nil, lastErr
}

// head performs one HEAD attempt. retriable marks failures worth another
// attempt (network errors and 5xx).
func (h *HTTP) head(ctx context.Context, url string) (meta *Metadata, retriable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", h.config.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}
	return &Metadata{LastModified: resp.Header.Get("Last-Modified")}, false, nil
}

// ParseLastModified converts a Last-Modified header value to epoch
// milliseconds. ok is false for empty or unparseable values.
func ParseLastModified(value string) (ms int64, ok bool) {
	if value == "" {
		return 0, false
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
