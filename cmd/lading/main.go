// CLAUDE:SUMMARY CLI entry point for lading — manifest builder with HTTP API, MCP over stdio/QUIC, and one-shot modes.
// Command lading builds content-delivery manifests for a Franklin-style site.
//
// Usage:
//
//	lading -config lading.yaml                   # serve with config file
//	lading -db lading.db -origin https://...     # serve with flag config
//	lading -db lading.db -build /site/page       # build one manifest and exit
//	lading -db lading.db -scan /site/page        # scan one page and exit
//	lading -db lading.db -stats                  # show stats and exit
//	lading -db lading.db -mcp                    # serve MCP over stdio
//	lading -hash-password secret                 # print bcrypt hash and exit
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lading"
	"github.com/hazyhaar/lading/audit"
	"github.com/hazyhaar/lading/dbopen"
	"github.com/hazyhaar/lading/mcpquic"
	"github.com/hazyhaar/lading/shield"
)

type options struct {
	configPath   string
	dbPath       string
	origin       string
	listen       string
	buildPath    string
	scanPath     string
	showStats    bool
	mcpStdio     bool
	mcpQUICAddr  string
	hashPassword string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to lading.yaml config file")
	flag.StringVar(&opts.dbPath, "db", "", "path to SQLite database")
	flag.StringVar(&opts.origin, "origin", "", "origin base URL, e.g. https://main--site--org.hlx.live")
	flag.StringVar(&opts.listen, "listen", "", "HTTP listen address (default :8087)")
	flag.StringVar(&opts.buildPath, "build", "", "build a manifest for this page path and exit")
	flag.StringVar(&opts.scanPath, "scan", "", "scan this page path and exit")
	flag.BoolVar(&opts.showStats, "stats", false, "show graph stats and exit")
	flag.BoolVar(&opts.mcpStdio, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&opts.mcpQUICAddr, "mcp-quic", "", "also serve MCP tools over QUIC on this address")
	flag.StringVar(&opts.hashPassword, "hash-password", "", "print a bcrypt hash for the admin password and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default LOG_LEVEL env or info)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevelFor(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("lading: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	// One-shot: hash an admin password. Needs no database.
	if opts.hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.hashPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// Audit trail (writes to the same database).
	auditLogger := audit.NewSQLiteLogger(db)
	if err := auditLogger.Init(); err != nil {
		return fmt.Errorf("audit init: %w", err)
	}
	defer auditLogger.Close()
	if cfg.Audit.RetentionDays > 0 {
		if removed, err := auditLogger.Cleanup(ctx, cfg.Audit.RetentionDays); err != nil {
			logger.Warn("audit cleanup", "error", err)
		} else if removed > 0 {
			logger.Info("audit cleanup", "removed", removed, "retention_days", cfg.Audit.RetentionDays)
		}
	}

	svc, err := lading.New(db, cfg, logger, lading.WithAudit(auditLogger))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: build a manifest.
	if opts.buildPath != "" {
		m, _, err := svc.BuildManifest(ctx, opts.buildPath)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	// One-shot: scan a page.
	if opts.scanPath != "" {
		p, err := svc.ScanPage(ctx, opts.scanPath)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	// One-shot: stats.
	if opts.showStats {
		stats, err := svc.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	// MCP over stdio: a single session owned by the connected client.
	if opts.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "lading",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(srv)
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	return serve(ctx, logger, cfg, svc)
}

func serve(ctx context.Context, logger *slog.Logger, cfg *lading.Config, svc *lading.Service) error {
	// Optional MCP QUIC listener next to the HTTP API. Failures are
	// logged, not fatal — the API stays up.
	if cfg.MCP.QUICAddr != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "lading",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		var tlsCfg *tls.Config
		var err error
		if cfg.MCP.TLSCert != "" && cfg.MCP.TLSKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCP.TLSCert, cfg.MCP.TLSKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			logger.Error("MCP QUIC TLS", "error", err)
		} else {
			ql, qErr := mcpquic.NewListener(cfg.MCP.QUICAddr, tlsCfg, mcpSrv, logger)
			if qErr != nil {
				logger.Error("MCP QUIC listener", "error", qErr)
			} else {
				defer ql.Close()
				go func() {
					logger.Info("MCP QUIC starting", "addr", cfg.MCP.QUICAddr)
					if sErr := ql.Serve(ctx); sErr != nil && ctx.Err() == nil {
						logger.Error("MCP QUIC", "error", sErr)
					}
				}()
			}
		}
	}

	// Background rescan loop (when enabled).
	svc.Start(ctx)

	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Building a manifest is the read: each request assembles from the
	// current graph and records the build.
	r.Get("/api/manifest", func(w http.ResponseWriter, r *http.Request) {
		m, _, err := svc.BuildManifest(r.Context(), r.URL.Query().Get("page"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, m)
	})

	r.Get("/api/pages", func(w http.ResponseWriter, r *http.Request) {
		pages, err := svc.Pages(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if pages == nil {
			pages = []*lading.Page{}
		}
		writeJSON(w, 200, pages)
	})

	r.Get("/api/page", func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Page(r.Context(), r.URL.Query().Get("path"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, p)
	})

	r.Get("/api/breadcrumbs", func(w http.ResponseWriter, r *http.Request) {
		crumbs, err := svc.Breadcrumbs(r.URL.Query().Get("path"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if crumbs == nil {
			crumbs = []lading.Crumb{}
		}
		writeJSON(w, 200, crumbs)
	})

	r.Get("/api/builds", func(w http.ResponseWriter, r *http.Request) {
		builds, err := svc.RecentBuilds(r.Context(), r.URL.Query().Get("page"), queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if builds == nil {
			builds = []*lading.Build{}
		}
		writeJSON(w, 200, builds)
	})

	r.Get("/api/dirty", func(w http.ResponseWriter, r *http.Request) {
		paths, err := svc.DirtyPaths(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if paths == nil {
			paths = []string{}
		}
		writeJSON(w, 200, paths)
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, 200, stats)
	})

	// Mutating routes, guarded when an admin password hash is configured.
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(cfg.Admin.PasswordHash))

		r.Post("/api/pages", func(w http.ResponseWriter, r *http.Request) {
			var p lading.Page
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeError(w, 400, err)
				return
			}
			stored, err := svc.UpsertPage(r.Context(), &p)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, stored)
		})

		r.Delete("/api/pages", func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Query().Get("path")
			if err := svc.DeletePage(r.Context(), path); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"deleted": path})
		})

		r.Post("/api/scan", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Path string `json:"path"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			p, err := svc.ScanPage(r.Context(), req.Path)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, p)
		})

		r.Post("/api/dirty", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Path string `json:"path"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.MarkDirty(r.Context(), req.Path); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"path": req.Path, "dirty": true})
		})

		r.Delete("/api/dirty", func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Query().Get("path")
			if err := svc.ClearDirty(r.Context(), path); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"path": path, "dirty": false})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "listen", cfg.Listen, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func resolveConfig(opts options) (*lading.Config, error) {
	cfg := &lading.Config{}
	if opts.configPath != "" {
		var err error
		cfg, err = lading.LoadConfigFile(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	// Flags override file values.
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.origin != "" {
		cfg.Origin.Host = opts.origin
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.mcpQUICAddr != "" {
		cfg.MCP.QUICAddr = opts.mcpQUICAddr
	}

	if opts.configPath == "" && cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "usage: lading -config <file> | -db <path> [-origin <url>] [-build <path>] [-scan <path>] [-stats] [-mcp]")
		os.Exit(1)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "lading.db"
	}
	return cfg, nil
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lading.ErrEmptyPath), errors.Is(err, lading.ErrInvalidPath):
		return 400
	case errors.Is(err, lading.ErrPageNotFound):
		return 404
	case errors.Is(err, lading.ErrOriginNotConfigured):
		return 503
	default:
		return 500
	}
}

// --- Auth middleware ---

// requireAdmin checks HTTP basic auth against the configured bcrypt
// hash. An empty hash leaves the routes open.
func requireAdmin(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="lading"`)
				writeJSON(w, 401, map[string]string{"error": "authentication required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

// logLevelFor resolves the slog level: the -log-level flag when set,
// else the LOG_LEVEL environment variable, else info.
func logLevelFor(flagValue string) slog.Level {
	s := flagValue
	if s == "" {
		s = env("LOG_LEVEL", "info")
	}
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
