// CLAUDE:SUMMARY Registers all lading MCP tools — manifest builds, scans, page CRUD, dirty markers, stats.
package lading

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lading/kit"
)

// RegisterMCP registers lading tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerManifestTool(srv)
	svc.registerScanTool(srv)
	svc.registerUpsertPageTool(srv)
	svc.registerGetPageTool(srv)
	svc.registerListPagesTool(srv)
	svc.registerMarkDirtyTool(srv)
	svc.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- manifest ---

type manifestRequest struct {
	Path string `json:"path"`
}

func (svc *Service) registerManifestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_manifest",
		Description: "Build the content-delivery manifest for a page: the page entry plus one entry per referenced resource, fragments included.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Root-relative page path, e.g. /site/page"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*manifestRequest)
		m, _, err := svc.BuildManifest(ctx, r.Path)
		return m, err
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r manifestRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- scan ---

type scanRequest struct {
	Path string `json:"path"`
}

func (svc *Service) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_scan",
		Description: "Fetch a page's rendered markup from the origin and refresh its resource lists in the content graph.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Root-relative page path to scan"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*scanRequest)
		return svc.ScanPage(ctx, r.Path)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r scanRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- upsert_page ---

type upsertPageRequest struct {
	Path         string   `json:"path"`
	Title        string   `json:"title,omitempty"`
	Scripts      []string `json:"scripts,omitempty"`
	Styles       []string `json:"styles,omitempty"`
	Assets       []string `json:"assets,omitempty"`
	InlineImages []string `json:"inline_images,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Fragments    []string `json:"fragments,omitempty"`
	Regenerated  bool     `json:"regenerated,omitempty"`
}

func (svc *Service) registerUpsertPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_upsert_page",
		Description: "Create or update a page record in the content graph with curated resource lists.",
		InputSchema: inputSchema(map[string]any{
			"path":          map[string]any{"type": "string", "description": "Root-relative page path"},
			"title":         map[string]any{"type": "string", "description": "Page title"},
			"scripts":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Script paths"},
			"styles":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Stylesheet paths"},
			"assets":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Media asset paths"},
			"inline_images": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Inline image paths"},
			"dependencies":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Dependent page/resource paths"},
			"fragments":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Embedded fragment paths"},
			"regenerated":   map[string]any{"type": "boolean", "description": "Flag the page as just regenerated"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*upsertPageRequest)
		return svc.UpsertPage(ctx, &Page{
			Path:         r.Path,
			Title:        r.Title,
			Scripts:      r.Scripts,
			Styles:       r.Styles,
			Assets:       r.Assets,
			InlineImages: r.InlineImages,
			Dependencies: r.Dependencies,
			Fragments:    r.Fragments,
			Regenerated:  r.Regenerated,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r upsertPageRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get_page ---

type getPageRequest struct {
	Path string `json:"path"`
}

func (svc *Service) registerGetPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_get_page",
		Description: "Get a page record and its resource lists from the content graph.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Root-relative page path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getPageRequest)
		return svc.Page(ctx, r.Path)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getPageRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list_pages ---

func (svc *Service) registerListPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_list_pages",
		Description: "List all pages in the content graph ordered by path.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		pages, err := svc.Pages(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pages": pages, "count": len(pages)}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- mark_dirty ---

type markDirtyRequest struct {
	Path  string `json:"path"`
	Clear bool   `json:"clear,omitempty"`
}

func (svc *Service) registerMarkDirtyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_mark_dirty",
		Description: "Mark a path as locally modified so probe failures keep it in manifests, or clear the marker.",
		InputSchema: inputSchema(map[string]any{
			"path":  map[string]any{"type": "string", "description": "Resource or page path"},
			"clear": map[string]any{"type": "boolean", "description": "Clear the marker instead of setting it"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*markDirtyRequest)
		var err error
		if r.Clear {
			err = svc.ClearDirty(ctx, r.Path)
		} else {
			err = svc.MarkDirty(ctx, r.Path)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": r.Path, "dirty": !r.Clear}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r markDirtyRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (svc *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lading_stats",
		Description: "Aggregate counters: pages, pending regenerated flags, dirty paths, recorded builds.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
