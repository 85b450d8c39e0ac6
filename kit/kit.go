// Package kit carries the transport plumbing shared by lading's service
// endpoints: the Endpoint function type, middleware chaining, typed
// context keys, and the MCP tool bridge.
package kit

import "context"

// Endpoint is a transport-agnostic service call: typed request in, typed
// response out. HTTP handlers and MCP tools both reduce to one of these.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
