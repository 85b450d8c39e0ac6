// CLAUDE:SUMMARY Sentinel errors for the lading service: empty path, invalid path, unknown page, missing origin.
package lading

import "errors"

// ErrEmptyPath is returned when an operation receives a blank page path.
var ErrEmptyPath = errors.New("lading: empty page path")

// ErrInvalidPath is returned when a page path is not root-relative.
var ErrInvalidPath = errors.New("lading: invalid page path")

// ErrPageNotFound is returned when a page is not in the content graph.
var ErrPageNotFound = errors.New("lading: page not found")

// ErrOriginNotConfigured is returned when an operation needs the origin
// host and none is configured.
var ErrOriginNotConfigured = errors.New("lading: origin host not configured")
