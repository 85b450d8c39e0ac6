// Package idgen generates identifiers for stored records and sessions.
// The default shape is a UUIDv7 string, so IDs sort roughly by creation
// time, optionally carrying a short type prefix ("bld_...").
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator func() string

// New returns a time-ordered UUIDv7 string.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Default is the generator used when none is injected.
var Default Generator = New

// Prefixed wraps g so every ID carries the given prefix.
func Prefixed(prefix string, g Generator) Generator {
	return func() string { return prefix + g() }
}

// nanoAlphabet has 64 symbols so one random byte maps to one symbol
// without modulo bias.
const nanoAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NanoID returns a Generator producing n-character URL-safe random IDs.
// Shorter than a UUID; meant for session IDs where the timestamp
// ordering of UUIDv7 buys nothing.
func NanoID(n int) Generator {
	return func() string {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = nanoAlphabet[b&63]
		}
		return string(buf)
	}
}
