// Package assets holds the asset allow-list consulted by the marketplace
// and the escrow before accepting new positions, offers, or transactions.
package assets

import "sync"

// Whitelist maps asset identifiers to an allowed flag. The native asset
// and the protocol's own asset are always allowed; everything else is
// admin-mutable.
type Whitelist struct {
	mu      sync.RWMutex
	always  map[string]bool
	allowed map[string]bool
}

// NewWhitelist creates a whitelist with the given always-allowed assets.
func NewWhitelist(always ...string) *Whitelist {
	w := &Whitelist{
		always:  make(map[string]bool, len(always)),
		allowed: make(map[string]bool),
	}
	for _, a := range always {
		w.always[a] = true
	}
	return w
}

// Allowed reports whether an asset may be used.
func (w *Whitelist) Allowed(asset string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.always[asset] || w.allowed[asset]
}

// Set flips the allowed flag for an asset. Always-allowed assets cannot
// be disabled.
func (w *Whitelist) Set(asset string, allowed bool) {
	w.mu.Lock()
	w.allowed[asset] = allowed
	w.mu.Unlock()
}
