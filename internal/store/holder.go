package store

import (
	"log/slog"
	"sync"
)

// Holder owns the "current store" reference for a deployment. Swapping
// backends (e.g., after a successful migration) is an explicit Replace
// call rather than a mutable global, so the transition is observable and
// callers always work against an explicit handle.
type Holder struct {
	mu      sync.RWMutex
	current VectorStore
}

// NewHolder creates a holder with the given initial store.
func NewHolder(initial VectorStore) *Holder {
	return &Holder{current: initial}
}

// Current returns the active store.
func (h *Holder) Current() VectorStore {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Replace swaps the active store and returns the previous one. The caller
// decides whether to Close the previous store; migration never does.
func (h *Holder) Replace(next VectorStore) VectorStore {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current
	h.current = next
	slog.Info("current store replaced")
	return prev
}
