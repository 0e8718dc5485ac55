package download

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Backend installs a curated model. Unlike a general file-transfer
// protocol, model installation has no resumable byte-range concept: a
// backend either succeeds or fails the whole install.
type Backend interface {
	Download(ctx context.Context, modelID string) error
}

// BackendFunc adapts a plain function to the Backend interface.
type BackendFunc func(ctx context.Context, modelID string) error

func (f BackendFunc) Download(ctx context.Context, modelID string) error { return f(ctx, modelID) }

// Router dispatches a modelID to the Backend registered for its prefix
// (cpu:, gpu:, ollama:).
type Router struct {
	routes map[string]Backend
}

// NewRouter creates an empty Router; callers Register backends for each
// prefix they support.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Backend)}
}

// Register associates prefix (e.g. "cpu") with backend.
func (r *Router) Register(prefix string, backend Backend) {
	r.routes[strings.ToLower(prefix)] = backend
}

// Resolve returns the Backend for modelID's prefix (the part before the
// first colon).
func (r *Router) Resolve(modelID string) (Backend, error) {
	prefix, _, ok := strings.Cut(modelID, ":")
	if !ok {
		return nil, fmt.Errorf("%w: no prefix in model id %q", ErrUnsupportedBackend, modelID)
	}
	backend, ok := r.routes[strings.ToLower(prefix)]
	if !ok {
		return nil, fmt.Errorf("%w %q, supported: %s", ErrUnsupportedBackend, prefix, strings.Join(r.supportedPrefixes(), ", "))
	}
	return backend, nil
}

func (r *Router) supportedPrefixes() []string {
	prefixes := make([]string, 0, len(r.routes))
	for p := range r.routes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// ErrUnsupportedBackend is returned when a modelID's prefix has no
// registered backend.
var ErrUnsupportedBackend = fmt.Errorf("unsupported model backend")
