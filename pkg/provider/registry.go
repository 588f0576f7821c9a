package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Registry hands out provider handles and tracks the ones still loaded.
// It is safe for concurrent use; every operation holds its own handles.
type Registry struct {
	loader Loader
	logger *slog.Logger

	mu   sync.Mutex
	live map[*Handle]struct{}
}

// NewRegistry creates a Registry on top of loader.
// A nil logger discards log output.
func NewRegistry(loader Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		loader: loader,
		logger: logger,
		live:   make(map[*Handle]struct{}),
	}
}

// Handle is one loaded provider. Unload must be called exactly once for
// the provider to be released; extra calls are no-ops.
type Handle struct {
	reg  *Registry
	prov Provider

	once sync.Once
	err  error
}

// Load loads a single provider by name.
func (r *Registry) Load(ctx context.Context, name string) (*Handle, error) {
	p, err := r.loader.Load(ctx, name)
	if err != nil {
		r.logger.Debug("provider load failed", "provider", name, "error", err)
		return nil, fmt.Errorf("%w %q: %w", ErrLoad, name, err)
	}

	h := &Handle{reg: r, prov: p}

	r.mu.Lock()
	r.live[h] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("provider loaded", "provider", name)
	return h, nil
}

// Outstanding returns the number of handles loaded but not yet unloaded.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Name returns the provider name.
func (h *Handle) Name() string { return h.prov.Name() }

// Provider returns the loaded provider.
func (h *Handle) Provider() Provider { return h.prov }

// Unload releases the provider.
func (h *Handle) Unload() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.reg.loader.Unload(h.prov)

		h.reg.mu.Lock()
		delete(h.reg.live, h)
		h.reg.mu.Unlock()

		if h.err != nil {
			h.reg.logger.Warn("provider unload failed", "provider", h.prov.Name(), "error", h.err)
		} else {
			h.reg.logger.Debug("provider unloaded", "provider", h.prov.Name())
		}
	})
	return h.err
}

// Guard holds the providers of one operation.
type Guard struct {
	mu      sync.Mutex
	handles []*Handle
}

// Acquire loads every named provider, in order. It succeeds only if all of
// them load; on failure the providers already loaded are unloaded in
// reverse order before the error is returned, so no partial state is left.
func (r *Registry) Acquire(ctx context.Context, names ...string) (*Guard, error) {
	g := &Guard{handles: make([]*Handle, 0, len(names))}

	for _, name := range names {
		h, err := r.Load(ctx, name)
		if err != nil {
			if rerr := g.Release(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
		g.handles = append(g.handles, h)
	}

	return g, nil
}

// Release unloads every held provider in reverse load order. It is safe to
// call on a nil Guard and more than once.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].Unload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the held provider names in load order.
func (g *Guard) Names() []string {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, len(g.handles))
	for i, h := range g.handles {
		names[i] = h.Name()
	}
	return names
}

// Supports reports whether any held provider supplies alg.
func (g *Guard) Supports(alg Algorithm) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, h := range g.handles {
		if h.prov.Supports(alg) {
			return true
		}
	}
	return false
}

// Require returns ErrUnsupported naming the first algorithm that no held
// provider supplies.
func (g *Guard) Require(algs ...Algorithm) error {
	for _, alg := range algs {
		if !g.Supports(alg) {
			return fmt.Errorf("%w: %s (loaded: %v)", ErrUnsupported, alg, g.Names())
		}
	}
	return nil
}
