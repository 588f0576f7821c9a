package provider

import (
	"context"
	"fmt"
	"sync"
)

// Builtin loads providers from the in-process catalog. It backs the native
// engine, whose primitives are compiled in.
//
// Disabled names fail to load with ErrUnavailable, which is how a runtime
// without the legacy provider is modelled.
type Builtin struct {
	mu       sync.RWMutex
	disabled map[string]bool
}

var _ Loader = (*Builtin)(nil)

// NewBuiltin returns a Builtin loader with the given provider names disabled.
func NewBuiltin(disabled ...string) *Builtin {
	b := &Builtin{disabled: make(map[string]bool)}
	for _, name := range disabled {
		b.disabled[name] = true
	}
	return b
}

// Disable makes name unavailable for subsequent loads.
func (b *Builtin) Disable(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled[name] = true
}

// Enable makes name available again.
func (b *Builtin) Enable(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.disabled, name)
}

// Load returns the catalog provider for name.
func (b *Builtin) Load(ctx context.Context, name string) (Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	disabled := b.disabled[name]
	b.mu.RUnlock()

	if disabled {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}

	algs := Catalog(name)
	if algs == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return NewStatic(name, algs...), nil
}

// Unload is a no-op: builtin providers hold no external resources.
func (b *Builtin) Unload(Provider) error { return nil }
