package openssl

import (
	"context"
	"fmt"

	"github.com/remiblancher/qp12/pkg/provider"
)

// ProviderLoader implements provider.Loader by asking openssl whether it can
// load a provider. openssl loads providers per process, so a loaded
// Provider only records that the probe succeeded.
type ProviderLoader struct {
	runner       Runner
	providerPath string
}

var _ provider.Loader = (*ProviderLoader)(nil)

// NewProviderLoader returns a loader probing through r. providerPath, when
// set, is passed as -provider-path.
func NewProviderLoader(r Runner, providerPath string) *ProviderLoader {
	return &ProviderLoader{runner: r, providerPath: providerPath}
}

// Load runs "openssl list -providers -provider NAME".
func (l *ProviderLoader) Load(ctx context.Context, name string) (provider.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	algs := provider.Catalog(name)
	if algs == nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, name)
	}

	args := []string{"list", "-providers", "-provider", name}
	if l.providerPath != "" {
		args = append(args, "-provider-path", l.providerPath)
	}
	_, stderr, err := l.runner.Run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", provider.ErrUnavailable, name, newCommandError(args, stderr, err))
	}
	return provider.NewStatic(name, algs...), nil
}

// Unload is a no-op: nothing stays loaded between openssl processes.
func (l *ProviderLoader) Unload(provider.Provider) error { return nil }
