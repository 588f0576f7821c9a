// Package provider manages the algorithm providers a PKCS#12 operation needs.
//
// A provider is a named bundle of cryptographic primitives. The legacy
// PKCS#12 profile needs two of them:
//   - "legacy"  - RC2 and single DES, required for 40-bit RC2 certificate bags
//   - "default" - 3DES, SHA-1/SHA-2, HMAC and the PKCS#12 key derivation
//
// Providers are never cached across operations. Each operation acquires a
// Guard, which loads the providers it needs and unloads them when the
// operation ends:
//
//	guard, err := registry.Acquire(ctx, provider.Legacy, provider.Default)
//	if err != nil {
//	    return err
//	}
//	defer guard.Release()
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Standard provider names.
const (
	Legacy  = "legacy"
	Default = "default"
)

// Algorithm names a primitive supplied by a provider.
type Algorithm string

// Primitives used by PKCS#12 encoding and decoding.
const (
	AlgRC240CBC   Algorithm = "RC2-40-CBC"
	AlgRC2128CBC  Algorithm = "RC2-128-CBC"
	AlgDESCBC     Algorithm = "DES-CBC"
	AlgRC4        Algorithm = "RC4"
	AlgDESEDE3CBC Algorithm = "DES-EDE3-CBC"
	AlgAES256CBC  Algorithm = "AES-256-CBC"
	AlgSHA1       Algorithm = "SHA1"
	AlgSHA256     Algorithm = "SHA256"
	AlgHMAC       Algorithm = "HMAC"
	AlgPKCS12KDF  Algorithm = "PKCS12KDF"
	AlgPBKDF2     Algorithm = "PBKDF2"
)

// catalog lists what each known provider supplies.
var catalog = map[string][]Algorithm{
	Legacy: {
		AlgRC240CBC,
		AlgRC2128CBC,
		AlgDESCBC,
		AlgRC4,
	},
	Default: {
		AlgDESEDE3CBC,
		AlgAES256CBC,
		AlgSHA1,
		AlgSHA256,
		AlgHMAC,
		AlgPKCS12KDF,
		AlgPBKDF2,
	},
}

// Catalog returns the algorithms a known provider supplies, or nil for an
// unknown name.
func Catalog(name string) []Algorithm {
	algs, ok := catalog[name]
	if !ok {
		return nil
	}
	out := make([]Algorithm, len(algs))
	copy(out, algs)
	return out
}

// Known reports whether name is a provider in the catalog.
func Known(name string) bool {
	_, ok := catalog[name]
	return ok
}

var (
	// ErrNotFound indicates the provider name is unknown to the loader.
	ErrNotFound = errors.New("provider not found")

	// ErrUnavailable indicates the provider exists but cannot be loaded
	// in this environment.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnsupported indicates no loaded provider supplies an algorithm.
	ErrUnsupported = errors.New("algorithm not supported by loaded providers")

	// ErrLoad wraps every provider load failure.
	ErrLoad = errors.New("failed to load provider")
)

// Provider is a loaded algorithm provider.
type Provider interface {
	// Name returns the provider name ("legacy", "default", ...).
	Name() string

	// Supports reports whether the provider supplies alg.
	Supports(alg Algorithm) bool
}

// Loader loads and unloads providers by name.
type Loader interface {
	Load(ctx context.Context, name string) (Provider, error)
	Unload(p Provider) error
}

// staticProvider is a Provider backed by a fixed algorithm list.
type staticProvider struct {
	name string
	algs map[Algorithm]bool
}

// NewStatic returns a Provider that supplies exactly algs.
func NewStatic(name string, algs ...Algorithm) Provider {
	set := make(map[Algorithm]bool, len(algs))
	for _, a := range algs {
		set[a] = true
	}
	return &staticProvider{name: name, algs: set}
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Supports(alg Algorithm) bool { return p.algs[alg] }

func (p *staticProvider) String() string { return fmt.Sprintf("provider(%s)", p.name) }
