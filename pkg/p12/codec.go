// Package p12 builds and re-encodes PKCS#12 containers with the legacy
// algorithm profile still required by older consumers: a PBE-SHA1-3DES key
// bag, a PBE-SHA1-RC2-40 certificate bag, 2048 PBE iterations and an
// HMAC-SHA1 MAC computed with a single iteration.
//
// Every operation loads the algorithm providers it needs ("legacy" then
// "default") through a provider.Guard and releases them before returning,
// on success and failure alike:
//
//	reg := provider.NewRegistry(provider.NewBuiltin(), nil)
//	codec := p12.NewCodec(reg, p12.NewNativeEngine(nil))
//
//	pfx, err := codec.Build(ctx, &p12.BuildRequest{
//	    Passphrase:   "test123",
//	    FriendlyName: "MyCert",
//	    PrivateKey:   key,
//	    Certificate:  cert,
//	})
//
// On failure no bytes are returned, the engine messages are written to the
// diagnostics writer under a "PKCS#12 errors:" header, and the error is an
// *OpError wrapping one of the sentinel errors.
package p12

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/remiblancher/qp12/pkg/audit"
	"github.com/remiblancher/qp12/pkg/provider"
)

// DefaultProviders are loaded, in order, for every operation.
var DefaultProviders = []string{provider.Legacy, provider.Default}

// Codec runs PKCS#12 operations on an Engine. It is safe for concurrent
// use: each call holds its own provider guard.
type Codec struct {
	reg       *provider.Registry
	engine    Engine
	providers []string
	logger    *slog.Logger

	diagMu sync.Mutex
	diag   io.Writer
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger for technical messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDiagnostics sets where failure diagnostics are written.
// The default is os.Stderr; nil discards them.
func WithDiagnostics(w io.Writer) Option {
	return func(c *Codec) {
		if w == nil {
			w = io.Discard
		}
		c.diag = w
	}
}

// WithProviders overrides the providers loaded for each operation.
func WithProviders(names ...string) Option {
	return func(c *Codec) {
		if len(names) > 0 {
			c.providers = append([]string(nil), names...)
		}
	}
}

// NewCodec creates a Codec that loads providers from reg and runs engine.
func NewCodec(reg *provider.Registry, engine Engine, opts ...Option) *Codec {
	c := &Codec{
		reg:       reg,
		engine:    engine,
		providers: append([]string(nil), DefaultProviders...),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		diag:      os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the engine name.
func (c *Codec) Engine() string { return c.engine.Name() }

// Providers returns the providers loaded for each operation.
func (c *Codec) Providers() []string {
	return append([]string(nil), c.providers...)
}

// Registry returns the provider registry.
func (c *Codec) Registry() *provider.Registry { return c.reg }

// BuildRequest holds the inputs of Build. The key, certificate and CA
// chain are borrowed and never modified.
type BuildRequest struct {
	// Passphrase protects the container. It may be empty.
	Passphrase string

	// FriendlyName is stored on the key and certificate bags when the
	// engine supports it.
	FriendlyName string

	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate

	// CACerts is the ordered CA chain. It may be empty.
	CACerts []*x509.Certificate
}

// Build assembles a container from the request and returns its DER
// encoding. It never returns partial output.
func (c *Codec) Build(ctx context.Context, req *BuildRequest) ([]byte, error) {
	if req == nil {
		return nil, c.fail(OpBuild, fmt.Errorf("%w: nil request", ErrInvalidInput), nil)
	}
	b := &Bundle{
		PrivateKey:   req.PrivateKey,
		Certificate:  req.Certificate,
		CACerts:      req.CACerts,
		FriendlyName: req.FriendlyName,
	}
	if err := b.validate(); err != nil {
		return nil, c.fail(OpBuild, err, nil)
	}

	guard, err := c.acquire(ctx)
	if err != nil {
		return nil, c.fail(OpBuild, err, nil)
	}
	defer c.release(guard)

	record := containerRecord(b)

	if !KeyMatches(b.PrivateKey, b.Certificate) {
		err := fmt.Errorf("%w: private key does not match certificate", ErrConstruct)
		_ = audit.LogPKCS12Built(ctx, c.engine.Name(), guard.Names(), record, false, err.Error())
		return nil, c.fail(OpBuild, err, nil)
	}

	notes := c.friendlyNameNotes(b.FriendlyName)

	data, err := c.engine.Encode(ctx, guard, b, req.Passphrase)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: engine returned no data", ErrSerialize)
	}
	if err != nil {
		err = ensureKind(err, ErrConstruct)
		_ = audit.LogPKCS12Built(ctx, c.engine.Name(), guard.Names(), record, false, err.Error())
		return nil, c.fail(OpBuild, err, notes)
	}

	if err := audit.LogPKCS12Built(ctx, c.engine.Name(), guard.Names(), record, true, ""); err != nil {
		return nil, c.fail(OpBuild, err, notes)
	}

	c.logger.Debug("pkcs12 container built",
		"engine", c.engine.Name(),
		"subject", b.Certificate.Subject.String(),
		"ca_count", len(b.CACerts),
		"size", len(data))
	return data, nil
}

// RepassphraseRequest holds the inputs of Repassphrase.
type RepassphraseRequest struct {
	Data          []byte
	Passphrase    string
	NewPassphrase string

	// FriendlyName replaces the decoded friendly name when not empty.
	FriendlyName string
}

// Repassphrase decodes a container under its current passphrase and
// re-encodes it under a new one with the same legacy algorithms as Build.
// Wrong passphrases and malformed input both fail with ErrDecode.
func (c *Codec) Repassphrase(ctx context.Context, req *RepassphraseRequest) ([]byte, error) {
	if req == nil {
		return nil, c.fail(OpRepassphrase, fmt.Errorf("%w: nil request", ErrInvalidInput), nil)
	}
	if len(req.Data) == 0 {
		return nil, c.fail(OpRepassphrase, fmt.Errorf("%w: empty container", ErrDecode), nil)
	}

	guard, err := c.acquire(ctx)
	if err != nil {
		return nil, c.fail(OpRepassphrase, err, nil)
	}
	defer c.release(guard)

	b, err := c.decode(ctx, guard, req.Data, req.Passphrase)
	if err != nil {
		return nil, c.fail(OpRepassphrase, err, nil)
	}
	if req.FriendlyName != "" {
		b.FriendlyName = req.FriendlyName
	}

	record := containerRecord(b)
	notes := c.friendlyNameNotes(b.FriendlyName)

	data, err := c.engine.Encode(ctx, guard, b, req.NewPassphrase)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: engine returned no data", ErrSerialize)
	}
	if err != nil {
		err = ensureKind(err, ErrConstruct)
		_ = audit.LogPKCS12Repassphrased(ctx, c.engine.Name(), guard.Names(), record, false, err.Error())
		return nil, c.fail(OpRepassphrase, err, notes)
	}

	if err := audit.LogPKCS12Repassphrased(ctx, c.engine.Name(), guard.Names(), record, true, ""); err != nil {
		return nil, c.fail(OpRepassphrase, err, notes)
	}

	c.logger.Debug("pkcs12 container re-encoded",
		"engine", c.engine.Name(),
		"subject", b.Certificate.Subject.String(),
		"size", len(data))
	return data, nil
}

// acquire loads the configured providers for one operation.
func (c *Codec) acquire(ctx context.Context) (*provider.Guard, error) {
	guard, err := c.reg.Acquire(ctx, c.providers...)
	if err != nil {
		_ = audit.LogProviderLoadFailed(ctx, c.engine.Name(), c.providers, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrProviderLoad, err)
	}
	return guard, nil
}

// release unloads the providers of one operation. A failure here cannot
// change the outcome, so it is only logged.
func (c *Codec) release(g *provider.Guard) {
	if err := g.Release(); err != nil {
		c.logger.Warn("provider release failed", "engine", c.engine.Name(), "error", err)
	}
}

// decode opens data and checks it holds a key and a certificate.
func (c *Codec) decode(ctx context.Context, g *provider.Guard, data []byte, passphrase string) (*Bundle, error) {
	b, err := c.engine.Decode(ctx, g, data, passphrase)
	if err == nil {
		switch {
		case b == nil || b.PrivateKey == nil:
			err = fmt.Errorf("%w: container holds no private key", ErrDecode)
		case b.Certificate == nil:
			err = fmt.Errorf("%w: container holds no certificate", ErrDecode)
		}
	}
	if err != nil {
		err = ensureKind(err, ErrDecode)
		_ = audit.LogAuthFailed(ctx, c.engine.Name(), "container could not be decoded")
		return nil, err
	}
	return b, nil
}

// friendlyNameNotes warns when the engine will drop name.
func (c *Codec) friendlyNameNotes(name string) Diagnostics {
	if name == "" || writesFriendlyName(c.engine) {
		return nil
	}
	c.logger.Warn("engine does not store friendly names",
		"engine", c.engine.Name(),
		"friendly_name", name)
	var d Diagnostics
	d.Add(fmt.Sprintf("friendly name %q not stored by %s engine", name, c.engine.Name()))
	return d
}

// fail drains the diagnostics of err and wraps it in an OpError.
func (c *Codec) fail(op string, err error, notes Diagnostics) error {
	diag := make(Diagnostics, 0, len(notes)+1)
	diag = append(diag, notes...)
	diag = append(diag, Collect(err)...)

	c.diagMu.Lock()
	_, _ = diag.WriteTo(c.diag)
	c.diagMu.Unlock()

	c.logger.Error("pkcs12 operation failed",
		"op", op,
		"engine", c.engine.Name(),
		"error", err,
		"diagnostics", len(diag))

	return &OpError{Op: op, Diag: diag, Err: err}
}

func containerRecord(b *Bundle) audit.Container {
	rec := audit.Container{
		FriendlyName: b.FriendlyName,
		Algorithm:    KeyAlgorithm(b.PrivateKey),
		CACount:      len(b.CACerts),
	}
	if b.Certificate != nil {
		rec.Subject = b.Certificate.Subject.String()
		rec.Serial = fmt.Sprintf("%X", b.Certificate.SerialNumber)
	}
	return rec
}
