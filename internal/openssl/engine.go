package openssl

import (
	"bufio"
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/remiblancher/qp12/internal/credential"
	"github.com/remiblancher/qp12/pkg/p12"
	"github.com/remiblancher/qp12/pkg/provider"
)

// Name identifies the openssl engine.
const Name = "openssl"

// DefaultIterations is the key derivation iteration count of the legacy
// profile. The MAC always uses a single iteration.
const DefaultIterations = 2048

var encodeAlgs = []provider.Algorithm{
	provider.AlgPKCS12KDF,
	provider.AlgSHA1,
	provider.AlgHMAC,
	provider.AlgDESEDE3CBC,
	provider.AlgRC240CBC,
}

// Engine implements p12.Engine with "openssl pkcs12". Key material and
// passphrases only ever reach openssl through files in a private temporary
// directory, removed when the call returns.
type Engine struct {
	runner       Runner
	iterations   int
	providerPath string
	tempDir      string
	logger       *slog.Logger
}

var (
	_ p12.Engine        = (*Engine)(nil)
	_ p12.FriendlyNamer = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithIterations sets the key derivation iteration count.
func WithIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.iterations = n
		}
	}
}

// WithProviderPath passes -provider-path to every command.
func WithProviderPath(path string) Option {
	return func(e *Engine) { e.providerPath = path }
}

// WithTempDir sets the parent of the per-call temporary directories.
func WithTempDir(dir string) Option {
	return func(e *Engine) { e.tempDir = dir }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine running commands through r.
func NewEngine(r Runner, opts ...Option) *Engine {
	e := &Engine{
		runner:     r,
		iterations: DefaultIterations,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns "openssl".
func (e *Engine) Name() string { return Name }

// WritesFriendlyName returns true.
func (e *Engine) WritesFriendlyName() bool { return true }

// Iterations returns the configured key derivation iteration count.
func (e *Engine) Iterations() int { return e.iterations }

// Encode implements p12.Engine.
func (e *Engine) Encode(ctx context.Context, g *provider.Guard, b *p12.Bundle, passphrase string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.Require(encodeAlgs...); err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}

	ws, err := e.workspace()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}
	defer ws.remove(e.logger)

	keyPEM, err := credential.EncodePrivateKeyPEM(b.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}
	keyPath, err := ws.write("key.pem", keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}
	certPath, err := ws.write("cert.pem", credential.EncodeCertificatesPEM([]*x509.Certificate{b.Certificate}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}
	passArg, err := ws.passphrase(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
	}
	outPath := ws.path("out.p12")

	args := []string{
		"pkcs12", "-export",
		"-inkey", keyPath,
		"-in", certPath,
	}
	if len(b.CACerts) > 0 {
		caPath, err := ws.write("ca.pem", credential.EncodeCertificatesPEM(b.CACerts))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", p12.ErrConstruct, err)
		}
		args = append(args, "-certfile", caPath)
	}
	args = append(args,
		"-keypbe", "PBE-SHA1-3DES",
		"-certpbe", "PBE-SHA1-RC2-40",
		"-macalg", "sha1",
		"-nomaciter",
		"-iter", strconv.Itoa(e.iterations),
	)
	if b.FriendlyName != "" {
		args = append(args, "-name", b.FriendlyName)
	}
	args = append(args, "-passout", passArg, "-out", outPath)
	args = append(args, e.providerArgs(g)...)

	if _, stderr, err := e.runner.Run(ctx, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(stageExport, newCommandError(args, stderr, err))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrSerialize, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: openssl wrote an empty container", p12.ErrSerialize)
	}
	return data, nil
}

// Decode implements p12.Engine.
func (e *Engine) Decode(ctx context.Context, g *provider.Guard, data []byte, passphrase string) (*p12.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.Require(provider.AlgPKCS12KDF, provider.AlgSHA1, provider.AlgHMAC); err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}

	ws, err := e.workspace()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}
	defer ws.remove(e.logger)

	inPath, err := ws.write("in.p12", data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}
	passArg, err := ws.passphrase(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}

	args := []string{"pkcs12", "-in", inPath, "-nodes", "-passin", passArg}
	args = append(args, e.providerArgs(g)...)

	stdout, stderr, err := e.runner.Run(ctx, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(stageImport, newCommandError(args, stderr, err))
	}
	return parseBundle(stdout)
}

// providerArgs passes the guard's providers, in load order.
func (e *Engine) providerArgs(g *provider.Guard) []string {
	var args []string
	for _, name := range g.Names() {
		args = append(args, "-provider", name)
	}
	if e.providerPath != "" {
		args = append(args, "-provider-path", e.providerPath)
	}
	return args
}

// parseBundle reads "openssl pkcs12 -nodes" output. The leaf is the
// certificate matching the key; the others are CA certificates in output
// order.
func parseBundle(out []byte) (*p12.Bundle, error) {
	key, err := credential.ParsePrivateKeyPEM(out, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}
	certs, err := credential.DecodeCertificatesPEM(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", p12.ErrDecode, err)
	}

	b := &p12.Bundle{PrivateKey: key, FriendlyName: friendlyName(out)}
	for _, cert := range certs {
		if b.Certificate == nil && p12.KeyMatches(key, cert) {
			b.Certificate = cert
			continue
		}
		b.CACerts = append(b.CACerts, cert)
	}
	if b.Certificate == nil {
		return nil, fmt.Errorf("%w: no certificate matches the private key", p12.ErrDecode)
	}
	return b, nil
}

// friendlyName returns the first friendlyName bag attribute of out.
func friendlyName(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := strings.CutPrefix(line, "friendlyName:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// workspace is a private temporary directory for one command.
type workspace struct {
	dir string
}

func (e *Engine) workspace() (*workspace, error) {
	dir, err := os.MkdirTemp(e.tempDir, "qp12-openssl-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to restrict temp dir: %w", err)
	}
	return &workspace{dir: dir}, nil
}

func (w *workspace) path(name string) string { return filepath.Join(w.dir, name) }

func (w *workspace) write(name string, data []byte) (string, error) {
	p := w.path(name)
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return p, nil
}

// passphrase returns the -passin/-passout argument for pass. An empty
// passphrase is passed inline since openssl rejects an empty password file.
func (w *workspace) passphrase(pass string) (string, error) {
	if pass == "" {
		return "pass:", nil
	}
	p, err := w.write("pass.txt", []byte(pass))
	if err != nil {
		return "", err
	}
	return "file:" + p, nil
}

func (w *workspace) remove(logger *slog.Logger) {
	if err := os.RemoveAll(w.dir); err != nil {
		logger.Warn("failed to remove openssl temp dir", "dir", w.dir, "error", err)
	}
}
