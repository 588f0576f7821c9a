package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/remiblancher/qp12/internal/config"
	"github.com/remiblancher/qp12/internal/credential"
	"github.com/remiblancher/qp12/internal/openssl"
	"github.com/remiblancher/qp12/pkg/p12"
	"github.com/remiblancher/qp12/pkg/provider"
)

// newCodec builds the codec selected by cfg. Diagnostics go to diag.
func newCodec(cfg *config.Config, l *slog.Logger, diag io.Writer) *p12.Codec {
	var (
		loader provider.Loader
		engine p12.Engine
	)

	switch cfg.Engine {
	case config.EngineOpenSSL:
		runner := &openssl.ExecRunner{Path: cfg.OpenSSL.Binary}
		loader = openssl.NewProviderLoader(runner, cfg.OpenSSL.ProviderPath)
		engine = openssl.NewEngine(runner,
			openssl.WithIterations(cfg.OpenSSL.Iterations),
			openssl.WithProviderPath(cfg.OpenSSL.ProviderPath),
			openssl.WithTempDir(cfg.OpenSSL.TempDir),
			openssl.WithLogger(l),
		)
	default:
		loader = provider.NewBuiltin(cfg.DisabledProviders...)
		engine = p12.NewNativeEngine(nil)
	}

	return p12.NewCodec(provider.NewRegistry(loader, l), engine,
		p12.WithLogger(l),
		p12.WithDiagnostics(diag),
		p12.WithProviders(cfg.Providers...),
	)
}

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// resolvePassphrase returns the passphrase of flag name. A set flag is
// resolved as a reference (env:, file: or literal). An unset flag is
// prompted for on a terminal and is an error otherwise: a passphrase may be
// empty but not absent.
func resolvePassphrase(cmd *cobra.Command, name, value, prompt string) (string, error) {
	if cmd.Flags().Changed(name) {
		return credential.ResolvePassphrase(value)
	}
	if !stdinIsTerminal() {
		return "", fmt.Errorf("--%s is required (use --%s '' for an empty passphrase)", name, name)
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", prompt)
	pass, err := readPassword()
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(pass), nil
}

// writeContainer writes a container readable only by its owner.
func writeContainer(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
