package main

import (
	"crypto/x509"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/internal/credential"
	"github.com/remiblancher/qp12/pkg/p12"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a PKCS#12 container from PEM files",
	Long: `Build a PKCS#12 container from a private key, its certificate and an
optional CA chain.

The container uses PBE-SHA1-3DES for the key bag, PBE-SHA1-RC2-40 for the
certificate bag, 2048 iterations and a SHA-1 MAC with one iteration.

Passphrases accept env:VAR, file:PATH or a literal value. When --passout is
omitted on a terminal, the passphrase is prompted for.

Examples:
  qp12 build --key server.key --cert server.crt --out server.p12 --passout test123 --name MyCert
  qp12 build --key server.key --cert server.crt --ca sub.pem --ca root.pem --out server.p12 --passout env:P12_PASS`,
	RunE: runBuild,
}

var (
	buildKeyFile  string
	buildKeyPass  string
	buildCertFile string
	buildCAFiles  []string
	buildOutput   string
	buildPassOut  string
	buildName     string
)

func init() {
	flags := buildCmd.Flags()
	flags.StringVar(&buildKeyFile, "key", "", "Private key PEM file (required)")
	flags.StringVar(&buildKeyPass, "key-pass", "", "Passphrase of an encrypted PEM key")
	flags.StringVar(&buildCertFile, "cert", "", "Certificate PEM or DER file (required)")
	flags.StringSliceVar(&buildCAFiles, "ca", nil, "CA certificate file, in chain order (repeatable)")
	flags.StringVarP(&buildOutput, "out", "o", "", "Output container file (required)")
	flags.StringVar(&buildPassOut, "passout", "", "Container passphrase (env:VAR, file:PATH or literal)")
	flags.StringVar(&buildName, "name", "", "Friendly name")

	_ = buildCmd.MarkFlagRequired("key")
	_ = buildCmd.MarkFlagRequired("cert")
	_ = buildCmd.MarkFlagRequired("out")
}

func runBuild(cmd *cobra.Command, args []string) error {
	keyPass, err := credential.ResolvePassphrase(buildKeyPass)
	if err != nil {
		return err
	}
	key, err := credential.LoadPrivateKey(buildKeyFile, []byte(keyPass))
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}

	certs, err := credential.LoadCertificates(buildCertFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	// Extra certificates in --cert come first in the chain
	cas := append([]*x509.Certificate(nil), certs[1:]...)
	for _, path := range buildCAFiles {
		chain, err := credential.LoadCertificates(path)
		if err != nil {
			return fmt.Errorf("failed to load CA certificates: %w", err)
		}
		cas = append(cas, chain...)
	}

	passphrase, err := resolvePassphrase(cmd, "passout", buildPassOut, "Container passphrase")
	if err != nil {
		return err
	}

	codec := newCodec(appConfig, logger, cmd.ErrOrStderr())
	data, err := codec.Build(cmd.Context(), &p12.BuildRequest{
		Passphrase:   passphrase,
		FriendlyName: buildName,
		PrivateKey:   key,
		Certificate:  certs[0],
		CACerts:      cas,
	})
	if err != nil {
		return err
	}

	if err := writeContainer(buildOutput, data); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "PKCS#12 container written to %s\n", buildOutput)
	_, _ = fmt.Fprintf(out, "  Subject:  %s\n", certs[0].Subject.String())
	_, _ = fmt.Fprintf(out, "  CA certs: %d\n", len(cas))
	_, _ = fmt.Fprintf(out, "  Engine:   %s\n", codec.Engine())
	return nil
}
