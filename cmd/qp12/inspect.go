package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/pkg/p12"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show what a PKCS#12 container holds",
	Long: `Decode a container and report its certificate, key algorithm, friendly
name and CA chain, whether the key matches the certificate, whether the chain
verifies against the self-signed certificates it carries, and whether a strict
legacy decoder can read it.

Examples:
  qp12 inspect --in server.p12 --passin test123
  qp12 inspect --in server.p12 --passin env:P12_PASS --json`,
	RunE: runInspect,
}

var (
	inspectInput  string
	inspectPassIn string
	inspectJSON   bool
)

func init() {
	flags := inspectCmd.Flags()
	flags.StringVarP(&inspectInput, "in", "i", "", "Container file (required)")
	flags.StringVar(&inspectPassIn, "passin", "", "Passphrase (env:VAR, file:PATH or literal)")
	flags.BoolVar(&inspectJSON, "json", false, "Output as JSON")

	_ = inspectCmd.MarkFlagRequired("in")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(inspectInput)
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}
	passphrase, err := resolvePassphrase(cmd, "passin", inspectPassIn, "Passphrase")
	if err != nil {
		return err
	}

	codec := newCodec(appConfig, logger, cmd.ErrOrStderr())
	info, err := codec.Inspect(cmd.Context(), data, passphrase)
	if err != nil {
		return err
	}

	if inspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printInfo(cmd.OutOrStdout(), inspectInput, info)
	return nil
}

func printInfo(w io.Writer, path string, info *p12.Info) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("PKCS#12 container: %s\n", path)
	p("  Engine:         %s\n", info.Engine)
	if info.FriendlyName != "" {
		p("  Friendly name:  %s\n", info.FriendlyName)
	}
	p("  Key algorithm:  %s\n", info.KeyAlgorithm)
	p("  Key matches:    %s\n", yesNo(info.KeyMatches))
	p("\nCertificate:\n")
	printSummary(p, info.Certificate)

	p("\nCA certificates: %d\n", len(info.CACerts))
	for i, ca := range info.CACerts {
		p("  [%d]\n", i)
		printSummary(p, ca)
	}

	p("\nChain verified:  %s", yesNo(info.ChainVerified))
	if info.ChainError != "" {
		p(" (%s)", info.ChainError)
	}
	p("\nLegacy readable: %s", yesNo(info.LegacyReadable))
	if info.LegacyError != "" {
		p(" (%s)", info.LegacyError)
	}
	p("\n")
}

func printSummary(p func(string, ...any), s p12.CertSummary) {
	p("    Subject:    %s\n", s.Subject)
	p("    Issuer:     %s\n", s.Issuer)
	p("    Serial:     %s\n", s.Serial)
	p("    Not before: %s\n", s.NotBefore.UTC().Format("2006-01-02 15:04:05 MST"))
	p("    Not after:  %s\n", s.NotAfter.UTC().Format("2006-01-02 15:04:05 MST"))
	if s.SelfSigned {
		p("    Self-signed\n")
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
