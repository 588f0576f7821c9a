package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/pkg/p12"
)

var repassCmd = &cobra.Command{
	Use:   "repass",
	Short: "Change the passphrase of a PKCS#12 container",
	Long: `Decode a container with its current passphrase and rebuild it under a new
one, with the same legacy algorithms as "qp12 build". Key, certificate, CA
chain and friendly name are kept.

Any failure to open the container (wrong passphrase, truncated or corrupt
data) is reported as a decode failure.

Examples:
  qp12 repass --in old.p12 --out new.p12 --passin test123 --passout newpass
  qp12 repass --in old.p12 --out new.p12 --passin env:OLD --passout env:NEW --name "New Name"`,
	RunE: runRepass,
}

var (
	repassInput   string
	repassOutput  string
	repassPassIn  string
	repassPassOut string
	repassName    string
)

func init() {
	flags := repassCmd.Flags()
	flags.StringVarP(&repassInput, "in", "i", "", "Input container file (required)")
	flags.StringVarP(&repassOutput, "out", "o", "", "Output container file (required)")
	flags.StringVar(&repassPassIn, "passin", "", "Current passphrase (env:VAR, file:PATH or literal)")
	flags.StringVar(&repassPassOut, "passout", "", "New passphrase (env:VAR, file:PATH or literal)")
	flags.StringVar(&repassName, "name", "", "Replace the friendly name")

	_ = repassCmd.MarkFlagRequired("in")
	_ = repassCmd.MarkFlagRequired("out")
}

func runRepass(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(repassInput)
	if err != nil {
		return fmt.Errorf("failed to read container: %w", err)
	}

	oldPass, err := resolvePassphrase(cmd, "passin", repassPassIn, "Current passphrase")
	if err != nil {
		return err
	}
	newPass, err := resolvePassphrase(cmd, "passout", repassPassOut, "New passphrase")
	if err != nil {
		return err
	}

	codec := newCodec(appConfig, logger, cmd.ErrOrStderr())
	out, err := codec.Repassphrase(cmd.Context(), &p12.RepassphraseRequest{
		Data:          data,
		Passphrase:    oldPass,
		NewPassphrase: newPass,
		FriendlyName:  repassName,
	})
	if err != nil {
		return err
	}

	if err := writeContainer(repassOutput, out); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "PKCS#12 container re-protected: %s\n", repassOutput)
	return nil
}
