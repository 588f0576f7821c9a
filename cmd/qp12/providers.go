package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/internal/api/service"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Check that the configured algorithm providers load",
	Long: `Load and unload each configured provider once with the selected engine and
report which ones are available. Builds need every provider to load.

Examples:
  qp12 providers
  qp12 providers --engine openssl --json`,
	RunE: runProviders,
}

var providersJSON bool

func init() {
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "Output as JSON")
}

func runProviders(cmd *cobra.Command, args []string) error {
	codec := newCodec(appConfig, logger, cmd.ErrOrStderr())
	report := service.NewPKCS12Service(codec).Providers(cmd.Context())

	if providersJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Engine: %s\n\n", report.Engine)
		for _, p := range report.Providers {
			if p.Available {
				_, _ = fmt.Fprintf(out, "  %-8s available    %s\n", p.Name, strings.Join(p.Algorithms, ", "))
			} else {
				_, _ = fmt.Fprintf(out, "  %-8s unavailable  %s\n", p.Name, p.Error)
			}
		}
	}

	var missing []string
	for _, p := range report.Providers {
		if !p.Available {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("providers unavailable: %s", strings.Join(missing, ", "))
	}
	return nil
}
