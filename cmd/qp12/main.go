// Command qp12 builds, re-protects and inspects legacy-compatible PKCS#12
// containers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/internal/config"
	"github.com/remiblancher/qp12/internal/logging"
	"github.com/remiblancher/qp12/pkg/audit"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	engineName   string
	auditLogPath string
	logLevel     string
)

// Loaded by the root command before any subcommand runs.
var (
	appConfig *config.Config
	logger    = logging.Discard()
)

func main() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails
	_ = audit.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qp12",
	Short: "Legacy-compatible PKCS#12 builder",
	Long: `qp12 builds PKCS#12 (.p12/.pfx) containers that older consumers can read:
3DES for the private key, 40-bit RC2 for the certificates and a SHA-1 MAC.

Every operation loads the "legacy" then the "default" algorithm provider
and unloads them when it ends, whatever the outcome.

Examples:
  # Build a container from PEM files
  qp12 build --key server.key --cert server.crt --ca chain.pem --out server.p12 --passout env:P12_PASS

  # Change the passphrase of a container
  qp12 repass --in server.p12 --out server-new.p12 --passin env:OLD --passout env:NEW

  # Show what a container holds
  qp12 inspect --in server.p12 --passin file:pass.txt

  # Serve the REST API
  qp12 serve --port 8443`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Flags win over file and environment
		if cmd.Flags().Changed("engine") {
			cfg.Engine = engineName
		}
		if cmd.Flags().Changed("audit-log") {
			cfg.Audit.Path = auditLogPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		format := cfg.Log.Format
		if format == "" {
			format = "text"
		}
		l, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, format)
		if err != nil {
			return err
		}

		if cfg.Audit.Path != "" {
			if err := audit.InitFile(cfg.Audit.Path); err != nil {
				return fmt.Errorf("failed to initialize audit log: %w", err)
			}
		}

		appConfig = cfg
		logger = l
		slog.SetDefault(l)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Close audit log
		return audit.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&engineName, "engine", config.EngineNative,
		"PKCS#12 engine: native or openssl (or set QP12_ENGINE)")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set QP12_AUDIT_LOG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error (or set QP12_LOG_LEVEL)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(repassCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(auditCmd)
}
