package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/remiblancher/qp12/pkg/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log management",
	Long: `Commands for verifying and reading the audit log.

The audit log records every build, re-passphrase, inspection, provider load
failure and decode failure. Passphrases and key material are never written.
Each event is chained to the previous one with a SHA-256 hash.

Examples:
  # Verify audit log integrity
  qp12 audit verify --log /var/log/qp12/audit.jsonl

  # Show last 10 events
  qp12 audit tail --log /var/log/qp12/audit.jsonl -n 10`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [log]",
	Short: "Verify audit log integrity",
	Long: `Verify the hash chain of an audit log file.

The chain starts with hash_prev="sha256:genesis". A modified, deleted or
inserted event breaks the chain and is reported with its line number.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [log]",
	Short: "Show recent audit events",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var (
	auditLogFile  string
	auditTailNum  int
	auditShowJSON bool
)

func init() {
	auditVerifyCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit log file (default: the configured audit log)")

	auditTailCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit log file (default: the configured audit log)")
	auditTailCmd.Flags().IntVarP(&auditTailNum, "num", "n", 10, "Number of events to show")
	auditTailCmd.Flags().BoolVar(&auditShowJSON, "json", false, "Output as JSON")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
}

// auditLogTarget picks the log from the argument, --log or the config.
func auditLogTarget(args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case auditLogFile != "":
		return auditLogFile, nil
	case appConfig != nil && appConfig.Audit.Path != "":
		return appConfig.Audit.Path, nil
	}
	return "", fmt.Errorf("no audit log given (use --log or audit.path)")
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditLogTarget(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Verifying audit log: %s\n\n", path)

	count, err := audit.VerifyChain(path)
	if err != nil {
		_, _ = fmt.Fprintf(out, "VERIFICATION FAILED\n")
		_, _ = fmt.Fprintf(out, "  Valid events: %d\n", count)
		_, _ = fmt.Fprintf(out, "  Error: %s\n", err)
		return fmt.Errorf("audit log verification failed: %w", err)
	}

	_, _ = fmt.Fprintf(out, "VERIFICATION PASSED\n")
	_, _ = fmt.Fprintf(out, "  Total events: %d\n", count)
	_, _ = fmt.Fprintf(out, "  Hash chain: VALID\n")
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditLogTarget(args)
	if err != nil {
		return err
	}
	events, err := audit.ReadEvents(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "Audit log is empty")
		return nil
	}

	if auditTailNum > 0 && len(events) > auditTailNum {
		events = events[len(events)-auditTailNum:]
	}

	if auditShowJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	for _, e := range events {
		printEvent(out, e)
	}
	return nil
}

func printEvent(w io.Writer, e *audit.Event) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	resultIcon := "✓"
	if e.Result == audit.ResultFailure {
		resultIcon = "✗"
	}

	p("[%s] %s %s\n", e.Timestamp, resultIcon, e.EventType)
	p("    Actor:  %s@%s\n", e.Actor.ID, e.Actor.Host)

	if e.Object.Type != "" {
		p("    Object: %s", e.Object.Type)
		if e.Object.Serial != "" {
			p(" serial=%s", e.Object.Serial)
		}
		if e.Object.Subject != "" {
			p(" subject=%s", e.Object.Subject)
		}
		if e.Object.FriendlyName != "" {
			p(" name=%s", e.Object.FriendlyName)
		}
		p("\n")
	}

	c := e.Context
	if c.Engine != "" || c.Algorithm != "" || c.Reason != "" {
		p("    Context:")
		if c.Engine != "" {
			p(" engine=%s", c.Engine)
		}
		if len(c.Providers) > 0 {
			p(" providers=%v", c.Providers)
		}
		if c.Algorithm != "" {
			p(" algorithm=%s", c.Algorithm)
		}
		if c.Reason != "" {
			p(" reason=%s", c.Reason)
		}
		p("\n")
	}
	p("\n")
}
