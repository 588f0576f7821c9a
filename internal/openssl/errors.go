package openssl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/remiblancher/qp12/pkg/p12"
)

// CommandError is a failed openssl invocation. Its stderr lines are
// reported as diagnostics.
type CommandError struct {
	Args   []string
	Stderr []string
	Err    error
}

// Error returns the command and its first stderr line.
func (e *CommandError) Error() string {
	cmd := "openssl"
	if len(e.Args) > 0 {
		cmd += " " + e.Args[0]
	}
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("%s: %s", cmd, e.Stderr[0])
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Diagnostics implements p12.Diagnoser.
func (e *CommandError) Diagnostics() []string {
	if len(e.Stderr) == 0 && e.Err != nil {
		return []string{e.Err.Error()}
	}
	return e.Stderr
}

func newCommandError(args []string, stderr []byte, err error) *CommandError {
	var lines []string
	for _, line := range strings.Split(string(stderr), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if err == nil {
		err = errors.New("command failed")
	}
	return &CommandError{Args: args, Stderr: lines, Err: err}
}

type stage int

const (
	stageExport stage = iota
	stageImport
)

// ErrPassphrase marks an import rejected by MAC or decryption checks.
var ErrPassphrase = errors.New("wrong passphrase or corrupted MAC")

// classify maps a failed pkcs12 command onto the p12 sentinel errors.
// Import failures are always decode failures.
func classify(st stage, ce *CommandError) error {
	if st == stageImport {
		if passwordFailure(ce) {
			return fmt.Errorf("%w: %w: %w", p12.ErrDecode, ErrPassphrase, ce)
		}
		return fmt.Errorf("%w: %w", p12.ErrDecode, ce)
	}

	msg := strings.ToLower(strings.Join(ce.Stderr, "\n"))
	var kind error
	switch {
	case isProviderFailure(msg):
		kind = p12.ErrProviderLoad
	case strings.Contains(msg, "key values mismatch"),
		strings.Contains(msg, "no certificate matches private key"):
		kind = p12.ErrConstruct
	case strings.Contains(msg, "pkcs12_set_mac"),
		strings.Contains(msg, "mac generation"):
		kind = p12.ErrMAC
	case strings.Contains(msg, "unable to write"),
		strings.Contains(msg, "i2d_pkcs12"):
		kind = p12.ErrSerialize
	default:
		kind = p12.ErrConstruct
	}
	return fmt.Errorf("%w: %w", kind, ce)
}

func isProviderFailure(msg string) bool {
	for _, marker := range []string{
		"inner_evp_generic_fetch:unsup",
		"unable to load provider",
		"unsupported algorithm",
		"provider routines",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// passwordFailure reports whether an import failed on the passphrase.
func passwordFailure(ce *CommandError) bool {
	msg := strings.ToLower(strings.Join(ce.Stderr, "\n"))
	switch {
	case strings.Contains(msg, "mac verify failure"),
		strings.Contains(msg, "mac verify error"),
		strings.Contains(msg, "invalid password"),
		strings.Contains(msg, "bad decrypt"):
		return true
	}
	return strings.Contains(msg, "password") && strings.Contains(msg, "incorrect")
}
