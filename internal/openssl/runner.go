// Package openssl implements the PKCS#12 engine and provider loader backed
// by the openssl 3.x command line tool.
package openssl

import (
	"bytes"
	"context"
	"os/exec"
)

// DefaultBinary is the openssl executable looked up in PATH.
const DefaultBinary = "openssl"

// Runner executes openssl with the given arguments.
type Runner interface {
	Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs a local openssl binary.
type ExecRunner struct {
	// Path is the binary to execute. Empty means DefaultBinary.
	Path string
}

var _ Runner = (*ExecRunner)(nil)

// Run implements Runner. The process is killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	path := r.Path
	if path == "" {
		path = DefaultBinary
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
