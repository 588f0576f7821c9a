package p12

import (
	"errors"
	"fmt"
)

// Operation names carried by OpError.
const (
	OpBuild        = "build"
	OpRepassphrase = "repassphrase"
	OpInspect      = "inspect"
)

// OpError represents a failed PKCS#12 operation with the diagnostics drained
// from the engine. It supports errors.Is() and errors.As().
type OpError struct {
	Op   string      // Operation: "build", "repassphrase", "inspect"
	Diag Diagnostics // Engine messages collected for this failure
	Err  error       // Underlying error, wraps one of the sentinels below
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("pkcs12 %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error { return e.Err }

// Diagnostics returns the collected engine messages.
func (e *OpError) Diagnostics() []string { return e.Diag }

// Sentinel errors for PKCS#12 operations.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrInvalidInput indicates a missing key, certificate or container.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderLoad indicates a required algorithm provider could not be loaded.
	ErrProviderLoad = errors.New("provider load failed")

	// ErrConstruct indicates the container could not be assembled, including
	// a private key that does not belong to the certificate.
	ErrConstruct = errors.New("container construction failed")

	// ErrMAC indicates the integrity MAC could not be computed.
	ErrMAC = errors.New("MAC attachment failed")

	// ErrSerialize indicates the container could not be serialized.
	ErrSerialize = errors.New("serialization failed")

	// ErrDecode indicates an existing container could not be opened. Wrong
	// passphrases and corrupt input are not told apart.
	ErrDecode = errors.New("container decode failed")
)

// sentinels lists the errors an engine failure may already carry.
var sentinels = []error{
	ErrInvalidInput,
	ErrProviderLoad,
	ErrConstruct,
	ErrMAC,
	ErrSerialize,
	ErrDecode,
}

// classified reports whether err already wraps one of the sentinels.
func classified(err error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// ensureKind wraps err with fallback unless it is already classified.
func ensureKind(err, fallback error) error {
	if classified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
