package p12

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/remiblancher/qp12/pkg/provider"
)

// Bundle is the content of a PKCS#12 container: a private key, its
// certificate and the ordered CA chain.
type Bundle struct {
	PrivateKey   crypto.PrivateKey
	Certificate  *x509.Certificate
	CACerts      []*x509.Certificate
	FriendlyName string
}

// Engine encodes and decodes containers with the legacy algorithm profile:
// PBE-SHA1-3DES key bag, PBE-SHA1-RC2-40 certificate bag, 2048 iterations
// and an HMAC-SHA1 MAC with a single iteration.
//
// The guard holds the providers loaded for the current operation. Engines
// return errors wrapping the sentinels of this package where they can tell
// the failure apart.
type Engine interface {
	// Name returns the engine identifier ("native", "openssl").
	Name() string

	// Encode serializes b under passphrase.
	Encode(ctx context.Context, g *provider.Guard, b *Bundle, passphrase string) ([]byte, error)

	// Decode opens data under passphrase.
	Decode(ctx context.Context, g *provider.Guard, data []byte, passphrase string) (*Bundle, error)
}

// FriendlyNamer is implemented by engines that can write the friendly name
// bag attribute.
type FriendlyNamer interface {
	WritesFriendlyName() bool
}

// writesFriendlyName reports whether e stores friendly names.
func writesFriendlyName(e Engine) bool {
	fn, ok := e.(FriendlyNamer)
	return ok && fn.WritesFriendlyName()
}

// KeyMatches reports whether key is the private half of cert's public key.
func KeyMatches(key crypto.PrivateKey, cert *x509.Certificate) bool {
	if key == nil || cert == nil {
		return false
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return false
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return pub.Equal(cert.PublicKey)
}

// KeyAlgorithm names the algorithm of a private key, e.g. "RSA-2048" or
// "ECDSA-P-256".
func KeyAlgorithm(key crypto.PrivateKey) string {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return fmt.Sprintf("RSA-%d", k.N.BitLen())
	case *ecdsa.PrivateKey:
		return "ECDSA-" + k.Curve.Params().Name
	case ed25519.PrivateKey:
		return "Ed25519"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", key)
	}
}

// validate checks that b can be handed to an engine.
func (b *Bundle) validate() error {
	if b == nil {
		return fmt.Errorf("%w: empty bundle", ErrInvalidInput)
	}
	if b.PrivateKey == nil {
		return fmt.Errorf("%w: private key is required", ErrInvalidInput)
	}
	if b.Certificate == nil {
		return fmt.Errorf("%w: certificate is required", ErrInvalidInput)
	}
	for i, ca := range b.CACerts {
		if ca == nil {
			return fmt.Errorf("%w: CA certificate %d is nil", ErrInvalidInput, i)
		}
	}
	return nil
}
