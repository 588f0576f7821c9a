// Package credential loads and writes the PEM material that goes into and
// comes out of PKCS#12 containers: private keys, certificates and
// certificate chains, plus passphrase references.
package credential

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PEM block types.
const (
	TypeCertificate         = "CERTIFICATE"
	TypePrivateKey          = "PRIVATE KEY"
	TypeRSAPrivateKey       = "RSA PRIVATE KEY"
	TypeECPrivateKey        = "EC PRIVATE KEY"
	TypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
)

var (
	// ErrNoPrivateKey indicates the input holds no private key block.
	ErrNoPrivateKey = errors.New("no private key found")

	// ErrNoCertificate indicates the input holds no certificate block.
	ErrNoCertificate = errors.New("no certificate found")

	// ErrPassphraseRequired indicates an encrypted key was given without
	// a passphrase.
	ErrPassphraseRequired = errors.New("private key is encrypted but no passphrase provided")
)

// EncodeCertificatesPEM encodes certificates in order, one PEM block each.
func EncodeCertificatesPEM(certs []*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: TypeCertificate, Bytes: cert.Raw})...)
	}
	return out
}

// DecodeCertificatesPEM decodes every CERTIFICATE block in data, in order.
// Other block types are skipped.
func DecodeCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == TypeCertificate {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		data = rest
	}
	return certs, nil
}

// ParseCertificates decodes PEM certificates, falling back to a single DER
// certificate when data holds no PEM block.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	certs, err := DecodeCertificatesPEM(data)
	if err != nil {
		return nil, err
	}
	if len(certs) > 0 {
		return certs, nil
	}
	if block, _ := pem.Decode(data); block == nil && len(data) > 0 {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DER certificate: %w", err)
		}
		return []*x509.Certificate{cert}, nil
	}
	return nil, ErrNoCertificate
}

// LoadCertificates reads the certificates of a PEM or DER file.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}
	certs, err := ParseCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return certs, nil
}

// EncodePrivateKeyPEM encodes key as an unencrypted PKCS#8 block.
func EncodePrivateKeyPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: TypePrivateKey, Bytes: der}), nil
}

// ParsePrivateKeyPEM returns the first private key of data. PKCS#8, PKCS#1
// and SEC1 blocks are accepted, as are legacy encrypted PEM blocks when
// passphrase is set.
func ParsePrivateKeyPEM(data, passphrase []byte) (crypto.PrivateKey, error) {
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			return nil, ErrNoPrivateKey
		}
		switch block.Type {
		case TypePrivateKey, TypeRSAPrivateKey, TypeECPrivateKey:
			return parsePrivateKeyBlock(block, passphrase)
		case TypeEncryptedPrivateKey:
			return nil, fmt.Errorf("encrypted PKCS#8 keys are not supported, convert with: openssl pkcs8 -topk8 -nocrypt")
		}
		data = rest
	}
}

func parsePrivateKeyBlock(block *pem.Block, passphrase []byte) (crypto.PrivateKey, error) {
	keyBytes := block.Bytes

	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		if len(passphrase) == 0 {
			return nil, ErrPassphraseRequired
		}
		var err error
		keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	switch block.Type {
	case TypePrivateKey:
		key, err := x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		return key, nil
	case TypeRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA key: %w", err)
		}
		return key, nil
	case TypeECPrivateKey:
		key, err := x509.ParseECPrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("unsupported PEM type: %s", block.Type)
}

// LoadPrivateKey reads the first private key of a PEM file.
func LoadPrivateKey(path string, passphrase []byte) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := ParsePrivateKeyPEM(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// ResolvePassphrase expands a passphrase reference:
//   - "env:NAME" reads environment variable NAME, which must be set
//   - "file:PATH" reads PATH and strips one trailing newline
//   - anything else is the passphrase itself
func ResolvePassphrase(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := ref[len("env:"):]
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("passphrase environment variable %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(ref, "file:"):
		data, err := os.ReadFile(ref[len("file:"):])
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		s := strings.TrimSuffix(string(data), "\n")
		return strings.TrimSuffix(s, "\r"), nil
	}
	return ref, nil
}
