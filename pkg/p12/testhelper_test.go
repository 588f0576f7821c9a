package p12

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remiblancher/qp12/pkg/provider"
)

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
)

// generateRSAKey returns a shared 2048-bit RSA key.
func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		rsaKey = k
	})
	return rsaKey
}

// generateECKey returns a fresh P-256 key.
func generateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate EC key: %v", err)
	}
	return k
}

var serialCounter atomic.Int64

// issueCert signs a certificate for pub. A nil parent makes it self-signed.
func issueCert(t *testing.T, cn string, pub crypto.PublicKey, parent *x509.Certificate, signer crypto.Signer, isCA bool) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serialCounter.Add(1)),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	if parent == nil {
		parent = template
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return cert
}

// selfSigned returns an RSA key and a self-signed certificate for it.
func selfSigned(t *testing.T, cn string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key := generateRSAKey(t)
	return key, issueCert(t, cn, &key.PublicKey, nil, key, true)
}

// chain returns a leaf key and certificate issued by an intermediate,
// itself issued by a root, with the CA chain ordered intermediate then root.
func chain(t *testing.T) (*ecdsa.PrivateKey, *x509.Certificate, []*x509.Certificate) {
	t.Helper()
	rootKey := generateECKey(t)
	root := issueCert(t, "Test Root", &rootKey.PublicKey, nil, rootKey, true)

	subKey := generateECKey(t)
	sub := issueCert(t, "Test Intermediate", &subKey.PublicKey, root, rootKey, true)

	leafKey := generateECKey(t)
	leaf := issueCert(t, "leaf.example.com", &leafKey.PublicKey, sub, subKey, false)

	return leafKey, leaf, []*x509.Certificate{sub, root}
}

// newTestCodec returns a native codec over a builtin loader with the given
// providers disabled, collecting diagnostics in the returned recorder.
func newTestCodec(t *testing.T, disabled ...string) (*Codec, *diagRecorder) {
	t.Helper()
	rec := &diagRecorder{}
	reg := provider.NewRegistry(provider.NewBuiltin(disabled...), nil)
	return NewCodec(reg, NewNativeEngine(nil), WithDiagnostics(rec)), rec
}

// diagRecorder is a concurrency-safe io.Writer.
type diagRecorder struct {
	mu  sync.Mutex
	buf []byte
}

func (r *diagRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	return len(p), nil
}

func (r *diagRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}
