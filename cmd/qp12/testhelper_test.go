package main

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/remiblancher/qp12/internal/credential"
	"github.com/remiblancher/qp12/pkg/audit"
)

// executeCommand executes a Cobra command with the given args and returns output.
// Flags are reset first, since Cobra retains values between runs.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	_ = audit.Close()
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a test context with a temp directory and a
// non-interactive stdin.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	origTerminal, origRead := stdinIsTerminal, readPassword
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal, readPassword = origTerminal, origRead })
	return &testContext{t: t, tempDir: t.TempDir()}
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name string, content []byte) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		tc.t.Fatalf("Failed to write file %s: %v", name, err)
	}
	return path
}

// issue creates a certificate for key, self-signed when parent is nil.
func (tc *testContext) issue(cn string, key *ecdsa.PrivateKey, parent *x509.Certificate, signer crypto.Signer) *x509.Certificate {
	tc.t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		tc.t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  parent == nil,
	}
	if parent == nil {
		parent, signer = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		tc.t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tc.t.Fatal(err)
	}
	return cert
}

func (tc *testContext) newKey() *ecdsa.PrivateKey {
	tc.t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tc.t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

// setupMaterial writes a root CA, a leaf certificate and the leaf key.
func (tc *testContext) setupMaterial() (keyPath, certPath, caPath string) {
	tc.t.Helper()
	rootKey := tc.newKey()
	root := tc.issue("Test Root", rootKey, nil, nil)
	leafKey := tc.newKey()
	leaf := tc.issue("leaf.example.com", leafKey, root, rootKey)

	keyPEM, err := credential.EncodePrivateKeyPEM(leafKey)
	if err != nil {
		tc.t.Fatal(err)
	}
	keyPath = tc.writeFile("leaf.key", keyPEM)
	certPath = tc.writeFile("leaf.crt", credential.EncodeCertificatesPEM([]*x509.Certificate{leaf}))
	caPath = tc.writeFile("root.crt", credential.EncodeCertificatesPEM([]*x509.Certificate{root}))
	return keyPath, certPath, caPath
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// credentialKeyFile writes a fresh key unrelated to any test certificate.
func credentialKeyFile(tc *testContext) (string, error) {
	keyPEM, err := credential.EncodePrivateKeyPEM(tc.newKey())
	if err != nil {
		return "", err
	}
	return tc.writeFile("other.key", keyPEM), nil
}
