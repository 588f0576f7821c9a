package p12

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	xpkcs12 "golang.org/x/crypto/pkcs12"

	"github.com/remiblancher/qp12/pkg/audit"
)

// CertSummary describes one certificate of a container.
type CertSummary struct {
	Subject    string    `json:"subject"`
	Issuer     string    `json:"issuer"`
	Serial     string    `json:"serial"`
	NotBefore  time.Time `json:"not_before"`
	NotAfter   time.Time `json:"not_after"`
	SelfSigned bool      `json:"self_signed"`
}

// Info reports the content of a container.
type Info struct {
	Engine       string        `json:"engine"`
	CommonName   string        `json:"common_name,omitempty"`
	Certificate  CertSummary   `json:"certificate"`
	KeyAlgorithm string        `json:"key_algorithm"`
	FriendlyName string        `json:"friendly_name,omitempty"`
	CACerts      []CertSummary `json:"ca_certs"`

	// KeyMatches is true when the private key belongs to the certificate.
	KeyMatches bool `json:"key_matches"`

	// ChainVerified is true when the certificate verifies against the
	// self-signed certificates stored in the same container.
	ChainVerified bool   `json:"chain_verified"`
	ChainError    string `json:"chain_error,omitempty"`

	// LegacyReadable is true when the strict legacy decoder
	// (3DES/RC2 with a SHA-1 MAC) can read the container.
	LegacyReadable bool   `json:"legacy_readable"`
	LegacyError    string `json:"legacy_error,omitempty"`
}

// Inspect decodes data and reports what it holds. Decode failures are
// reported as ErrDecode, like Repassphrase.
func (c *Codec) Inspect(ctx context.Context, data []byte, passphrase string) (*Info, error) {
	if len(data) == 0 {
		return nil, c.fail(OpInspect, fmt.Errorf("%w: empty container", ErrDecode), nil)
	}

	guard, err := c.acquire(ctx)
	if err != nil {
		return nil, c.fail(OpInspect, err, nil)
	}
	defer c.release(guard)

	b, err := c.decode(ctx, guard, data, passphrase)
	if err != nil {
		return nil, c.fail(OpInspect, err, nil)
	}

	info := describe(b, time.Now())
	info.Engine = c.engine.Name()
	if err := LegacyReadable(data, passphrase); err != nil {
		info.LegacyError = err.Error()
	} else {
		info.LegacyReadable = true
	}

	if err := audit.LogPKCS12Inspected(ctx, c.engine.Name(), guard.Names(), containerRecord(b)); err != nil {
		return nil, c.fail(OpInspect, err, nil)
	}
	return info, nil
}

// LegacyReadable returns nil when golang.org/x/crypto/pkcs12, which only
// understands the legacy profile, can open data.
func LegacyReadable(data []byte, passphrase string) error {
	_, err := xpkcs12.ToPEM(data, passphrase)
	return err
}

// describe builds the Info of a decoded bundle. Chain verification uses
// now as the current time.
func describe(b *Bundle, now time.Time) *Info {
	info := &Info{
		CommonName:   b.Certificate.Subject.CommonName,
		Certificate:  summarize(b.Certificate),
		KeyAlgorithm: KeyAlgorithm(b.PrivateKey),
		FriendlyName: b.FriendlyName,
		CACerts:      make([]CertSummary, 0, len(b.CACerts)),
		KeyMatches:   KeyMatches(b.PrivateKey, b.Certificate),
	}
	for _, ca := range b.CACerts {
		info.CACerts = append(info.CACerts, summarize(ca))
	}

	if err := VerifyChain(b.Certificate, b.CACerts, now); err != nil {
		info.ChainError = err.Error()
	} else {
		info.ChainVerified = true
	}
	return info
}

// ErrNoTrustAnchor is returned by VerifyChain when neither the certificate
// nor its chain holds a self-signed certificate.
var ErrNoTrustAnchor = errors.New("no self-signed certificate in chain")

// VerifyChain verifies cert against chain. Self-signed members of the chain,
// and cert itself when self-signed, act as roots; the others as
// intermediates.
func VerifyChain(cert *x509.Certificate, chain []*x509.Certificate, now time.Time) error {
	roots := x509.NewCertPool()
	intermediates := x509.NewCertPool()
	anchors := 0

	if isSelfSigned(cert) {
		roots.AddCert(cert)
		anchors++
	}
	for _, ca := range chain {
		if isSelfSigned(ca) {
			roots.AddCert(ca)
			anchors++
		} else {
			intermediates.AddCert(ca)
		}
	}
	if anchors == 0 {
		return ErrNoTrustAnchor
	}

	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

func isSelfSigned(cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	if !bytes.Equal(cert.RawSubject, cert.RawIssuer) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func summarize(cert *x509.Certificate) CertSummary {
	return CertSummary{
		Subject:    cert.Subject.String(),
		Issuer:     cert.Issuer.String(),
		Serial:     fmt.Sprintf("%X", cert.SerialNumber),
		NotBefore:  cert.NotBefore,
		NotAfter:   cert.NotAfter,
		SelfSigned: isSelfSigned(cert),
	}
}
