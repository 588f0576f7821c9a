package p12

import (
	"context"
	"crypto/rand"
	"crypto/x509/pkix"
	"encoding/asn1"
	"testing"

	xpkcs12 "golang.org/x/crypto/pkcs12"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/remiblancher/qp12/pkg/p12/internal/pbe"
)

type encryptedPrivateKeyInfo struct {
	AlgorithmIdentifier pkix.AlgorithmIdentifier
	EncryptedData       []byte
}

// legacyProfile is what a container declares about its protection.
type legacyProfile struct {
	macAlg         asn1.ObjectIdentifier
	macIterations  int
	certAlg        asn1.ObjectIdentifier
	certIterations int
	keyAlg         asn1.ObjectIdentifier
	keyIterations  int
}

// readProfile parses the AuthenticatedSafe and MacData of data.
func readProfile(t *testing.T, data []byte) legacyProfile {
	t.Helper()

	var pfx pfxPdu
	if err := unmarshal(data, &pfx); err != nil {
		t.Fatalf("parse pfx: %v", err)
	}
	if pfx.Version != 3 {
		t.Errorf("pfx version = %d, want 3", pfx.Version)
	}
	var octets []byte
	if err := unmarshal(pfx.AuthSafe.Content.Bytes, &octets); err != nil {
		t.Fatalf("parse authenticated safe: %v", err)
	}
	var safes []contentInfo
	if err := unmarshal(octets, &safes); err != nil {
		t.Fatalf("parse authenticated safe: %v", err)
	}

	p := legacyProfile{
		macAlg:        pfx.MacData.Mac.Algorithm.Algorithm,
		macIterations: pfx.MacData.Iterations,
	}
	for _, ci := range safes {
		switch {
		case ci.ContentType.Equal(oidEncryptedDataContentType):
			var ed encryptedData
			if err := unmarshal(ci.Content.Bytes, &ed); err != nil {
				t.Fatalf("parse encrypted data: %v", err)
			}
			alg := ed.EncryptedContentInfo.ContentEncryptionAlgorithm
			var params pbe.Params
			if err := unmarshal(alg.Parameters.FullBytes, &params); err != nil {
				t.Fatalf("parse cert PBE parameters: %v", err)
			}
			p.certAlg, p.certIterations = alg.Algorithm, params.Iterations

		case ci.ContentType.Equal(oidDataContentType):
			var body []byte
			if err := unmarshal(ci.Content.Bytes, &body); err != nil {
				t.Fatalf("parse data safe: %v", err)
			}
			var bags []safeBag
			if err := unmarshal(body, &bags); err != nil {
				t.Fatalf("parse safe contents: %v", err)
			}
			for _, bag := range bags {
				if !bag.Id.Equal(oidPKCS8ShroudedKeyBag) {
					continue
				}
				var epki encryptedPrivateKeyInfo
				if err := unmarshal(bag.Value.Bytes, &epki); err != nil {
					t.Fatalf("parse shrouded key bag: %v", err)
				}
				var params pbe.Params
				if err := unmarshal(epki.AlgorithmIdentifier.Parameters.FullBytes, &params); err != nil {
					t.Fatalf("parse key PBE parameters: %v", err)
				}
				p.keyAlg, p.keyIterations = epki.AlgorithmIdentifier.Algorithm, params.Iterations
			}
		}
	}
	return p
}

// assertLegacyProfile checks 3DES key bag, RC2-40 cert bag, 2048 PBE
// iterations and a SHA-1 MAC with one iteration.
func assertLegacyProfile(t *testing.T, data []byte) {
	t.Helper()
	p := readProfile(t, data)

	if !p.keyAlg.Equal(pbe.OIDSHAAnd3KeyTripleDESCBC) {
		t.Errorf("key bag algorithm = %v, want pbeWithSHAAnd3-KeyTripleDES-CBC", p.keyAlg)
	}
	if !p.certAlg.Equal(pbe.OIDSHAAnd40BitRC2CBC) {
		t.Errorf("cert bag algorithm = %v, want pbeWithSHAAnd40BitRC2-CBC", p.certAlg)
	}
	if p.keyIterations != 2048 || p.certIterations != 2048 {
		t.Errorf("PBE iterations = key %d cert %d, want 2048", p.keyIterations, p.certIterations)
	}
	if !p.macAlg.Equal(oidSHA1) {
		t.Errorf("MAC algorithm = %v, want SHA-1", p.macAlg)
	}
	if p.macIterations != 1 {
		t.Errorf("MAC iterations = %d, want 1", p.macIterations)
	}
}

// pemFriendlyNames returns the friendlyName header of each PEM block the
// strict decoder produces, keyed by block type.
func pemFriendlyNames(t *testing.T, data []byte, passphrase string) map[string]string {
	t.Helper()
	blocks, err := xpkcs12.ToPEM(data, passphrase)
	if err != nil {
		t.Fatalf("ToPEM() error = %v", err)
	}
	names := make(map[string]string)
	for _, b := range blocks {
		if _, dup := names[b.Type]; dup {
			continue
		}
		names[b.Type] = b.Headers["friendlyName"]
	}
	return names
}

// =============================================================================
// Algorithm Profile Tests
// =============================================================================

func TestU_Build_AlgorithmProfile(t *testing.T) {
	codec, _ := newTestCodec(t)
	key, leaf, cas := chain(t)

	tests := []struct {
		name string
		req  *BuildRequest
	}{
		{"[Unit] Profile: chain", &BuildRequest{Passphrase: "legacy", PrivateKey: key, Certificate: leaf, CACerts: cas}},
		{"[Unit] Profile: empty passphrase", &BuildRequest{Passphrase: "", PrivateKey: key, Certificate: leaf}},
		{"[Unit] Profile: friendly name", &BuildRequest{Passphrase: "legacy", FriendlyName: "MyCert", PrivateKey: key, Certificate: leaf, CACerts: cas}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Build(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			assertLegacyProfile(t, data)
		})
	}
}

func TestU_Repassphrase_AlgorithmProfile(t *testing.T) {
	codec, _ := newTestCodec(t)
	key, leaf, cas := chain(t)

	original, err := codec.Build(context.Background(), &BuildRequest{
		Passphrase: "old", FriendlyName: "MyCert", PrivateKey: key, Certificate: leaf, CACerts: cas,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	data, err := codec.Repassphrase(context.Background(), &RepassphraseRequest{
		Data: original, Passphrase: "old", NewPassphrase: "new",
	})
	if err != nil {
		t.Fatalf("Repassphrase() error = %v", err)
	}
	assertLegacyProfile(t, data)
}

// =============================================================================
// Friendly Name Tests
// =============================================================================

func TestU_Build_FriendlyName(t *testing.T) {
	codec, diag := newTestCodec(t)
	key, leaf, cas := chain(t)

	tests := []struct {
		name     string
		friendly string
	}{
		{"[Unit] FriendlyName: ascii", "MyCert"},
		{"[Unit] FriendlyName: non-ascii", "Zoë Ünïcode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Build(context.Background(), &BuildRequest{
				Passphrase: "test123", FriendlyName: tt.friendly,
				PrivateKey: key, Certificate: leaf, CACerts: cas,
			})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			info, err := codec.Inspect(context.Background(), data, "test123")
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if info.FriendlyName != tt.friendly {
				t.Errorf("Inspect().FriendlyName = %q, want %q", info.FriendlyName, tt.friendly)
			}
			if !info.KeyMatches || len(info.CACerts) != len(cas) {
				t.Errorf("Inspect() = key match %v, %d CAs", info.KeyMatches, len(info.CACerts))
			}

			names := pemFriendlyNames(t, data, "test123")
			if names["PRIVATE KEY"] != tt.friendly || names["CERTIFICATE"] != tt.friendly {
				t.Errorf("bag friendly names = %v, want %q on key and leaf", names, tt.friendly)
			}
			if err := LegacyReadable(data, "test123"); err != nil {
				t.Errorf("LegacyReadable() error = %v", err)
			}
		})
	}

	if diag.String() != "" {
		t.Errorf("diagnostics = %q, want none", diag.String())
	}
}

func TestU_Repassphrase_FriendlyName(t *testing.T) {
	codec, _ := newTestCodec(t)
	key, cert := selfSigned(t, "Named")

	original, err := codec.Build(context.Background(), &BuildRequest{
		Passphrase: "old", FriendlyName: "MyCert", PrivateKey: key, Certificate: cert,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		name     string
		override string
		want     string
	}{
		{"[Unit] Repassphrase: keeps decoded name", "", "MyCert"},
		{"[Unit] Repassphrase: replaces name", "Renamed", "Renamed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Repassphrase(context.Background(), &RepassphraseRequest{
				Data: original, Passphrase: "old", NewPassphrase: "new", FriendlyName: tt.override,
			})
			if err != nil {
				t.Fatalf("Repassphrase() error = %v", err)
			}
			info, err := codec.Inspect(context.Background(), data, "new")
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if info.FriendlyName != tt.want {
				t.Errorf("Inspect().FriendlyName = %q, want %q", info.FriendlyName, tt.want)
			}
		})
	}
}

func TestU_Build_NoFriendlyName(t *testing.T) {
	codec, _ := newTestCodec(t)
	key, cert := selfSigned(t, "Unnamed")

	data, err := codec.Build(context.Background(), &BuildRequest{
		Passphrase: "test123", PrivateKey: key, Certificate: cert,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for typ, name := range pemFriendlyNames(t, data, "test123") {
		if name != "" {
			t.Errorf("%s carries friendly name %q, want none", typ, name)
		}
	}
}

func TestU_SetFriendlyName_Errors(t *testing.T) {
	key, cert := selfSigned(t, "Rewrite")
	data, err := gopkcs12.LegacyRC2.Encode(key, cert, nil, "test123")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"[Unit] SetFriendlyName: garbage", []byte("not a pkcs12 container")},
		{"[Unit] SetFriendlyName: truncated", data[:len(data)/2]},
		{"[Unit] SetFriendlyName: trailing data", append(append([]byte{}, data...), 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := setFriendlyName(rand.Reader, tt.data, "test123", "MyCert"); err == nil {
				t.Error("setFriendlyName() should fail")
			}
		})
	}
}
