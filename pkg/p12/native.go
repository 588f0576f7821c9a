package p12

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	xpkcs12 "golang.org/x/crypto/pkcs12"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/remiblancher/qp12/pkg/provider"
)

// EngineNative is the name of the in-process engine.
const EngineNative = "native"

// Primitives the native engine draws from the loaded providers.
var (
	nativeEncodeAlgs = []provider.Algorithm{
		provider.AlgPKCS12KDF,
		provider.AlgSHA1,
		provider.AlgHMAC,
		provider.AlgDESEDE3CBC,
		provider.AlgRC240CBC,
	}
	nativeDecodeAlgs = []provider.Algorithm{
		provider.AlgPKCS12KDF,
		provider.AlgSHA1,
		provider.AlgHMAC,
	}
)

// NativeEngine encodes containers in process with go-pkcs12's LegacyRC2
// encoder. A friendly name is attached to the encoder's output afterwards,
// since go-pkcs12 writes no bag attributes besides localKeyId.
type NativeEngine struct {
	rand io.Reader
}

var _ Engine = (*NativeEngine)(nil)

// NewNativeEngine returns a NativeEngine reading salts from rnd, or from
// crypto/rand when rnd is nil.
func NewNativeEngine(rnd io.Reader) *NativeEngine {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &NativeEngine{rand: rnd}
}

// Name returns "native".
func (e *NativeEngine) Name() string { return EngineNative }

// WritesFriendlyName returns true.
func (e *NativeEngine) WritesFriendlyName() bool { return true }

// Encode implements Engine.
func (e *NativeEngine) Encode(ctx context.Context, g *provider.Guard, b *Bundle, passphrase string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.Require(nativeEncodeAlgs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruct, err)
	}

	data, err := gopkcs12.LegacyRC2.WithRand(e.rand).Encode(b.PrivateKey, b.Certificate, b.CACerts, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruct, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder returned no data", ErrSerialize)
	}
	if b.FriendlyName != "" {
		if data, err = setFriendlyName(e.rand, data, passphrase, b.FriendlyName); err != nil {
			return nil, fmt.Errorf("%w: friendly name: %w", ErrSerialize, err)
		}
	}
	return data, nil
}

// Decode implements Engine.
func (e *NativeEngine) Decode(ctx context.Context, g *provider.Guard, data []byte, passphrase string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.Require(nativeDecodeAlgs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	key, cert, caCerts, err := gopkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return &Bundle{
		PrivateKey:   key,
		Certificate:  cert,
		CACerts:      caCerts,
		FriendlyName: friendlyName(data, passphrase),
	}, nil
}

// friendlyName returns the friendlyName bag attribute, or "" when the
// container has none or the strict decoder cannot read it.
func friendlyName(data []byte, passphrase string) string {
	blocks, err := xpkcs12.ToPEM(data, passphrase)
	if err != nil {
		return ""
	}
	for _, b := range blocks {
		if name := b.Headers["friendlyName"]; name != "" {
			return name
		}
	}
	return ""
}
