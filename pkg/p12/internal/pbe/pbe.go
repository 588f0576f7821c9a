package pbe

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"encoding/asn1"
	"errors"
	"fmt"
)

// Algorithm identifiers from RFC 7292 appendix C.
var (
	OIDSHAAnd3KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}
	OIDSHAAnd128BitRC2CBC     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 5}
	OIDSHAAnd40BitRC2CBC      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 6}
)

// ErrUnsupported is returned for algorithms outside the legacy set.
var ErrUnsupported = errors.New("unsupported PBE algorithm")

// ErrPadding is returned when decrypted data is not PKCS#7 padded, which
// usually means the passphrase is wrong.
var ErrPadding = errors.New("invalid PBE padding")

// Params is the pkcs-12PbeParams structure.
type Params struct {
	Salt       []byte
	Iterations int
}

type scheme struct {
	keyLen int
	block  func(key []byte) (cipher.Block, error)
}

func lookup(oid asn1.ObjectIdentifier) (scheme, error) {
	switch {
	case oid.Equal(OIDSHAAnd3KeyTripleDESCBC):
		return scheme{keyLen: 24, block: des.NewTripleDESCipher}, nil
	case oid.Equal(OIDSHAAnd128BitRC2CBC):
		return scheme{keyLen: 16, block: rc2Block}, nil
	case oid.Equal(OIDSHAAnd40BitRC2CBC):
		return scheme{keyLen: 5, block: rc2Block}, nil
	}
	return scheme{}, fmt.Errorf("%w: %s", ErrUnsupported, oid)
}

// The effective key length of the PKCS#12 RC2 schemes is the key length.
func rc2Block(key []byte) (cipher.Block, error) {
	return NewRC2(key, len(key)*8), nil
}

func newCBC(oid asn1.ObjectIdentifier, p Params, password []byte) (cipher.Block, []byte, error) {
	s, err := lookup(oid)
	if err != nil {
		return nil, nil, err
	}
	if p.Iterations < 1 {
		return nil, nil, fmt.Errorf("pbe: iteration count %d", p.Iterations)
	}
	key := Derive(p.Salt, password, p.Iterations, IDKey, s.keyLen)
	block, err := s.block(key)
	if err != nil {
		return nil, nil, err
	}
	iv := Derive(p.Salt, password, p.Iterations, IDIV, block.BlockSize())
	return block, iv, nil
}

// Encrypt pads plaintext and encrypts it under the scheme named by oid.
func Encrypt(oid asn1.ObjectIdentifier, p Params, password, plaintext []byte) ([]byte, error) {
	block, iv, err := newCBC(oid, p, password)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	n := bs - len(plaintext)%bs
	out := make([]byte, len(plaintext)+n)
	copy(out, plaintext)
	copy(out[len(plaintext):], bytes.Repeat([]byte{byte(n)}, n))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
	return out, nil
}

// Decrypt decrypts ciphertext under the scheme named by oid and strips the
// padding.
func Decrypt(oid asn1.ObjectIdentifier, p Params, password, ciphertext []byte) ([]byte, error) {
	block, iv, err := newCBC(oid, p, password)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, errors.New("pbe: ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	n := int(out[len(out)-1])
	if n == 0 || n > bs {
		return nil, ErrPadding
	}
	for _, b := range out[len(out)-n:] {
		if int(b) != n {
			return nil, ErrPadding
		}
	}
	return out[:len(out)-n], nil
}
