// Package pbe implements the PKCS#12 password-based encryption schemes
// used by legacy containers: the RFC 7292 appendix B key derivation over
// SHA-1, pbeWithSHAAnd3-KeyTripleDES-CBC and the RC2 variants.
package pbe

import (
	"crypto/sha1"
	"unicode/utf16"
)

// Diversifier IDs from RFC 7292 B.3.
const (
	IDKey byte = 1
	IDIV  byte = 2
	IDMAC byte = 3
)

const (
	hashLen  = sha1.Size // u
	blockLen = 64        // v
)

// Password encodes s as a NUL-terminated big-endian BMPString, the form
// the KDF consumes. The empty passphrase encodes to two zero bytes.
func Password(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return append(out, 0, 0)
}

// BMPString encodes s as a big-endian BMPString without terminator.
func BMPString(s string) []byte {
	p := Password(s)
	return p[:len(p)-2]
}

// Derive returns size bytes of key material for the given diversifier.
func Derive(salt, password []byte, iterations int, id byte, size int) []byte {
	d := make([]byte, blockLen)
	for i := range d {
		d[i] = id
	}

	s := fill(salt)
	p := fill(password)
	buf := append(s, p...)

	out := make([]byte, 0, size+hashLen)
	for {
		sum := sha1.Sum(append(append([]byte{}, d...), buf...))
		a := sum[:]
		for r := 1; r < iterations; r++ {
			sum = sha1.Sum(a)
			a = sum[:]
		}
		out = append(out, a...)
		if len(out) >= size {
			return out[:size]
		}

		b := make([]byte, blockLen)
		for i := range b {
			b[i] = a[i%hashLen]
		}
		// I_j = (I_j + B + 1) mod 2^(8v)
		for j := 0; j < len(buf)/blockLen; j++ {
			block := buf[j*blockLen : (j+1)*blockLen]
			carry := 1
			for k := blockLen - 1; k >= 0; k-- {
				n := int(block[k]) + int(b[k]) + carry
				block[k] = byte(n)
				carry = n >> 8
			}
		}
	}
}

// fill repeats v to the next multiple of the block length.
func fill(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	n := blockLen * ((len(v) + blockLen - 1) / blockLen)
	out := make([]byte, n)
	for i := range out {
		out[i] = v[i%len(v)]
	}
	return out
}
