package p12

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"

	"github.com/remiblancher/qp12/pkg/p12/internal/pbe"
)

// PFX structures from RFC 7292, kept to what setFriendlyName walks.
type pfxPdu struct {
	Version  int
	AuthSafe contentInfo
	MacData  macData `asn1:"optional"`
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type encryptedData struct {
	Version              int
	EncryptedContentInfo encryptedContentInfo
}

type encryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedContent           []byte `asn1:"tag:0,optional"`
}

type safeBag struct {
	Id         asn1.ObjectIdentifier
	Value      asn1.RawValue     `asn1:"tag:0,explicit"`
	Attributes []pkcs12Attribute `asn1:"set,optional"`
}

type pkcs12Attribute struct {
	Id    asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

type macData struct {
	Mac        digestInfo
	MacSalt    []byte
	Iterations int `asn1:"optional,default:1"`
}

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

var (
	oidDataContentType          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidEncryptedDataContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}

	oidKeyBag              = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 1}
	oidPKCS8ShroudedKeyBag = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 2}
	oidCertBag             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 3}

	oidFriendlyName = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 20}
	oidLocalKeyID   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 21}

	oidSHA1 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
)

// unmarshal is asn1.Unmarshal that rejects trailing data.
func unmarshal(in []byte, out any) error {
	rest, err := asn1.Unmarshal(in, out)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.New("trailing data after ASN.1 structure")
	}
	return nil
}

// explicit0 wraps inner DER in a [0] EXPLICIT tag.
func explicit0(inner []byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: inner}
}

// setFriendlyName rewrites a container so that its key bags and the
// certificate bag holding the localKeyId carry a friendlyName attribute.
// Encrypted safes are re-encrypted and the MAC recomputed with fresh salts,
// keeping every algorithm and iteration count as found.
func setFriendlyName(rnd io.Reader, data []byte, passphrase, name string) ([]byte, error) {
	password := pbe.Password(passphrase)

	var pfx pfxPdu
	if err := unmarshal(data, &pfx); err != nil {
		return nil, fmt.Errorf("parse pfx: %w", err)
	}
	if !pfx.AuthSafe.ContentType.Equal(oidDataContentType) {
		return nil, errors.New("authenticated safe is not data")
	}
	if !pfx.MacData.Mac.Algorithm.Algorithm.Equal(oidSHA1) {
		return nil, fmt.Errorf("unsupported MAC algorithm %s", pfx.MacData.Mac.Algorithm.Algorithm)
	}

	var authSafe []byte
	if err := unmarshal(pfx.AuthSafe.Content.Bytes, &authSafe); err != nil {
		return nil, fmt.Errorf("parse authenticated safe: %w", err)
	}
	var safes []contentInfo
	if err := unmarshal(authSafe, &safes); err != nil {
		return nil, fmt.Errorf("parse authenticated safe: %w", err)
	}

	attr, err := friendlyNameAttribute(name)
	if err != nil {
		return nil, err
	}

	for i := range safes {
		ci := &safes[i]
		switch {
		case ci.ContentType.Equal(oidDataContentType):
			var body []byte
			if err := unmarshal(ci.Content.Bytes, &body); err != nil {
				return nil, fmt.Errorf("parse safe %d: %w", i, err)
			}
			if body, err = nameBags(body, attr); err != nil {
				return nil, fmt.Errorf("safe %d: %w", i, err)
			}
			inner, err := asn1.Marshal(body)
			if err != nil {
				return nil, err
			}
			ci.Content = explicit0(inner)

		case ci.ContentType.Equal(oidEncryptedDataContentType):
			inner, err := renameEncrypted(rnd, ci.Content.Bytes, password, attr)
			if err != nil {
				return nil, fmt.Errorf("safe %d: %w", i, err)
			}
			ci.Content = explicit0(inner)

		default:
			return nil, fmt.Errorf("safe %d: unsupported content type %s", i, ci.ContentType)
		}
	}

	if authSafe, err = asn1.Marshal(safes); err != nil {
		return nil, err
	}
	octets, err := asn1.Marshal(authSafe)
	if err != nil {
		return nil, err
	}
	pfx.AuthSafe.Content = explicit0(octets)

	salt := make([]byte, len(pfx.MacData.MacSalt))
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("mac salt: %w", err)
	}
	iterations := pfx.MacData.Iterations
	if iterations < 1 {
		iterations = 1
	}
	mac := hmac.New(sha1.New, pbe.Derive(salt, password, iterations, pbe.IDMAC, sha1.Size))
	mac.Write(authSafe)
	pfx.MacData.MacSalt = salt
	pfx.MacData.Iterations = iterations
	pfx.MacData.Mac.Digest = mac.Sum(nil)

	return asn1.Marshal(pfx)
}

// renameEncrypted decrypts an EncryptedData safe, names its bags and
// encrypts it again under the same scheme with a fresh salt.
func renameEncrypted(rnd io.Reader, der, password []byte, attr pkcs12Attribute) ([]byte, error) {
	var ed encryptedData
	if err := unmarshal(der, &ed); err != nil {
		return nil, fmt.Errorf("parse encrypted data: %w", err)
	}
	alg := ed.EncryptedContentInfo.ContentEncryptionAlgorithm
	var params pbe.Params
	if err := unmarshal(alg.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("parse PBE parameters: %w", err)
	}

	body, err := pbe.Decrypt(alg.Algorithm, params, password, ed.EncryptedContentInfo.EncryptedContent)
	if err != nil {
		return nil, err
	}
	if body, err = nameBags(body, attr); err != nil {
		return nil, err
	}

	fresh := pbe.Params{Salt: make([]byte, len(params.Salt)), Iterations: params.Iterations}
	if _, err := io.ReadFull(rnd, fresh.Salt); err != nil {
		return nil, fmt.Errorf("pbe salt: %w", err)
	}
	if ed.EncryptedContentInfo.EncryptedContent, err = pbe.Encrypt(alg.Algorithm, fresh, password, body); err != nil {
		return nil, err
	}
	if alg.Parameters.FullBytes, err = asn1.Marshal(fresh); err != nil {
		return nil, err
	}
	ed.EncryptedContentInfo.ContentEncryptionAlgorithm = alg

	return asn1.Marshal(ed)
}

// nameBags attaches attr to the key bags and to the certificate bag that
// shares the key's localKeyId, replacing any friendlyName already there.
func nameBags(safeContents []byte, attr pkcs12Attribute) ([]byte, error) {
	var bags []safeBag
	if err := unmarshal(safeContents, &bags); err != nil {
		return nil, fmt.Errorf("parse safe contents: %w", err)
	}

	for i := range bags {
		bag := &bags[i]
		isKey := bag.Id.Equal(oidPKCS8ShroudedKeyBag) || bag.Id.Equal(oidKeyBag)
		if !isKey && !(bag.Id.Equal(oidCertBag) && hasAttribute(bag, oidLocalKeyID)) {
			continue
		}
		kept := bag.Attributes[:0]
		for _, a := range bag.Attributes {
			if !a.Id.Equal(oidFriendlyName) {
				kept = append(kept, a)
			}
		}
		bag.Attributes = append(kept, attr)
	}

	return asn1.Marshal(bags)
}

func hasAttribute(bag *safeBag, oid asn1.ObjectIdentifier) bool {
	for _, a := range bag.Attributes {
		if a.Id.Equal(oid) {
			return true
		}
	}
	return false
}

// friendlyNameAttribute returns the friendlyName attribute holding name as
// a single BMPString.
func friendlyNameAttribute(name string) (pkcs12Attribute, error) {
	value, err := asn1.Marshal(asn1.RawValue{Tag: asn1.TagBMPString, Bytes: pbe.BMPString(name)})
	if err != nil {
		return pkcs12Attribute{}, err
	}
	return pkcs12Attribute{
		Id:    oidFriendlyName,
		Value: asn1.RawValue{Tag: asn1.TagSet, IsCompound: true, Bytes: value},
	}, nil
}
