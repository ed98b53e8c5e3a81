// Package confidential seals certificate files before publication and opens
// them again for viewing.
//
// Envelope layout (all header bytes are authenticated as AEAD associated data):
//
//	"DAE1" | version(1) | suite(1) | nonceLen(1) | nonce | ciphertext+tag
//
// A successful Decrypt only proves the key was right. Authenticity of the
// plaintext is established by VerifyIntegrity against the registered digest.
package confidential

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/keys"
)

// Magic prefixes every envelope.
const Magic = "DAE1"

// Version is the current envelope version.
const Version byte = 1

// EncryptedSuffix marks the published name of a sealed file.
const EncryptedSuffix = ".enc"

const fixedHeader = len(Magic) + 3

// Suite identifies the AEAD construction.
type Suite byte

const (
	SuiteAES256GCM         Suite = 1
	SuiteXChaCha20Poly1305 Suite = 2
)

func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes-256-gcm"
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return "unknown"
	}
}

// ParseSuite accepts the String forms; "" selects AES-256-GCM.
func ParseSuite(s string) (Suite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aes-256-gcm", "aes":
		return SuiteAES256GCM, nil
	case "xchacha20-poly1305", "xchacha":
		return SuiteXChaCha20Poly1305, nil
	default:
		return 0, errors.Input("unknown cipher suite %q", s)
	}
}

func newAEAD(s Suite, key keys.SymmetricKey) (cipher.AEAD, error) {
	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteXChaCha20Poly1305:
		return chacha20poly1305.NewX(key[:])
	default:
		return nil, errors.Newf("unsupported suite %d", byte(s))
	}
}

// Options tunes Encrypt. The zero value uses AES-256-GCM and crypto/rand.
type Options struct {
	Suite Suite
	Rand  io.Reader
}

// Encrypt seals plain under key with AES-256-GCM and a fresh random nonce.
func Encrypt(plain []byte, key keys.SymmetricKey) ([]byte, error) {
	return EncryptWith(plain, key, Options{})
}

// EncryptWith is Encrypt with explicit options.
func EncryptWith(plain []byte, key keys.SymmetricKey, opts Options) ([]byte, error) {
	if key.IsZero() {
		return nil, errors.Input("encryption key is not set")
	}
	suite := opts.Suite
	if suite == 0 {
		suite = SuiteAES256GCM
	}
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInput, "cipher suite", err)
	}

	ns := aead.NonceSize()
	out := make([]byte, 0, fixedHeader+ns+len(plain)+aead.Overhead())
	out = append(out, Magic...)
	out = append(out, Version, byte(suite), byte(ns))
	nonce := out[len(out) : len(out)+ns]
	out = out[:len(out)+ns]
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "read nonce", err)
	}
	header := out
	return aead.Seal(out, nonce, plain, header), nil
}

// IsEnvelope reports whether b starts with a well-formed envelope header.
func IsEnvelope(b []byte) bool {
	_, _, err := parseHeader(b)
	return err == nil
}

func parseHeader(b []byte) (Suite, int, error) {
	if len(b) < fixedHeader || !bytes.Equal(b[:len(Magic)], []byte(Magic)) {
		return 0, 0, errors.New("not an encrypted envelope")
	}
	if v := b[len(Magic)]; v != Version {
		return 0, 0, errors.Newf("unsupported envelope version %d", v)
	}
	suite := Suite(b[len(Magic)+1])
	ns := int(b[len(Magic)+2])
	switch suite {
	case SuiteAES256GCM:
		if ns != 12 {
			return 0, 0, errors.Newf("bad nonce length %d for %s", ns, suite)
		}
	case SuiteXChaCha20Poly1305:
		if ns != chacha20poly1305.NonceSizeX {
			return 0, 0, errors.Newf("bad nonce length %d for %s", ns, suite)
		}
	default:
		return 0, 0, errors.Newf("unknown suite %d", byte(suite))
	}
	if len(b) < fixedHeader+ns {
		return 0, 0, errors.New("truncated envelope header")
	}
	return suite, fixedHeader + ns, nil
}

// Decrypt opens an envelope. Any failure (wrong key, tampering, truncation,
// unknown format) is DecryptionFailed and no plaintext is returned.
func Decrypt(blob []byte, key keys.SymmetricKey) ([]byte, error) {
	suite, hlen, err := parseHeader(blob)
	if err != nil {
		return nil, errors.WrapKind(errors.KindDecryptionFailed, "decrypt", err)
	}
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, errors.WrapKind(errors.KindDecryptionFailed, "decrypt", err)
	}
	header := blob[:hlen]
	nonce := blob[fixedHeader:hlen]
	plain, err := aead.Open(nil, nonce, blob[hlen:], header)
	if err != nil {
		return nil, errors.E(errors.KindDecryptionFailed,
			"decrypt: wrong key or corrupted ciphertext")
	}
	return plain, nil
}

// VerifyIntegrity reports whether plain hashes to expected. The comparison is
// constant time.
func VerifyIntegrity(plain []byte, expected hashing.Digest) bool {
	return hashing.Equal(hashing.Sum(plain), expected)
}

// VerifyIntegrityHex is VerifyIntegrity against a hex digest in any casing,
// with or without 0x. A malformed digest never verifies.
func VerifyIntegrityHex(plain []byte, expectedHex string) bool {
	d, err := hashing.ParseDigest(expectedHex)
	if err != nil {
		return false
	}
	return VerifyIntegrity(plain, d)
}

// EncryptedName returns the published name for a sealed file.
func EncryptedName(name string) string {
	if name == "" {
		name = "certificate"
	}
	return name + EncryptedSuffix
}

// IsEncryptedName reports whether name carries the sealed-file suffix.
func IsEncryptedName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), EncryptedSuffix)
}

// PlainName strips the sealed-file suffix, if present.
func PlainName(name string) string {
	if IsEncryptedName(name) {
		return name[:len(name)-len(EncryptedSuffix)]
	}
	return name
}
