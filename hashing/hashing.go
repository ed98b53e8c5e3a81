// Package hashing computes content digests and the ledger lookup keys derived
// from them.
//
// Two hashes are involved:
//
//	Digest    = SHA-256(file bytes)
//	LedgerKey = Keccak-256(utf8(lowercase hex(Digest)))
//
// The ledger never sees file bytes. It receives the hex string of the digest
// and re-hashes that string itself, so the client must produce exactly the
// same string: lowercase, no "0x" prefix, UTF-8. Any other encoding makes
// lookups silently miss.
package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"docanchor.dev/docanchor/errors"
)

// Size is the length in bytes of both Digest and LedgerKey.
const Size = 32

// Digest is the SHA-256 of raw content bytes.
type Digest [Size]byte

// LedgerKey is the ledger's index key for a Digest.
type LedgerKey [Size]byte

// Sum returns the content digest of b. An empty buffer is valid input.
func Sum(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Hex returns the lowercase hex encoding without prefix.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// Prefixed returns "0x" followed by Hex. This is the certificate_hash format.
func (d Digest) Prefixed() string { return "0x" + d.Hex() }

func (d Digest) String() string { return d.Hex() }

// IsZero reports whether d is the zero value (not a computed digest).
func (d Digest) IsZero() bool { return d == Digest{} }

// Key returns the ledger key for d.
func (d Digest) Key() LedgerKey { return KeyFor(d) }

// KeyFor derives the ledger key: Keccak-256 over the UTF-8 bytes of d.Hex().
func KeyFor(d Digest) LedgerKey {
	return KeyForHex(d.Hex())
}

// KeyForHex hashes s exactly as the ledger does for a submitted hash string.
// Callers normally use KeyFor; this exists for ledgers and test doubles that
// receive the string form.
func KeyForHex(s string) LedgerKey {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(s))
	var k LedgerKey
	copy(k[:], h.Sum(nil))
	return k
}

// Hex returns the lowercase hex encoding of the key.
func (k LedgerKey) Hex() string { return hex.EncodeToString(k[:]) }

func (k LedgerKey) String() string { return "0x" + k.Hex() }

// ParseDigest accepts a 64-character hex digest with or without "0x", in any case.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(Size) {
		return d, errors.Input("digest must be %d hex characters, got %d", hex.EncodedLen(Size), len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, errors.WrapKind(errors.KindInput, "invalid digest hex", err)
	}
	copy(d[:], b)
	return d, nil
}

// Equal compares two digests in constant time.
func Equal(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
