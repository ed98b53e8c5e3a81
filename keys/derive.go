package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"docanchor.dev/docanchor/errors"
)

// ChallengeMessage is the fixed text every wallet signs to obtain its
// content key. It must never vary per session or per certificate.
const ChallengeMessage = "Sign this message to encrypt/decrypt your NFT data. Keep it safe!"

// KeySize is the symmetric key length in bytes.
const KeySize = 32

// SeedSize is the length of KeyStore seeds.
const SeedSize = ed25519.SeedSize

const hkdfInfo = "docanchor/content-key/v1"

// SymmetricKey is a content-encryption key.
type SymmetricKey [KeySize]byte

// Bytes returns a copy of the key material.
func (k SymmetricKey) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k[:])
	return out
}

// IsZero reports whether k is the zero key.
func (k SymmetricKey) IsZero() bool { return k == SymmetricKey{} }

// String never prints key material.
func (k SymmetricKey) String() string { return "SymmetricKey(redacted)" }

// Derivation selects how signature bytes become a key.
type Derivation int

const (
	// DerivationSHA256 hashes the raw signature once. Existing encrypted
	// certificates were sealed with it.
	DerivationSHA256 Derivation = iota
	// DerivationHKDF runs HKDF-SHA256 over the signature with a fixed info
	// string. Opt-in; keys differ from DerivationSHA256.
	DerivationHKDF
)

func (d Derivation) String() string {
	switch d {
	case DerivationSHA256:
		return "sha256"
	case DerivationHKDF:
		return "hkdf"
	default:
		return "unknown"
	}
}

// ParseDerivation accepts "sha256" (or "") and "hkdf".
func ParseDerivation(s string) (Derivation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sha256":
		return DerivationSHA256, nil
	case "hkdf":
		return DerivationHKDF, nil
	default:
		return 0, errors.Input("unknown key derivation %q", s)
	}
}

// DeriveKey asks s to sign ChallengeMessage and hashes the signature bytes
// with SHA-256.
func DeriveKey(ctx context.Context, s Signer) (SymmetricKey, error) {
	return DeriveKeyWith(ctx, s, DerivationSHA256)
}

// DeriveKeyWith is DeriveKey with an explicit derivation.
//
// A declining signer yields a SignatureDenied error. Context errors are
// returned unchanged so callers can tell abandonment from refusal.
func DeriveKeyWith(ctx context.Context, s Signer, d Derivation) (SymmetricKey, error) {
	var key SymmetricKey
	sig, err := challengeSignature(ctx, s)
	if err != nil {
		return key, err
	}

	switch d {
	case DerivationSHA256:
		key = sha256.Sum256(sig)
	case DerivationHKDF:
		r := hkdf.New(sha256.New, sig, nil, []byte(hkdfInfo))
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return SymmetricKey{}, errors.WrapKind(errors.KindInternal, "hkdf expand", err)
		}
	default:
		return key, errors.Input("unknown key derivation %d", int(d))
	}
	return key, nil
}

// LegacyPassphrase is the passphrase the first wallet frontend sealed files
// with: the lowercase hex SHA-256 of the 0x-prefixed hex signature string.
// It only opens legacy files; new content uses DeriveKeyWith.
func LegacyPassphrase(ctx context.Context, s Signer) (string, error) {
	sig, err := challengeSignature(ctx, s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte("0x" + hex.EncodeToString(sig)))
	return hex.EncodeToString(sum[:]), nil
}

func challengeSignature(ctx context.Context, s Signer) ([]byte, error) {
	if s == nil {
		return nil, errors.Input("no signer configured for key derivation")
	}
	sig, err := s.SignMessage(ctx, ChallengeMessage)
	if err != nil {
		return nil, classifySignError(ctx, err)
	}
	if len(sig) == 0 {
		return nil, errors.WithStack(ErrDenied)
	}
	return sig, nil
}

func classifySignError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
		return err
	}
	if errors.KindOf(err) != "" {
		return err
	}
	return errors.WrapKind(errors.KindInternal, "signer failed", err)
}

// DeriveRoleSeed deterministically derives a role-specific seed from a root
// seed. The same root and role always yield the same seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, errors.Input("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("docanchor-keystore-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil)[:SeedSize], nil
}

// ParseSeedHex decodes a hex seed, with or without 0x.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInput, "seed is not hex", err)
	}
	if len(data) != SeedSize {
		return nil, errors.Input("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}
