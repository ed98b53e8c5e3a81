package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"docanchor.dev/docanchor/errors"
)

// ErrSignatureMismatch means a signature was valid in form but was not made
// by the claimed address.
var ErrSignatureMismatch = errors.E(errors.KindSignatureDenied, "signature does not belong to the claimed address")

// VerifyMessage checks that sig is address's signature over text. The address
// form selects the scheme: "ed25519:<b64>", "dilithium3:<b64>" or a 0x EVM
// account, matching what the signers in this package report.
func VerifyMessage(address, text string, sig []byte) error {
	switch {
	case strings.HasPrefix(address, "ed25519:"):
		pub, err := decodeIdentity(address, "ed25519:", ed25519.PublicKeySize)
		if err != nil {
			return err
		}
		if !ed25519.Verify(pub, []byte(text), sig) {
			return ErrSignatureMismatch
		}
		return nil
	case strings.HasPrefix(address, "dilithium3:"):
		raw, err := decodeIdentity(address, "dilithium3:", mode3.PublicKeySize)
		if err != nil {
			return err
		}
		var pub mode3.PublicKey
		if err := pub.UnmarshalBinary(raw); err != nil {
			return errors.WrapKind(errors.KindInput, "dilithium3 public key", err)
		}
		if !mode3.Verify(&pub, []byte(text), sig) {
			return ErrSignatureMismatch
		}
		return nil
	default:
		return verifyEVM(address, text, sig)
	}
}

func decodeIdentity(address, prefix string, size int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(address, prefix))
	if err != nil {
		return nil, errors.WrapKind(errors.KindInput, "identity is not base64", err)
	}
	if len(raw) != size {
		return nil, errors.Input("%s public key must be %d bytes, got %d", strings.TrimSuffix(prefix, ":"), size, len(raw))
	}
	return raw, nil
}

// verifyEVM recovers the signer of a personal_sign signature. V may be 0/1 or
// 27/28.
func verifyEVM(address, text string, sig []byte) error {
	if !common.IsHexAddress(address) {
		return errors.Input("invalid address %q", address)
	}
	if len(sig) != crypto.SignatureLength {
		return errors.Input("secp256k1 signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := bytes.Clone(sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), s)
	if err != nil {
		return errors.WrapKind(errors.KindInput, "malformed secp256k1 signature", err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// NewPresigned accepts a wallet's challenge signature. When addr is set the
// signature must verify against it.
func NewPresigned(addr string, sig []byte) (Presigned, error) {
	if addr != "" {
		if err := VerifyMessage(addr, ChallengeMessage, sig); err != nil {
			return Presigned{}, err
		}
	}
	return Presigned{Addr: addr, Signature: bytes.Clone(sig)}, nil
}
