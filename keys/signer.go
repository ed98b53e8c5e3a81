package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"docanchor.dev/docanchor/errors"
)

// ErrDenied is returned by a Signer when the holder declines to sign.
var ErrDenied = errors.E(errors.KindSignatureDenied, "signature request denied")

// Signer is a wallet-like signing capability.
//
// SignMessage must be deterministic: the same identity asked to sign the same
// text returns the same bytes. Implementations that wait on a human must
// return when ctx is done.
type Signer interface {
	Address(ctx context.Context) (string, error)
	SignMessage(ctx context.Context, text string) ([]byte, error)
}

// EVMSigner signs with a secp256k1 key using the personal_sign (EIP-191)
// convention, so signatures match what a browser wallet produces for the same
// account.
type EVMSigner struct {
	key *ecdsa.PrivateKey
}

// NewEVMSigner wraps an existing private key.
func NewEVMSigner(key *ecdsa.PrivateKey) *EVMSigner {
	return &EVMSigner{key: key}
}

// EVMSignerFromHex parses a hex private key, with or without 0x.
func EVMSignerFromHex(s string) (*EVMSigner, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInput, "invalid secp256k1 private key", err)
	}
	return &EVMSigner{key: key}, nil
}

// EVMSignerFromSeed uses a 32-byte seed directly as the private scalar.
func EVMSignerFromSeed(seed []byte) (*EVMSigner, error) {
	if len(seed) != SeedSize {
		return nil, errors.Input("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInput, "seed is not a valid secp256k1 scalar", err)
	}
	return &EVMSigner{key: key}, nil
}

// Address returns the EIP-55 checksummed account address.
func (s *EVMSigner) Address(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex(), nil
}

// SignMessage returns the 65-byte [R || S || V] signature with V in {27, 28}.
func (s *EVMSigner) SignMessage(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(text)), s.key)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInternal, "secp256k1 sign", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// PrivateKey exposes the key for ledger transactors.
func (s *EVMSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

// Ed25519Signer signs the raw message text with Ed25519.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Input("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Address returns "ed25519:" + base64(pubkey).
func (s *Ed25519Signer) Address(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Ed25519Identity(s.priv.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) SignMessage(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.priv, []byte(text)), nil
}

// Ed25519Identity encodes an Ed25519 public key as an identity string.
func Ed25519Identity(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", errors.Input("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub), nil
}

// Dilithium3Signer signs with the post-quantum Dilithium3 scheme. circl signs
// deterministically, which the key derivation relies on.
type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// NewDilithium3Signer expands a 32-byte seed into a Dilithium3 keypair.
func NewDilithium3Signer(seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, errors.Input("dilithium3 seed must be %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// Address returns "dilithium3:" + base64(packed pubkey).
func (s *Dilithium3Signer) Address(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "dilithium3:" + base64.StdEncoding.EncodeToString(s.pub.Bytes()), nil
}

func (s *Dilithium3Signer) SignMessage(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, []byte(text), sig)
	return sig, nil
}

// PublicKey returns the verification key.
func (s *Dilithium3Signer) PublicKey() *mode3.PublicKey { return s.pub }

// Presigned replays a signature that a remote wallet already produced over
// ChallengeMessage. The HTTP API uses it: the browser signs, the server
// derives.
type Presigned struct {
	Addr      string
	Signature []byte
}

func (p Presigned) Address(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Addr, nil
}

func (p Presigned) SignMessage(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text != ChallengeMessage {
		return nil, errors.Input("presigned signature only covers the key challenge")
	}
	if len(p.Signature) == 0 {
		return nil, ErrDenied
	}
	out := make([]byte, len(p.Signature))
	copy(out, p.Signature)
	return out, nil
}
