package keys

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"docanchor.dev/docanchor/errors"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type deniedSigner struct{}

func (deniedSigner) Address(context.Context) (string, error) { return "0x0", nil }
func (deniedSigner) SignMessage(context.Context, string) ([]byte, error) {
	return nil, ErrDenied
}

type blockingSigner struct{}

func (blockingSigner) Address(context.Context) (string, error) { return "0x0", nil }
func (blockingSigner) SignMessage(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type brokenSigner struct{}

func (brokenSigner) Address(context.Context) (string, error) { return "0x0", nil }
func (brokenSigner) SignMessage(context.Context, string) ([]byte, error) {
	return nil, errors.New("usb device unplugged")
}

func TestDeriveKeyDeterministicAcrossInstances(t *testing.T) {
	ctx := context.Background()
	a, err := EVMSignerFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("EVMSignerFromHex: %v", err)
	}
	b, err := EVMSignerFromHex("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("EVMSignerFromHex: %v", err)
	}
	ka, err := DeriveKey(ctx, a)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	kb, err := DeriveKey(ctx, b)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if ka != kb {
		t.Fatalf("same identity derived different keys")
	}
	if ka.IsZero() {
		t.Fatalf("derived zero key")
	}
}

func TestDeriveKeyIsSHA256OfSignature(t *testing.T) {
	ctx := context.Background()
	s, err := NewEd25519Signer(bytes.Repeat([]byte{7}, SeedSize))
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	sig, err := s.SignMessage(ctx, ChallengeMessage)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	k, err := DeriveKey(ctx, s)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if want := sha256.Sum256(sig); k != SymmetricKey(want) {
		t.Fatalf("key is not sha256(signature)")
	}
}

func TestDeriveKeyDifferentIdentities(t *testing.T) {
	ctx := context.Background()
	a, _ := EVMSignerFromSeed(bytes.Repeat([]byte{1}, SeedSize))
	b, _ := EVMSignerFromSeed(bytes.Repeat([]byte{2}, SeedSize))
	ka, err := DeriveKey(ctx, a)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	kb, err := DeriveKey(ctx, b)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if ka == kb {
		t.Fatalf("different identities derived the same key")
	}
}

func TestDeriveKeyHKDFIsOptIn(t *testing.T) {
	ctx := context.Background()
	s, _ := EVMSignerFromHex(testKeyHex)
	plain, err := DeriveKeyWith(ctx, s, DerivationSHA256)
	if err != nil {
		t.Fatalf("DeriveKeyWith sha256: %v", err)
	}
	def, _ := DeriveKey(ctx, s)
	if plain != def {
		t.Fatalf("default derivation is not sha256")
	}
	h1, err := DeriveKeyWith(ctx, s, DerivationHKDF)
	if err != nil {
		t.Fatalf("DeriveKeyWith hkdf: %v", err)
	}
	h2, _ := DeriveKeyWith(ctx, s, DerivationHKDF)
	if h1 != h2 {
		t.Fatalf("hkdf derivation not deterministic")
	}
	if h1 == plain {
		t.Fatalf("hkdf key equals sha256 key")
	}
}

func TestDeriveKeySignatureDenied(t *testing.T) {
	_, err := DeriveKey(context.Background(), deniedSigner{})
	if !errors.IsKind(err, errors.KindSignatureDenied) {
		t.Fatalf("expected SignatureDenied, got %v (kind %q)", err, errors.KindOf(err))
	}

	_, err = DeriveKey(context.Background(), Presigned{Addr: "0xabc"})
	if !errors.IsKind(err, errors.KindSignatureDenied) {
		t.Fatalf("empty presigned signature: expected SignatureDenied, got %v", err)
	}
}

func TestDeriveKeyCancellationIsNotDenial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DeriveKey(ctx, blockingSigner{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.IsKind(err, errors.KindSignatureDenied) {
		t.Fatalf("cancellation must not read as denial")
	}
}

func TestDeriveKeySignerFailureIsInternal(t *testing.T) {
	_, err := DeriveKey(context.Background(), brokenSigner{})
	if !errors.IsKind(err, errors.KindInternal) {
		t.Fatalf("expected Internal, got %v (kind %q)", err, errors.KindOf(err))
	}
}

func TestPresignedMatchesLocalSigner(t *testing.T) {
	ctx := context.Background()
	local, _ := EVMSignerFromHex(testKeyHex)
	sig, err := local.SignMessage(ctx, ChallengeMessage)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	addr, _ := local.Address(ctx)

	kLocal, _ := DeriveKey(ctx, local)
	kRemote, err := DeriveKey(ctx, Presigned{Addr: addr, Signature: sig})
	if err != nil {
		t.Fatalf("DeriveKey presigned: %v", err)
	}
	if kLocal != kRemote {
		t.Fatalf("presigned key differs from local key")
	}

	if _, err := (Presigned{Addr: addr, Signature: sig}).SignMessage(ctx, "other"); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for foreign text, got %v", err)
	}
}

func TestParseDerivation(t *testing.T) {
	cases := map[string]Derivation{"": DerivationSHA256, "sha256": DerivationSHA256, "HKDF": DerivationHKDF}
	for in, want := range cases {
		got, err := ParseDerivation(in)
		if err != nil || got != want {
			t.Fatalf("ParseDerivation(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDerivation("scrypt"); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input error, got %v", err)
	}
}

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := make([]byte, SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveRoleSeed(root, "issuer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, _ := DeriveRoleSeed(root, "issuer")
	if !bytes.Equal(a, b) {
		t.Fatalf("expected deterministic derivation")
	}
	c, _ := DeriveRoleSeed(root, "verifier")
	if bytes.Equal(a, c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
	if _, err := DeriveRoleSeed(root[:5], "issuer"); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for short root, got %v", err)
	}
	if _, err := DeriveRoleSeed(root, "bad role"); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for bad role, got %v", err)
	}
}

func TestSymmetricKeyStringRedacted(t *testing.T) {
	var k SymmetricKey
	k[0] = 0xAB
	if s := k.String(); s != "SymmetricKey(redacted)" {
		t.Fatalf("String leaked key material: %q", s)
	}
}

func TestLegacyPassphrase(t *testing.T) {
	ctx := context.Background()
	got, err := LegacyPassphrase(ctx, Presigned{Signature: []byte{0xab, 0xcd}})
	if err != nil {
		t.Fatalf("LegacyPassphrase: %v", err)
	}
	// sha256("0xabcd") in hex, as the first frontend computed it.
	if want := "c0d142a5dea4f0ae8f9df45d0683c72afa5748c4168eed58fc16a9a082cfff96"; got != want {
		t.Fatalf("passphrase %s, want %s", got, want)
	}
	if _, err := LegacyPassphrase(ctx, deniedSigner{}); !errors.IsKind(err, errors.KindSignatureDenied) {
		t.Fatalf("expected SignatureDenied, got %v", err)
	}
	if _, err := LegacyPassphrase(ctx, nil); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for nil signer, got %v", err)
	}
}
