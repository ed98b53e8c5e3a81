package keys

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"docanchor.dev/docanchor/errors"
)

func TestKeyStoreRootRoleAndList(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	seed, err := GenerateSeed(bytes.NewReader(bytes.Repeat([]byte{5}, SeedSize)))
	if err != nil {
		t.Fatalf("GenerateSeed: %v", err)
	}

	root, err := ks.InitializeRootKey("registrar", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if filepath.Base(root.Path) != "root.key" {
		t.Fatalf("unexpected root path %s", root.Path)
	}
	if _, err := ks.InitializeRootKey("registrar", seed, false); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input on existing key, got %v", err)
	}

	role, err := ks.DeriveRole("registrar", "issuer", false)
	if err != nil {
		t.Fatalf("DeriveRole: %v", err)
	}
	if role.EVMAddress == root.EVMAddress {
		t.Fatalf("role shares the root address")
	}

	again, err := ks.Identity("registrar", "issuer")
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if again.EVMAddress != role.EVMAddress || again.Ed25519 != role.Ed25519 {
		t.Fatalf("reloaded identity differs")
	}

	s, err := ks.SignerFor("registrar", "issuer", SchemeEVM)
	if err != nil {
		t.Fatalf("SignerFor: %v", err)
	}
	addr, _ := s.Address(context.Background())
	if addr != role.EVMAddress {
		t.Fatalf("signer address %s, want %s", addr, role.EVMAddress)
	}

	entries, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(entries) != 1 || entries[0].Identifier != "registrar" || len(entries[0].Roles) != 1 || entries[0].Roles[0] != "issuer" {
		t.Fatalf("unexpected listing %+v", entries)
	}
}

func TestKeyStoreMissingAndInvalid(t *testing.T) {
	ks, _ := OpenKeyStore(t.TempDir())
	if _, err := ks.Seed("nobody", ""); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := ks.Seed("../etc", ""); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for traversal, got %v", err)
	}
	if _, err := ks.LoadSeed("", "", "", ""); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input with no signer, got %v", err)
	}
	if _, err := SignerFromSeed(make([]byte, SeedSize), "rsa"); !errors.IsKind(err, errors.KindInput) {
		t.Fatalf("expected Input for unknown scheme, got %v", err)
	}
	entries, err := ks.ListKeys()
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty listing, got %v %v", entries, err)
	}
}

func TestLoadSeedPrecedence(t *testing.T) {
	ks, _ := OpenKeyStore(t.TempDir())
	seed := bytes.Repeat([]byte{0x11}, SeedSize)
	id, err := ks.InitializeRootKey("a", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	inline := bytes.Repeat([]byte{0x22}, SeedSize)

	got, err := ks.LoadSeed("0x2222222222222222222222222222222222222222222222222222222222222222", "a", "", "")
	if err != nil || !bytes.Equal(got, inline) {
		t.Fatalf("inline seed not preferred: %x %v", got, err)
	}
	got, err = ks.LoadSeed("", "", "", id.Path)
	if err != nil || !bytes.Equal(got, seed) {
		t.Fatalf("key file not loaded: %v", err)
	}
	got, err = ks.LoadSeed("", "a", "", "")
	if err != nil || !bytes.Equal(got, seed) {
		t.Fatalf("identifier not loaded: %v", err)
	}
}
