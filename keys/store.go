package keys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docanchor.dev/docanchor/errors"
)

// Scheme names a signer family backed by a KeyStore seed.
type Scheme string

const (
	SchemeEVM        Scheme = "evm"
	SchemeEd25519    Scheme = "ed25519"
	SchemeDilithium3 Scheme = "dilithium3"
)

// KeyStore keeps 32-byte seeds on the local filesystem:
//
//	<dir>/<identifier>/root.key
//	<dir>/<identifier>/roles/<role>.key
//
// One seed backs every scheme, so an identity has a stable EVM address and a
// stable Ed25519 key at the same time.
type KeyStore struct {
	Directory string
}

// KeyEntry lists an identifier and the roles derived under it.
type KeyEntry struct {
	Identifier string   `json:"identifier"`
	Roles      []string `json:"roles"`
}

// Identity is the public side of a stored seed.
type Identity struct {
	EVMAddress string `json:"evmAddress"`
	Ed25519    string `json:"ed25519"`
	Path       string `json:"path"`
}

// DefaultDirectory is ~/.docanchor/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".docanchor", "keys"), nil
}

// OpenKeyStore returns a store rooted at directory, or at DefaultDirectory
// when directory is empty. Nothing is created until a seed is written.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

// GenerateSeed reads a fresh seed from r, or crypto/rand when r is nil.
func GenerateSeed(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, errors.Wrap(err, "read seed entropy")
	}
	return seed, nil
}

func (ks *KeyStore) rootPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) rolePath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

func checkName(what, s string) error {
	if s == "" {
		return errors.Input("%s cannot be empty", what)
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return errors.Input("invalid character %q in %s", c, what)
	}
	return nil
}

// CheckKeyName validates a key identifier ([A-Za-z0-9_-]+).
func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

// CheckRole validates a role name ([A-Za-z0-9_-]+).
func CheckRole(role string) error { return checkName("role", role) }

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return errors.Input("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create key directory")
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return errors.WithHint(
				errors.Input("key %s already exists", path),
				"pass --force to overwrite")
		}
		return errors.Wrap(err, "open key file")
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return errors.Wrap(err, "write key file")
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Ef(errors.KindNotFound, "no key at %s", path)
		}
		return nil, errors.Wrap(err, "read key file")
	}
	return ParseSeedHex(string(data))
}

// IdentityFromSeed returns the public identity for seed.
func IdentityFromSeed(seed []byte) (Identity, error) {
	evm, err := EVMSignerFromSeed(seed)
	if err != nil {
		return Identity{}, err
	}
	ed, err := NewEd25519Signer(seed)
	if err != nil {
		return Identity{}, err
	}
	ctx := context.Background()
	addr, _ := evm.Address(ctx)
	edID, _ := ed.Address(ctx)
	return Identity{EVMAddress: addr, Ed25519: edID}, nil
}

// InitializeRootKey stores seed as the root key of identifier.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (Identity, error) {
	if err := CheckKeyName(identifier); err != nil {
		return Identity{}, err
	}
	id, err := IdentityFromSeed(seed)
	if err != nil {
		return Identity{}, err
	}
	id.Path = ks.rootPath(identifier)
	if err := writeSeed(id.Path, seed, overwrite); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// DeriveRole derives and stores the role seed of identifier.
func (ks *KeyStore) DeriveRole(identifier, role string, overwrite bool) (Identity, error) {
	if err := CheckKeyName(identifier); err != nil {
		return Identity{}, err
	}
	if err := CheckRole(role); err != nil {
		return Identity{}, err
	}
	root, err := readSeed(ks.rootPath(identifier))
	if err != nil {
		return Identity{}, err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return Identity{}, err
	}
	id, err := IdentityFromSeed(seed)
	if err != nil {
		return Identity{}, err
	}
	id.Path = ks.rolePath(identifier, role)
	if err := writeSeed(id.Path, seed, overwrite); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Seed loads the root seed (empty role) or a role seed.
func (ks *KeyStore) Seed(identifier, role string) ([]byte, error) {
	if err := CheckKeyName(identifier); err != nil {
		return nil, err
	}
	if role == "" {
		return readSeed(ks.rootPath(identifier))
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	return readSeed(ks.rolePath(identifier, role))
}

// Identity returns the public identity of a stored key.
func (ks *KeyStore) Identity(identifier, role string) (Identity, error) {
	seed, err := ks.Seed(identifier, role)
	if err != nil {
		return Identity{}, err
	}
	id, err := IdentityFromSeed(seed)
	if err != nil {
		return Identity{}, err
	}
	if role == "" {
		id.Path = ks.rootPath(identifier)
	} else {
		id.Path = ks.rolePath(identifier, role)
	}
	return id, nil
}

// SignerFor builds a Signer of the given scheme from a stored seed.
func (ks *KeyStore) SignerFor(identifier, role string, scheme Scheme) (Signer, error) {
	seed, err := ks.Seed(identifier, role)
	if err != nil {
		return nil, err
	}
	return SignerFromSeed(seed, scheme)
}

// SignerFromSeed builds a Signer of the given scheme. An empty scheme means
// SchemeEVM.
func SignerFromSeed(seed []byte, scheme Scheme) (Signer, error) {
	switch scheme {
	case "", SchemeEVM:
		return EVMSignerFromSeed(seed)
	case SchemeEd25519:
		return NewEd25519Signer(seed)
	case SchemeDilithium3:
		return NewDilithium3Signer(seed)
	default:
		return nil, errors.Input("unknown signer scheme %q", scheme)
	}
}

// LoadSeed resolves a seed from, in order: an inline hex seed, a key file,
// or a stored identifier/role.
func (ks *KeyStore) LoadSeed(seedHex, identifier, role, keyFile string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeed(keyFile)
	case identifier != "":
		return ks.Seed(identifier, role)
	default:
		return nil, errors.WithHint(errors.Input("no signer provided"),
			"use --seed, --key-file or --key")
	}
}

// ListKeys returns every identifier with its derived roles, sorted.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "list key directory")
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	var out []KeyEntry
	for _, id := range ids {
		var roles []string
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, id, "roles"))
		if rerr == nil {
			for _, re := range roleEntries {
				if re.IsDir() {
					continue
				}
				if name, ok := strings.CutSuffix(re.Name(), ".key"); ok {
					roles = append(roles, name)
				}
			}
			sort.Strings(roles)
		}
		out = append(out, KeyEntry{Identifier: id, Roles: roles})
	}
	return out, nil
}
