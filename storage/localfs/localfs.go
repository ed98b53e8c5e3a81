package localfs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
	"docanchor.dev/docanchor/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Options:     []casregistry.Option{{Key: "localfs-dir", Usage: "LocalFS CAS directory (for --backend=localfs)"}},
		Open: func(cfg casregistry.Config) (storage.CAS, func() error, error) {
			dir := cfg.Get("localfs-dir", "")
			if dir == "" {
				return nil, nil, errors.Input("missing --localfs-dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably under their raw sha2-256 CIDv1, sharded by the
// first two characters. Labels are not persisted.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.Input("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapKind(errors.KindStoreUnavailable, "localfs: create root", err)
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Put(ctx context.Context, data []byte, _ string) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: mkdir", err)
	}

	// Write to a temp file and link it into place so readers never observe a
	// partial object.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: sync", err)
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: close", err)
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: chmod", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if !os.IsExist(err) {
			return cid.Undef, errors.WrapKind(errors.KindStoreUnavailable, "localfs: link", err)
		}
		existing, rerr := os.ReadFile(path)
		if rerr != nil || !bytes.Equal(existing, data) {
			// An unreadable or different object under this CID is never repaired.
			return cid.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.WrapKind(errors.KindStoreUnavailable, "localfs: read", err)
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[:2], s)
}
