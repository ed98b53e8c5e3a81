package storage

import (
	"context"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/errors"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// CIDs to match the first backend's CID (otherwise ErrCIDMismatch is returned).
// Mixing a pinning service that assigns dag-pb CIDs with raw-CID local stores
// therefore fails on the first write; replicate only between like backends.
//
// Use PutAll when you need the per-backend CID mapping.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = (*ReplicatingCAS)(nil)

// PutAll writes the same bytes to all backends.
//
// It returns the CID assigned by the first backend and a map of
// backend name -> returned CID.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte, label string) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, errors.New("storage: ReplicatingCAS has no backends")
	}

	want := cid.Undef
	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, errors.Newf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(ctx, data, label)
		if err != nil {
			return cid.Undef, out, errors.Wrapf(err, "storage: backend %q", b.Name)
		}
		out[b.Name] = got
		if !want.Defined() {
			want = got
			continue
		}
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte, label string) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data, label)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	adapters := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS != nil {
			adapters = append(adapters, b.CAS)
		}
	}
	return MultiCAS{Adapters: adapters}.Get(ctx, id)
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(ctx, id) {
			return true
		}
	}
	return false
}
