package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// CAS is a content-addressable store.
//
// Contract:
// - Put MUST be idempotent; stored objects are immutable and never deleted.
// - The returned CID is assigned by the store. Callers treat it as opaque.
// - label is advisory metadata (file name, pin name); it never affects the CID.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte, label string) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
