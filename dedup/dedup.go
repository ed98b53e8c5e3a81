// Package dedup is the pre-publication existence check. It is advisory: the
// ledger's own uniqueness constraint at registration is authoritative, this
// only avoids publishing content that is already registered.
package dedup

import (
	"context"

	"go.uber.org/zap"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/registry"
)

// Lookup is the part of registry.Client the guard needs.
type Lookup interface {
	LookupByHash(ctx context.Context, key hashing.LedgerKey) (registry.TokenID, error)
}

type Guard struct {
	ledger Lookup
	log    *zap.SugaredLogger
}

func New(ledger Lookup, log *zap.SugaredLogger) *Guard {
	return &Guard{ledger: ledger, log: logger.Or(log)}
}

// EnsureUnregistered hashes content and fails with
// *errors.AlreadyRegisteredError when the digest already has a registration.
func (g *Guard) EnsureUnregistered(ctx context.Context, content []byte) (hashing.Digest, error) {
	d := hashing.Sum(content)
	return d, g.Check(ctx, d)
}

// Check is EnsureUnregistered for a precomputed digest.
func (g *Guard) Check(ctx context.Context, d hashing.Digest) error {
	id, err := g.ledger.LookupByHash(ctx, d.Key())
	if err != nil {
		return errors.Wrap(err, "dedup: lookup by hash")
	}
	if id != registry.NoToken {
		g.log.Infow("content already registered", "digest", d.Hex(), "token", uint64(id))
		return errors.WithStack(&errors.AlreadyRegisteredError{ExistingID: uint64(id), DigestHex: d.Hex()})
	}
	return nil
}
