package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/semaphore"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
)

// Serialized funnels every mutating call through a single slot so one signing
// account never has two transactions in flight. Waiting honours ctx. Reads
// pass straight through.
type Serialized struct {
	inner Client
	sem   *semaphore.Weighted
}

var (
	_ Client     = (*Serialized)(nil)
	_ Mutator    = (*Serialized)(nil)
	_ Enumerator = (*Serialized)(nil)
)

func NewSerialized(inner Client) *Serialized {
	return &Serialized{inner: inner, sem: semaphore.NewWeighted(1)}
}

// Unwrap returns the wrapped client.
func (s *Serialized) Unwrap() Client { return s.inner }

func (s *Serialized) exclusive(ctx context.Context, fn func() error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn()
}

func (s *Serialized) Register(ctx context.Context, r Registration) (rec Receipt, err error) {
	err = s.exclusive(ctx, func() error {
		rec, err = s.inner.Register(ctx, r)
		return err
	})
	return rec, err
}

func (s *Serialized) LookupByHash(ctx context.Context, key hashing.LedgerKey) (TokenID, error) {
	return s.inner.LookupByHash(ctx, key)
}

func (s *Serialized) LookupOwner(ctx context.Context, id TokenID) (common.Address, error) {
	return s.inner.LookupOwner(ctx, id)
}

func (s *Serialized) LookupURI(ctx context.Context, id TokenID) (string, error) {
	return s.inner.LookupURI(ctx, id)
}

func (s *Serialized) LookupDetails(ctx context.Context, id TokenID) (Details, error) {
	return s.inner.LookupDetails(ctx, id)
}

func (s *Serialized) mutator() (Mutator, error) {
	m, ok := s.inner.(Mutator)
	if !ok {
		return nil, errors.E(errors.KindInternal, "registry: backend does not support owner operations")
	}
	return m, nil
}

func (s *Serialized) Transfer(ctx context.Context, from, to common.Address, id TokenID) (tx string, err error) {
	m, err := s.mutator()
	if err != nil {
		return "", err
	}
	err = s.exclusive(ctx, func() error {
		tx, err = m.Transfer(ctx, from, to, id)
		return err
	})
	return tx, err
}

func (s *Serialized) Burn(ctx context.Context, id TokenID) (tx string, err error) {
	m, err := s.mutator()
	if err != nil {
		return "", err
	}
	err = s.exclusive(ctx, func() error {
		tx, err = m.Burn(ctx, id)
		return err
	})
	return tx, err
}

func (s *Serialized) Redeem(ctx context.Context, id TokenID) (tx string, err error) {
	m, err := s.mutator()
	if err != nil {
		return "", err
	}
	err = s.exclusive(ctx, func() error {
		tx, err = m.Redeem(ctx, id)
		return err
	})
	return tx, err
}

func (s *Serialized) TokensOf(ctx context.Context, owner common.Address) ([]TokenID, error) {
	e, ok := s.inner.(Enumerator)
	if !ok {
		return nil, errors.E(errors.KindInternal, "registry: backend cannot enumerate tokens")
	}
	return e.TokensOf(ctx, owner)
}
