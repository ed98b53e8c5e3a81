package storage

import (
	"context"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/errors"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Reads try Adapters in slice order, at most MaxAttempts of them (0 means all).
// Any failed attempt moves on to the next adapter; only context cancellation
// stops early. If every attempt reported not-found the result is ErrNotFound,
// otherwise the last infrastructure error is returned.
//
// Put writes only to the first adapter.
type MultiCAS struct {
	Adapters    []CAS
	MaxAttempts int
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, data []byte, label string) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(ctx, data, label)
}

func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	if len(m.Adapters) == 0 {
		return nil, errors.New("storage: MultiCAS has no adapters")
	}

	var lastErr error
	for i, cas := range m.Adapters {
		if m.MaxAttempts > 0 && i >= m.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := cas.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if IsNotFound(err) {
			continue
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) bool {
	for i, cas := range m.Adapters {
		if m.MaxAttempts > 0 && i >= m.MaxAttempts {
			break
		}
		if cas.Has(ctx, id) {
			return true
		}
	}
	return false
}
