// Package memledger is an in-process ledger with the certificate contract's
// semantics. The dev server and tests use it in place of a chain.
package memledger

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/registry"
)

// Revert reasons, mirroring the contract's require messages.
const (
	ReasonDuplicate   = "Certificate already registered"
	ReasonZeroAddress = "ERC721: mint to the zero address"
	ReasonNotOwner    = "ERC721: caller is not token owner or approved"
	ReasonNotVoucher  = "Only vouchers can be redeemed"
	ReasonRedeemed    = "Voucher already redeemed"
	ReasonBadToken    = "ERC721: invalid token ID"
)

// RevertError is what the ledger returns when a call reverts.
type RevertError struct{ Reason string }

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

// The contract keeps no redeemable flag; a voucher's "redeemable" attribute
// lives in its descriptor only.
type token struct {
	owner   common.Address
	uri     string
	hashHex string
	details registry.Details
	legacy  bool
	burned  bool
}

// Ledger implements registry.Client, registry.Mutator and registry.Enumerator.
type Ledger struct {
	mu     sync.Mutex
	next   uint64
	byKey  map[hashing.LedgerKey]registry.TokenID
	tokens map[registry.TokenID]*token

	// BeforeRegister runs inside Register before the uniqueness check, with
	// no lock held. Tests use it to land a competing registration.
	BeforeRegister func(registry.Registration)
	// Latency delays every Register to make overlapping calls observable.
	Latency time.Duration

	inflight    int
	maxInflight int
	registers   int
}

var (
	_ registry.Client     = (*Ledger)(nil)
	_ registry.Mutator    = (*Ledger)(nil)
	_ registry.Enumerator = (*Ledger)(nil)
)

func New() *Ledger {
	return &Ledger{
		byKey:  make(map[hashing.LedgerKey]registry.TokenID),
		tokens: make(map[registry.TokenID]*token),
	}
}

func (l *Ledger) Register(ctx context.Context, r registry.Registration) (registry.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return registry.Receipt{}, err
	}
	l.mu.Lock()
	l.registers++
	l.inflight++
	if l.inflight > l.maxInflight {
		l.maxInflight = l.inflight
	}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.inflight--
		l.mu.Unlock()
	}()

	if l.BeforeRegister != nil {
		l.BeforeRegister(r)
	}
	if l.Latency > 0 {
		select {
		case <-time.After(l.Latency):
		case <-ctx.Done():
			return registry.Receipt{}, ctx.Err()
		}
	}

	id, err := l.mint(r, false)
	if err != nil {
		var rev *RevertError
		if errors.As(err, &rev) {
			l.mu.Lock()
			existing := l.byKey[r.Key()]
			l.mu.Unlock()
			return registry.Receipt{}, registry.ClassifyRevert(rev.Reason, r.HashHex, existing)
		}
		return registry.Receipt{}, err
	}
	return registry.Receipt{ID: id, TxRef: txRef("mint", uint64(id))}, nil
}

// ImportLegacy records a registration made before variant support; its
// details cannot be read.
func (l *Ledger) ImportLegacy(owner common.Address, uri, hashHex string) (registry.TokenID, error) {
	return l.mint(registry.Registration{To: owner, URI: uri, HashHex: hashHex}, true)
}

func (l *Ledger) mint(r registry.Registration, legacy bool) (registry.TokenID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.To == (common.Address{}) {
		return registry.NoToken, &RevertError{Reason: ReasonZeroAddress}
	}
	key := hashing.KeyForHex(r.HashHex)
	if _, taken := l.byKey[key]; taken {
		return registry.NoToken, &RevertError{Reason: ReasonDuplicate}
	}
	l.next++
	id := registry.TokenID(l.next)
	l.byKey[key] = id
	l.tokens[id] = &token{
		owner:   r.To,
		uri:     r.URI,
		hashHex: r.HashHex,
		legacy:  legacy,
		details: registry.Details{
			Code:    r.Code,
			CoOwner: r.Extras.CoOwner,
			Value:   r.Extras.Value,
		},
	}
	return id, nil
}

func (l *Ledger) LookupByHash(ctx context.Context, key hashing.LedgerKey) (registry.TokenID, error) {
	if err := ctx.Err(); err != nil {
		return registry.NoToken, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Like the contract's mapping, the index survives a burn.
	return l.byKey[key], nil
}

func (l *Ledger) live(id registry.TokenID) (*token, error) {
	t, ok := l.tokens[id]
	if id == registry.NoToken || !ok || t.burned {
		return nil, registry.UnknownID(id)
	}
	return t, nil
}

func (l *Ledger) LookupOwner(ctx context.Context, id registry.TokenID) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return common.Address{}, err
	}
	return t.owner, nil
}

func (l *Ledger) LookupURI(ctx context.Context, id registry.TokenID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return "", err
	}
	return t.uri, nil
}

func (l *Ledger) LookupDetails(ctx context.Context, id registry.TokenID) (registry.Details, error) {
	if err := ctx.Err(); err != nil {
		return registry.Details{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return registry.Details{}, err
	}
	if t.legacy {
		return registry.Details{}, registry.ErrDetailsUnsupported
	}
	return t.details, nil
}

func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, id registry.TokenID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return "", err
	}
	if t.owner != from {
		return "", registry.ClassifyRevert(ReasonNotOwner, t.hashHex, id)
	}
	if to == (common.Address{}) {
		return "", registry.ClassifyRevert("ERC721: transfer to the zero address", t.hashHex, id)
	}
	t.owner = to
	return txRef("transfer", uint64(id)), nil
}

func (l *Ledger) Burn(ctx context.Context, id registry.TokenID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return "", err
	}
	t.burned = true
	return txRef("burn", uint64(id)), nil
}

func (l *Ledger) Redeem(ctx context.Context, id registry.TokenID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.live(id)
	if err != nil {
		return "", err
	}
	switch {
	case t.legacy || t.details.Code != descriptor.CodeVoucher:
		return "", registry.ClassifyRevert(ReasonNotVoucher, t.hashHex, id)
	case t.details.Redeemed:
		return "", registry.ClassifyRevert(ReasonRedeemed, t.hashHex, id)
	}
	t.details.Redeemed = true
	return txRef("redeem", uint64(id)), nil
}

func (l *Ledger) TokensOf(ctx context.Context, owner common.Address) ([]registry.TokenID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []registry.TokenID
	for id, t := range l.tokens {
		if !t.burned && t.owner == owner {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Registers counts Register calls, including reverted ones.
func (l *Ledger) Registers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registers
}

// MaxInflight is the highest number of overlapping Register calls seen.
func (l *Ledger) MaxInflight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInflight
}

func txRef(op string, n uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return crypto.Keccak256Hash([]byte(op), b[:]).Hex()
}
