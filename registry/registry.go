// Package registry is the ledger façade: register a certificate, look it up
// by ledger key, and read its owner, URI and variant details.
package registry

import (
	"context"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
)

// TokenID identifies a registration. NoToken is the ledger's "absent" value.
type TokenID uint64

const NoToken TokenID = 0

func (id TokenID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseTokenID parses a decimal token id.
func ParseTokenID(s string) (TokenID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return NoToken, errors.Input("malformed token id %q", s)
	}
	return TokenID(n), nil
}

// Registration is the argument set of the ledger's register operation.
type Registration struct {
	To  common.Address
	URI string
	// HashHex is the plaintext content digest, lowercase hex without prefix.
	// The ledger re-hashes this string to build its uniqueness key.
	HashHex string
	Code    descriptor.Code
	Extras  descriptor.Extras
}

// Key is the ledger key the registration will be indexed under.
func (r Registration) Key() hashing.LedgerKey { return hashing.KeyForHex(r.HashHex) }

// Receipt is returned once a registration is final.
type Receipt struct {
	ID    TokenID
	TxRef string
}

// Details are the variant fields stored with a registration.
type Details struct {
	Code     descriptor.Code
	CoOwner  common.Address
	Value    uint64
	Redeemed bool
}

// Client is the read and register surface every ledger backend provides.
type Client interface {
	// Register blocks until the registration is final.
	Register(ctx context.Context, r Registration) (Receipt, error)
	// LookupByHash returns NoToken when key is unregistered.
	LookupByHash(ctx context.Context, key hashing.LedgerKey) (TokenID, error)
	// LookupOwner fails with KindUnknownID for NoToken or burned tokens.
	LookupOwner(ctx context.Context, id TokenID) (common.Address, error)
	LookupURI(ctx context.Context, id TokenID) (string, error)
	// LookupDetails fails with ErrDetailsUnsupported for registrations that
	// predate variant support.
	LookupDetails(ctx context.Context, id TokenID) (Details, error)
}

// Mutator covers the owner-side operations. Each returns the transaction reference.
type Mutator interface {
	Transfer(ctx context.Context, from, to common.Address, id TokenID) (string, error)
	Burn(ctx context.Context, id TokenID) (string, error)
	Redeem(ctx context.Context, id TokenID) (string, error)
}

// Enumerator lists the tokens held by an address.
type Enumerator interface {
	TokensOf(ctx context.Context, owner common.Address) ([]TokenID, error)
}

// ErrDetailsUnsupported is returned by LookupDetails for legacy registrations.
var ErrDetailsUnsupported error = &errors.Error{Kind: errors.KindLedgerRevert, Message: "registry: details not supported for this registration"}

// DefaultDetails is what a registration without variant data reads as.
var DefaultDetails = Details{Code: descriptor.CodeStandard}

// DetailsOrDefault reads details, falling back to DefaultDetails when the
// registration (or the ledger) does not support them. degraded reports the fallback.
func DetailsOrDefault(ctx context.Context, c Client, id TokenID) (d Details, degraded bool, err error) {
	d, err = c.LookupDetails(ctx, id)
	if err == nil {
		return d, false, nil
	}
	if errors.Is(err, ErrDetailsUnsupported) || errors.IsKind(err, errors.KindLedgerRevert) {
		return DefaultDetails, true, nil
	}
	return Details{}, false, err
}

// UnknownID reports a lookup of an absent or burned token.
func UnknownID(id TokenID) error {
	return errors.Ef(errors.KindUnknownID, "unknown token %d", id)
}

// duplicateReasons are revert reasons the certificate contract uses for its
// uniqueness check, lowercased.
var duplicateReasons = []string{
	"already registered",
	"already minted",
	"already exists",
	"hash already used",
	"duplicate",
}

// IsDuplicateReason reports whether a revert reason signals a uniqueness violation.
func IsDuplicateReason(reason string) bool {
	r := strings.ToLower(reason)
	for _, d := range duplicateReasons {
		if strings.Contains(r, d) {
			return true
		}
	}
	return false
}

// ClassifyRevert maps a revert reason: duplicates become AlreadyRegistered,
// everything else a LedgerRevert carrying the reason verbatim.
func ClassifyRevert(reason, hashHex string, existing TokenID) error {
	if IsDuplicateReason(reason) {
		return errors.WithStack(&errors.AlreadyRegisteredError{ExistingID: uint64(existing), DigestHex: hashHex})
	}
	return errors.E(errors.KindLedgerRevert, reason)
}
