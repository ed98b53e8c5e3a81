// Package verification answers "is this file a registered certificate, and
// who owns it", and opens sealed certificates for viewing.
//
// Verification never decrypts: the registered digest always covers the
// plaintext, so the caller's original file is enough.
package verification

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/compliance"
	"docanchor.dev/docanchor/confidential"
	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
	"docanchor.dev/docanchor/keys"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/registry"
	"docanchor.dev/docanchor/storage"
)

// Result of Verify. Fields other than Exists, Digest and Key are only set
// when Exists is true; IsClaimantOwner only when a claimant was given.
type Result struct {
	Exists          bool
	Digest          hashing.Digest
	Key             hashing.LedgerKey
	ID              registry.TokenID
	Owner           *common.Address
	IsClaimantOwner *bool
	Details         *registry.Details
	DetailsDegraded bool
	URI             string
	Descriptor      *descriptor.Descriptor
	Warnings        []string
}

// Config wires a Verifier. Store and Ledger are required.
type Config struct {
	Store    *storage.Client
	Ledger   registry.Client
	Mode     compliance.Mode
	Pipeline confidential.Pipeline
	Log      *zap.SugaredLogger
}

type Verifier struct {
	cfg Config
	log *zap.SugaredLogger
}

func New(cfg Config) *Verifier {
	return &Verifier{cfg: cfg, log: logger.Or(cfg.Log)}
}

// Verify looks content up on the ledger. A nil claimant skips the ownership
// comparison.
func (v *Verifier) Verify(ctx context.Context, content []byte, claimant *common.Address) (Result, error) {
	if len(content) == 0 {
		return Result{}, errors.Input("missing file to verify")
	}
	res := Result{Digest: hashing.Sum(content)}
	res.Key = res.Digest.Key()

	id, err := v.cfg.Ledger.LookupByHash(ctx, res.Key)
	if err != nil {
		return res, errors.Wrap(err, "verify: lookup by hash")
	}
	if id == registry.NoToken {
		v.log.Debugw("verify: not registered", "digest", res.Digest.Hex())
		return res, nil
	}

	owner, err := v.cfg.Ledger.LookupOwner(ctx, id)
	if errors.IsKind(err, errors.KindUnknownID) {
		// The hash index outlives a burn; a token without an owner no longer exists.
		v.log.Infow("verify: registration no longer exists", "digest", res.Digest.Hex(), "token", uint64(id))
		return res, nil
	}
	if err != nil {
		return res, errors.Wrap(err, "verify: lookup owner")
	}
	res.Exists = true
	res.ID = id
	res.Owner = &owner
	if claimant != nil {
		match := owner == *claimant
		res.IsClaimantOwner = &match
	}

	details, degraded, err := registry.DetailsOrDefault(ctx, v.cfg.Ledger, id)
	if errors.IsKind(err, errors.KindUnknownID) {
		// Burned between the owner and details reads.
		v.log.Infow("verify: registration no longer exists", "digest", res.Digest.Hex(), "token", uint64(id))
		return Result{Digest: res.Digest, Key: res.Key}, nil
	}
	if err != nil {
		return res, errors.Wrap(err, "verify: lookup details")
	}
	res.Details = &details
	res.DetailsDegraded = degraded
	if degraded {
		res.Warnings = append(res.Warnings, "variant details unavailable; reported as standard")
	}

	if err := v.attachDescriptor(ctx, &res); err != nil {
		return res, err
	}

	v.log.Infow("verified",
		"digest", res.Digest.Hex(),
		"token", uint64(id),
		"owner", owner.Hex(),
		"claimant_match", res.IsClaimantOwner != nil && *res.IsClaimantOwner,
		"descriptor", res.Descriptor != nil,
	)
	return res, nil
}

// attachDescriptor fetches the descriptor best effort. In strict mode every
// problem is an error; otherwise it becomes a warning.
func (v *Verifier) attachDescriptor(ctx context.Context, res *Result) error {
	soft := func(err error) error {
		if v.cfg.Mode == compliance.Strict {
			return errors.WithHint(err, "strict compliance requires a readable, matching descriptor")
		}
		v.log.Warnw("verify: descriptor unavailable", "token", uint64(res.ID), "error", err)
		res.Warnings = append(res.Warnings, err.Error())
		return nil
	}

	uri, err := v.cfg.Ledger.LookupURI(ctx, res.ID)
	if err != nil {
		return soft(errors.Wrap(err, "lookup token uri"))
	}
	res.URI = uri
	d, err := v.fetchDescriptor(ctx, uri)
	if err != nil {
		return soft(err)
	}
	if got, err := d.Digest(); err != nil || !hashing.Equal(got, res.Digest) {
		mismatch := errors.Ef(errors.KindIntegrityMismatch,
			"descriptor certificate_hash %q does not match %s", d.CertificateHash, res.Digest.Prefixed())
		if err := soft(mismatch); err != nil {
			return err
		}
	}
	res.Descriptor = &d
	return nil
}

func (v *Verifier) fetchDescriptor(ctx context.Context, uri string) (descriptor.Descriptor, error) {
	id, err := cidutil.Parse(uri)
	if err != nil {
		return descriptor.Descriptor{}, errors.WrapKind(errors.KindInput, "token uri "+uri, err)
	}
	raw, err := v.cfg.Store.Fetch(ctx, id)
	if err != nil {
		return descriptor.Descriptor{}, err
	}
	return descriptor.Decode(raw)
}

// Token is the ledger view of one registration.
type Token struct {
	ID              registry.TokenID
	Owner           common.Address
	URI             string
	Details         registry.Details
	DetailsDegraded bool
	Descriptor      *descriptor.Descriptor
	Warnings        []string
}

// Token reads a registration by id. The descriptor is always best effort.
func (v *Verifier) Token(ctx context.Context, id registry.TokenID) (Token, error) {
	owner, err := v.cfg.Ledger.LookupOwner(ctx, id)
	if err != nil {
		return Token{}, errors.Wrapf(err, "token %d: owner", id)
	}
	t := Token{ID: id, Owner: owner}
	t.Details, t.DetailsDegraded, err = registry.DetailsOrDefault(ctx, v.cfg.Ledger, id)
	if err != nil {
		return Token{}, errors.Wrapf(err, "token %d: details", id)
	}
	if t.URI, err = v.cfg.Ledger.LookupURI(ctx, id); err != nil {
		return Token{}, errors.Wrapf(err, "token %d: uri", id)
	}
	d, err := v.fetchDescriptor(ctx, t.URI)
	if err != nil {
		v.log.Warnw("token: descriptor unavailable", "token", uint64(id), "error", err)
		t.Warnings = append(t.Warnings, err.Error())
		return t, nil
	}
	t.Descriptor = &d
	return t, nil
}

// Portfolio lists the live tokens held by owner. The ledger must implement
// registry.Enumerator.
func (v *Verifier) Portfolio(ctx context.Context, owner common.Address) ([]Token, error) {
	e, ok := v.cfg.Ledger.(registry.Enumerator)
	if !ok {
		return nil, errors.E(errors.KindInternal, "portfolio: ledger cannot enumerate tokens")
	}
	ids, err := e.TokensOf(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "portfolio: enumerate")
	}
	out := make([]Token, 0, len(ids))
	for _, id := range ids {
		t, err := v.Token(ctx, id)
		if errors.IsKind(err, errors.KindUnknownID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Unlocked is the outcome of Unlock.
type Unlocked struct {
	ID         registry.TokenID
	Descriptor descriptor.Descriptor
	Content    []byte
	Encrypted  bool
}

// Unlock fetches a certificate's file for viewing: token URI, descriptor,
// blob, decryption with the signer's content key when sealed, then an
// integrity check against the registered hash. signer may be nil for
// plaintext certificates. Content is returned only when every step passed.
func (v *Verifier) Unlock(ctx context.Context, id registry.TokenID, signer keys.Signer) (Unlocked, error) {
	if id == registry.NoToken {
		return Unlocked{}, registry.UnknownID(id)
	}
	uri, err := v.cfg.Ledger.LookupURI(ctx, id)
	if err != nil {
		return Unlocked{}, errors.Wrap(err, "unlock: lookup token uri")
	}
	d, err := v.fetchDescriptor(ctx, uri)
	if err != nil {
		return Unlocked{}, errors.Wrap(err, "unlock: descriptor")
	}
	want, err := d.Digest()
	if err != nil {
		return Unlocked{}, errors.Wrap(err, "unlock: descriptor certificate_hash")
	}
	blobID, err := d.Blob()
	if err != nil {
		return Unlocked{}, errors.WrapKind(errors.KindInput, "unlock: descriptor file_cid", err)
	}
	blob, err := v.cfg.Store.Fetch(ctx, blobID)
	if err != nil {
		return Unlocked{}, errors.Wrap(err, "unlock: blob")
	}

	out := Unlocked{ID: id, Descriptor: d}
	sealed := confidential.IsEnvelope(blob)
	switch {
	case sealed:
		if signer == nil {
			return Unlocked{}, errors.WithHint(errors.Input("certificate %d is encrypted", id),
				"sign the key challenge with the wallet that issued it")
		}
		plain, err := v.cfg.Pipeline.Open(ctx, signer, blob, want)
		if err != nil {
			return Unlocked{}, err
		}
		out.Content, out.Encrypted = plain, true
	case d.Encrypted:
		return Unlocked{}, errors.Ef(errors.KindDecryptionFailed,
			"certificate %d is marked encrypted but its file is not a sealed envelope", id)
	case confidential.IsLegacy(blob) && !confidential.VerifyIntegrity(blob, want):
		// Sealed by the first wallet frontend; the descriptor predates the
		// encrypted flag.
		if signer == nil {
			return Unlocked{}, errors.WithHint(errors.Input("certificate %d is encrypted", id),
				"sign the key challenge with the wallet that issued it")
		}
		plain, err := v.cfg.Pipeline.OpenLegacy(ctx, signer, blob, want)
		if err != nil {
			return Unlocked{}, err
		}
		out.Content, out.Encrypted = plain, true
	default:
		if !confidential.VerifyIntegrity(blob, want) {
			return Unlocked{}, errors.Ef(errors.KindIntegrityMismatch,
				"stored file for certificate %d does not match %s", id, want.Prefixed())
		}
		out.Content = blob
	}

	v.log.Infow("unlocked", "token", uint64(id), "encrypted", out.Encrypted, "bytes", len(out.Content))
	return out, nil
}
