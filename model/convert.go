package model

import (
	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/issuance"
	"docanchor.dev/docanchor/registry"
	"docanchor.dev/docanchor/verification"
)

const (
	MessageVerified    = "Document is registered on the ledger."
	MessageNotVerified = "Document is not registered (or its token was burned)."
)

// Mint projects an issuance result.
func Mint(r issuance.Result) MintResponse {
	return MintResponse{
		Success:         true,
		TokenID:         r.Receipt.ID.String(),
		TxHash:          r.Receipt.TxRef,
		TokenURI:        r.URI,
		CertificateHash: r.Digest.Prefixed(),
		FileCID:         r.FileCID.String(),
		DescriptorCID:   r.DescriptorCID.String(),
		Encrypted:       r.Encrypted,
		AttemptID:       r.AttemptID,
	}
}

// DetailsOf projects ledger details. degraded marks a fallback to defaults.
func DetailsOf(d registry.Details, degraded bool) Details {
	out := Details{
		Variant:   d.Code.Kind(),
		Label:     d.Code.Label(),
		Value:     d.Value,
		Redeemed:  d.Redeemed,
		Defaulted: degraded,
	}
	if d.Code == descriptor.CodeJointOwnership {
		out.CoOwner = d.CoOwner.Hex()
	}
	return out
}

// Verify projects a verification result.
func Verify(r verification.Result) VerifyResponse {
	out := VerifyResponse{
		Verified:        r.Exists,
		CertificateHash: r.Digest.Prefixed(),
		Message:         MessageNotVerified,
	}
	if !r.Exists {
		return out
	}
	out.Message = MessageVerified
	out.TokenID = r.ID.String()
	if r.Owner != nil {
		out.CurrentOwner = r.Owner.Hex()
	}
	out.IsYourCert = r.IsClaimantOwner
	out.TokenURI = r.URI
	if r.Details != nil {
		d := DetailsOf(*r.Details, r.DetailsDegraded)
		out.Details = &d
	}
	out.Descriptor = r.Descriptor
	out.Warnings = r.Warnings
	return out
}

// Unlock projects an unlocked certificate.
func Unlock(u verification.Unlocked, contentType string) UnlockResponse {
	return UnlockResponse{
		TokenID:     u.ID.String(),
		Encrypted:   u.Encrypted,
		ContentType: contentType,
		Content:     u.Content,
		Descriptor:  u.Descriptor,
	}
}

// Token projects a ledger token view.
func Token(t verification.Token) TokenResponse {
	return TokenResponse{
		TokenID:    t.ID.String(),
		Owner:      t.Owner.Hex(),
		TokenURI:   t.URI,
		Details:    DetailsOf(t.Details, t.DetailsDegraded),
		Descriptor: t.Descriptor,
	}
}
