// Package descriptor builds the JSON document published next to every
// certificate blob. Attribute order and field types are part of the wire
// contract with existing registrations.
package descriptor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"docanchor.dev/docanchor/canonjson"
	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
)

const SchemaVersion = "1.0.0"

// Fields are caller-supplied display fields.
type Fields struct {
	Title       string
	Label       string
	Description string
	ExternalURL string
	// IssuerAddress is recorded when set.
	IssuerAddress string
	// Encrypted marks the referenced blob as a confidential envelope.
	Encrypted bool
}

type Attribute struct {
	TraitType   string `json:"trait_type"`
	Value       any    `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
}

// Descriptor is the published metadata document.
type Descriptor struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	ExternalURL     string      `json:"external_url"`
	Attributes      []Attribute `json:"attributes"`
	CertificateHash string      `json:"certificate_hash"`
	FileCID         string      `json:"file_cid"`
	Variant         string      `json:"variant"`
	SchemaVersion   string      `json:"schema_version"`
	Encrypted       bool        `json:"encrypted"`
	IssuerAddress   string      `json:"issuer_address,omitempty"`
}

type attrVisitor struct {
	label string
	attrs []Attribute
}

func (a *attrVisitor) Standard(v Standard) error {
	a.label = v.StudentName
	a.attrs = []Attribute{
		{TraitType: "student_name", Value: v.StudentName},
		{TraitType: "program", Value: v.Program},
		{TraitType: "issuer", Value: v.Issuer},
		{TraitType: "issued_date", Value: v.IssuedDate},
	}
	return nil
}

func (a *attrVisitor) JointOwnership(v JointOwnership) error {
	a.label = v.PrimaryOwner
	a.attrs = []Attribute{
		{TraitType: "primary_owner", Value: v.PrimaryOwner},
		{TraitType: "co_owner", Value: v.CoOwner.Hex()},
		{TraitType: "signed_date", Value: v.SignedDate},
	}
	return nil
}

func (a *attrVisitor) Voucher(v Voucher) error {
	a.label = v.IssuerName
	a.attrs = []Attribute{
		{TraitType: "issuer_name", Value: v.IssuerName},
		{TraitType: "value", Value: v.Value, DisplayType: "number"},
		{TraitType: "currency", Value: v.Currency},
		{TraitType: "redeemable", Value: v.Redeemable},
	}
	return nil
}

// Build assembles the descriptor for a published blob. It never fails;
// validate the variant first.
func Build(v Variant, f Fields, imageRef cid.Cid, d hashing.Digest) Descriptor {
	var av attrVisitor
	_ = v.Accept(&av)
	code := CodeOf(v)

	label := f.Label
	if label == "" {
		label = av.label
	}
	var name string
	if code == CodeJointOwnership {
		name = f.Title + " (Joint Contract)"
	} else {
		name = f.Title + " - " + label
	}

	return Descriptor{
		Name:            name,
		Description:     f.Description,
		Image:           cidutil.URI(imageRef),
		ExternalURL:     f.ExternalURL,
		Attributes:      av.attrs,
		CertificateHash: d.Prefixed(),
		FileCID:         imageRef.String(),
		Variant:         code.Kind(),
		SchemaVersion:   SchemaVersion,
		Encrypted:       f.Encrypted,
		IssuerAddress:   f.IssuerAddress,
	}
}

// Encode returns the canonical bytes that get published.
func Encode(d Descriptor) ([]byte, error) {
	return canonjson.Marshal(d)
}

// Decode parses a fetched descriptor. Numbers in attributes keep their
// literal form as json.Number.
func Decode(b []byte) (Descriptor, error) {
	var d Descriptor
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return Descriptor{}, errors.WrapKind(errors.KindInput, "decode descriptor", err)
	}
	return d, nil
}

// Digest parses certificate_hash.
func (d Descriptor) Digest() (hashing.Digest, error) {
	return hashing.ParseDigest(d.CertificateHash)
}

// Blob returns the identifier of the referenced blob, preferring file_cid.
func (d Descriptor) Blob() (cid.Cid, error) {
	ref := d.FileCID
	if ref == "" {
		ref = d.Image
	}
	return cidutil.Parse(ref)
}

// Code returns the variant code named by the variant tag.
func (d Descriptor) Code() Code {
	c, err := ParseKind(d.Variant)
	if err != nil {
		return CodeStandard
	}
	return c
}

// Attr returns the value of the named attribute as a string.
func (d Descriptor) Attr(trait string) (string, bool) {
	for _, a := range d.Attributes {
		if a.TraitType != trait {
			continue
		}
		switch v := a.Value.(type) {
		case string:
			return v, true
		case json.Number:
			return v.String(), true
		case bool:
			return strconv.FormatBool(v), true
		case uint64:
			return strconv.FormatUint(v, 10), true
		default:
			b, _ := json.Marshal(v)
			return strings.Trim(string(b), `"`), true
		}
	}
	return "", false
}
