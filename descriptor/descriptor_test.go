package descriptor

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/hashing"
)

var coOwner = common.HexToAddress("0x00000000000000000000000000000000000000bb")

func TestBuild_Standard(t *testing.T) {
	blob, err := cidutil.CIDv1RawSHA256CID([]byte("hello-cert"))
	require.NoError(t, err)
	d := hashing.Sum([]byte("hello-cert"))

	desc := Build(Standard{StudentName: "Ada", Program: "CS", Issuer: "Uni", IssuedDate: "2024-06-01"},
		Fields{Title: "Diploma"}, blob, d)

	assert.Equal(t, "Diploma - Ada", desc.Name)
	assert.Equal(t, "", desc.Description)
	assert.Equal(t, "", desc.ExternalURL)
	assert.Equal(t, "ipfs://"+blob.String(), desc.Image)
	assert.Equal(t, blob.String(), desc.FileCID)
	assert.Equal(t, "0x"+d.Hex(), desc.CertificateHash)
	assert.Len(t, desc.CertificateHash, 66)
	assert.Equal(t, "standard", desc.Variant)

	var traits []string
	for _, a := range desc.Attributes {
		traits = append(traits, a.TraitType)
	}
	assert.Equal(t, []string{"student_name", "program", "issuer", "issued_date"}, traits)
}

func TestBuild_NamesPerVariant(t *testing.T) {
	blob, _ := cidutil.CIDv1RawSHA256CID([]byte("x"))
	d := hashing.Sum([]byte("x"))

	joint := Build(JointOwnership{PrimaryOwner: "Alice", CoOwner: coOwner, SignedDate: "2024-01-01"}, Fields{Title: "Lease", Label: "ignored"}, blob, d)
	assert.Equal(t, "Lease (Joint Contract)", joint.Name)
	assert.Equal(t, "joint_ownership", joint.Variant)

	voucher := Build(Voucher{IssuerName: "Shop", Value: 50, Currency: "USD", Redeemable: true}, Fields{Title: "Gift", Label: "Winter"}, blob, d)
	assert.Equal(t, "Gift - Winter", voucher.Name)
	assert.Equal(t, "number", voucher.Attributes[1].DisplayType)
}

func TestEncode_StableBytes(t *testing.T) {
	blob, _ := cidutil.CIDv1RawSHA256CID([]byte("v"))
	d := hashing.Sum([]byte("v"))
	desc := Build(Voucher{IssuerName: "Shop", Value: 50, Currency: "USD"}, Fields{Title: "Gift", Description: "<b>&</b>"}, blob, d)

	b1, err := Encode(desc)
	require.NoError(t, err)
	b2, err := Encode(desc)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	s := string(b1)
	assert.Contains(t, s, `"description":"<b>&</b>"`)
	assert.Contains(t, s, `{"trait_type":"value","value":50,"display_type":"number"}`)
	assert.Contains(t, s, `"external_url":""`)
	assert.NotContains(t, s, "issuer_address")
	assert.NotEqual(t, byte('\n'), b1[len(b1)-1])

	// Top-level key order is part of the contract.
	assert.Regexp(t, `^\{"name":.*"description":.*"image":.*"external_url":.*"attributes":.*"certificate_hash":.*"file_cid":.*"variant":.*"schema_version":"1.0.0","encrypted":false\}$`, s)
}

func TestDecode_RoundTripAccessors(t *testing.T) {
	blob, _ := cidutil.CIDv1RawSHA256CID([]byte("doc"))
	d := hashing.Sum([]byte("doc"))
	desc := Build(Voucher{IssuerName: "Shop", Value: 50, Currency: "USD", Redeemable: true}, Fields{Title: "Gift", Encrypted: true}, blob, d)
	b, err := Encode(desc)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	gd, err := got.Digest()
	require.NoError(t, err)
	assert.True(t, hashing.Equal(d, gd))
	gb, err := got.Blob()
	require.NoError(t, err)
	assert.True(t, gb.Equals(blob))
	assert.Equal(t, CodeVoucher, got.Code())
	assert.True(t, got.Encrypted)

	v, ok := got.Attr("value")
	assert.True(t, ok)
	assert.Equal(t, "50", v)
	r, _ := got.Attr("redeemable")
	assert.Equal(t, "true", r)

	_, err = Decode([]byte("{"))
	assert.True(t, errors.IsKind(err, errors.KindInput))
}

func TestCodes(t *testing.T) {
	assert.Equal(t, CodeStandard, CodeOf(Standard{}))
	code, extras := LedgerArgs(JointOwnership{CoOwner: coOwner})
	assert.Equal(t, CodeJointOwnership, code)
	assert.Equal(t, coOwner, extras.CoOwner)
	code, extras = LedgerArgs(Voucher{Value: 7})
	assert.Equal(t, CodeVoucher, code)
	assert.Equal(t, uint64(7), extras.Value)

	assert.Equal(t, "Standard", CodeStandard.Label())
	assert.Equal(t, "Joint Contract", CodeJointOwnership.Label())
	assert.Equal(t, "Voucher", CodeVoucher.Label())
	assert.Equal(t, "Standard", Code(9).Label())

	for in, want := range map[string]Code{"": CodeStandard, "joint": CodeJointOwnership, "Joint Contract": CodeJointOwnership, "VOUCHER": CodeVoucher} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("bond")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(Standard{}))
	assert.NoError(t, Validate(Standard{StudentName: "Ada"}))
	assert.Error(t, Validate(JointOwnership{PrimaryOwner: "A"}))
	assert.NoError(t, Validate(JointOwnership{CoOwner: coOwner}))
	assert.Error(t, Validate(Voucher{Value: 1}))
	assert.Error(t, Validate(Voucher{Currency: "EUR"}), "issuer name labels the voucher")
	assert.NoError(t, Validate(Voucher{IssuerName: "Shop", Currency: "EUR"}))

	_, err := ParseAddress("0x1234")
	assert.True(t, errors.IsKind(err, errors.KindInput))
	_, err = ParseAddress("00000000000000000000000000000000000000bb")
	assert.Error(t, err)
	a, err := ParseAddress("0x00000000000000000000000000000000000000BB")
	require.NoError(t, err)
	assert.Equal(t, coOwner, a)
}
