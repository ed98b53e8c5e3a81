package descriptor

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"docanchor.dev/docanchor/errors"
)

// Variant is one of Standard, JointOwnership or Voucher. The set is closed:
// code that must handle every variant implements Visitor, so adding a variant
// fails to compile until each visitor grows a method for it.
type Variant interface {
	Accept(Visitor) error
	sealed()
}

// Visitor has one method per variant.
type Visitor interface {
	Standard(Standard) error
	JointOwnership(JointOwnership) error
	Voucher(Voucher) error
}

// Standard is an academic or professional certificate.
type Standard struct {
	StudentName string
	Program     string
	Issuer      string
	IssuedDate  string
}

// JointOwnership is a contract held by two parties; CoOwner is recorded on
// the ledger alongside the recipient.
type JointOwnership struct {
	PrimaryOwner string
	CoOwner      common.Address
	SignedDate   string
}

// Voucher carries a redeemable value.
type Voucher struct {
	IssuerName string
	Value      uint64
	Currency   string
	Redeemable bool
}

func (v Standard) Accept(vis Visitor) error       { return vis.Standard(v) }
func (v JointOwnership) Accept(vis Visitor) error { return vis.JointOwnership(v) }
func (v Voucher) Accept(vis Visitor) error        { return vis.Voucher(v) }

func (Standard) sealed()       {}
func (JointOwnership) sealed() {}
func (Voucher) sealed()        {}

// Code is the integer variant code stored on the ledger.
type Code uint8

const (
	CodeStandard       Code = 0
	CodeJointOwnership Code = 1
	CodeVoucher        Code = 2
)

// Label is the display name shown for a code. Unknown codes read as Standard.
func (c Code) Label() string {
	switch c {
	case CodeJointOwnership:
		return "Joint Contract"
	case CodeVoucher:
		return "Voucher"
	default:
		return "Standard"
	}
}

// Kind is the descriptor's variant tag.
func (c Code) Kind() string {
	switch c {
	case CodeJointOwnership:
		return "joint_ownership"
	case CodeVoucher:
		return "voucher"
	default:
		return "standard"
	}
}

func (c Code) String() string { return c.Kind() }

// ParseKind accepts a variant tag, its short form ("joint") or its label.
func ParseKind(s string) (Code, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return CodeStandard, nil
	case "joint", "joint_ownership", "joint-ownership", "joint contract":
		return CodeJointOwnership, nil
	case "voucher":
		return CodeVoucher, nil
	}
	return 0, errors.Input("unknown certificate variant %q", s)
}

// Extras are the variant-specific ledger arguments.
type Extras struct {
	CoOwner common.Address
	Value   uint64
}

type codeVisitor struct {
	code   Code
	extras Extras
}

func (c *codeVisitor) Standard(Standard) error {
	c.code = CodeStandard
	return nil
}

func (c *codeVisitor) JointOwnership(v JointOwnership) error {
	c.code, c.extras.CoOwner = CodeJointOwnership, v.CoOwner
	return nil
}

func (c *codeVisitor) Voucher(v Voucher) error {
	c.code, c.extras.Value = CodeVoucher, v.Value
	return nil
}

// CodeOf returns the ledger code for v.
func CodeOf(v Variant) Code {
	c, _ := LedgerArgs(v)
	return c
}

// LedgerArgs returns the code and extras passed to registration.
func LedgerArgs(v Variant) (Code, Extras) {
	var vis codeVisitor
	_ = v.Accept(&vis)
	return vis.code, vis.extras
}

type validator struct{}

func (validator) Standard(v Standard) error {
	if strings.TrimSpace(v.StudentName) == "" {
		return errors.Input("standard certificate requires a student name")
	}
	return nil
}

func (validator) JointOwnership(v JointOwnership) error {
	if v.CoOwner == (common.Address{}) {
		return errors.Input("joint ownership requires a co-owner address")
	}
	return nil
}

func (validator) Voucher(v Voucher) error {
	if strings.TrimSpace(v.IssuerName) == "" {
		return errors.Input("voucher requires an issuer name")
	}
	if strings.TrimSpace(v.Currency) == "" {
		return errors.Input("voucher requires a currency")
	}
	return nil
}

// Validate rejects variants missing required fields.
func Validate(v Variant) error {
	if v == nil {
		return errors.Input("certificate variant is required")
	}
	return v.Accept(validator{})
}

// ParseAddress parses a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return common.Address{}, errors.Input("malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}
