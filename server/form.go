package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"docanchor.dev/docanchor/descriptor"
	"docanchor.dev/docanchor/errors"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// parseUpload reads a multipart body and returns the named file.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", errors.Input("upload exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, "", errors.WrapKind(errors.KindInput, "invalid multipart body", err)
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", errors.Input("missing file field %q", field)
	}
	if err != nil {
		return nil, "", errors.WrapKind(errors.KindInput, "read "+field, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, "", errors.WrapKind(errors.KindInput, "read "+field, err)
	}
	return b, hdr.Filename, nil
}

// formValue returns the first non-empty value among names. Later names are
// the field names older frontends send.
func formValue(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.FormValue(n)); v != "" {
			return v
		}
	}
	return ""
}

func formBool(r *http.Request, name string, def bool) (bool, error) {
	v := formValue(r, name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Input("field %q: expected a boolean, got %q", name, v)
	}
	return b, nil
}

// variantFromForm builds the certificate variant named by the "variant" field.
func variantFromForm(r *http.Request) (descriptor.Variant, error) {
	code, err := descriptor.ParseKind(formValue(r, "variant"))
	if err != nil {
		return nil, err
	}
	switch code {
	case descriptor.CodeJointOwnership:
		coOwner, err := descriptor.ParseAddress(formValue(r, "co_owner", "coOwner"))
		if err != nil {
			return nil, errors.WithHint(err, "joint ownership needs the co-owner's 0x address")
		}
		return descriptor.JointOwnership{
			PrimaryOwner: formValue(r, "primary_owner", "name"),
			CoOwner:      coOwner,
			SignedDate:   formValue(r, "signed_date", "issued_at"),
		}, nil
	case descriptor.CodeVoucher:
		v := formValue(r, "value", "voucherValue")
		if v == "" {
			return nil, errors.Input("missing required field: value")
		}
		value, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.Input("field \"value\": expected a non-negative integer, got %q", v)
		}
		redeemable, err := formBool(r, "redeemable", true)
		if err != nil {
			return nil, err
		}
		return descriptor.Voucher{
			IssuerName: formValue(r, "issuer_name"),
			Value:      value,
			Currency:   formValue(r, "currency"),
			Redeemable: redeemable,
		}, nil
	default:
		return descriptor.Standard{
			StudentName: formValue(r, "student_name", "name"),
			Program:     formValue(r, "program", "course"),
			Issuer:      formValue(r, "issuer_name"),
			IssuedDate:  formValue(r, "issued_date", "issued_at"),
		}, nil
	}
}

// parseSignature decodes a hex wallet signature; empty input yields nil.
func parseSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Input("malformed signature: %v", err)
	}
	return b, nil
}

// parseOptionalAddress returns nil for an empty value.
func parseOptionalAddress(s string) (*common.Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	a, err := descriptor.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
