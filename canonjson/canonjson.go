// Package canonjson produces the byte-stable JSON used for published documents.
//
// Struct fields are emitted in declaration order and map keys sorted (both by
// encoding/json), HTML characters are not escaped and there is no trailing
// newline. Two encoders that agree on the Go types agree on the bytes, which
// is what makes descriptor CIDs reproducible.
package canonjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SumObject returns "sha256:<hex>" over the canonical encoding of v, and the encoding.
func SumObject(v any) (string, []byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), b, nil
}
