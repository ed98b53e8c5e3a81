// Package compliance selects how strictly verification treats incomplete or
// inconsistent evidence.
package compliance

import (
	"strings"

	"docanchor.dev/docanchor/errors"
)

// Mode is the verification compliance mode.
//
// Permissive answers from the ledger alone and reports descriptor problems as
// warnings. Strict fails when the descriptor is missing, unreadable or
// disagrees with the file being verified.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

func (m Mode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseMode accepts "permissive" (or "") and "strict".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, errors.Input("unknown compliance mode %q", s)
	}
}
