package errors

import (
	"context"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Kinds are part of the API: the HTTP layer maps them to status codes and
// the orchestrators decide retry/remap policy from them.
type Kind string

const (
	KindInput             Kind = "Input"
	KindAlreadyRegistered Kind = "AlreadyRegistered"
	KindStoreUnavailable  Kind = "StoreUnavailable"
	KindGatewayTimeout    Kind = "GatewayTimeout"
	KindQuotaExceeded     Kind = "QuotaExceeded"
	KindSignatureDenied   Kind = "SignatureDenied"
	KindDecryptionFailed  Kind = "DecryptionFailed"
	KindIntegrityMismatch Kind = "IntegrityMismatch"
	KindLedgerRevert      Kind = "LedgerRevert"
	KindUnknownID         Kind = "UnknownID"
	KindNotFound          Kind = "NotFound"
	KindInternal          Kind = "Internal"
)

// Error is the structured error type shared by all layers.
//
// Message is for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// E returns a new *Error of the given kind.
func E(kind Kind, msg string) error {
	return WithStack(&Error{Kind: kind, Message: msg})
}

// Ef is E with formatting.
func Ef(kind Kind, format string, args ...any) error {
	return WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// WrapKind classifies cause under kind. A nil cause yields a plain E.
func WrapKind(kind Kind, msg string, cause error) error {
	if cause == nil {
		return E(kind, msg)
	}
	return WithStack(&Error{Kind: kind, Message: msg, Cause: cause})
}

// Input reports a caller error: missing file, missing field, malformed address.
func Input(format string, args ...any) error {
	return Ef(KindInput, format, args...)
}

// AlreadyRegisteredError is returned when a content hash already has a
// registration on the ledger, whether discovered by the pre-flight check or by
// a ledger-side uniqueness revert.
type AlreadyRegisteredError struct {
	ExistingID uint64
	// DigestHex is the plaintext content digest (lowercase hex, no prefix).
	DigestHex string
}

func (e *AlreadyRegisteredError) Error() string {
	if e.ExistingID == 0 {
		return fmt.Sprintf("content %s is already registered", e.DigestHex)
	}
	return fmt.Sprintf("content %s is already registered as token %d", e.DigestHex, e.ExistingID)
}

// KindOf returns the Kind of the outermost classified error in err's chain.
// Context cancellation is reported as KindInternal; unclassified errors as "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var dup *AlreadyRegisteredError
	if As(err, &dup) {
		return KindAlreadyRegistered
	}
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return KindInternal
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the failure is a transient infrastructure error
// the caller may retry without changing its input.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStoreUnavailable, KindGatewayTimeout:
		return true
	default:
		return false
	}
}
