package storage

import (
	"docanchor.dev/docanchor/errors"
)

var (
	ErrNotFound       error = &errors.Error{Kind: errors.KindNotFound, Message: "storage: not found"}
	ErrInvalidCID     error = &errors.Error{Kind: errors.KindInput, Message: "storage: invalid cid"}
	ErrCIDMismatch    error = &errors.Error{Kind: errors.KindStoreUnavailable, Message: "storage: cid mismatch"}
	ErrImmutable      error = &errors.Error{Kind: errors.KindInternal, Message: "storage: immutable object mismatch"}
	ErrUnavailable    error = &errors.Error{Kind: errors.KindStoreUnavailable, Message: "storage: store unavailable"}
	ErrGatewayTimeout error = &errors.Error{Kind: errors.KindGatewayTimeout, Message: "storage: gateway timeout"}
	ErrQuotaExceeded  error = &errors.Error{Kind: errors.KindQuotaExceeded, Message: "storage: quota exceeded"}
	ErrReadOnly       error = &errors.Error{Kind: errors.KindInternal, Message: "storage: backend is read-only"}
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
