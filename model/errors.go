package model

import (
	"fmt"
	"net/http"
	"strings"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/issuance"
)

// ErrorCode is the machine-readable error code of an API response.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrAlreadyRegistered ErrorCode = "ALREADY_REGISTERED"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrGatewayTimeout    ErrorCode = "GATEWAY_TIMEOUT"
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrSignatureDenied   ErrorCode = "SIGNATURE_DENIED"
	ErrDecryptionFailed  ErrorCode = "DECRYPTION_FAILED"
	ErrIntegrity         ErrorCode = "INTEGRITY_MISMATCH"
	ErrLedgerRevert      ErrorCode = "LEDGER_REVERT"
	ErrUnknownID         ErrorCode = "UNKNOWN_ID"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInternal          ErrorCode = "INTERNAL"
)

var kindCodes = map[errors.Kind]ErrorCode{
	errors.KindInput:             ErrInvalidRequest,
	errors.KindAlreadyRegistered: ErrAlreadyRegistered,
	errors.KindStoreUnavailable:  ErrStoreUnavailable,
	errors.KindGatewayTimeout:    ErrGatewayTimeout,
	errors.KindQuotaExceeded:     ErrQuotaExceeded,
	errors.KindSignatureDenied:   ErrSignatureDenied,
	errors.KindDecryptionFailed:  ErrDecryptionFailed,
	errors.KindIntegrityMismatch: ErrIntegrity,
	errors.KindLedgerRevert:      ErrLedgerRevert,
	errors.KindUnknownID:         ErrUnknownID,
	errors.KindNotFound:          ErrNotFound,
	errors.KindInternal:          ErrInternal,
}

var codeStatus = map[ErrorCode]int{
	ErrInvalidRequest:    http.StatusBadRequest,
	ErrAlreadyRegistered: http.StatusConflict,
	ErrStoreUnavailable:  http.StatusBadGateway,
	ErrGatewayTimeout:    http.StatusGatewayTimeout,
	ErrQuotaExceeded:     http.StatusTooManyRequests,
	ErrSignatureDenied:   http.StatusForbidden,
	ErrDecryptionFailed:  http.StatusUnprocessableEntity,
	ErrIntegrity:         http.StatusUnprocessableEntity,
	ErrLedgerRevert:      http.StatusUnprocessableEntity,
	ErrUnknownID:         http.StatusNotFound,
	ErrNotFound:          http.StatusNotFound,
	ErrInternal:          http.StatusInternalServerError,
}

// CodeFor maps an error kind to its API code. Unclassified errors are INTERNAL.
func CodeFor(kind errors.Kind) ErrorCode {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return ErrInternal
}

// HTTPStatus returns the response status for code.
func (c ErrorCode) HTTPStatus() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Hint       string    `json:"hint,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	ExistingID uint64    `json:"existingTokenId,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// FromError projects err onto the API error shape. Internal errors keep a
// generic message; their detail belongs in the server log.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	kind := errors.KindOf(err)
	code := CodeFor(kind)
	out := &CodedError{Code: code, Message: err.Error(), Retryable: errors.Retryable(err)}
	if code == ErrInternal {
		out.Message = "internal error"
	}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		out.Hint = strings.Join(hints, "; ")
	}
	if stage, ok := issuance.FailedStage(err); ok {
		out.Stage = string(stage)
	}
	var dup *errors.AlreadyRegisteredError
	if errors.As(err, &dup) {
		out.ExistingID = dup.ExistingID
	}
	return out
}
