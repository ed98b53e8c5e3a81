package grpccas

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docanchor.dev/docanchor/errors"
	"docanchor.dev/docanchor/storage"
)

var codeErrors = map[codes.Code]error{
	codes.NotFound:          storage.ErrNotFound,
	codes.InvalidArgument:   storage.ErrInvalidCID,
	codes.DataLoss:          storage.ErrCIDMismatch,
	codes.ResourceExhausted: storage.ErrQuotaExceeded,
	codes.Unavailable:       storage.ErrUnavailable,
	codes.DeadlineExceeded:  storage.ErrGatewayTimeout,
}

// mapRPC turns a status error from the daemon back into a storage error.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.WrapKind(errors.KindStoreUnavailable, "grpccas", err)
	}
	switch st.Code() {
	case codes.Canceled:
		return errors.Wrap(err, "grpccas")
	}
	if mapped, ok := codeErrors[st.Code()]; ok {
		return mapped
	}
	return errors.WrapKind(errors.KindStoreUnavailable, "grpccas: "+st.Message(), err)
}

// mapErr turns a storage error into a status error for the wire.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return status.Error(code, sentinel.Error())
		}
	}
	switch errors.KindOf(err) {
	case errors.KindQuotaExceeded:
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.KindGatewayTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.KindStoreUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
