package grpccas

import (
	"context"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"docanchor.dev/docanchor/cidutil"
	"docanchor.dev/docanchor/logger"
	"docanchor.dev/docanchor/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
	Log *zap.SugaredLogger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	label := labelFrom(ctx)
	id, err := s.CAS.Put(ctx, in.GetValue(), label)
	if err != nil {
		logger.Or(s.Log).Warnw("put failed", "label", label, "error", err)
		return nil, mapErr(err)
	}
	logger.Or(s.Log).Debugw("put", "label", label, "cid", id.String(), "size", len(in.GetValue()))
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if cidutil.Verifiable(id) {
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			return nil, status.Error(codes.Internal, "cid computation failed")
		}
		if !got.Equals(id) {
			return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
		}
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(ctx, id)), nil
}

func labelFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(LabelHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}
