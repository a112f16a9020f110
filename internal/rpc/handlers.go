package rpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lumenkv/pkg/dberrors"
)

// Store is the part of the engine the gRPC service needs.
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool)
	Delete(key []byte) (bool, error)
}

// kvService implements KeyValueStoreServer over a Store.
type kvService struct {
	store Store
}

var _ KeyValueStoreServer = (*kvService)(nil)

func (s *kvService) Put(_ context.Context, req *PutRequest) (*PutResponse, error) {
	if len(req.Key) == 0 {
		return nil, status.Error(codes.InvalidArgument, "key must not be empty")
	}
	if err := s.store.Put(req.Key, req.Value); err != nil {
		return nil, toStatus(err)
	}
	return &PutResponse{Success: true}, nil
}

func (s *kvService) Get(_ context.Context, req *GetRequest) (*GetResponse, error) {
	if len(req.Key) == 0 {
		return nil, status.Error(codes.InvalidArgument, "key must not be empty")
	}
	value, found := s.store.Get(req.Key)
	return &GetResponse{Value: value, Found: found}, nil
}

func (s *kvService) Delete(_ context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	if len(req.Key) == 0 {
		return nil, status.Error(codes.InvalidArgument, "key must not be empty")
	}
	existed, err := s.store.Delete(req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeleteResponse{Success: existed}, nil
}

// toStatus converts an engine error to a gRPC status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	switch dberrors.KindOf(err) {
	case dberrors.KindInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case dberrors.KindClosed:
		return status.Error(codes.Unavailable, err.Error())
	case dberrors.KindCorruption:
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
