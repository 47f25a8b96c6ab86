package server

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"cachetier/internal/dlock"
)

// Full method names of the Coord service.
const (
	CoordServiceName   = "cachetier.Coord"
	CoordSetIfAbsent   = "/cachetier.Coord/SetIfAbsent"
	CoordDeleteIfEqual = "/cachetier.Coord/DeleteIfEqual"
)

// CoordService is the server side of cachetier.Coord.
type CoordService interface {
	SetIfAbsent(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	DeleteIfEqual(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

// CoordServer serves cachetier.Coord from a dlock.Client.
type CoordServer struct {
	store  dlock.Client
	logger logrus.FieldLogger
}

// NewCoordServer creates a Coord service backed by store.
func NewCoordServer(store dlock.Client, logger logrus.FieldLogger) *CoordServer {
	return &CoordServer{store: store, logger: logger}
}

// SetIfAbsent handles Coord/SetIfAbsent.
func (s *CoordServer) SetIfAbsent(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	ttl, err := leaseField(req)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.SetIfAbsent(ctx, key, stringField(req, fieldValue), ttl)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.WithFields(logrus.Fields{"key": key, "set": ok}).Debug("coord set-if-absent")
	return wrapperspb.Bool(ok), nil
}

// DeleteIfEqual handles Coord/DeleteIfEqual.
func (s *CoordServer) DeleteIfEqual(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.DeleteIfEqual(ctx, key, stringField(req, fieldExpected))
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.WithFields(logrus.Fields{"key": key, "deleted": ok}).Debug("coord delete-if-equal")
	return wrapperspb.Bool(ok), nil
}

// CoordServiceDesc describes cachetier.Coord for grpc.Server.RegisterService.
var CoordServiceDesc = grpc.ServiceDesc{
	ServiceName: CoordServiceName,
	HandlerType: (*CoordService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SetIfAbsent",
			Handler:    unaryHandler(CoordSetIfAbsent, CoordService.SetIfAbsent),
		},
		{
			MethodName: "DeleteIfEqual",
			Handler:    unaryHandler(CoordDeleteIfEqual, CoordService.DeleteIfEqual),
		},
	},
	Metadata: "cachetier/coord",
}
