package server

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"cachetier/internal/cluster"
)

// Full method names of the Cache service.
const (
	CacheServiceName  = "cachetier.Cache"
	CacheGet          = "/cachetier.Cache/Get"
	CacheSet          = "/cachetier.Cache/Set"
	CacheMightContain = "/cachetier.Cache/MightContain"
	CacheFetch        = "/cachetier.Cache/Fetch"
)

// Fetcher is the read-through path of one node, normally a *guard.Guard.
type Fetcher interface {
	GetOrFetch(ctx context.Context, key string) (string, bool, error)
}

// CacheService is the server side of cachetier.Cache.
type CacheService interface {
	Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	MightContain(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	Fetch(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// CacheServer serves cachetier.Cache from a cluster and its per-node fetchers.
type CacheServer struct {
	cluster  *cluster.Cluster
	fetchers map[string]Fetcher
	logger   logrus.FieldLogger
}

// NewCacheServer creates a Cache service. fetchers is keyed by node ID.
func NewCacheServer(c *cluster.Cluster, fetchers map[string]Fetcher, logger logrus.FieldLogger) *CacheServer {
	return &CacheServer{cluster: c, fetchers: fetchers, logger: logger}
}

// Get handles Cache/Get.
func (s *CacheServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	value, found, err := s.cluster.Get(ctx, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return NewLookupResponse(value, found), nil
}

// Set handles Cache/Set.
func (s *CacheServer) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	if err := s.cluster.Set(ctx, key, stringField(req, fieldValue), ttlField(req)); err != nil {
		return nil, toStatus(err)
	}
	s.logger.WithField("key", key).Debug("cache set")
	return &emptypb.Empty{}, nil
}

// MightContain handles Cache/MightContain.
func (s *CacheServer) MightContain(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	ok, err := s.cluster.MightContain(key)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

// Fetch handles Cache/Fetch by running GetOrFetch on the owning node.
func (s *CacheServer) Fetch(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	node, err := s.cluster.Resolve(key)
	if err != nil {
		return nil, toStatus(err)
	}
	f, ok := s.fetchers[node.ID]
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "no fetcher for node %s", node.ID)
	}

	value, found, err := f.GetOrFetch(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"key": key, "owner": node.ID}).Warn("fetch failed")
		return nil, toStatus(err)
	}
	return NewLookupResponse(value, found), nil
}

// CacheServiceDesc describes cachetier.Cache for grpc.Server.RegisterService.
var CacheServiceDesc = grpc.ServiceDesc{
	ServiceName: CacheServiceName,
	HandlerType: (*CacheService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unaryHandler(CacheGet, CacheService.Get)},
		{MethodName: "Set", Handler: unaryHandler(CacheSet, CacheService.Set)},
		{MethodName: "MightContain", Handler: unaryHandler(CacheMightContain, CacheService.MightContain)},
		{MethodName: "Fetch", Handler: unaryHandler(CacheFetch, CacheService.Fetch)},
	},
	Metadata: "cachetier/cache",
}
