package coord

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"cachetier/internal/server"
)

// GRPCClient implements dlock.Client against a node serving cachetier.Coord.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient wraps cc.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// SetIfAbsent calls Coord/SetIfAbsent.
func (c *GRPCClient) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, server.CoordSetIfAbsent, server.NewSetRequest(key, value, ttl), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// DeleteIfEqual calls Coord/DeleteIfEqual.
func (c *GRPCClient) DeleteIfEqual(ctx context.Context, key, expected string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, server.CoordDeleteIfEqual, server.NewDeleteRequest(key, expected), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
