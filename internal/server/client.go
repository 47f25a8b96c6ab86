package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ClientManager caches one connection per peer address.
type ClientManager struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

// NewClientManager creates a manager. Connections use insecure transport
// credentials plus opts.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
		opts:  append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}
}

// Conn returns the connection for addr, creating it on first use.
func (cm *ClientManager) Conn(addr string) (*grpc.ClientConn, error) {
	cm.mu.RLock()
	conn, exists := cm.conns[addr]
	cm.mu.RUnlock()

	if exists {
		return conn, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if conn, exists := cm.conns[addr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr, cm.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	cm.conns[addr] = conn
	return conn, nil
}

// CacheClient returns a Cache client for addr.
func (cm *ClientManager) CacheClient(addr string) (*CacheClient, error) {
	conn, err := cm.Conn(addr)
	if err != nil {
		return nil, err
	}
	return NewCacheClient(conn), nil
}

// Close closes every cached connection.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(cm.conns, addr)
	}
	return errors.Join(errs...)
}

// CacheClient calls cachetier.Cache on one connection.
type CacheClient struct {
	cc grpc.ClientConnInterface
}

// NewCacheClient wraps cc.
func NewCacheClient(cc grpc.ClientConnInterface) *CacheClient {
	return &CacheClient{cc: cc}
}

// Get reads key from the owning node's cache without fetching.
func (c *CacheClient) Get(ctx context.Context, key string) (string, bool, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CacheGet, wrapperspb.String(key), out); err != nil {
		return "", false, err
	}
	value, found := ParseLookupResponse(out)
	return value, found, nil
}

// Set writes key through the cluster.
func (c *CacheClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.cc.Invoke(ctx, CacheSet, NewSetRequest(key, value, ttl), new(emptypb.Empty))
}

// MightContain asks the owning node's filter about key.
func (c *CacheClient) MightContain(ctx context.Context, key string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, CacheMightContain, wrapperspb.String(key), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Fetch runs the guarded read-through path for key on the server.
func (c *CacheClient) Fetch(ctx context.Context, key string) (string, bool, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CacheFetch, wrapperspb.String(key), out); err != nil {
		return "", false, err
	}
	value, found := ParseLookupResponse(out)
	return value, found, nil
}
