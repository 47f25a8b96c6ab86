package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cachetier/internal/cache"
	"cachetier/internal/filter"
	"cachetier/internal/ring"
)

// ErrDuplicateNode is returned when two nodes share an identity.
var ErrDuplicateNode = errors.New("cluster: duplicate node id")

// Node binds a node identity to its local cache and filter.
type Node struct {
	ID     string
	Addr   string
	Cache  cache.Cache
	Filter filter.Filter
}

// Cluster resolves keys to nodes and delegates to the owning node.
// Membership is fixed at construction.
type Cluster struct {
	ring  *ring.Ring
	nodes map[string]*Node
}

// New builds a cluster over nodes with replicas virtual points per node.
func New(nodes []*Node, replicas int) (*Cluster, error) {
	byID := make(map[string]*Node, len(nodes))
	ringNodes := make([]ring.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Cache == nil || n.Filter == nil {
			return nil, fmt.Errorf("cluster: node %s is missing its cache or filter", n.ID)
		}
		if _, exists := byID[n.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		byID[n.ID] = n
		ringNodes = append(ringNodes, ring.Node{ID: n.ID, Addr: n.Addr})
	}

	return &Cluster{
		ring:  ring.Build(ringNodes, replicas),
		nodes: byID,
	}, nil
}

// Resolve returns the node owning key.
func (c *Cluster) Resolve(key string) (*Node, error) {
	rn, err := c.ring.Resolve(key)
	if err != nil {
		return nil, err
	}
	return c.nodes[rn.ID], nil
}

// Get reads key from the owning node's cache. A cached cache.Negative reads
// as absent.
func (c *Cluster) Get(ctx context.Context, key string) (string, bool, error) {
	node, err := c.Resolve(key)
	if err != nil {
		return "", false, err
	}
	value, found, err := node.Cache.Get(ctx, key)
	if err != nil || !found || value == cache.Negative {
		return "", false, err
	}
	return value, true, nil
}

// Set writes key to the owning node's cache, then records it in that node's
// filter. The filter is only updated after the cache write succeeds.
func (c *Cluster) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	node, err := c.Resolve(key)
	if err != nil {
		return err
	}
	if err := node.Cache.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("cluster: set %s on %s: %w", key, node.ID, err)
	}
	node.Filter.Add(key)
	return nil
}

// MightContain asks the owning node's filter about key. The cache is not read.
func (c *Cluster) MightContain(key string) (bool, error) {
	node, err := c.Resolve(key)
	if err != nil {
		return false, err
	}
	return node.Filter.MightContain(key), nil
}

// Nodes returns the cluster's nodes ordered by ID.
func (c *Cluster) Nodes() []*Node {
	out := make([]*Node, 0, len(c.nodes))
	for _, rn := range c.ring.Nodes() {
		out = append(out, c.nodes[rn.ID])
	}
	return out
}

// Ring exposes the routing ring.
func (c *Cluster) Ring() *ring.Ring {
	return c.ring
}
