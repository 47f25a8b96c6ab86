package it

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cachetier/internal/app"
	"cachetier/internal/config"
	"cachetier/internal/server"
)

// Cluster represents a set of cachetier processes under test.
type Cluster struct {
	nodes   []*Node
	clients *server.ClientManager
	logger  logrus.FieldLogger
	mu      sync.Mutex
}

// Node represents a single running process.
type Node struct {
	ID     string
	Addr   string
	App    *app.App
	client *server.CacheClient
	cancel context.CancelFunc
	done   chan error

	stopOnce sync.Once
	stopErr  error
}

// NewCluster creates an empty harness.
func NewCluster(logger logrus.FieldLogger) *Cluster {
	return &Cluster{
		clients: server.NewClientManager(),
		logger:  logger,
	}
}

// StartNode starts a process for cfg on a free loopback port. cfg.Node.Listen
// is replaced by the bound address.
func (c *Cluster) StartNode(ctx context.Context, cfg config.Config) (*Node, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	cfg.Node.Listen = lis.Addr().String()
	if err := cfg.Validate(); err != nil {
		lis.Close()
		return nil, err
	}

	a, err := app.New(ctx, cfg, c.logger)
	if err != nil {
		lis.Close()
		return nil, fmt.Errorf("failed to build node %s: %w", cfg.Node.ID, err)
	}

	client, err := c.clients.CacheClient(cfg.Node.Listen)
	if err != nil {
		lis.Close()
		a.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	node := &Node{
		ID:     cfg.Node.ID,
		Addr:   cfg.Node.Listen,
		App:    a,
		client: client,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		node.done <- a.Run(runCtx, lis)
	}()

	if err := waitForReady(ctx, node, 10*time.Second); err != nil {
		node.Stop()
		return nil, fmt.Errorf("node %s failed to become ready: %w", cfg.Node.ID, err)
	}

	c.mu.Lock()
	c.nodes = append(c.nodes, node)
	c.mu.Unlock()
	return node, nil
}

// waitForReady polls the node until its Cache service answers.
func waitForReady(ctx context.Context, node *Node, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		probeCtx, probeCancel := context.WithTimeout(ctx, time.Second)
		_, err := node.client.MightContain(probeCtx, "ready-probe")
		probeCancel()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for node %s: %w", node.ID, err)
		case <-ticker.C:
		}
	}
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(nodeID string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == nodeID {
			return n
		}
	}
	return nil
}

// Stop stops every node and closes client connections.
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.nodes {
		node.Stop()
	}
	c.nodes = nil
	c.clients.Close()
}

// Client returns the Cache client connected to n.
func (n *Node) Client() *server.CacheClient {
	return n.client
}

// Stop stops a single node and waits for it to exit. Later calls return the
// first result.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		n.cancel()
		select {
		case n.stopErr = <-n.done:
		case <-time.After(5 * time.Second):
			n.stopErr = fmt.Errorf("node %s did not stop", n.ID)
		}
		n.App.Close()
	})
	return n.stopErr
}
