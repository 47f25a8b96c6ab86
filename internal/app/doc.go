// Package app assembles a cachetier process from a config.Config: the
// backing store, the per-key lock backend, one cache and filter per ring
// node, a stampede guard per node, and the gRPC server.
package app
