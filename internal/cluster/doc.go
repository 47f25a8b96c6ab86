// Package cluster routes cache and filter operations to the node that owns a
// key on the consistent hashing ring.
package cluster
