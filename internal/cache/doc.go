// Package cache provides the node-local cache interface and an in-memory
// implementation with per-entry TTL. Expired entries are treated as absent
// and purged lazily on access, or periodically when a cleanup interval is set.
package cache
