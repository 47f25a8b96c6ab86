// Package guard protects a backing store behind a node-local cache against
// cache stampede and cache penetration.
//
// A lookup probes the cache, then the membership filter, and only then takes
// a per-key lock, re-probes the cache and queries the store. Absent results
// are cached as NegativeSentinel with a shorter TTL than real values, so a
// record created later becomes visible within the negative TTL.
package guard
