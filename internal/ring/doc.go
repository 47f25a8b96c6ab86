// Package ring implements an immutable consistent hashing ring with virtual
// nodes. It maps keys to cache nodes deterministically. There is no add or
// remove operation: a membership change means building a new ring.
package ring
