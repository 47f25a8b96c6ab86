// Package dlock defines a uniform lock contract and three interchangeable
// backends:
//
//   - Local: process-scoped, a per-key registry of one-slot semaphores.
//   - File: host-scoped (or shared-filesystem-scoped), an exclusive flock on
//     a per-key file under a lock directory.
//   - Remote: multi-host, a token stored with set-if-absent and an expiry in
//     an external coordination store, released by compare-and-delete.
//
// Acquire blocks until the lock is held, the context is done, or (Remote
// only) the acquisition deadline passes. The returned Handle is the only way
// to unlock; Release is idempotent.
//
// Remote locks are not renewed. A holder whose work outlives the TTL can
// lose the lock to another acquirer while still inside its critical section.
package dlock
