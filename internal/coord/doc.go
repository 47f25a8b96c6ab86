// Package coord binds coordination stores to dlock.Client.
//
// Every binding offers the same two primitives: set a key only if it is
// absent (with a TTL), and delete a key only if it still holds an expected
// value. Memory is an in-process reference, Redis and Etcd talk to the real
// stores, and GRPCClient talks to a cachetier node serving the Coord service.
package coord
