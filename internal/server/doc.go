// Package server exposes a cachetier node over gRPC.
//
// Two services are registered, both described by hand with protobuf
// well-known types as messages:
//
//	cachetier.Coord  SetIfAbsent, DeleteIfEqual
//	cachetier.Cache  Get, Set, MightContain, Fetch
//
// Coord lets remote processes use this node as the coordination store of
// dlock.Remote. Cache routes keys through the cluster ring and serves
// GetOrFetch through the owning node's stampede guard.
package server
