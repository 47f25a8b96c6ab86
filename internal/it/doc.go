// Package it runs cachetier processes in-process on loopback listeners and
// drives them over gRPC for end-to-end tests.
package it
