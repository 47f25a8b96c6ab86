// Package source provides an in-memory backing store used by the demo
// binary and by tests in place of a real database.
package source
