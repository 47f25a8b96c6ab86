//go:build !unix

package dlock

import (
	"context"
	"fmt"
	"runtime"
)

// File is unavailable on this platform.
type File struct{}

// NewFile always fails on platforms without flock.
func NewFile(dir string, opts ...Option) (*File, error) {
	return nil, fmt.Errorf("%w: flock is not supported on %s", ErrFilesystem, runtime.GOOS)
}

// Acquire always fails on platforms without flock.
func (f *File) Acquire(ctx context.Context, key string) (Handle, error) {
	return nil, fmt.Errorf("%w: flock is not supported on %s", ErrFilesystem, runtime.GOOS)
}
