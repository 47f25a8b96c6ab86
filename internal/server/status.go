package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cachetier/internal/dlock"
	"cachetier/internal/guard"
	"cachetier/internal/ring"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, dlock.ErrCanceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, dlock.ErrLockTimeout):
		code = codes.DeadlineExceeded
	case errors.Is(err, ring.ErrNoNodesConfigured), errors.Is(err, guard.ErrBackingStore):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
