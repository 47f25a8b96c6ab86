package coord

import "errors"

// ErrInvalidTTL is returned when SetIfAbsent is called without a positive TTL.
var ErrInvalidTTL = errors.New("coord: ttl must be positive")
