// Package cache wraps the Redis client used as a state backend.
package cache

import "errors"

// ErrCacheMiss is returned when a key does not exist.
var ErrCacheMiss = errors.New("cache: key not found")
