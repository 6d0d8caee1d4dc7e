// Package kv provides a small TTL key-value store used for OTP challenges and
// session records. The interface keeps a single-process map and a shared
// networked table interchangeable, so the identity service can scale
// horizontally without code changes.
package kv

import (
	"context"
	"time"
)

// Store is a key-value store with per-entry TTL. Get returns
// domain.ErrNotFound-wrapped errors for missing or expired entries; expired
// entries are deleted lazily on read.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
