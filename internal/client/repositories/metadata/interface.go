// Package metadata is the local key/value table backing client-side state such
// as the session token and the cached user record.
package metadata

import (
	"context"
)

// Repository reads and writes raw values by key. A missing key reads as
// (nil, nil).
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
