// Package localstore persists carts on the storefront side: guest carts keyed by device and
// per-user cart caches kept for offline resilience.
package localstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates no value is stored under the key.
var ErrNotFound = errors.New("localstore: not found")

// Store is a namespaced key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GuestCartKey namespaces an anonymous cart by device.
func GuestCartKey(deviceID string) string {
	return "cart:guest:" + strings.TrimSpace(deviceID)
}

// UserCartKey namespaces a cached cart by authenticated user so carts never leak across accounts.
func UserCartKey(userID string) string {
	return "cart:user:" + strings.TrimSpace(userID)
}
