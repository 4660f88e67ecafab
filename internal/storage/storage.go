// Package storage is the gateway to durable large-object storage.
// Keys are opaque strings chosen by the caller.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the object bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
