// Package storage is the agent's durable client storage: a namespaced string key/value
// store with the same surface a browser's localStorage offers.
//
// Missing keys are reported with ok=false rather than an error. Clear removes every key in
// the storage's namespace and nothing else.
package storage

import "context"

// Storage is implemented by every backend.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}
