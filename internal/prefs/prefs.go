// Package prefs is the key-value persistence primitive behind the event
// store and the widget bindings. Values are opaque strings; callers own the
// encoding.
package prefs

import (
	"context"
	"fmt"
)

// Store is a small durable string map.
type Store interface {
	// GetString returns the value under key. ok is false when the key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	// PutString stores value under key, replacing any previous value.
	PutString(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases the backend's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the file path for the file and sqlite backends.
	Path string
	// RedisURL is a redis:// URL for the redis backend.
	RedisURL string
	// RedisPrefix namespaces keys in a shared redis database.
	RedisPrefix string
}

// Open constructs the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile, "":
		return OpenFile(opts.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", opts.Backend)
	}
}
