package repository

import (
	"context"

	"storefront/internal/model"
)

// Storage is the persisted medium behind the interaction store. It plays the role
// browser local storage plays for a single-page app: small values addressed by
// (namespace, key), read-modify-write without transactions, last write wins.
type Storage interface {
	// Get returns the stored value, or nil when the key is absent.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores value and announces the change to watchers of the namespace.
	// origin identifies the writer so watchers can ignore their own writes.
	Set(ctx context.Context, namespace, key string, value []byte, origin string) error

	// Delete removes the key and announces the change.
	Delete(ctx context.Context, namespace, key, origin string) error

	// Watch streams changes to the namespace until ctx is done.
	Watch(ctx context.Context, namespace string) (<-chan model.StoreChange, error)

	Close() error
}

const watchBuffer = 32

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*RedisStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)
