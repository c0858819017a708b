package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"storefront/internal/model"
)

// RedisStorage stores values as plain keys and announces changes over pub/sub,
// so every server instance can notify the tabs it serves.
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger
	hub    *watchHub

	subMu  sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

// NewRedisStorage connects to Redis using a redis:// URL
func NewRedisStorage(ctx context.Context, redisURL, prefix string, log *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStorageFromClient(rdb, prefix, log), nil
}

// NewRedisStorageFromClient wraps an existing client
func NewRedisStorageFromClient(rdb *redis.Client, prefix string, log *slog.Logger) *RedisStorage {
	if prefix == "" {
		prefix = "storefront"
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisStorage{rdb: rdb, prefix: prefix, log: log, hub: newWatchHub()}
}

func (r *RedisStorage) key(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, namespace, key)
}

func (r *RedisStorage) channel(namespace string) string {
	return fmt.Sprintf("%s:changes:%s", r.prefix, namespace)
}

// Get reads a single key
func (r *RedisStorage) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, r.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set writes the key and publishes the change in one pipelined round trip
func (r *RedisStorage) Set(ctx context.Context, namespace, key string, value []byte, origin string) error {
	payload, err := json.Marshal(model.StoreChange{Namespace: namespace, Key: key, Origin: origin})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(namespace, key), value, 0)
		pipe.Publish(ctx, r.channel(namespace), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes the key and publishes the change
func (r *RedisStorage) Delete(ctx context.Context, namespace, key, origin string) error {
	payload, err := json.Marshal(model.StoreChange{Namespace: namespace, Key: key, Origin: origin})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(namespace, key))
		pipe.Publish(ctx, r.channel(namespace), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Watch registers an in-process watcher. The first call opens the single
// pattern subscription shared by every namespace; it returns once that is
// confirmed so no change published afterwards is missed.
func (r *RedisStorage) Watch(ctx context.Context, namespace string) (<-chan model.StoreChange, error) {
	if err := r.subscribe(ctx); err != nil {
		return nil, err
	}
	return r.hub.add(ctx, namespace), nil
}

func (r *RedisStorage) subscribe(ctx context.Context) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.closed {
		return errors.New("redis storage is closed")
	}
	if r.pubsub != nil {
		return nil
	}

	pubsub := r.rdb.PSubscribe(ctx, r.channel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	r.pubsub = pubsub

	go r.relay(pubsub.Channel())
	return nil
}

// relay runs until the subscription is closed
func (r *RedisStorage) relay(msgs <-chan *redis.Message) {
	for msg := range msgs {
		var change model.StoreChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			r.log.Warn("dropping malformed store change",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()))
			continue
		}
		r.hub.publish(change)
	}
}

// Close ends the shared subscription, every watcher and the redis client
func (r *RedisStorage) Close() error {
	r.subMu.Lock()
	r.closed = true
	if r.pubsub != nil {
		_ = r.pubsub.Close()
		r.pubsub = nil
	}
	r.subMu.Unlock()

	r.hub.closeAll()
	return r.rdb.Close()
}
