package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/model"
)

func newRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStorageFromClient(rdb, "test", nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// newPostgresStorage connects to STOREFRONT_TEST_POSTGRES_DSN or skips
func newPostgresStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	dsn := os.Getenv("STOREFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStorage(context.Background(), dsn, 5, 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receive(t *testing.T, ch <-chan model.StoreChange) model.StoreChange {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store change")
		return model.StoreChange{}
	}
}

func TestStorages(t *testing.T) {
	media := map[string]func(t *testing.T) Storage{
		"memory": func(*testing.T) Storage { return NewMemoryStorage() },
		"redis": func(t *testing.T) Storage {
			s, _ := newRedisStorage(t)
			return s
		},
		"postgres": func(t *testing.T) Storage { return newPostgresStorage(t) },
	}

	for name, build := range media {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s := build(t)

			// postgres rows outlive the test run
			require.NoError(t, s.Delete(ctx, "browser-1", "cart", "setup"))
			require.NoError(t, s.Delete(ctx, "browser-2", "cart", "setup"))

			value, err := s.Get(ctx, "browser-1", "cart")
			require.NoError(t, err)
			assert.Nil(t, value, "absent key reads as nil")

			changes, err := s.Watch(ctx, "browser-1")
			require.NoError(t, err)

			require.NoError(t, s.Set(ctx, "browser-1", "cart", []byte(`["p1"]`), "tab-a"))
			change := receive(t, changes)
			assert.Equal(t, model.StoreChange{Namespace: "browser-1", Key: "cart", Origin: "tab-a"}, change)

			value, err = s.Get(ctx, "browser-1", "cart")
			require.NoError(t, err)
			assert.JSONEq(t, `["p1"]`, string(value))

			// other namespaces are isolated
			value, err = s.Get(ctx, "browser-2", "cart")
			require.NoError(t, err)
			assert.Nil(t, value)

			require.NoError(t, s.Delete(ctx, "browser-1", "cart", "tab-b"))
			change = receive(t, changes)
			assert.Equal(t, "tab-b", change.Origin)

			value, err = s.Get(ctx, "browser-1", "cart")
			require.NoError(t, err)
			assert.Nil(t, value)
		})
	}
}

func TestMemoryStorage_WatchClosesOnCancel(t *testing.T) {
	s := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := s.Watch(ctx, "ns")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestMemoryStorage_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.Set(ctx, "ns", "k", []byte("abc"), ""))

	v, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	v[0] = 'x'

	again, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestRedisStorage_WatchersShareOneSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, mr := newRedisStorage(t)

	const tabs = 50
	feeds := make([]<-chan model.StoreChange, tabs)
	for i := range tabs {
		ch, err := s.Watch(ctx, fmt.Sprintf("browser-%d", i%5))
		require.NoError(t, err)
		feeds[i] = ch
	}

	assert.Equal(t, 1, mr.PubSubNumPat())
	assert.LessOrEqual(t, mr.CurrentConnectionCount(), 2, "one pub/sub connection plus the command pool")

	require.NoError(t, s.Set(ctx, "browser-3", "cart", []byte(`[]`), "tab-x"))
	for i, ch := range feeds {
		if i%5 != 3 {
			continue
		}
		assert.Equal(t, "browser-3", receive(t, ch).Namespace)
	}
	for i, ch := range feeds {
		if i%5 == 3 {
			continue
		}
		select {
		case change := <-ch:
			t.Fatalf("watcher of browser-%d got %+v", i%5, change)
		default:
		}
	}
}

func TestRedisStorage_CloseEndsWatchers(t *testing.T) {
	s, _ := newRedisStorage(t)

	changes, err := s.Watch(context.Background(), "ns")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed")
	}

	_, err = s.Watch(context.Background(), "ns")
	assert.Error(t, err)
}

func TestPostgresStorage_WatchFiltersNamespace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newPostgresStorage(t)

	mine, err := s.Watch(ctx, "pg-browser-a")
	require.NoError(t, err)
	other, err := s.Watch(ctx, "pg-browser-b")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "pg-browser-a", "theme", []byte(`"dark"`), "tab-1"))
	require.NoError(t, s.Set(ctx, "pg-browser-a", "theme", []byte(`"light"`), "tab-2"))

	assert.Equal(t, "tab-1", receive(t, mine).Origin)
	assert.Equal(t, "tab-2", receive(t, mine).Origin)

	value, err := s.Get(ctx, "pg-browser-a", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"light"`, string(value), "upsert keeps the last write")

	select {
	case change := <-other:
		t.Fatalf("unexpected change for other namespace: %+v", change)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 1, s.hub.count("pg-browser-a"))
}

func TestWatchHub_RemovesWatcherOnCancel(t *testing.T) {
	hub := newWatchHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch := hub.add(ctx, "ns")
	assert.Equal(t, 1, hub.count("ns"))
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed")
	}
	assert.Equal(t, 0, hub.count("ns"))

	// closeAll after removal must not close twice
	hub.closeAll()
}
