package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"storefront/internal/model"
)

// changeChannel is the NOTIFY channel shared by all namespaces
const changeChannel = "interaction_state_changes"

const schema = `
CREATE TABLE IF NOT EXISTS interaction_state (
	namespace  TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      BYTEA       NOT NULL,
	updated_by TEXT        NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, key)
)`

// PostgresStorage persists interaction state in PostgreSQL and announces
// changes through pg_notify.
type PostgresStorage struct {
	db  *sqlx.DB
	dsn string
	log *slog.Logger
	hub *watchHub

	listenMu sync.Mutex
	listener *pq.Listener
	closed   bool
}

// NewPostgresStorage connects, tunes the pool and ensures the table exists
func NewPostgresStorage(ctx context.Context, dsn string, maxConn, maxIdleConn int, log *slog.Logger) (*PostgresStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &PostgresStorage{db: db, dsn: dsn, log: log, hub: newWatchHub()}, nil
}

// Get reads a single key
func (r *PostgresStorage) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := r.db.GetContext(ctx, &value,
		`SELECT value FROM interaction_state WHERE namespace = $1 AND key = $2`,
		namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the key and notifies listeners in the same transaction
func (r *PostgresStorage) Set(ctx context.Context, namespace, key string, value []byte, origin string) error {
	return r.inTx(ctx, namespace, key, origin, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO interaction_state (namespace, key, value, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (namespace, key)
			DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		`, namespace, key, value, origin)
		return err
	})
}

// Delete removes the key and notifies listeners
func (r *PostgresStorage) Delete(ctx context.Context, namespace, key, origin string) error {
	return r.inTx(ctx, namespace, key, origin, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM interaction_state WHERE namespace = $1 AND key = $2`,
			namespace, key)
		return err
	})
}

func (r *PostgresStorage) inTx(ctx context.Context, namespace, key, origin string, write func(tx *sqlx.Tx) error) error {
	payload, err := json.Marshal(model.StoreChange{Namespace: namespace, Key: key, Origin: origin})
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := write(tx); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	// NOTIFY is delivered on commit only
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Watch registers an in-process watcher. The first call opens the single
// LISTEN connection shared by every namespace.
func (r *PostgresStorage) Watch(ctx context.Context, namespace string) (<-chan model.StoreChange, error) {
	if err := r.listen(); err != nil {
		return nil, err
	}
	return r.hub.add(ctx, namespace), nil
}

func (r *PostgresStorage) listen() error {
	r.listenMu.Lock()
	defer r.listenMu.Unlock()

	if r.closed {
		return errors.New("postgres storage is closed")
	}
	if r.listener != nil {
		return nil
	}

	listener := pq.NewListener(r.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			r.log.Warn("postgres listener event", slog.Int("event", int(ev)), slog.String("error", err.Error()))
		}
	})
	if err := listener.Listen(changeChannel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.listener = listener

	go r.relay(listener.Notify)
	return nil
}

// relay runs until the listener is closed
func (r *PostgresStorage) relay(notify <-chan *pq.Notification) {
	for n := range notify {
		// nil notification means the connection was re-established
		if n == nil {
			continue
		}
		var change model.StoreChange
		if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
			r.log.Warn("dropping malformed store change", slog.String("error", err.Error()))
			continue
		}
		r.hub.publish(change)
	}
}

// Close ends the shared listener, every watcher and the database pool
func (r *PostgresStorage) Close() error {
	r.listenMu.Lock()
	r.closed = true
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
	r.listenMu.Unlock()

	r.hub.closeAll()
	return r.db.Close()
}
