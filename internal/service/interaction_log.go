package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/model"
)

// InteractionLogger sends analytics records without ever blocking or failing
// the action that produced them.
type InteractionLogger struct {
	backend InteractionBackend
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewInteractionLogger creates a fire-and-forget logger
func NewInteractionLogger(backend InteractionBackend, timeout time.Duration, log *slog.Logger) *InteractionLogger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &InteractionLogger{backend: backend, timeout: timeout, log: log}
}

// Log sends the record in the background; failures are only logged
func (l *InteractionLogger) Log(interaction model.Interaction) {
	if l == nil || l.backend == nil {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := l.backend.LogInteraction(ctx, interaction); err != nil {
			l.log.Warn("interaction log failed",
				"product_id", interaction.ProductID,
				"type", interaction.InteractionType,
				"error", err)
		}
	}()
}

// Wait blocks until in-flight records have been sent
func (l *InteractionLogger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
