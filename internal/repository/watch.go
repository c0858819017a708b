package repository

import (
	"context"
	"sync"

	"storefront/internal/model"
)

// watchHub fans one change feed out to in-process watchers keyed by namespace.
// Each storage medium feeds its hub from a single upstream subscription.
type watchHub struct {
	mu       sync.RWMutex
	watchers map[string]map[chan model.StoreChange]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{watchers: make(map[string]map[chan model.StoreChange]struct{})}
}

// add registers a watcher that is removed and closed when ctx is done
func (h *watchHub) add(ctx context.Context, namespace string) <-chan model.StoreChange {
	ch := make(chan model.StoreChange, watchBuffer)

	h.mu.Lock()
	if h.watchers[namespace] == nil {
		h.watchers[namespace] = make(map[chan model.StoreChange]struct{})
	}
	h.watchers[namespace][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(namespace, ch)
	}()
	return ch
}

func (h *watchHub) remove(namespace string, ch chan model.StoreChange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.watchers[namespace]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.watchers, namespace)
	}
	close(ch)
}

// publish delivers without blocking; a full watcher misses the change
func (h *watchHub) publish(change model.StoreChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.watchers[change.Namespace] {
		select {
		case ch <- change:
		default:
		}
	}
}

// closeAll ends every watcher stream
func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for namespace, set := range h.watchers {
		for ch := range set {
			close(ch)
		}
		delete(h.watchers, namespace)
	}
}

// count reports the registered watchers of a namespace
func (h *watchHub) count(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[namespace])
}
