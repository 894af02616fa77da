// Package realtime fans row changes out to subscribers filtered by table
// and column predicates.
package realtime

import (
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"go.uber.org/zap"
)

// Subscription receives changes of one table that match Filter. C is
// closed when the subscription ends, either by Unsubscribe or because the
// subscriber fell behind.
type Subscription struct {
	Table  models.Table
	Filter models.Filter
	C      <-chan models.Change

	send   chan models.Change
	closed bool
}

// Hub maintains active subscriptions and delivers published changes.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	log    *zap.Logger
}

// NewHub creates a Hub whose subscriptions buffer up to buffer changes.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer, log: log}
}

// Subscribe registers interest in changes of table matching filter.
func (h *Hub) Subscribe(table models.Table, filter models.Filter) *Subscription {
	ch := make(chan models.Change, h.buffer)
	sub := &Subscription{Table: table, Filter: filter, C: ch, send: ch}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Debug("subscriber added", zap.String("table", string(table)), zap.Int("total", n))
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(sub)
}

// Publish delivers c to every matching subscriber without blocking.
// Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(c models.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.Table != c.Table || !sub.Filter.Matches(c.Row) {
			continue
		}
		select {
		case sub.send <- c:
		default:
			h.log.Warn("dropping slow subscriber", zap.String("table", string(sub.Table)))
			h.drop(sub)
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) drop(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.send)
}
