package data

import (
	"sync"

	"github.com/atinyakov/SiteKeeper/internal/models"
)

// Invalidator tells listeners that cached reads of a table are stale.
type Invalidator struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(models.Table)
}

func NewInvalidator() *Invalidator {
	return &Invalidator{subs: map[int]func(models.Table){}}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Invalidator) Subscribe(fn func(models.Table)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Invalidate calls every listener with table.
func (b *Invalidator) Invalidate(table models.Table) {
	b.mu.Lock()
	fns := make([]func(models.Table), 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(table)
	}
}
