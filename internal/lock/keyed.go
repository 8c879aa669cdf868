// Package lock serializes ledger operations per order.
package lock

import (
	"context"
	"sync"

	"github.com/xenking/burger-ledger/internal/domain/order"
)

var _ order.Locker = (*Keyed)(nil)

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// Keyed is an in-process lock with one mutex per order ID. Entries are
// dropped once no goroutine holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[order.ID]*keyedEntry
}

// NewKeyed returns an empty Keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[order.ID]*keyedEntry)}
}

// Lock blocks until id is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, id order.ID) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(id, e)
		})
	}, nil
}

func (k *Keyed) release(id order.ID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
}

// size returns the number of tracked IDs.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
