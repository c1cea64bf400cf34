package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
)

type tagged interface {
	Tags() core.Tags
}

type ledgerItem[V tagged] struct {
	v   V
	seq uint64
}

// ledger is the store behind every entity ledger. Removal of an id succeeds
// exactly once.
type ledger[K ~string, V tagged] struct {
	name string

	mu    sync.RWMutex
	items map[K]*ledgerItem[V]
	next  uint64
}

func newLedger[K ~string, V tagged](name string) *ledger[K, V] {
	return &ledger[K, V]{name: name, items: make(map[K]*ledgerItem[V])}
}

func (l *ledger[K, V]) add(id K, v V) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[id]; ok {
		return fmt.Errorf("%s %s already registered", l.name, id)
	}
	l.next++
	l.items[id] = &ledgerItem[V]{v: v, seq: l.next}
	metrics.LedgerEntries.WithLabelValues(l.name).Set(float64(len(l.items)))
	return nil
}

func (l *ledger[K, V]) get(id K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.items[id]
	if !ok {
		var zero V
		return zero, false
	}
	return it.v, true
}

func (l *ledger[K, V]) remove(id K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[id]
	if !ok {
		var zero V
		return zero, false
	}
	delete(l.items, id)
	metrics.LedgerEntries.WithLabelValues(l.name).Set(float64(len(l.items)))
	return it.v, true
}

// update mutates an entry in place under the ledger lock.
func (l *ledger[K, V]) update(id K, fn func(*V) error) (V, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	it, ok := l.items[id]
	if !ok {
		var zero V
		return zero, false, nil
	}
	err := fn(&it.v)
	return it.v, true, err
}

func (l *ledger[K, V]) filter(keep func(V) bool) []V {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []V
	for _, it := range l.items {
		if keep(it.v) {
			out = append(out, it.v)
		}
	}
	return out
}

// newest returns the most recently added entry matching keep.
func (l *ledger[K, V]) newest(keep func(V) bool) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var (
		best  *ledgerItem[V]
		found bool
	)
	for _, it := range l.items {
		if keep(it.v) && (!found || it.seq > best.seq) {
			best, found = it, true
		}
	}
	if !found {
		var zero V
		return zero, false
	}
	return best.v, true
}

func (l *ledger[K, V]) ownedBy(conn domain.ConnectionID) []V {
	return l.filter(func(v V) bool { return v.Tags().Connection == conn })
}

func (l *ledger[K, V]) ownedByIn(conn domain.ConnectionID, room domain.RoomID) []V {
	return l.filter(func(v V) bool {
		t := v.Tags()
		return t.Connection == conn && t.Room == room
	})
}

func (l *ledger[K, V]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
