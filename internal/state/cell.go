package state

import (
	"slices"
	"sync"
)

// Cell is an observable value. Watchers are notified synchronously, outside
// the cell's lock, after every Set.
type Cell[T any] struct {
	mu       sync.RWMutex
	value    T
	version  uint64
	watchers []*watcher[T]
}

type watcher[T any] struct {
	fn func(T)
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
	}
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.value
}

// Version counts Set calls.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	c.version++
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()

	for _, w := range watchers {
		w.fn(value)
	}
}

// Update applies fn to the current value atomically. Watchers are notified
// only when fn reports a change.
func (c *Cell[T]) Update(fn func(current T) (T, bool)) bool {
	c.mu.Lock()

	value, changed := fn(c.value)
	if !changed {
		c.mu.Unlock()

		return false
	}

	c.value = value
	c.version++
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()

	for _, w := range watchers {
		w.fn(value)
	}

	return true
}

// Watch registers fn and returns a function that unregisters it.
func (c *Cell[T]) Watch(fn func(T)) func() {
	w := &watcher[T]{fn: fn}

	c.mu.Lock()
	c.watchers = append(c.watchers, w)
	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			c.watchers = slices.DeleteFunc(c.watchers, func(other *watcher[T]) bool {
				return other == w
			})
		})
	}
}
