// Package collection provides the insertion-ordered entity cache used for
// every keyed set of gateway entities.
package collection

import (
	"container/list"
	"math/rand/v2"

	"emperror.dev/errors"
)

// ErrMissingKey is returned when an entity without a key is inserted into a
// storing collection. No-store collections accept keyless entities.
const ErrMissingKey = errors.Sentinel("collection: entity has no key")

// Keyed is implemented by every cacheable entity.
type Keyed interface {
	Key() string
}

// Collection is a keyed set of entities that remembers insertion order.
//
// A positive limit bounds the collection: once it is exceeded the oldest
// inserted entry is evicted, regardless of how recently it was read or
// updated. A limit of zero turns the collection into a pass-through that
// builds entities but never stores them. A negative limit means unbounded.
//
// Collections are not safe for concurrent use; they are owned by the event
// loop.
type Collection[T Keyed] struct {
	limit int
	items map[string]*list.Element
	order *list.List
}

// New returns an unbounded collection.
func New[T Keyed]() *Collection[T] {
	return NewLimited[T](-1)
}

// NewLimited returns a collection holding at most limit entries.
func NewLimited[T Keyed](limit int) *Collection[T] {
	return &Collection[T]{
		limit: limit,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Limit returns the configured limit.
func (c *Collection[T]) Limit() int { return c.limit }

// Len returns the number of stored entries.
func (c *Collection[T]) Len() int { return len(c.items) }

// Get returns the entity stored under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	if el, ok := c.items[key]; ok {
		return el.Value.(T), true
	}
	var zero T
	return zero, false
}

// Has reports whether key is stored.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Add stores item unless an entity with the same key already exists, in
// which case the existing entity is returned unchanged.
func (c *Collection[T]) Add(item T) (T, error) {
	key := item.Key()
	if key == "" && c.limit != 0 {
		return item, ErrMissingKey
	}
	if el, ok := c.items[key]; ok {
		return el.Value.(T), nil
	}
	c.insert(key, item)
	return item, nil
}

// Replace stores item, overwriting any existing entity with the same key.
// An overwritten entry keeps its original insertion position.
func (c *Collection[T]) Replace(item T) (T, error) {
	key := item.Key()
	if key == "" && c.limit != 0 {
		return item, ErrMissingKey
	}
	if el, ok := c.items[key]; ok {
		el.Value = item
		return item, nil
	}
	c.insert(key, item)
	return item, nil
}

// Upsert merges into the entity stored under key, or builds and stores a
// new one. merge may be nil. The returned entity is the stored instance
// (or, in no-store mode, the freshly built one).
func (c *Collection[T]) Upsert(key string, build func() T, merge func(T)) (T, error) {
	if key == "" && c.limit != 0 {
		var zero T
		return zero, ErrMissingKey
	}
	if el, ok := c.items[key]; ok {
		existing := el.Value.(T)
		if merge != nil {
			merge(existing)
		}
		return existing, nil
	}
	item := build()
	c.insert(key, item)
	return item, nil
}

func (c *Collection[T]) insert(key string, item T) {
	if c.limit == 0 {
		return
	}
	c.items[key] = c.order.PushBack(item)
	if c.limit > 0 {
		for len(c.items) > c.limit {
			oldest := c.order.Front()
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(T).Key())
		}
	}
}

// Remove deletes and returns the entity stored under key.
func (c *Collection[T]) Remove(key string) (T, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return el.Value.(T), true
}

// Clear drops every entry.
func (c *Collection[T]) Clear() {
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Each calls fn for every entry in insertion order until fn returns false.
func (c *Collection[T]) Each(fn func(T) bool) {
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !fn(el.Value.(T)) {
			return
		}
		el = next
	}
}

// Values returns the entries in insertion order.
func (c *Collection[T]) Values() []T {
	out := make([]T, 0, len(c.items))
	c.Each(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Keys returns the keys in insertion order.
func (c *Collection[T]) Keys() []string {
	out := make([]string, 0, len(c.items))
	c.Each(func(v T) bool {
		out = append(out, v.Key())
		return true
	})
	return out
}

// Find returns the first entry matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	var found T
	ok := false
	c.Each(func(v T) bool {
		if pred(v) {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// Filter returns every entry matching pred.
func (c *Collection[T]) Filter(pred func(T) bool) []T {
	var out []T
	c.Each(func(v T) bool {
		if pred(v) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// Some reports whether any entry matches pred.
func (c *Collection[T]) Some(pred func(T) bool) bool {
	_, ok := c.Find(pred)
	return ok
}

// Every reports whether all entries match pred. It is true for an empty
// collection.
func (c *Collection[T]) Every(pred func(T) bool) bool {
	return !c.Some(func(v T) bool { return !pred(v) })
}

// Random returns an arbitrary entry.
func (c *Collection[T]) Random() (T, bool) {
	if len(c.items) == 0 {
		var zero T
		return zero, false
	}
	n := rand.IntN(len(c.items))
	el := c.order.Front()
	for ; n > 0; n-- {
		el = el.Next()
	}
	return el.Value.(T), true
}

// Map applies fn to every entry in insertion order.
func Map[T Keyed, R any](c *Collection[T], fn func(T) R) []R {
	out := make([]R, 0, c.Len())
	c.Each(func(v T) bool {
		out = append(out, fn(v))
		return true
	})
	return out
}

// Reduce folds the entries in insertion order.
func Reduce[T Keyed, A any](c *Collection[T], fn func(A, T) A, initial A) A {
	acc := initial
	c.Each(func(v T) bool {
		acc = fn(acc, v)
		return true
	})
	return acc
}
