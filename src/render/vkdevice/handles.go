package vkdevice

import "swapline/src/render"

// table maps engine handles to Vulkan objects of one kind. All tables
// of a device draw from the same sequence so a handle never names two
// objects.
type table[T any] struct {
	seq   *render.Handle
	items map[render.Handle]T
}

func newTable[T any](seq *render.Handle) table[T] {
	return table[T]{seq: seq, items: make(map[render.Handle]T)}
}

func (t *table[T]) add(v T) render.Handle {
	*t.seq++
	t.items[*t.seq] = v
	return *t.seq
}

func (t *table[T]) get(h render.Handle) (T, bool) {
	v, ok := t.items[h]
	return v, ok
}

// take removes h and returns what it named.
func (t *table[T]) take(h render.Handle) (T, bool) {
	v, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return v, ok
}

func (t *table[T]) len() int { return len(t.items) }

// drain removes every entry.
func (t *table[T]) drain(fn func(T)) {
	for h, v := range t.items {
		fn(v)
		delete(t.items, h)
	}
}
