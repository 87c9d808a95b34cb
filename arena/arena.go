// Package arena implements an index-stable list: values are attached into
// slots of a slice and linked in attachment order, so that attaching and
// detaching are O(1) and never move other values.
package arena

import "iter"

type (
	// Handle identifies an attached value. A handle goes stale when its value
	// is detached; stale handles are rejected even if the slot gets reused.
	Handle struct {
		index      int32
		generation uint32
	}

	// List is a slot map of values of type T, iterated in attachment order.
	// The zero value is an empty list ready for use.
	List[T any] struct {
		slots      []slot[T]
		free       []int32
		head, tail int32
		length     int
		init       bool
	}

	slot[T any] struct {
		value      T
		prev, next int32
		generation uint32
		used       bool
	}
)

const none = -1

// Valid reports whether the handle was ever returned by Attach. It does not
// tell if the value is still attached; use List.Contains for that.
func (h Handle) Valid() bool {
	return h.generation != 0
}

func (l *List[T]) lazyInit() {
	if !l.init {
		l.head, l.tail = none, none
		l.init = true
	}
}

// Attach appends v to the end of the list and returns its handle.
func (l *List[T]) Attach(v T) Handle {
	l.lazyInit()
	var index int32
	if n := len(l.free); n > 0 {
		index = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		index = int32(len(l.slots))
		l.slots = append(l.slots, slot[T]{})
	}
	s := &l.slots[index]
	s.value = v
	s.used = true
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.prev, s.next = l.tail, none
	if l.tail != none {
		l.slots[l.tail].next = index
	} else {
		l.head = index
	}
	l.tail = index
	l.length++
	return Handle{index: index, generation: s.generation}
}

func (l *List[T]) lookup(h Handle) *slot[T] {
	if h.index < 0 || int(h.index) >= len(l.slots) {
		return nil
	}
	s := &l.slots[h.index]
	if !s.used || s.generation != h.generation {
		return nil
	}
	return s
}

// Detach removes the value of the handle from the list. It returns false if
// the handle is stale.
func (l *List[T]) Detach(h Handle) bool {
	s := l.lookup(h)
	if s == nil {
		return false
	}
	if s.prev != none {
		l.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != none {
		l.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	var zero T
	s.value = zero
	s.used = false
	s.prev, s.next = none, none
	l.free = append(l.free, h.index)
	l.length--
	return true
}

// Get returns the value of the handle; ok is false if the handle is stale.
func (l *List[T]) Get(h Handle) (v T, ok bool) {
	s := l.lookup(h)
	if s == nil {
		return v, false
	}
	return s.value, true
}

// Contains reports whether the handle refers to an attached value.
func (l *List[T]) Contains(h Handle) bool {
	return l.lookup(h) != nil
}

// Len returns the number of attached values.
func (l *List[T]) Len() int {
	return l.length
}

// All iterates over the attached values in attachment order. Detaching the
// current value during iteration is allowed; values attached during the
// iteration are visited too.
func (l *List[T]) All() iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		if !l.init {
			return
		}
		for i := l.head; i != none; {
			s := &l.slots[i]
			next, gen := s.next, s.generation
			if !yield(Handle{index: i, generation: gen}, s.value) {
				return
			}
			if s = &l.slots[i]; s.used && s.generation == gen {
				next = s.next
			}
			i = next
		}
	}
}

// Snapshot appends the attached values in attachment order to dst and returns
// the extended slice.
func (l *List[T]) Snapshot(dst []T) []T {
	for _, v := range l.All() {
		dst = append(dst, v)
	}
	return dst
}

// Clear detaches every value. All handles given out so far go stale.
func (l *List[T]) Clear() {
	for i := l.head; l.init && i != none; {
		next := l.slots[i].next
		l.Detach(Handle{index: i, generation: l.slots[i].generation})
		i = next
	}
}
