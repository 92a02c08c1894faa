// Package handle provides stable integer handles with slot reuse and
// generation-tagged references for identities that can go stale.
package handle

import "math"

// Handle is a stable index issued by an Allocator. It is written to the wire as u32.
type Handle uint32

// Invalid never names a live slot.
const Invalid Handle = math.MaxUint32

type slot[T any] struct {
	value T
	live  bool
}

// Allocator hands out handles in O(1), reusing the most recently freed one first.
// It is not safe for concurrent use.
type Allocator[T any] struct {
	slots []slot[T]
	free  []Handle
	live  int
}

func NewAllocator[T any]() *Allocator[T] {
	return &Allocator[T]{}
}

// Add stores v and returns its handle.
func (a *Allocator[T]) Add(v T) Handle {
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = slot[T]{value: v, live: true}
		a.live++
		return h
	}
	a.slots = append(a.slots, slot[T]{value: v, live: true})
	a.live++
	return Handle(len(a.slots) - 1)
}

func (a *Allocator[T]) Get(h Handle) (T, bool) {
	if !a.Live(h) {
		var zero T
		return zero, false
	}
	return a.slots[h].value, true
}

// Set replaces the value at a live handle.
func (a *Allocator[T]) Set(h Handle, v T) bool {
	if !a.Live(h) {
		return false
	}
	a.slots[h].value = v
	return true
}

// Free clears the slot and makes h available again. Freeing a dead handle is a no-op.
func (a *Allocator[T]) Free(h Handle) bool {
	if !a.Live(h) {
		return false
	}
	a.slots[h] = slot[T]{}
	a.free = append(a.free, h)
	a.live--
	return true
}

func (a *Allocator[T]) Live(h Handle) bool {
	return int64(h) < int64(len(a.slots)) && a.slots[h].live
}

// Len is the number of live handles.
func (a *Allocator[T]) Len() int {
	return a.live
}

// Each visits live handles in ascending order until fn returns false.
func (a *Allocator[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		if !a.slots[i].live {
			continue
		}
		if !fn(Handle(i), a.slots[i].value) {
			return
		}
	}
}
