package handle

import "fmt"

// Ref is a slot index tagged with the generation it was issued under.
// The zero Ref never resolves.
type Ref struct {
	Index uint32
	Gen   uint32
}

func (r Ref) String() string {
	return fmt.Sprintf("%d@%d", r.Index, r.Gen)
}

func (r Ref) IsZero() bool {
	return r.Gen == 0
}

type entry[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Slots stores values behind generation-tagged references. Removing a value
// bumps the slot generation so any outstanding Ref stops resolving even after
// the slot is reused.
type Slots[T any] struct {
	entries []entry[T]
	free    []uint32
	live    int
}

func NewSlots[T any]() *Slots[T] {
	return &Slots[T]{}
}

func (s *Slots[T]) Insert(v T) Ref {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		e := &s.entries[idx]
		e.value = v
		e.live = true
		s.live++
		return Ref{Index: idx, Gen: e.gen}
	}
	s.entries = append(s.entries, entry[T]{value: v, gen: 1, live: true})
	s.live++
	return Ref{Index: uint32(len(s.entries) - 1), Gen: 1}
}

func (s *Slots[T]) Get(r Ref) (T, bool) {
	e, ok := s.resolve(r)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Ptr returns a pointer to the stored value. It is invalidated by Insert.
func (s *Slots[T]) Ptr(r Ref) (*T, bool) {
	e, ok := s.resolve(r)
	if !ok {
		return nil, false
	}
	return &e.value, true
}

func (s *Slots[T]) Contains(r Ref) bool {
	_, ok := s.resolve(r)
	return ok
}

func (s *Slots[T]) Remove(r Ref) bool {
	e, ok := s.resolve(r)
	if !ok {
		return false
	}
	var zero T
	e.value = zero
	e.live = false
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	s.free = append(s.free, r.Index)
	s.live--
	return true
}

func (s *Slots[T]) Len() int {
	return s.live
}

// Each visits live values in index order until fn returns false.
func (s *Slots[T]) Each(fn func(Ref, *T) bool) {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.live {
			continue
		}
		if !fn(Ref{Index: uint32(i), Gen: e.gen}, &e.value) {
			return
		}
	}
}

func (s *Slots[T]) resolve(r Ref) (*entry[T], bool) {
	if int64(r.Index) >= int64(len(s.entries)) {
		return nil, false
	}
	e := &s.entries[r.Index]
	if !e.live || e.gen != r.Gen {
		return nil, false
	}
	return e, true
}
