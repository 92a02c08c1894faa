package handle

import "testing"

func TestAllocatorIssuesSequentialHandles(t *testing.T) {
	a := NewAllocator[string]()
	for want, v := range []string{"a", "b", "c"} {
		if got := a.Add(v); got != Handle(want) {
			t.Fatalf("add %q: got=%d want=%d", v, got, want)
		}
	}
	if a.Len() != 3 {
		t.Fatalf("unexpected live count: %d", a.Len())
	}
}

func TestAllocatorReusesFreedHandleFirst(t *testing.T) {
	a := NewAllocator[string]()
	a.Add("a")
	a.Add("b")
	a.Add("c")

	if !a.Free(1) {
		t.Fatalf("expected free of live handle")
	}
	if _, ok := a.Get(1); ok {
		t.Fatalf("expected freed handle to be absent")
	}
	if got := a.Add("d"); got != 1 {
		t.Fatalf("expected reuse of 1, got %d", got)
	}
	if got := a.Add("e"); got != 3 {
		t.Fatalf("expected next new handle 3, got %d", got)
	}
	if v, ok := a.Get(1); !ok || v != "d" {
		t.Fatalf("unexpected value at reused handle: %q %v", v, ok)
	}
}

func TestAllocatorFreeListIsLIFO(t *testing.T) {
	a := NewAllocator[int]()
	for i := 0; i < 4; i++ {
		a.Add(i)
	}
	a.Free(0)
	a.Free(2)
	if got := a.Add(9); got != 2 {
		t.Fatalf("expected most recently freed 2, got %d", got)
	}
	if got := a.Add(9); got != 0 {
		t.Fatalf("expected 0 next, got %d", got)
	}
}

func TestAllocatorDoubleFreeIsNoop(t *testing.T) {
	a := NewAllocator[int]()
	h := a.Add(1)
	if !a.Free(h) {
		t.Fatalf("expected first free to succeed")
	}
	if a.Free(h) {
		t.Fatalf("expected second free to be a no-op")
	}
	if a.Free(Invalid) {
		t.Fatalf("expected invalid free to be a no-op")
	}
	first := a.Add(2)
	second := a.Add(3)
	if first == second {
		t.Fatalf("double free leaked a duplicate handle: %d", first)
	}
}

func TestAllocatorEachAscending(t *testing.T) {
	a := NewAllocator[int]()
	for i := 0; i < 5; i++ {
		a.Add(i * 10)
	}
	a.Free(3)
	var seen []Handle
	a.Each(func(h Handle, v int) bool {
		if int(h)*10 != v {
			t.Fatalf("value mismatch at %d: %d", h, v)
		}
		seen = append(seen, h)
		return true
	})
	want := []Handle{0, 1, 2, 4}
	if len(seen) != len(want) {
		t.Fatalf("unexpected visit: %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected visit order: %v", seen)
		}
	}
}

func TestSlotsRejectStaleRefAfterReuse(t *testing.T) {
	s := NewSlots[string]()
	old := s.Insert("first")
	if !s.Remove(old) {
		t.Fatalf("expected remove")
	}
	reused := s.Insert("second")
	if reused.Index != old.Index {
		t.Fatalf("expected slot reuse, got %v", reused)
	}
	if reused.Gen == old.Gen {
		t.Fatalf("expected generation bump on reuse")
	}
	if _, ok := s.Get(old); ok {
		t.Fatalf("stale ref resolved to reused slot")
	}
	if s.Remove(old) {
		t.Fatalf("stale remove must be a no-op")
	}
	if v, ok := s.Get(reused); !ok || v != "second" {
		t.Fatalf("unexpected value: %q %v", v, ok)
	}
}

func TestSlotsZeroRefNeverResolves(t *testing.T) {
	s := NewSlots[int]()
	s.Insert(5)
	if s.Contains(Ref{}) {
		t.Fatalf("zero ref resolved")
	}
	if !(Ref{}).IsZero() {
		t.Fatalf("expected zero ref")
	}
}

func TestSlotsPtrMutatesInPlace(t *testing.T) {
	s := NewSlots[int]()
	r := s.Insert(1)
	p, ok := s.Ptr(r)
	if !ok {
		t.Fatalf("expected ptr")
	}
	*p = 42
	if v, _ := s.Get(r); v != 42 {
		t.Fatalf("expected in-place update, got %d", v)
	}
	count := 0
	s.Each(func(Ref, *int) bool {
		count++
		return true
	})
	if count != 1 || s.Len() != 1 {
		t.Fatalf("unexpected live count: %d %d", count, s.Len())
	}
}
