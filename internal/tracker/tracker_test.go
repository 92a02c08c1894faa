package tracker

import (
	"errors"
	"testing"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func id(index uint32) engine.BodyID {
	return engine.BodyID(handle.Ref{Index: index, Gen: 1})
}

func bucketsContaining(t *Tracker, h handle.Handle) int {
	n := 0
	for _, c := range Buckets {
		for _, got := range t.Bucket(c) {
			if got == h {
				n++
			}
		}
	}
	return n
}

func TestClassify(t *testing.T) {
	cases := []struct {
		kind   engine.BodyKind
		motion engine.MotionType
		want   Category
	}{
		{engine.KindRigid, engine.MotionStatic, None},
		{engine.KindRigid, engine.MotionDynamic, Dynamic},
		{engine.KindRigid, engine.MotionKinematic, Kinematic},
		{engine.KindCharacter, engine.MotionKinematic, Character},
		{engine.KindCharacter, engine.MotionDynamic, Character},
	}
	for _, tc := range cases {
		if got := Classify(tc.kind, tc.motion); got != tc.want {
			t.Fatalf("Classify(%d, %s) = %s, want %s", tc.kind, tc.motion, got, tc.want)
		}
	}
}

func TestAddAndLookupBothDirections(t *testing.T) {
	testlog.Start(t)
	tr := New()
	if err := tr.Add(id(7), 3, Dynamic); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, ok := tr.ByHandle(3)
	if !ok || got != id(7) {
		t.Fatalf("ByHandle: ok=%v id=%s", ok, got)
	}
	h, ok := tr.HandleOf(id(7))
	if !ok || h != 3 {
		t.Fatalf("HandleOf: ok=%v h=%d", ok, h)
	}
	if err := tr.Add(id(8), 3, Dynamic); !errors.Is(err, ErrHandleTracked) {
		t.Fatalf("expected ErrHandleTracked, got %v", err)
	}
	if err := tr.Add(id(7), 4, Dynamic); !errors.Is(err, ErrIdentityTaken) {
		t.Fatalf("expected ErrIdentityTaken, got %v", err)
	}
	if err := tr.Add(id(9), 5, Category(42)); !errors.Is(err, ErrInvalidBucket) {
		t.Fatalf("expected ErrInvalidBucket, got %v", err)
	}
}

func TestStaticBodiesAreTrackedWithoutBucket(t *testing.T) {
	testlog.Start(t)
	tr := New()
	_ = tr.Add(id(1), 1, None)
	if bucketsContaining(tr, 1) != 0 {
		t.Fatalf("static body placed in a bucket")
	}
	if tr.Len() != 1 {
		t.Fatalf("expected one tracked body")
	}
}

func TestUpdateMovesBetweenBucketsAtomically(t *testing.T) {
	testlog.Start(t)
	tr := New()
	_ = tr.Add(id(1), 1, Dynamic)
	steps := []Category{Kinematic, Character, Kinematic, None, Dynamic}
	for _, c := range steps {
		if err := tr.Update(id(1), 1, c); err != nil {
			t.Fatalf("update to %s: %v", c, err)
		}
		want := 1
		if c == None {
			want = 0
		}
		if n := bucketsContaining(tr, 1); n != want {
			t.Fatalf("after update to %s body is in %d buckets", c, n)
		}
		if got, _ := tr.CategoryOf(1); got != c {
			t.Fatalf("CategoryOf = %s, want %s", got, c)
		}
	}
	if err := tr.Update(id(2), 1, Dynamic); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked for mismatched identity, got %v", err)
	}
}

func TestBucketIsAscending(t *testing.T) {
	testlog.Start(t)
	tr := New()
	for _, h := range []handle.Handle{9, 2, 5} {
		_ = tr.Add(id(uint32(h)), h, Dynamic)
	}
	got := tr.Bucket(Dynamic)
	if len(got) != 3 || got[0] != 2 || got[1] != 5 || got[2] != 9 {
		t.Fatalf("unexpected bucket order: %v", got)
	}
	visited := 0
	tr.EachInBucket(Dynamic, func(h handle.Handle, bid engine.BodyID) bool {
		visited++
		return h < 5
	})
	if visited != 2 {
		t.Fatalf("EachInBucket did not stop early: %d", visited)
	}
}

func TestStopTrackingClearsEverything(t *testing.T) {
	testlog.Start(t)
	tr := New()
	_ = tr.Add(id(1), 1, Kinematic)
	h, err := tr.StopTracking(id(1))
	if err != nil || h != 1 {
		t.Fatalf("stop tracking: h=%d err=%v", h, err)
	}
	if _, ok := tr.ByHandle(1); ok {
		t.Fatalf("handle still resolves")
	}
	if _, ok := tr.HandleOf(id(1)); ok {
		t.Fatalf("identity still resolves")
	}
	if len(tr.Bucket(Kinematic)) != 0 {
		t.Fatalf("bucket not cleared")
	}
	if _, err := tr.StopTracking(id(1)); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
}

type countingListener struct{ detached int }

func (l *countingListener) Detach() { l.detached++ }

func TestConstraintsBlockStopTrackingUntilRemoved(t *testing.T) {
	testlog.Start(t)
	tr := New()
	_ = tr.Add(id(1), 1, Dynamic)
	_ = tr.Add(id(2), 2, Dynamic)
	cid := engine.ConstraintID(handle.Ref{Index: 0, Gen: 1})
	if err := tr.AddConstraint(10, Constraint{ID: cid, BodyA: 1, BodyB: 2}); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	if err := tr.AddConstraint(11, Constraint{BodyA: 1, BodyB: 99}); !errors.Is(err, ErrEndpointAbsent) {
		t.Fatalf("expected ErrEndpointAbsent, got %v", err)
	}
	if deps := tr.Dependents(2); len(deps) != 1 || deps[0] != 10 {
		t.Fatalf("unexpected dependents: %v", deps)
	}
	if _, err := tr.StopTracking(id(1)); !errors.Is(err, ErrHasDependents) {
		t.Fatalf("expected ErrHasDependents, got %v", err)
	}
	if h, ok := tr.ConstraintHandle(cid); !ok || h != 10 {
		t.Fatalf("ConstraintHandle: ok=%v h=%d", ok, h)
	}

	first := &countingListener{}
	second := &countingListener{}
	_ = tr.AttachListener(10, first)
	_ = tr.AttachListener(10, second)
	if first.detached != 1 {
		t.Fatalf("replacing a listener must detach the old one")
	}
	if _, ok := tr.RemoveConstraint(10); !ok {
		t.Fatalf("remove constraint failed")
	}
	if second.detached != 1 {
		t.Fatalf("removing a constraint must detach its listener")
	}
	if _, ok := tr.RemoveConstraint(10); ok {
		t.Fatalf("second remove reported success")
	}
	if len(tr.Dependents(1)) != 0 {
		t.Fatalf("dependents not cleared")
	}
	if _, err := tr.StopTracking(id(1)); err != nil {
		t.Fatalf("stop tracking after unwind: %v", err)
	}
}
