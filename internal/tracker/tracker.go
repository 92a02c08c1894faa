// Package tracker maps native engine identities to the handles the producer
// side knows them by, and keeps every tracked body in exactly one update
// bucket. A Tracker is owned by one consumer and is not safe for concurrent use.
package tracker

import (
	"errors"
	"fmt"
	"slices"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/handle"
)

var (
	ErrHandleTracked  = errors.New("tracker: handle already tracked")
	ErrIdentityTaken  = errors.New("tracker: native identity already tracked")
	ErrNotTracked     = errors.New("tracker: not tracked")
	ErrHasDependents  = errors.New("tracker: body still has constraints")
	ErrInvalidBucket  = errors.New("tracker: invalid category")
	ErrEndpointAbsent = errors.New("tracker: constraint endpoint not tracked")
)

// Category selects the per-tick update bucket. Static bodies use None and are
// tracked without a bucket.
type Category uint8

const (
	None Category = iota
	Dynamic
	Kinematic
	Character
	categoryCount
)

// Buckets lists the bucketed categories in report order.
var Buckets = []Category{Dynamic, Kinematic, Character}

func (c Category) String() string {
	switch c {
	case None:
		return "none"
	case Dynamic:
		return "dynamic"
	case Kinematic:
		return "kinematic"
	case Character:
		return "character"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

func (c Category) valid() bool { return c < categoryCount }

// Classify derives the bucket for a body. Character bodies always land in
// the Character bucket; other kinds follow their motion type.
func Classify(kind engine.BodyKind, motion engine.MotionType) Category {
	if kind == engine.KindCharacter {
		return Character
	}
	switch motion {
	case engine.MotionDynamic:
		return Dynamic
	case engine.MotionKinematic:
		return Kinematic
	default:
		return None
	}
}

type body struct {
	id       engine.BodyID
	category Category
	// constraints lists dependent constraint handles.
	constraints map[handle.Handle]struct{}
}

// Tracker is the bidirectional identity registry.
type Tracker struct {
	bodies      map[handle.Handle]*body
	handles     map[engine.BodyID]handle.Handle
	buckets     [categoryCount]map[handle.Handle]struct{}
	constraints map[handle.Handle]*Constraint
}

func New() *Tracker {
	t := &Tracker{
		bodies:      make(map[handle.Handle]*body),
		handles:     make(map[engine.BodyID]handle.Handle),
		constraints: make(map[handle.Handle]*Constraint),
	}
	for _, c := range Buckets {
		t.buckets[c] = make(map[handle.Handle]struct{})
	}
	return t
}

// Add starts tracking id under h in the bucket for cat.
func (t *Tracker) Add(id engine.BodyID, h handle.Handle, cat Category) error {
	if !cat.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBucket, cat)
	}
	if _, ok := t.bodies[h]; ok {
		return fmt.Errorf("%w: %d", ErrHandleTracked, h)
	}
	if _, ok := t.handles[id]; ok {
		return fmt.Errorf("%w: %s", ErrIdentityTaken, id)
	}
	t.bodies[h] = &body{id: id, category: cat}
	t.handles[id] = h
	if cat != None {
		t.buckets[cat][h] = struct{}{}
	}
	return nil
}

// ByHandle resolves the native identity tracked under h.
func (t *Tracker) ByHandle(h handle.Handle) (engine.BodyID, bool) {
	b, ok := t.bodies[h]
	if !ok {
		return engine.BodyID{}, false
	}
	return b.id, true
}

// HandleOf resolves the handle for a native identity.
func (t *Tracker) HandleOf(id engine.BodyID) (handle.Handle, bool) {
	h, ok := t.handles[id]
	return h, ok
}

func (t *Tracker) CategoryOf(h handle.Handle) (Category, bool) {
	b, ok := t.bodies[h]
	if !ok {
		return None, false
	}
	return b.category, true
}

// Update moves a tracked body to the bucket for cat. id must be the identity
// tracked under h. The move is a single step: the body is never in two
// buckets nor, for a bucketed category, in none.
func (t *Tracker) Update(id engine.BodyID, h handle.Handle, cat Category) error {
	if !cat.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBucket, cat)
	}
	b, ok := t.bodies[h]
	if !ok || b.id != id {
		return fmt.Errorf("%w: handle %d", ErrNotTracked, h)
	}
	if b.category == cat {
		return nil
	}
	if b.category != None {
		delete(t.buckets[b.category], h)
	}
	if cat != None {
		t.buckets[cat][h] = struct{}{}
	}
	b.category = cat
	return nil
}

// StopTracking forgets id without touching the engine. Dependent constraints
// must be removed first.
func (t *Tracker) StopTracking(id engine.BodyID) (handle.Handle, error) {
	h, ok := t.handles[id]
	if !ok {
		return handle.Invalid, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	b := t.bodies[h]
	if len(b.constraints) > 0 {
		return h, fmt.Errorf("%w: handle %d has %d", ErrHasDependents, h, len(b.constraints))
	}
	if b.category != None {
		delete(t.buckets[b.category], h)
	}
	delete(t.bodies, h)
	delete(t.handles, id)
	return h, nil
}

// Bucket returns the handles in cat in ascending order.
func (t *Tracker) Bucket(cat Category) []handle.Handle {
	if !cat.valid() || cat == None {
		return nil
	}
	out := make([]handle.Handle, 0, len(t.buckets[cat]))
	for h := range t.buckets[cat] {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// EachInBucket visits cat in ascending handle order until fn returns false.
func (t *Tracker) EachInBucket(cat Category, fn func(handle.Handle, engine.BodyID) bool) {
	for _, h := range t.Bucket(cat) {
		if !fn(h, t.bodies[h].id) {
			return
		}
	}
}

// Len is the number of tracked bodies.
func (t *Tracker) Len() int {
	return len(t.bodies)
}
