package tracker

import (
	"fmt"
	"slices"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/handle"
)

// Listener is an attached engine callback that can be detached.
type Listener interface {
	Detach()
}

// ListenerFunc adapts a plain func to Listener.
type ListenerFunc func()

func (f ListenerFunc) Detach() { f() }

// Constraint joins two tracked bodies.
type Constraint struct {
	ID       engine.ConstraintID
	BodyA    handle.Handle
	BodyB    handle.Handle
	Listener Listener
}

// AddConstraint tracks c under h. Both endpoints must be tracked bodies.
func (t *Tracker) AddConstraint(h handle.Handle, c Constraint) error {
	if _, ok := t.constraints[h]; ok {
		return fmt.Errorf("%w: constraint %d", ErrHandleTracked, h)
	}
	a, okA := t.bodies[c.BodyA]
	b, okB := t.bodies[c.BodyB]
	if !okA || !okB {
		return fmt.Errorf("%w: %d-%d", ErrEndpointAbsent, c.BodyA, c.BodyB)
	}
	entry := c
	t.constraints[h] = &entry
	for _, end := range []*body{a, b} {
		if end.constraints == nil {
			end.constraints = make(map[handle.Handle]struct{})
		}
		end.constraints[h] = struct{}{}
	}
	return nil
}

func (t *Tracker) Constraint(h handle.Handle) (Constraint, bool) {
	c, ok := t.constraints[h]
	if !ok {
		return Constraint{}, false
	}
	return *c, true
}

// ConstraintHandle finds the handle a native constraint is tracked under.
func (t *Tracker) ConstraintHandle(id engine.ConstraintID) (handle.Handle, bool) {
	for h, c := range t.constraints {
		if c.ID == id {
			return h, true
		}
	}
	return handle.Invalid, false
}

// AttachListener sets the listener of constraint h, detaching any previous one.
func (t *Tracker) AttachListener(h handle.Handle, l Listener) error {
	c, ok := t.constraints[h]
	if !ok {
		return fmt.Errorf("%w: constraint %d", ErrNotTracked, h)
	}
	if c.Listener != nil {
		c.Listener.Detach()
	}
	c.Listener = l
	return nil
}

// RemoveConstraint detaches the listener and unregisters h from both
// endpoints. The native constraint is left to the caller.
func (t *Tracker) RemoveConstraint(h handle.Handle) (Constraint, bool) {
	c, ok := t.constraints[h]
	if !ok {
		return Constraint{}, false
	}
	if c.Listener != nil {
		c.Listener.Detach()
		c.Listener = nil
	}
	for _, end := range []handle.Handle{c.BodyA, c.BodyB} {
		if b, ok := t.bodies[end]; ok {
			delete(b.constraints, h)
		}
	}
	delete(t.constraints, h)
	return *c, true
}

// Dependents lists the constraint handles referencing body h, ascending.
func (t *Tracker) Dependents(h handle.Handle) []handle.Handle {
	b, ok := t.bodies[h]
	if !ok || len(b.constraints) == 0 {
		return nil
	}
	out := make([]handle.Handle, 0, len(b.constraints))
	for c := range b.constraints {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (t *Tracker) ConstraintLen() int {
	return len(t.constraints)
}
