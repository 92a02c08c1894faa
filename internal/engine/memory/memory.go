// Package memory is an in-process reference engine. It integrates motion and
// tracks constraint breakage but performs no collision detection or
// constraint solving.
package memory

import (
	"fmt"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/rs/zerolog"
)

type Config struct {
	Gravity geom.Vec3
}

func DefaultConfig() Config {
	return Config{Gravity: geom.Vec3{Y: -9.81}}
}

type body struct {
	state       engine.BodyState
	constraints int
}

type constraint struct {
	settings engine.ConstraintSettings
	rest     float32
	enabled  bool
	broken   bool
	listener engine.ListenerID
}

type listener struct {
	constraint engine.ConstraintID
	fn         engine.BreakFunc
}

// Engine implements engine.Engine in memory. It is not safe for concurrent use.
type Engine struct {
	cfg          Config
	bodies       *handle.Slots[body]
	constraints  *handle.Slots[constraint]
	listeners    map[engine.ListenerID]listener
	nextListener engine.ListenerID
	log          zerolog.Logger
}

var _ engine.Engine = (*Engine)(nil)

func New(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		bodies:      handle.NewSlots[body](),
		constraints: handle.NewSlots[constraint](),
		listeners:   make(map[engine.ListenerID]listener),
		log:         logging.Logger("engine.memory"),
	}
}

func (e *Engine) CreateBody(s engine.BodySettings) (engine.BodyID, error) {
	if err := s.Validate(); err != nil {
		return engine.BodyID{}, err
	}
	st := engine.BodyState{
		Kind:           s.Kind,
		Motion:         s.Motion,
		Shape:          s.Shape,
		Position:       s.Position,
		Rotation:       s.Rotation,
		LinearVelocity: s.LinearVelocity,
		Mass:           s.Mass,
		GravityFactor:  s.GravityFactor,
		Group:          s.Group,
		Mask:           s.Mask,
	}
	if st.Rotation == (geom.Quat{}) {
		st.Rotation = geom.Identity()
	}
	if st.Mass == 0 {
		st.Mass = 1
	}
	if st.Motion == engine.MotionStatic {
		st.LinearVelocity = geom.Vec3{}
	}
	id := engine.BodyID(e.bodies.Insert(body{state: st}))
	e.log.Debug().Stringer("id", id).Stringer("motion", st.Motion).Msg("body created")
	return id, nil
}

func (e *Engine) DestroyBody(id engine.BodyID) error {
	b, ok := e.bodies.Get(handle.Ref(id))
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrBodyNotFound, id)
	}
	if b.constraints > 0 {
		return fmt.Errorf("%w: %s has %d", engine.ErrBodyHasConstraints, id, b.constraints)
	}
	e.bodies.Remove(handle.Ref(id))
	e.log.Debug().Stringer("id", id).Msg("body destroyed")
	return nil
}

func (e *Engine) Body(id engine.BodyID) (engine.BodyState, bool) {
	b, ok := e.bodies.Get(handle.Ref(id))
	return b.state, ok
}

func (e *Engine) IsActive(id engine.BodyID) bool {
	b, ok := e.bodies.Get(handle.Ref(id))
	if !ok {
		return false
	}
	return e.active(&b.state)
}

func (e *Engine) active(st *engine.BodyState) bool {
	switch st.Motion {
	case engine.MotionStatic:
		return false
	case engine.MotionDynamic:
		if st.GravityFactor != 0 && !e.cfg.Gravity.IsZero() {
			return true
		}
	}
	return !st.LinearVelocity.IsZero() || !st.AngularVelocity.IsZero()
}

func (e *Engine) SetPosition(id engine.BodyID, p geom.Vec3) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		st.Position = p
		return nil
	})
}

func (e *Engine) SetRotation(id engine.BodyID, q geom.Quat) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		st.Rotation = q.Normalize()
		return nil
	})
}

func (e *Engine) SetLinearVelocity(id engine.BodyID, v geom.Vec3) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		if st.Motion == engine.MotionStatic {
			return fmt.Errorf("%w: static body cannot move", engine.ErrInvalidSettings)
		}
		st.LinearVelocity = v
		return nil
	})
}

func (e *Engine) SetAngularVelocity(id engine.BodyID, v geom.Vec3) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		if st.Motion == engine.MotionStatic {
			return fmt.Errorf("%w: static body cannot rotate", engine.ErrInvalidSettings)
		}
		st.AngularVelocity = v
		return nil
	})
}

func (e *Engine) SetMotionType(id engine.BodyID, m engine.MotionType) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		if m >= engine.MotionTypeCount {
			return fmt.Errorf("%w: motion type %d", engine.ErrInvalidSettings, m)
		}
		if st.Kind == engine.KindCharacter && m == engine.MotionStatic {
			return fmt.Errorf("%w: character bodies cannot be static", engine.ErrInvalidSettings)
		}
		st.Motion = m
		if m == engine.MotionStatic {
			st.LinearVelocity = geom.Vec3{}
			st.AngularVelocity = geom.Vec3{}
		}
		return nil
	})
}

// AddImpulse changes velocity by impulse/mass. Non-dynamic bodies ignore it.
func (e *Engine) AddImpulse(id engine.BodyID, impulse geom.Vec3) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		if st.Motion != engine.MotionDynamic {
			return nil
		}
		st.LinearVelocity = st.LinearVelocity.Add(impulse.Scale(1 / st.Mass))
		return nil
	})
}

func (e *Engine) SetGravityFactor(id engine.BodyID, f float32) error {
	return e.mutate(id, func(st *engine.BodyState) error {
		st.GravityFactor = f
		return nil
	})
}

func (e *Engine) mutate(id engine.BodyID, fn func(*engine.BodyState) error) error {
	b, ok := e.bodies.Ptr(handle.Ref(id))
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrBodyNotFound, id)
	}
	return fn(&b.state)
}

func (e *Engine) CreateConstraint(s engine.ConstraintSettings) (engine.ConstraintID, error) {
	if s.Type >= engine.ConstraintTypeCount {
		return engine.ConstraintID{}, fmt.Errorf("%w: constraint type %d", engine.ErrInvalidSettings, s.Type)
	}
	if s.BodyA == s.BodyB {
		return engine.ConstraintID{}, fmt.Errorf("%w: constraint endpoints must differ", engine.ErrInvalidSettings)
	}
	a, okA := e.bodies.Ptr(handle.Ref(s.BodyA))
	if !okA {
		return engine.ConstraintID{}, fmt.Errorf("%w: %s", engine.ErrBodyNotFound, s.BodyA)
	}
	b, okB := e.bodies.Ptr(handle.Ref(s.BodyB))
	if !okB {
		return engine.ConstraintID{}, fmt.Errorf("%w: %s", engine.ErrBodyNotFound, s.BodyB)
	}
	rest := a.state.Position.Sub(b.state.Position).Length()
	a.constraints++
	b.constraints++
	id := engine.ConstraintID(e.constraints.Insert(constraint{settings: s, rest: rest, enabled: true}))
	e.log.Debug().Stringer("id", id).Stringer("a", s.BodyA).Stringer("b", s.BodyB).Msg("constraint created")
	return id, nil
}

func (e *Engine) DestroyConstraint(id engine.ConstraintID) error {
	c, ok := e.constraints.Get(handle.Ref(id))
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrConstraintNotFound, id)
	}
	if c.listener != 0 {
		delete(e.listeners, c.listener)
	}
	for _, end := range []engine.BodyID{c.settings.BodyA, c.settings.BodyB} {
		if b, ok := e.bodies.Ptr(handle.Ref(end)); ok {
			b.constraints--
		}
	}
	e.constraints.Remove(handle.Ref(id))
	e.log.Debug().Stringer("id", id).Msg("constraint destroyed")
	return nil
}

func (e *Engine) SetConstraintEnabled(id engine.ConstraintID, enabled bool) error {
	c, ok := e.constraints.Ptr(handle.Ref(id))
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrConstraintNotFound, id)
	}
	if c.broken && enabled {
		return fmt.Errorf("%w: broken constraint cannot be re-enabled", engine.ErrInvalidSettings)
	}
	c.enabled = enabled
	return nil
}

// SetBreakListener attaches fn, replacing any previous listener.
func (e *Engine) SetBreakListener(id engine.ConstraintID, fn engine.BreakFunc) (engine.ListenerID, error) {
	c, ok := e.constraints.Ptr(handle.Ref(id))
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrConstraintNotFound, id)
	}
	if c.listener != 0 {
		delete(e.listeners, c.listener)
	}
	e.nextListener++
	lid := e.nextListener
	e.listeners[lid] = listener{constraint: id, fn: fn}
	c.listener = lid
	return lid, nil
}

func (e *Engine) RemoveListener(id engine.ListenerID) {
	l, ok := e.listeners[id]
	if !ok {
		return
	}
	delete(e.listeners, id)
	if c, ok := e.constraints.Ptr(handle.Ref(l.constraint)); ok && c.listener == id {
		c.listener = 0
	}
}

// Listeners is the number of attached break listeners.
func (e *Engine) Listeners() int {
	return len(e.listeners)
}

func (e *Engine) Step(dt float32) {
	if dt <= 0 {
		return
	}
	e.bodies.Each(func(_ handle.Ref, b *body) bool {
		st := &b.state
		switch st.Motion {
		case engine.MotionStatic:
			return true
		case engine.MotionDynamic:
			st.LinearVelocity = st.LinearVelocity.Add(e.cfg.Gravity.Scale(st.GravityFactor * dt))
		}
		st.Position = st.Position.Add(st.LinearVelocity.Scale(dt))
		st.Rotation = st.Rotation.Integrate(st.AngularVelocity, dt)
		return true
	})

	var broken []listener
	e.constraints.Each(func(ref handle.Ref, c *constraint) bool {
		if !c.enabled || c.broken || c.settings.BreakThreshold <= 0 {
			return true
		}
		a, okA := e.bodies.Get(handle.Ref(c.settings.BodyA))
		b, okB := e.bodies.Get(handle.Ref(c.settings.BodyB))
		if !okA || !okB {
			return true
		}
		stretch := a.state.Position.Sub(b.state.Position).Length() - c.rest
		if stretch < 0 {
			stretch = -stretch
		}
		if stretch <= c.settings.BreakThreshold {
			return true
		}
		c.broken = true
		c.enabled = false
		id := engine.ConstraintID(ref)
		e.log.Debug().Stringer("id", id).Float32("stretch", stretch).Msg("constraint broke")
		if l, ok := e.listeners[c.listener]; ok {
			broken = append(broken, l)
		}
		return true
	})
	for _, l := range broken {
		l.fn(l.constraint)
	}
}
