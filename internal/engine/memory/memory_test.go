package memory

import (
	"errors"
	"testing"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func dynamicBox(pos geom.Vec3) engine.BodySettings {
	return engine.BodySettings{
		Kind:          engine.KindRigid,
		Motion:        engine.MotionDynamic,
		Shape:         engine.ShapeBox,
		Position:      pos,
		GravityFactor: 1,
		HalfExtents:   geom.Vec3{X: 0.5, Y: 0.5, Z: 0.5},
	}
}

func TestDynamicBodyFallsUnderGravity(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	id, err := e.CreateBody(dynamicBox(geom.Vec3{Y: 10}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !e.IsActive(id) {
		t.Fatalf("expected dynamic body with gravity to be active")
	}
	e.Step(0.1)
	st, ok := e.Body(id)
	if !ok {
		t.Fatalf("body vanished")
	}
	if st.Position.Y >= 10 || st.LinearVelocity.Y >= 0 {
		t.Fatalf("expected body to fall: %+v", st)
	}
	if st.Rotation != geom.Identity() {
		t.Fatalf("expected identity rotation default, got %+v", st.Rotation)
	}
}

func TestKinematicMovesWithoutGravity(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	s := dynamicBox(geom.Vec3{})
	s.Motion = engine.MotionKinematic
	s.LinearVelocity = geom.Vec3{X: 2}
	id, err := e.CreateBody(s)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e.Step(0.5)
	st, _ := e.Body(id)
	if st.Position != (geom.Vec3{X: 1}) {
		t.Fatalf("unexpected kinematic position: %+v", st.Position)
	}
}

func TestStaticBodyIsNeverActive(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	s := engine.BodySettings{Motion: engine.MotionStatic, Shape: engine.ShapePlane, Plane: geom.Plane{Normal: geom.Vec3{Y: 1}}}
	id, err := e.CreateBody(s)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.IsActive(id) {
		t.Fatalf("static body reported active")
	}
	if err := e.SetLinearVelocity(id, geom.Vec3{X: 1}); !errors.Is(err, engine.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestCreateBodyValidatesSettings(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	bad := []engine.BodySettings{
		{Motion: engine.MotionTypeCount},
		{Motion: engine.MotionDynamic, Shape: engine.ShapeSphere},
		{Motion: engine.MotionDynamic, Shape: engine.ShapeMesh, Mesh: []byte{1, 2, 3}},
		{Kind: engine.KindCharacter, Motion: engine.MotionStatic},
		{Motion: engine.MotionDynamic, Shape: engine.ShapePlane},
	}
	for i, s := range bad {
		if _, err := e.CreateBody(s); !errors.Is(err, engine.ErrInvalidSettings) {
			t.Fatalf("case %d: expected ErrInvalidSettings, got %v", i, err)
		}
	}
}

func TestDestroyedBodyIdentityGoesStale(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	old, _ := e.CreateBody(dynamicBox(geom.Vec3{}))
	if err := e.DestroyBody(old); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	fresh, _ := e.CreateBody(dynamicBox(geom.Vec3{X: 5}))
	if _, ok := e.Body(old); ok {
		t.Fatalf("stale identity resolved after slot reuse (fresh=%s)", fresh)
	}
	if err := e.SetPosition(old, geom.Vec3{}); !errors.Is(err, engine.ErrBodyNotFound) {
		t.Fatalf("expected ErrBodyNotFound, got %v", err)
	}
}

func TestImpulseScalesByInverseMass(t *testing.T) {
	testlog.Start(t)
	e := New(Config{})
	s := dynamicBox(geom.Vec3{})
	s.Mass = 2
	id, _ := e.CreateBody(s)
	if err := e.AddImpulse(id, geom.Vec3{X: 4}); err != nil {
		t.Fatalf("impulse: %v", err)
	}
	st, _ := e.Body(id)
	if st.LinearVelocity != (geom.Vec3{X: 2}) {
		t.Fatalf("unexpected velocity: %+v", st.LinearVelocity)
	}
}

func TestBodyWithConstraintCannotBeDestroyed(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	a, _ := e.CreateBody(dynamicBox(geom.Vec3{}))
	b, _ := e.CreateBody(dynamicBox(geom.Vec3{X: 1}))
	cid, err := e.CreateConstraint(engine.ConstraintSettings{Type: engine.ConstraintDistance, BodyA: a, BodyB: b})
	if err != nil {
		t.Fatalf("create constraint: %v", err)
	}
	if err := e.DestroyBody(a); !errors.Is(err, engine.ErrBodyHasConstraints) {
		t.Fatalf("expected ErrBodyHasConstraints, got %v", err)
	}
	if err := e.DestroyConstraint(cid); err != nil {
		t.Fatalf("destroy constraint: %v", err)
	}
	if err := e.DestroyBody(a); err != nil {
		t.Fatalf("destroy body after unwind: %v", err)
	}
}

func TestConstraintBreakNotifiesListenerOnce(t *testing.T) {
	testlog.Start(t)
	e := New(Config{})
	a, _ := e.CreateBody(dynamicBox(geom.Vec3{}))
	bs := dynamicBox(geom.Vec3{X: 1})
	bs.LinearVelocity = geom.Vec3{X: 10}
	b, _ := e.CreateBody(bs)
	cid, _ := e.CreateConstraint(engine.ConstraintSettings{Type: engine.ConstraintDistance, BodyA: a, BodyB: b, BreakThreshold: 0.5})

	calls := 0
	if _, err := e.SetBreakListener(cid, func(id engine.ConstraintID) {
		if id != cid {
			t.Fatalf("unexpected constraint id %s", id)
		}
		calls++
	}); err != nil {
		t.Fatalf("set listener: %v", err)
	}
	e.Step(0.1)
	e.Step(0.1)
	if calls != 1 {
		t.Fatalf("expected one break notification, got %d", calls)
	}
	if err := e.SetConstraintEnabled(cid, true); !errors.Is(err, engine.ErrInvalidSettings) {
		t.Fatalf("expected broken constraint to stay disabled, got %v", err)
	}
}

func TestRemoveListenerDetaches(t *testing.T) {
	testlog.Start(t)
	e := New(DefaultConfig())
	a, _ := e.CreateBody(dynamicBox(geom.Vec3{}))
	b, _ := e.CreateBody(dynamicBox(geom.Vec3{X: 1}))
	cid, _ := e.CreateConstraint(engine.ConstraintSettings{BodyA: a, BodyB: b, BreakThreshold: 1})
	lid, _ := e.SetBreakListener(cid, func(engine.ConstraintID) {})
	if e.Listeners() != 1 {
		t.Fatalf("expected one listener")
	}
	e.RemoveListener(lid)
	e.RemoveListener(lid)
	if e.Listeners() != 0 {
		t.Fatalf("expected listener removed")
	}
}
