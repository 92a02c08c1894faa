// Package engine is the boundary to the simulation engine. The bridge only
// talks to it through generation-tagged native identities.
package engine

import (
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
)

var (
	ErrBodyNotFound       = errors.New("engine: body not found")
	ErrConstraintNotFound = errors.New("engine: constraint not found")
	ErrBodyHasConstraints = errors.New("engine: body still has constraints")
	ErrInvalidSettings    = errors.New("engine: invalid settings")
)

// BodyID is a native body identity. It stops resolving once the body is destroyed.
type BodyID handle.Ref

func (id BodyID) String() string { return "body:" + handle.Ref(id).String() }

// ConstraintID is a native constraint identity.
type ConstraintID handle.Ref

func (id ConstraintID) String() string { return "constraint:" + handle.Ref(id).String() }

// ListenerID names an attached break listener.
type ListenerID uint64

type MotionType uint8

const (
	MotionStatic MotionType = iota
	MotionDynamic
	MotionKinematic
	MotionTypeCount
)

func (m MotionType) String() string {
	switch m {
	case MotionStatic:
		return "static"
	case MotionDynamic:
		return "dynamic"
	case MotionKinematic:
		return "kinematic"
	default:
		return fmt.Sprintf("motion(%d)", uint8(m))
	}
}

type BodyKind uint8

const (
	KindRigid BodyKind = iota
	KindCharacter
	BodyKindCount
)

type Shape uint8

const (
	ShapeBox Shape = iota
	ShapeSphere
	ShapeCapsule
	ShapePlane
	ShapeMesh
	ShapeCount
)

type ConstraintType uint8

const (
	ConstraintFixed ConstraintType = iota
	ConstraintDistance
	ConstraintPoint
	ConstraintTypeCount
)

// BodySettings describes a body to create.
type BodySettings struct {
	Kind           BodyKind
	Motion         MotionType
	Shape          Shape
	Position       geom.Vec3
	Rotation       geom.Quat
	LinearVelocity geom.Vec3
	Mass           float32
	GravityFactor  float32
	HalfExtents    geom.Vec3
	Radius         float32
	Plane          geom.Plane
	Group          int32
	Mask           uint16
	Mesh           []byte
}

// Validate checks enum ranges and the shape parameters the shape needs.
func (s BodySettings) Validate() error {
	if s.Kind >= BodyKindCount {
		return fmt.Errorf("%w: body kind %d", ErrInvalidSettings, s.Kind)
	}
	if s.Motion >= MotionTypeCount {
		return fmt.Errorf("%w: motion type %d", ErrInvalidSettings, s.Motion)
	}
	if s.Kind == KindCharacter && s.Motion == MotionStatic {
		return fmt.Errorf("%w: character bodies cannot be static", ErrInvalidSettings)
	}
	switch s.Shape {
	case ShapeBox:
	case ShapeSphere, ShapeCapsule:
		if s.Radius <= 0 {
			return fmt.Errorf("%w: shape needs a positive radius", ErrInvalidSettings)
		}
	case ShapePlane:
		if s.Motion != MotionStatic {
			return fmt.Errorf("%w: plane shapes must be static", ErrInvalidSettings)
		}
	case ShapeMesh:
		if len(s.Mesh) == 0 || len(s.Mesh)%12 != 0 {
			return fmt.Errorf("%w: mesh must be non-empty packed vec3 vertices", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: shape %d", ErrInvalidSettings, s.Shape)
	}
	if s.Mass < 0 {
		return fmt.Errorf("%w: negative mass", ErrInvalidSettings)
	}
	return nil
}

// BodyState is a snapshot of a body.
type BodyState struct {
	Kind            BodyKind
	Motion          MotionType
	Shape           Shape
	Position        geom.Vec3
	Rotation        geom.Quat
	LinearVelocity  geom.Vec3
	AngularVelocity geom.Vec3
	Mass            float32
	GravityFactor   float32
	Group           int32
	Mask            uint16
}

// ConstraintSettings joins two bodies. A zero BreakThreshold never breaks.
type ConstraintSettings struct {
	Type           ConstraintType
	BodyA          BodyID
	BodyB          BodyID
	BreakThreshold float32
}

// BreakFunc is called once when a constraint breaks during Step.
type BreakFunc func(ConstraintID)

// Engine is the native simulation API the bridge drives.
type Engine interface {
	CreateBody(BodySettings) (BodyID, error)
	DestroyBody(BodyID) error
	Body(BodyID) (BodyState, bool)
	IsActive(BodyID) bool

	SetPosition(BodyID, geom.Vec3) error
	SetRotation(BodyID, geom.Quat) error
	SetLinearVelocity(BodyID, geom.Vec3) error
	SetAngularVelocity(BodyID, geom.Vec3) error
	SetMotionType(BodyID, MotionType) error
	AddImpulse(BodyID, geom.Vec3) error
	SetGravityFactor(BodyID, float32) error

	CreateConstraint(ConstraintSettings) (ConstraintID, error)
	DestroyConstraint(ConstraintID) error
	SetConstraintEnabled(ConstraintID, bool) error
	SetBreakListener(ConstraintID, BreakFunc) (ListenerID, error)
	RemoveListener(ListenerID)

	Step(dt float32)
}
