package host

import (
	"fmt"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/protocol/schema"
)

// BodySpec describes a body to create. Nil optional fields are left to the
// backend defaults.
type BodySpec struct {
	Kind     engine.BodyKind
	Motion   engine.MotionType
	Shape    engine.Shape
	Position geom.Vec3

	Rotation       *geom.Quat
	LinearVelocity *geom.Vec3
	Mass           *float32
	GravityFactor  *float32
	HalfExtents    *geom.Vec3
	Radius         *float32
	Plane          *geom.Plane
	Group          *int32
	Mask           *uint16
	// Mesh travels by reference in the side channel and must stay unchanged
	// until the batch is drained.
	Mesh []byte
}

// ConstraintSpec joins two live bodies.
type ConstraintSpec struct {
	Type           engine.ConstraintType
	BodyA          handle.Handle
	BodyB          handle.Handle
	BreakThreshold *float32
}

func staleBody(b handle.Handle) error {
	return &protocol.StaleHandleError{Kind: "body", Handle: uint32(b)}
}

func staleConstraint(c handle.Handle) error {
	return &protocol.StaleHandleError{Kind: "constraint", Handle: uint32(c)}
}

func (h *Host) encode(cmd schema.Command, values ...channel.Value) error {
	if err := schema.Encode(h.out, cmd, values...); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	return nil
}

// CreateBody allocates a handle and writes the create frame. The handle is
// released again if the frame cannot be written.
func (h *Host) CreateBody(spec BodySpec) (handle.Handle, error) {
	b := h.bodies.Add(bodyRecord{})
	err := h.encode(schema.CreateBody,
		schema.U32(uint32(b)),
		schema.U8(uint8(spec.Kind)),
		schema.U8(uint8(spec.Motion)),
		schema.U8(uint8(spec.Shape)),
		schema.Vec3(spec.Position),
		schema.OptVec4(spec.Rotation),
		schema.OptVec3(spec.LinearVelocity),
		schema.OptF32(spec.Mass),
		schema.OptF32(spec.GravityFactor),
		schema.OptVec3(spec.HalfExtents),
		schema.OptF32(spec.Radius),
		schema.OptPlane(spec.Plane),
		schema.OptI32(spec.Group),
		schema.OptU16(spec.Mask),
		schema.Blob(spec.Mesh),
	)
	if err != nil {
		h.bodies.Free(b)
		return handle.Invalid, err
	}
	return b, nil
}

// CreateConstraint allocates a constraint handle joining two live bodies.
func (h *Host) CreateConstraint(spec ConstraintSpec) (handle.Handle, error) {
	if !h.BodyLive(spec.BodyA) {
		return handle.Invalid, staleBody(spec.BodyA)
	}
	if !h.BodyLive(spec.BodyB) {
		return handle.Invalid, staleBody(spec.BodyB)
	}
	c := h.constraints.Add(constraintRecord{bodyA: spec.BodyA, bodyB: spec.BodyB})
	err := h.encode(schema.CreateConstraint,
		schema.U32(uint32(c)),
		schema.U32(uint32(spec.BodyA)),
		schema.U32(uint32(spec.BodyB)),
		schema.U8(uint8(spec.Type)),
		schema.OptF32(spec.BreakThreshold),
	)
	if err != nil {
		h.constraints.Free(c)
		return handle.Invalid, err
	}
	for _, end := range []handle.Handle{spec.BodyA, spec.BodyB} {
		r, _ := h.bodies.Get(end)
		if r.constraints == nil {
			r.constraints = make(map[handle.Handle]struct{})
		}
		r.constraints[c] = struct{}{}
		h.bodies.Set(end, r)
	}
	return c, nil
}

func (h *Host) bodyVec3(cmd schema.Command, b handle.Handle, v geom.Vec3) error {
	if !h.BodyLive(b) {
		return staleBody(b)
	}
	return h.encode(cmd, schema.U32(uint32(b)), schema.Vec3(v))
}

func (h *Host) SetPosition(b handle.Handle, p geom.Vec3) error {
	return h.bodyVec3(schema.SetPosition, b, p)
}

func (h *Host) SetLinearVelocity(b handle.Handle, v geom.Vec3) error {
	return h.bodyVec3(schema.SetLinearVelocity, b, v)
}

func (h *Host) SetAngularVelocity(b handle.Handle, v geom.Vec3) error {
	return h.bodyVec3(schema.SetAngularVelocity, b, v)
}

func (h *Host) AddImpulse(b handle.Handle, impulse geom.Vec3) error {
	return h.bodyVec3(schema.AddImpulse, b, impulse)
}

func (h *Host) SetRotation(b handle.Handle, q geom.Quat) error {
	if !h.BodyLive(b) {
		return staleBody(b)
	}
	return h.encode(schema.SetRotation, schema.U32(uint32(b)), schema.Vec4(q))
}

func (h *Host) SetMotionType(b handle.Handle, m engine.MotionType) error {
	if !h.BodyLive(b) {
		return staleBody(b)
	}
	return h.encode(schema.SetMotionType, schema.U32(uint32(b)), schema.U8(uint8(m)))
}

func (h *Host) SetGravityFactor(b handle.Handle, factor float32) error {
	if !h.BodyLive(b) {
		return staleBody(b)
	}
	return h.encode(schema.SetGravityFactor, schema.U32(uint32(b)), schema.F32(factor))
}

func (h *Host) SetConstraintEnabled(c handle.Handle, enabled bool) error {
	if !h.ConstraintLive(c) {
		return staleConstraint(c)
	}
	return h.encode(schema.SetConstraintEnabled, schema.U32(uint32(c)), schema.Bool(enabled))
}

// QueryTransform requests the pose of b and returns the request id the
// answer is keyed by.
func (h *Host) QueryTransform(b handle.Handle) (uint32, error) {
	return h.query(schema.GetTransform, b)
}

// QueryLinearVelocity requests the velocity of b.
func (h *Host) QueryLinearVelocity(b handle.Handle) (uint32, error) {
	return h.query(schema.GetLinearVelocity, b)
}

func (h *Host) query(cmd schema.Command, b handle.Handle) (uint32, error) {
	if !h.BodyLive(b) {
		return 0, staleBody(b)
	}
	h.nextRequest++
	req := h.nextRequest
	if err := h.encode(cmd, schema.U32(req), schema.U32(uint32(b))); err != nil {
		return 0, err
	}
	return req, nil
}

// DestroyBody writes the destroy frame and retires b together with every
// constraint that references it. Destroying a dead handle is a no-op.
func (h *Host) DestroyBody(b handle.Handle) error {
	r, ok := h.bodies.Get(b)
	if !ok || r.retired {
		return nil
	}
	if err := h.encode(schema.DestroyBody, schema.U32(uint32(b))); err != nil {
		return err
	}
	for c := range r.constraints {
		h.retireConstraint(c)
	}
	r.retired = true
	r.constraints = nil
	h.bodies.Set(b, r)
	h.retiredBodies = append(h.retiredBodies, b)
	delete(h.transforms, b)
	return nil
}

// DestroyConstraint writes the destroy frame and retires c. Destroying a
// dead handle is a no-op.
func (h *Host) DestroyConstraint(c handle.Handle) error {
	if !h.ConstraintLive(c) {
		return nil
	}
	if err := h.encode(schema.DestroyConstraint, schema.U32(uint32(c))); err != nil {
		return err
	}
	h.retireConstraint(c)
	return nil
}

// retireConstraint marks c dead and detaches it from its endpoints. The
// handle is freed on the next Flush.
func (h *Host) retireConstraint(c handle.Handle) {
	r, ok := h.constraints.Get(c)
	if !ok || r.retired {
		return
	}
	r.retired = true
	h.constraints.Set(c, r)
	for _, end := range []handle.Handle{r.bodyA, r.bodyB} {
		if br, ok := h.bodies.Get(end); ok {
			delete(br.constraints, c)
		}
	}
	h.retiredConstraints = append(h.retiredConstraints, c)
}
