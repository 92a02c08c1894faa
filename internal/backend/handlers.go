package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/tracker"
)

func (b *Backend) register() error {
	routes := []struct {
		op  schema.Operator
		cmd schema.Command
		h   dispatch.Handler
	}{
		{schema.Creator, schema.CreateBody, b.createBody},
		{schema.Creator, schema.CreateConstraint, b.createConstraint},

		{schema.Modifier, schema.SetPosition, b.bodyVec3(b.engine.SetPosition, schema.FieldPosition)},
		{schema.Modifier, schema.SetRotation, b.setRotation},
		{schema.Modifier, schema.SetLinearVelocity, b.bodyVec3(b.engine.SetLinearVelocity, schema.FieldVelocity)},
		{schema.Modifier, schema.SetAngularVelocity, b.bodyVec3(b.engine.SetAngularVelocity, schema.FieldVelocity)},
		{schema.Modifier, schema.SetMotionType, b.setMotionType},
		{schema.Modifier, schema.AddImpulse, b.bodyVec3(b.engine.AddImpulse, schema.FieldImpulse)},
		{schema.Modifier, schema.SetGravityFactor, b.setGravityFactor},
		{schema.Modifier, schema.SetConstraintEnabled, b.setConstraintEnabled},

		{schema.Querier, schema.GetTransform, b.getTransform},
		{schema.Querier, schema.GetLinearVelocity, b.getLinearVelocity},

		{schema.Cleaner, schema.DestroyBody, b.destroyBody},
		{schema.Cleaner, schema.DestroyConstraint, b.destroyConstraint},
	}
	for _, r := range routes {
		if err := b.dispatcher.Register(r.op, r.cmd, r.h); err != nil {
			return fmt.Errorf("backend: register %s: %w", r.cmd, err)
		}
	}
	return nil
}

func frameHandle(f schema.Frame, name string) handle.Handle {
	return handle.Handle(f.U32(name))
}

// body resolves a body handle or returns a stale handle error.
func (b *Backend) body(h handle.Handle) (engine.BodyID, error) {
	id, ok := b.tracker.ByHandle(h)
	if !ok {
		return engine.BodyID{}, &protocol.StaleHandleError{Kind: "body", Handle: uint32(h)}
	}
	return id, nil
}

func (b *Backend) createBody(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	if _, ok := b.tracker.ByHandle(h); ok {
		return fmt.Errorf("backend: create body: %w: %d", tracker.ErrHandleTracked, h)
	}
	s := engine.BodySettings{
		Kind:          engine.BodyKind(f.U8(schema.FieldKind)),
		Motion:        engine.MotionType(f.U8(schema.FieldMotion)),
		Shape:         engine.Shape(f.U8(schema.FieldShape)),
		Position:      f.Vec3(schema.FieldPosition),
		Rotation:      geom.Identity(),
		GravityFactor: 1,
		Mask:          0xFFFF,
	}
	if f.Has(schema.FieldRotation) {
		s.Rotation = f.Vec4(schema.FieldRotation)
	}
	if f.Has(schema.FieldLinearVelocity) {
		s.LinearVelocity = f.Vec3(schema.FieldLinearVelocity)
	}
	if f.Has(schema.FieldMass) {
		s.Mass = f.F32(schema.FieldMass)
	}
	if f.Has(schema.FieldGravityFactor) {
		s.GravityFactor = f.F32(schema.FieldGravityFactor)
	}
	if f.Has(schema.FieldHalfExtents) {
		s.HalfExtents = f.Vec3(schema.FieldHalfExtents)
	}
	if f.Has(schema.FieldRadius) {
		s.Radius = f.F32(schema.FieldRadius)
	}
	if f.Has(schema.FieldPlane) {
		s.Plane = f.Plane(schema.FieldPlane)
	}
	if f.Has(schema.FieldGroup) {
		s.Group = f.I32(schema.FieldGroup)
	}
	if f.Has(schema.FieldMask) {
		s.Mask = f.U16(schema.FieldMask)
	}
	if f.Has(schema.FieldMesh) {
		s.Mesh = f.Blob(schema.FieldMesh)
	}

	id, err := b.engine.CreateBody(s)
	if err != nil {
		return fmt.Errorf("backend: create body %d: %w", h, err)
	}
	if err := b.tracker.Add(id, h, tracker.Classify(s.Kind, s.Motion)); err != nil {
		_ = b.engine.DestroyBody(id)
		return fmt.Errorf("backend: track body %d: %w", h, err)
	}
	b.log.Debug().Uint32("handle", uint32(h)).Str("id", id.String()).Str("motion", s.Motion.String()).Msg("body created")
	return nil
}

func (b *Backend) createConstraint(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	if _, ok := b.tracker.Constraint(h); ok {
		return fmt.Errorf("backend: create constraint: %w: %d", tracker.ErrHandleTracked, h)
	}
	ha, hb := frameHandle(f, schema.FieldBodyA), frameHandle(f, schema.FieldBodyB)
	a, err := b.body(ha)
	if err != nil {
		return err
	}
	bb, err := b.body(hb)
	if err != nil {
		return err
	}
	settings := engine.ConstraintSettings{
		Type:  engine.ConstraintType(f.U8(schema.FieldType)),
		BodyA: a,
		BodyB: bb,
	}
	if f.Has(schema.FieldBreakThreshold) {
		settings.BreakThreshold = f.F32(schema.FieldBreakThreshold)
	}
	cid, err := b.engine.CreateConstraint(settings)
	if err != nil {
		return fmt.Errorf("backend: create constraint %d: %w", h, err)
	}
	if err := b.tracker.AddConstraint(h, tracker.Constraint{ID: cid, BodyA: ha, BodyB: hb}); err != nil {
		_ = b.engine.DestroyConstraint(cid)
		return fmt.Errorf("backend: track constraint %d: %w", h, err)
	}
	if settings.BreakThreshold > 0 {
		lid, err := b.engine.SetBreakListener(cid, func(engine.ConstraintID) {
			b.broken = append(b.broken, h)
		})
		if err != nil {
			b.unwindConstraint(h)
			return fmt.Errorf("backend: break listener %d: %w", h, err)
		}
		_ = b.tracker.AttachListener(h, tracker.ListenerFunc(func() { b.engine.RemoveListener(lid) }))
	}
	return nil
}

func (b *Backend) bodyVec3(set func(engine.BodyID, geom.Vec3) error, field string) dispatch.Handler {
	return func(_ context.Context, f schema.Frame) error {
		id, err := b.body(frameHandle(f, schema.FieldHandle))
		if err != nil {
			return err
		}
		return set(id, f.Vec3(field))
	}
}

func (b *Backend) setRotation(_ context.Context, f schema.Frame) error {
	id, err := b.body(frameHandle(f, schema.FieldHandle))
	if err != nil {
		return err
	}
	return b.engine.SetRotation(id, f.Vec4(schema.FieldRotation))
}

func (b *Backend) setGravityFactor(_ context.Context, f schema.Frame) error {
	id, err := b.body(frameHandle(f, schema.FieldHandle))
	if err != nil {
		return err
	}
	return b.engine.SetGravityFactor(id, f.F32(schema.FieldFactor))
}

// setMotionType re-buckets the body after the engine accepts the change.
func (b *Backend) setMotionType(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	id, err := b.body(h)
	if err != nil {
		return err
	}
	motion := engine.MotionType(f.U8(schema.FieldMotion))
	if err := b.engine.SetMotionType(id, motion); err != nil {
		return err
	}
	st, ok := b.engine.Body(id)
	if !ok {
		return fmt.Errorf("backend: %w: %s", engine.ErrBodyNotFound, id)
	}
	return b.tracker.Update(id, h, tracker.Classify(st.Kind, motion))
}

func (b *Backend) setConstraintEnabled(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	c, ok := b.tracker.Constraint(h)
	if !ok {
		return &protocol.StaleHandleError{Kind: "constraint", Handle: uint32(h)}
	}
	return b.engine.SetConstraintEnabled(c.ID, f.Bool(schema.FieldEnabled))
}

func (b *Backend) getTransform(_ context.Context, f schema.Frame) error {
	req := f.U32(schema.FieldRequest)
	h := f.U32(schema.FieldHandle)
	st, ok := b.queryBody(handle.Handle(h))
	if !ok {
		b.report(schema.ReportQueryMiss, schema.U32(req), schema.U32(h))
		return nil
	}
	b.report(schema.ReportQueryTransform, schema.U32(req), schema.U32(h), schema.Vec3(st.Position), schema.Vec4(st.Rotation))
	return nil
}

func (b *Backend) getLinearVelocity(_ context.Context, f schema.Frame) error {
	req := f.U32(schema.FieldRequest)
	h := f.U32(schema.FieldHandle)
	st, ok := b.queryBody(handle.Handle(h))
	if !ok {
		b.report(schema.ReportQueryMiss, schema.U32(req), schema.U32(h))
		return nil
	}
	b.report(schema.ReportVelocity, schema.U32(req), schema.U32(h), schema.Vec3(st.LinearVelocity))
	return nil
}

func (b *Backend) queryBody(h handle.Handle) (engine.BodyState, bool) {
	id, ok := b.tracker.ByHandle(h)
	if !ok {
		return engine.BodyState{}, false
	}
	return b.engine.Body(id)
}

// destroyBody unwinds dependent constraints, stops tracking, then destroys
// the native body. An unknown handle is a no-op.
func (b *Backend) destroyBody(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	id, ok := b.tracker.ByHandle(h)
	if !ok {
		b.log.Debug().Uint32("handle", uint32(h)).Msg("destroy of unknown body ignored")
		return nil
	}
	for _, ch := range b.tracker.Dependents(h) {
		b.unwindConstraint(ch)
	}
	if _, err := b.tracker.StopTracking(id); err != nil {
		return fmt.Errorf("backend: destroy body %d: %w", h, err)
	}
	if err := b.engine.DestroyBody(id); err != nil && !errors.Is(err, engine.ErrBodyNotFound) {
		return fmt.Errorf("backend: destroy body %d: %w", h, err)
	}
	return nil
}

func (b *Backend) destroyConstraint(_ context.Context, f schema.Frame) error {
	h := frameHandle(f, schema.FieldHandle)
	if _, ok := b.tracker.Constraint(h); !ok {
		return nil
	}
	b.unwindConstraint(h)
	return nil
}

// unwindConstraint detaches the listener, forgets the constraint and destroys
// it natively.
func (b *Backend) unwindConstraint(h handle.Handle) {
	c, ok := b.tracker.RemoveConstraint(h)
	if !ok {
		return
	}
	if err := b.engine.DestroyConstraint(c.ID); err != nil && !errors.Is(err, engine.ErrConstraintNotFound) {
		b.log.Warn().Err(err).Uint32("handle", uint32(h)).Msg("destroy constraint failed")
	}
}
