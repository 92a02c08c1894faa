package host

import (
	"context"
	"fmt"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/protocol/schema"
)

func (h *Host) registerReports() error {
	handlers := map[schema.Command]dispatch.Handler{
		schema.ReportTransform:        h.onTransform,
		schema.ReportQueryTransform:   h.onQueryTransform,
		schema.ReportVelocity:         h.onVelocity,
		schema.ReportConstraintBroken: h.onBroken,
		schema.ReportQueryMiss:        h.onQueryMiss,
	}
	for _, cmd := range schema.Commands(schema.Reporter) {
		fn, ok := handlers[cmd]
		if !ok {
			return fmt.Errorf("host: no report handler for %s", cmd)
		}
		if err := h.reports.Register(schema.Reporter, cmd, fn); err != nil {
			return fmt.Errorf("host: register %s: %w", cmd, err)
		}
	}
	return nil
}

// onTransform ignores poses for bodies destroyed after the batch was sent.
func (h *Host) onTransform(_ context.Context, f schema.Frame) error {
	b := handle.Handle(f.U32(schema.FieldHandle))
	if !h.BodyLive(b) {
		return nil
	}
	h.transforms[b] = Transform{
		Position: f.Vec3(schema.FieldPosition),
		Rotation: f.Vec4(schema.FieldRotation),
	}
	return nil
}

func (h *Host) onQueryTransform(_ context.Context, f schema.Frame) error {
	req := f.U32(schema.FieldRequest)
	h.queries[req] = QueryResult{
		Request:  req,
		Handle:   handle.Handle(f.U32(schema.FieldHandle)),
		Found:    true,
		Position: f.Vec3(schema.FieldPosition),
		Rotation: f.Vec4(schema.FieldRotation),
	}
	return nil
}

func (h *Host) onVelocity(_ context.Context, f schema.Frame) error {
	req := f.U32(schema.FieldRequest)
	h.queries[req] = QueryResult{
		Request:  req,
		Handle:   handle.Handle(f.U32(schema.FieldHandle)),
		Found:    true,
		Velocity: f.Vec3(schema.FieldVelocity),
	}
	return nil
}

func (h *Host) onQueryMiss(_ context.Context, f schema.Frame) error {
	req := f.U32(schema.FieldRequest)
	h.queries[req] = QueryResult{Request: req, Handle: handle.Handle(f.U32(schema.FieldHandle))}
	return nil
}

// onBroken retires a constraint the backend already tore down.
func (h *Host) onBroken(_ context.Context, f schema.Frame) error {
	c := handle.Handle(f.U32(schema.FieldHandle))
	if !h.ConstraintLive(c) {
		return nil
	}
	h.retireConstraint(c)
	h.broken = append(h.broken, c)
	return nil
}
