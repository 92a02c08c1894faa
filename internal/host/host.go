// Package host is the producer side of the bridge. It issues handles, writes
// command frames and reads the reports the backend sends back.
package host

import (
	"context"
	"fmt"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/rs/zerolog"
)

// Config configures a Host.
type Config struct {
	Commands channel.Options
}

func DefaultConfig() Config {
	return Config{Commands: channel.DefaultOptions()}
}

type bodyRecord struct {
	retired     bool
	constraints map[handle.Handle]struct{}
}

type constraintRecord struct {
	retired bool
	bodyA   handle.Handle
	bodyB   handle.Handle
}

// Transform is the last reported pose of a body.
type Transform struct {
	Position geom.Vec3
	Rotation geom.Quat
}

// QueryResult answers one QueryTransform or QueryLinearVelocity request.
type QueryResult struct {
	Request  uint32
	Handle   handle.Handle
	Found    bool
	Position geom.Vec3
	Rotation geom.Quat
	Velocity geom.Vec3
}

// Host owns the handle allocators and the outbound command channel.
// Handles freed by destroys are released only on Flush, so a batch never
// names one handle for two objects.
type Host struct {
	bodies      *handle.Allocator[bodyRecord]
	constraints *handle.Allocator[constraintRecord]
	out         *channel.Channel
	reports     *dispatch.Dispatcher
	log         zerolog.Logger

	retiredBodies      []handle.Handle
	retiredConstraints []handle.Handle

	transforms  map[handle.Handle]Transform
	queries     map[uint32]QueryResult
	broken      []handle.Handle
	nextRequest uint32
}

func New(cfg Config) (*Host, error) {
	log := logging.Logger("host")
	opts := cfg.Commands
	if opts.Logger == nil {
		chLog := log.With().Str("channel", "commands").Logger()
		opts.Logger = &chLog
	}
	out, err := channel.New(opts)
	if err != nil {
		return nil, fmt.Errorf("host: command channel: %w", err)
	}
	h := &Host{
		bodies:      handle.NewAllocator[bodyRecord](),
		constraints: handle.NewAllocator[constraintRecord](),
		out:         out,
		log:         log,
		transforms:  make(map[handle.Handle]Transform),
		queries:     make(map[uint32]QueryResult),
	}
	h.reports = dispatch.New(dispatch.Options{Name: "host", Order: dispatch.OrderWrite, Logger: &log})
	if err := h.registerReports(); err != nil {
		_ = out.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the command channel.
func (h *Host) Close() error {
	return h.out.Close()
}

// Commands returns the channel being written.
func (h *Host) Commands() *channel.Channel { return h.out }

// Flush releases handles retired since the last flush and returns the
// command channel for handoff.
func (h *Host) Flush() *channel.Channel {
	for _, b := range h.retiredBodies {
		h.bodies.Free(b)
	}
	for _, c := range h.retiredConstraints {
		h.constraints.Free(c)
	}
	h.log.Debug().
		Int("commands", h.out.CommandsCount()).
		Int("freed_bodies", len(h.retiredBodies)).
		Int("freed_constraints", len(h.retiredConstraints)).
		Msg("flush")
	h.retiredBodies = h.retiredBodies[:0]
	h.retiredConstraints = h.retiredConstraints[:0]
	return h.out
}

// Reset clears the command channel once the consumer has drained it.
func (h *Host) Reset() {
	h.out.Reset()
}

// Bodies is the number of live body handles.
func (h *Host) Bodies() int {
	n := 0
	h.bodies.Each(func(_ handle.Handle, r bodyRecord) bool {
		if !r.retired {
			n++
		}
		return true
	})
	return n
}

// BodyLive reports whether h names a body that has not been destroyed.
func (h *Host) BodyLive(b handle.Handle) bool {
	r, ok := h.bodies.Get(b)
	return ok && !r.retired
}

// ConstraintLive reports whether c names a constraint that has not been
// destroyed or broken.
func (h *Host) ConstraintLive(c handle.Handle) bool {
	r, ok := h.constraints.Get(c)
	return ok && !r.retired
}

// Transform returns the last reported pose of b.
func (h *Host) Transform(b handle.Handle) (Transform, bool) {
	t, ok := h.transforms[b]
	return t, ok
}

// QueryResult returns and forgets the answer to request.
func (h *Host) QueryResult(request uint32) (QueryResult, bool) {
	r, ok := h.queries[request]
	if ok {
		delete(h.queries, request)
	}
	return r, ok
}

// Broken lists constraints reported broken by the last Apply.
func (h *Host) Broken() []handle.Handle {
	return h.broken
}

// Apply decodes one report batch.
func (h *Host) Apply(ctx context.Context, results *channel.Channel) (dispatch.Stats, error) {
	h.broken = h.broken[:0]
	return h.reports.Drain(ctx, results)
}
