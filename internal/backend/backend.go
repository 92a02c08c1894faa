// Package backend is the consumer side of the bridge. It drains command
// batches into an engine, steps the simulation and writes reports back.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/tracker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var ErrNilEngine = errors.New("backend: nil engine")

// Config configures a Backend.
type Config struct {
	Outbound channel.Options
	Order    dispatch.Order
	// ReportSleeping also reports bodies the engine considers inactive.
	ReportSleeping bool
}

func DefaultConfig() Config {
	return Config{
		Outbound: channel.DefaultOptions(),
		Order:    dispatch.OrderPhased,
	}
}

// Backend owns the tracker, the dispatcher and the outbound report channel.
type Backend struct {
	engine     engine.Engine
	tracker    *tracker.Tracker
	dispatcher *dispatch.Dispatcher
	out        *channel.Channel
	session    uuid.UUID
	cfg        Config
	log        zerolog.Logger

	// broken collects constraint handles raised by break listeners during Step.
	broken []handle.Handle
	ticks  uint64
}

func New(e engine.Engine, cfg Config) (*Backend, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	session := uuid.New()
	log := logging.Logger("backend").With().Str("session", session.String()).Logger()
	outOpts := cfg.Outbound
	if outOpts.Logger == nil {
		outLog := log.With().Str("channel", "reports").Logger()
		outOpts.Logger = &outLog
	}
	out, err := channel.New(outOpts)
	if err != nil {
		return nil, fmt.Errorf("backend: outbound channel: %w", err)
	}
	b := &Backend{
		engine:  e,
		tracker: tracker.New(),
		out:     out,
		session: session,
		cfg:     cfg,
		log:     log,
	}
	b.dispatcher = dispatch.New(dispatch.Options{Name: "backend", Order: cfg.Order, Logger: &log})
	if err := b.register(); err != nil {
		_ = out.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) Session() uuid.UUID { return b.session }
func (b *Backend) Tracker() *tracker.Tracker { return b.tracker }
func (b *Backend) Outbound() *channel.Channel { return b.out }
func (b *Backend) Engine() engine.Engine { return b.engine }
func (b *Backend) Ticks() uint64 { return b.ticks }
func (b *Backend) Dispatcher() *dispatch.Dispatcher { return b.dispatcher }

// Close releases the outbound channel.
func (b *Backend) Close() error {
	return b.out.Close()
}

// Drain executes one inbound batch without stepping. Query reports land in
// the outbound channel after whatever it already holds.
func (b *Backend) Drain(ctx context.Context, inbound *channel.Channel) (dispatch.Stats, error) {
	return b.dispatcher.Drain(ctx, inbound)
}

// Tick resets the outbound channel, drains inbound, steps the engine by dt
// and reports every active tracked body plus constraints broken during the
// step. A desync error is returned after the tick completes; frames decoded
// before the failure are still applied.
func (b *Backend) Tick(ctx context.Context, inbound *channel.Channel, dt float32) (*channel.Channel, dispatch.Stats, error) {
	ctx, span := observability.StartSpan(ctx, "backend.tick",
		attribute.String("session", b.session.String()),
		attribute.Int64("tick", int64(b.ticks)),
	)
	defer span.End()

	b.out.Reset()
	stats, drainErr := b.Drain(ctx, inbound)

	b.broken = b.broken[:0]
	b.engine.Step(dt)
	reported := b.reportBodies()
	b.reportBroken()

	b.ticks++
	observability.RecordTick()
	span.SetAttributes(
		attribute.Int("frames.executed", stats.Executed),
		attribute.Int("reports", b.out.CommandsCount()),
	)
	b.log.Debug().
		Uint64("tick", b.ticks).
		Int("executed", stats.Executed).
		Int("transforms", reported).
		Int("broken", len(b.broken)).
		Msg("tick complete")
	return b.out, stats, drainErr
}

func (b *Backend) reportBodies() int {
	n := 0
	for _, cat := range tracker.Buckets {
		b.tracker.EachInBucket(cat, func(h handle.Handle, id engine.BodyID) bool {
			if !b.cfg.ReportSleeping && !b.engine.IsActive(id) {
				return true
			}
			st, ok := b.engine.Body(id)
			if !ok {
				return true
			}
			if b.report(schema.ReportTransform, schema.U32(uint32(h)), schema.Vec3(st.Position), schema.Vec4(st.Rotation)) {
				n++
			}
			return true
		})
	}
	return n
}

// reportBroken writes one report per broken constraint and retires it. The
// host frees the handle when it sees the report.
func (b *Backend) reportBroken() {
	for _, h := range b.broken {
		if _, ok := b.tracker.Constraint(h); !ok {
			continue
		}
		b.unwindConstraint(h)
		b.report(schema.ReportConstraintBroken, schema.U32(uint32(h)))
	}
}

func (b *Backend) report(cmd schema.Command, values ...channel.Value) bool {
	if err := schema.Encode(b.out, cmd, values...); err != nil {
		b.log.Warn().Err(err).Str("command", cmd.String()).Msg("report dropped")
		return false
	}
	observability.RecordReport(cmd.String())
	return true
}
