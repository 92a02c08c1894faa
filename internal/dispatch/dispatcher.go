// Package dispatch drains a channel and routes every frame to the handler
// registered for its operator family and command.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrDesync           = errors.New("dispatch: stream desynchronized")
	ErrDuplicateHandler = errors.New("dispatch: handler already registered")
	ErrNilHandler       = errors.New("dispatch: nil handler")
	ErrInvalidOrder     = errors.New("dispatch: invalid order")
)

// Handler executes one decoded frame. A returned error fails only that frame.
type Handler func(ctx context.Context, f schema.Frame) error

// Order controls when decoded frames run relative to each other.
type Order uint8

const (
	// OrderPhased runs creators first, then modifiers and queriers in write
	// order, then cleaners.
	OrderPhased Order = iota
	// OrderWrite runs frames strictly in write order.
	OrderWrite
)

func (o Order) String() string {
	switch o {
	case OrderPhased:
		return "phased"
	case OrderWrite:
		return "write"
	default:
		return fmt.Sprintf("order(%d)", uint8(o))
	}
}

// ParseOrder accepts the names produced by Order.String.
func ParseOrder(raw string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "phased":
		return OrderPhased, nil
	case "write":
		return OrderWrite, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrder, raw)
	}
}

var phases = [][]schema.Operator{
	{schema.Creator},
	{schema.Modifier, schema.Querier, schema.Reporter},
	{schema.Cleaner},
}

// Options configures a Dispatcher.
type Options struct {
	// Name labels logs and spans, e.g. "backend" or "host".
	Name   string
	Order  Order
	Logger *zerolog.Logger
}

// Stats summarizes one drain.
type Stats struct {
	Frames    int
	Executed  int
	Failed    int
	Unhandled int
	Malformed int
	Desync    bool
}

// Dispatcher holds a fixed jump table indexed by operator and command.
type Dispatcher struct {
	name   string
	order  Order
	table  [schema.OperatorCount][schema.CommandCount]Handler
	frames []schema.Frame
	log    zerolog.Logger
}

func New(opts Options) *Dispatcher {
	d := &Dispatcher{name: opts.Name, order: opts.Order}
	if d.name == "" {
		d.name = "dispatch"
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	} else {
		d.log = logging.Logger("dispatch").With().Str("dispatcher", d.name).Logger()
	}
	return d
}

func (d *Dispatcher) Order() Order { return d.order }

// Register binds h to cmd. cmd must belong to op.
func (d *Dispatcher) Register(op schema.Operator, cmd schema.Command, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !op.Valid() {
		return fmt.Errorf("%w: %d", schema.ErrUnknownOperator, uint8(op))
	}
	family, ok := schema.OperatorOf(cmd)
	if !ok {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownCode, uint16(cmd))
	}
	if family != op {
		return fmt.Errorf("%w: %s is %s, not %s", schema.ErrFamilyMismatch, cmd, family, op)
	}
	if d.table[op][cmd] != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, cmd)
	}
	d.table[op][cmd] = h
	return nil
}

// Handles reports whether a handler is bound for op and cmd.
func (d *Dispatcher) Handles(op schema.Operator, cmd schema.Command) bool {
	if !op.Valid() || !cmd.Valid() {
		return false
	}
	return d.table[op][cmd] != nil
}

// Drain decodes every frame in ch and executes them in the configured order.
// Handler errors and malformed frames are counted and skipped. A structural
// failure stops decoding; frames decoded before it still run and the returned
// error wraps ErrDesync. A batch is never cancelled part way through.
func (d *Dispatcher) Drain(ctx context.Context, ch *channel.Channel) (Stats, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "dispatch.drain", attribute.String("dispatcher", d.name))
	defer span.End()

	var stats Stats
	ch.Rewind()
	total := ch.CommandsCount()
	d.frames = d.frames[:0]

	var desync error
	for seq := 0; seq < total; seq++ {
		f, err := schema.DecodeNext(ch)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				stats.Malformed++
				observability.RecordFrame(f.Operator.String(), observability.OutcomeMalformed)
				d.log.Warn().Err(err).Int("seq", seq).Str("command", f.Command.String()).Msg("malformed frame skipped")
				continue
			}
			desync = fmt.Errorf("%w: frame %d of %d at offset %d: %w", ErrDesync, seq, total, ch.Len()-ch.Remaining(), err)
			break
		}
		f.Seq = seq
		d.frames = append(d.frames, f)
	}
	stats.Frames = len(d.frames)

	if d.order == OrderWrite {
		for _, f := range d.frames {
			d.execute(ctx, f, &stats)
		}
	} else {
		for _, phase := range phases {
			for _, f := range d.frames {
				if inPhase(phase, f.Operator) {
					d.execute(ctx, f, &stats)
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("frames.total", total),
		attribute.Int("frames.executed", stats.Executed),
		attribute.Int("frames.failed", stats.Failed),
	)
	observability.RecordDrain(time.Since(start))
	if desync != nil {
		stats.Desync = true
		observability.RecordDesync()
		span.RecordError(desync)
		span.SetStatus(codes.Error, "desync")
		d.log.Error().Err(desync).Int("decoded", stats.Frames).Msg("drain stopped")
		return stats, desync
	}
	d.log.Debug().
		Int("frames", stats.Frames).
		Int("executed", stats.Executed).
		Int("failed", stats.Failed).
		Int("unhandled", stats.Unhandled).
		Msg("drain complete")
	return stats, nil
}

func (d *Dispatcher) execute(ctx context.Context, f schema.Frame, stats *Stats) {
	op := f.Operator.String()
	h := d.table[f.Operator][f.Command]
	if h == nil {
		stats.Unhandled++
		observability.RecordFrame(op, observability.OutcomeUnhandled)
		d.log.Debug().Int("seq", f.Seq).Str("command", f.Command.String()).Msg("no handler")
		return
	}
	if err := h(ctx, f); err != nil {
		stats.Failed++
		observability.RecordFrame(op, observability.OutcomeFailed)
		d.log.Warn().Err(err).Int("seq", f.Seq).Str("command", f.Command.String()).Msg("frame failed")
		return
	}
	stats.Executed++
	observability.RecordFrame(op, observability.OutcomeOK)
}

func inPhase(phase []schema.Operator, op schema.Operator) bool {
	for _, p := range phase {
		if p == op {
			return true
		}
	}
	return false
}
