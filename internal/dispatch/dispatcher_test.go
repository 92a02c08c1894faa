package dispatch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func newChannel(t *testing.T) *channel.Channel {
	t.Helper()
	ch, err := channel.New(channel.DefaultOptions())
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch
}

func mustEncode(t *testing.T, ch *channel.Channel, cmd schema.Command, values ...channel.Value) {
	t.Helper()
	if err := schema.Encode(ch, cmd, values...); err != nil {
		t.Fatalf("encode %s: %v", cmd, err)
	}
}

// recorder registers a handler for every inbound command that appends the
// command name to seen.
func recorder(t *testing.T, d *Dispatcher, seen *[]schema.Command) {
	t.Helper()
	for _, op := range []schema.Operator{schema.Creator, schema.Modifier, schema.Querier, schema.Cleaner} {
		for _, cmd := range schema.Commands(op) {
			if err := d.Register(op, cmd, func(_ context.Context, f schema.Frame) error {
				*seen = append(*seen, f.Command)
				return nil
			}); err != nil {
				t.Fatalf("register %s: %v", cmd, err)
			}
		}
	}
}

func TestRegisterRejectsWrongFamilyAndDuplicates(t *testing.T) {
	testlog.Start(t)
	d := New(Options{})
	noop := func(context.Context, schema.Frame) error { return nil }
	if err := d.Register(schema.Cleaner, schema.SetPosition, noop); !errors.Is(err, schema.ErrFamilyMismatch) {
		t.Fatalf("expected ErrFamilyMismatch, got %v", err)
	}
	if err := d.Register(schema.Modifier, schema.SetPosition, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register(schema.Modifier, schema.SetPosition, noop); !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}
	if err := d.Register(schema.Modifier, schema.SetRotation, nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if err := d.Register(schema.Modifier, schema.Command(500), noop); !errors.Is(err, protocol.ErrUnknownCode) {
		t.Fatalf("expected ErrUnknownCode, got %v", err)
	}
	if !d.Handles(schema.Modifier, schema.SetPosition) || d.Handles(schema.Modifier, schema.SetRotation) {
		t.Fatalf("Handles disagrees with registrations")
	}
}

func writeMixedBatch(t *testing.T, ch *channel.Channel) {
	mustEncode(t, ch, schema.DestroyBody, schema.U32(1))
	mustEncode(t, ch, schema.SetPosition, schema.U32(2), schema.Vec3(geom.Vec3{X: 1}))
	mustEncode(t, ch, schema.CreateConstraint, schema.U32(3), schema.U32(1), schema.U32(2), schema.U8(0), schema.None())
	mustEncode(t, ch, schema.GetTransform, schema.U32(9), schema.U32(2))
}

func TestDrainPhasedOrder(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	writeMixedBatch(t, ch)

	var seen []schema.Command
	d := New(Options{Name: "test"})
	recorder(t, d, &seen)
	stats, err := d.Drain(context.Background(), ch)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []schema.Command{schema.CreateConstraint, schema.SetPosition, schema.GetTransform, schema.DestroyBody}
	if len(seen) != len(want) {
		t.Fatalf("unexpected executions: %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("phased order mismatch at %d: got %v want %v", i, seen, want)
		}
	}
	if stats.Frames != 4 || stats.Executed != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDrainWriteOrder(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	writeMixedBatch(t, ch)

	var seen []schema.Command
	d := New(Options{Order: OrderWrite})
	recorder(t, d, &seen)
	if _, err := d.Drain(context.Background(), ch); err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []schema.Command{schema.DestroyBody, schema.SetPosition, schema.CreateConstraint, schema.GetTransform}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("write order mismatch: got %v want %v", seen, want)
		}
	}
}

func TestDrainContinuesPastFailuresAndMissingHandlers(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	mustEncode(t, ch, schema.SetPosition, schema.U32(1), schema.Vec3(geom.Vec3{}))
	mustEncode(t, ch, schema.SetRotation, schema.U32(1), schema.Vec4(geom.Identity()))
	mustEncode(t, ch, schema.SetPosition, schema.U32(2), schema.Vec3(geom.Vec3{}))

	d := New(Options{})
	var handled []uint32
	_ = d.Register(schema.Modifier, schema.SetPosition, func(_ context.Context, f schema.Frame) error {
		h := f.U32(schema.FieldHandle)
		handled = append(handled, h)
		if h == 1 {
			return &protocol.StaleHandleError{Kind: "body", Handle: h}
		}
		return nil
	})
	stats, err := d.Drain(context.Background(), ch)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Failed != 1 || stats.Unhandled != 1 || stats.Executed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(handled) != 2 {
		t.Fatalf("later frames did not run: %v", handled)
	}
}

func TestDrainSkipsMalformedFrame(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	// Hand-written frame with a NaN position; the layout still aligns.
	ch.WriteOperator(uint8(schema.Modifier))
	ch.WriteCommand(uint16(schema.SetPosition))
	ch.WriteU32(1)
	ch.WriteU32(math.Float32bits(float32(math.NaN())))
	ch.WriteU32(0)
	ch.WriteU32(0)
	mustEncode(t, ch, schema.DestroyBody, schema.U32(4))

	var seen []schema.Command
	d := New(Options{})
	recorder(t, d, &seen)
	stats, err := d.Drain(context.Background(), ch)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stats.Malformed != 1 || len(seen) != 1 || seen[0] != schema.DestroyBody {
		t.Fatalf("unexpected result: stats=%+v seen=%v", stats, seen)
	}
}

func TestDrainStopsOnDesyncButRunsDecodedFrames(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	mustEncode(t, ch, schema.DestroyBody, schema.U32(1))
	ch.WriteOperator(uint8(schema.OperatorCount + 7))
	ch.WriteCommand(uint16(schema.DestroyBody))
	ch.WriteU32(2)
	mustEncode(t, ch, schema.DestroyBody, schema.U32(3))

	var seen []schema.Command
	d := New(Options{})
	recorder(t, d, &seen)
	stats, err := d.Drain(context.Background(), ch)
	if !errors.Is(err, ErrDesync) || !errors.Is(err, schema.ErrUnknownOperator) {
		t.Fatalf("expected desync wrapping ErrUnknownOperator, got %v", err)
	}
	if !stats.Desync || stats.Frames != 1 || len(seen) != 1 {
		t.Fatalf("unexpected result: stats=%+v seen=%v", stats, seen)
	}
}

func TestDrainOverstatedCounterIsDesync(t *testing.T) {
	testlog.Start(t)
	src := newChannel(t)
	mustEncode(t, src, schema.DestroyBody, schema.U32(1))
	raw := append([]byte(nil), src.Bytes()...)
	raw[0] = 2

	ch := newChannel(t)
	ch.Load(raw, nil)
	var seen []schema.Command
	d := New(Options{})
	recorder(t, d, &seen)
	_, err := d.Drain(context.Background(), ch)
	if !errors.Is(err, ErrDesync) || !errors.Is(err, protocol.ErrBounds) {
		t.Fatalf("expected desync wrapping ErrBounds, got %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("decoded frame did not run: %v", seen)
	}
}

func TestDrainTwiceReplaysBatch(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(t)
	mustEncode(t, ch, schema.DestroyBody, schema.U32(1))
	var seen []schema.Command
	d := New(Options{})
	recorder(t, d, &seen)
	_, _ = d.Drain(context.Background(), ch)
	_, _ = d.Drain(context.Background(), ch)
	if len(seen) != 2 {
		t.Fatalf("expected batch to replay after rewind, got %v", seen)
	}
}

func TestParseOrder(t *testing.T) {
	for raw, want := range map[string]Order{"": OrderPhased, "phased": OrderPhased, " Write ": OrderWrite} {
		got, err := ParseOrder(raw)
		if err != nil || got != want {
			t.Fatalf("ParseOrder(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseOrder("random"); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}
