package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/simlink/internal/backend"
	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/engine/memory"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/host"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

func newPipe(t *testing.T, opts Options) *Pipe {
	t.Helper()
	p, err := NewPipe(opts)
	if err != nil {
		t.Fatalf("new pipe: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRecvHonorsContext(t *testing.T) {
	testlog.Start(t)
	p := newPipe(t, DefaultOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSendBlocksWhileBatchInFlight(t *testing.T) {
	testlog.Start(t)
	p := newPipe(t, DefaultOptions())
	ch, _ := channel.New(channel.DefaultOptions())
	if err := p.Send(context.Background(), ch); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Send(ctx, ch); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second send should wait for the consumer, got %v", err)
	}
}

func TestCloseUnblocksBothSides(t *testing.T) {
	testlog.Start(t)
	p := newPipe(t, Options{Copy: true, Mirror: channel.DefaultOptions()})
	var g errgroup.Group
	g.Go(func() error {
		_, err := p.Recv(context.Background())
		return err
	})
	g.Go(func() error {
		_, err := p.Await(context.Background())
		return err
	})
	time.Sleep(10 * time.Millisecond)
	_ = p.Close()
	if err := g.Wait(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	ch, _ := channel.New(channel.DefaultOptions())
	if err := p.Send(context.Background(), ch); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func runBridge(t *testing.T, opts Options) {
	t.Helper()
	p := newPipe(t, opts)
	b, err := backend.New(memory.New(memory.DefaultConfig()), backend.DefaultConfig())
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	defer b.Close()
	h, err := host.New(host.DefaultConfig())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return Serve(gctx, p, b, 0.01) })

	body, err := h.CreateBody(host.BodySpec{Motion: engine.MotionDynamic, Shape: engine.ShapeBox, Position: geom.Vec3{Y: 10}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var lastY float32 = 10
	for i := 0; i < 5; i++ {
		if _, err := Exchange(ctx, p, h); err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
		tf, ok := h.Transform(body)
		if !ok {
			t.Fatalf("exchange %d: no transform", i)
		}
		if tf.Position.Y >= lastY {
			t.Fatalf("exchange %d: body did not fall (%v >= %v)", i, tf.Position.Y, lastY)
		}
		lastY = tf.Position.Y
	}
	cancel()
	if err := g.Wait(); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestServeAndExchangeHandOff(t *testing.T) {
	testlog.Start(t)
	runBridge(t, DefaultOptions())
}

func TestServeAndExchangeWithCopiedBatches(t *testing.T) {
	testlog.Start(t)
	runBridge(t, Options{Copy: true, Mirror: channel.Options{Capacity: 64, Growable: true, GrowthIncrement: 64}})
}
