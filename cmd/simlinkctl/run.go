package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/danmuck/simlink/internal/backend"
	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/engine/memory"
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/handle"
	"github.com/danmuck/simlink/internal/host"
	"github.com/danmuck/simlink/internal/protocol/channel"
	"github.com/danmuck/simlink/internal/transport"
	"golang.org/x/sync/errgroup"
)

const dropHeight = 10

// summary describes a finished run.
type summary struct {
	Ticks     int
	Bodies    int
	Reports   int
	Failed    int
	LowestY   float32
	HighestY  float32
	Broken    int
	Session   string
	Pipelined bool
}

// progress is read by the admin endpoint while a run is in flight.
type progress struct {
	ticks   atomic.Int64
	reports atomic.Int64
	failed  atomic.Int64
}

func (p *progress) record(reports, failed int) {
	p.ticks.Add(1)
	p.reports.Add(int64(reports))
	p.failed.Add(int64(failed))
}

func (p *progress) snapshot() any {
	return map[string]int64{
		"ticks":   p.ticks.Load(),
		"reports": p.reports.Load(),
		"failed":  p.failed.Load(),
	}
}

func (sum *summary) add(p *progress, reports, failed int) {
	sum.Ticks++
	sum.Reports += reports
	sum.Failed += failed
	p.record(reports, failed)
}

type scene struct {
	host     *host.Host
	backend  *backend.Backend
	bodies   []handle.Handle
	progress *progress
}

func newScene(cfg config.BridgeConfig) (*scene, error) {
	order, err := cfg.Dispatch.OrderValue()
	if err != nil {
		return nil, err
	}
	h, err := host.New(host.Config{Commands: cfg.Channel.Options()})
	if err != nil {
		return nil, err
	}
	bcfg := backend.DefaultConfig()
	bcfg.Outbound = cfg.Channel.Options()
	bcfg.Order = order
	b, err := backend.New(memory.New(cfg.Engine.Memory()), bcfg)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	s := &scene{host: h, backend: b}
	if err := s.populate(cfg.Scenario); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// populate lays out a static ground plane and a square grid of boxes above
// it. Neighbours in a row are joined by distance constraints.
func (s *scene) populate(cfg config.ScenarioConfig) error {
	ground := geom.Plane{Normal: geom.Vec3{Y: 1}}
	if _, err := s.host.CreateBody(host.BodySpec{
		Motion: engine.MotionStatic,
		Shape:  engine.ShapePlane,
		Plane:  &ground,
	}); err != nil {
		return fmt.Errorf("create ground: %w", err)
	}

	side := 1
	for side*side < cfg.Bodies {
		side++
	}
	half := geom.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	for i := 0; i < cfg.Bodies; i++ {
		pos := geom.Vec3{
			X: float32(i%side) * cfg.Spacing,
			Y: dropHeight,
			Z: float32(i/side) * cfg.Spacing,
		}
		b, err := s.host.CreateBody(host.BodySpec{
			Kind:        engine.KindRigid,
			Motion:      engine.MotionDynamic,
			Shape:       engine.ShapeBox,
			Position:    pos,
			HalfExtents: &half,
		})
		if err != nil {
			return fmt.Errorf("create body %d: %w", i, err)
		}
		if i%side != 0 {
			if _, err := s.host.CreateConstraint(host.ConstraintSpec{
				Type:  engine.ConstraintDistance,
				BodyA: s.bodies[i-1],
				BodyB: b,
			}); err != nil {
				return fmt.Errorf("join body %d: %w", i, err)
			}
		}
		s.bodies = append(s.bodies, b)
	}
	return nil
}

func (s *scene) close() {
	_ = s.host.Close()
	_ = s.backend.Close()
}

func run(ctx context.Context, cfg config.BridgeConfig, prog *progress) (summary, error) {
	s, err := newScene(cfg)
	if err != nil {
		return summary{}, err
	}
	defer s.close()
	if prog == nil {
		prog = &progress{}
	}
	s.progress = prog

	sum := summary{
		Bodies:    len(s.bodies),
		Session:   s.backend.Session().String(),
		Pipelined: cfg.Scenario.Mode == config.ModePipelined,
	}
	if sum.Pipelined {
		err = runPipelined(ctx, s, cfg.Scenario, cfg.Channel.Options(), &sum)
	} else {
		err = runSync(ctx, s, cfg.Scenario, &sum)
	}
	if err != nil {
		return sum, err
	}
	s.measure(&sum)
	return sum, nil
}

func runSync(ctx context.Context, s *scene, cfg config.ScenarioConfig, sum *summary) error {
	for i := 0; i < cfg.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, _, err := s.backend.Tick(ctx, s.host.Flush(), cfg.DT)
		if err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
		s.host.Reset()
		stats, err := s.host.Apply(ctx, out)
		if err != nil {
			return fmt.Errorf("apply %d: %w", i, err)
		}
		sum.add(s.progress, stats.Executed, stats.Failed)
	}
	return nil
}

func runPipelined(ctx context.Context, s *scene, cfg config.ScenarioConfig, mirror channel.Options, sum *summary) error {
	p, err := transport.NewPipe(transport.Options{Copy: cfg.Copy, Mirror: mirror})
	if err != nil {
		return err
	}
	defer p.Close()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	g.Go(func() error {
		return transport.Serve(serveCtx, p, s.backend, cfg.DT)
	})
	g.Go(func() error {
		defer stopServe()
		for i := 0; i < cfg.Ticks; i++ {
			stats, err := transport.Exchange(gctx, p, s.host)
			if err != nil {
				return fmt.Errorf("exchange %d: %w", i, err)
			}
			sum.add(s.progress, stats.Executed, stats.Failed)
		}
		return nil
	})
	return g.Wait()
}

func (s *scene) measure(sum *summary) {
	sum.Broken = len(s.host.Broken())
	first := true
	for _, b := range s.bodies {
		tf, ok := s.host.Transform(b)
		if !ok {
			continue
		}
		y := tf.Position.Y
		if first || y < sum.LowestY {
			sum.LowestY = y
		}
		if first || y > sum.HighestY {
			sum.HighestY = y
		}
		first = false
	}
}
