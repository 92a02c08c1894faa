// Package transport hands command and report batches between a producer and
// a consumer running on different goroutines. Each direction carries at most
// one batch at a time and the sides take turns owning the buffers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/simlink/internal/protocol/channel"
)

var ErrClosed = errors.New("transport: pipe closed")

// Options configures a Pipe.
type Options struct {
	// Copy loads each batch into a receiver-owned channel instead of handing
	// over the sender's buffer, the way a process boundary would.
	Copy bool
	// Mirror sizes the receiver-owned channels used when Copy is set.
	Mirror channel.Options
}

func DefaultOptions() Options {
	return Options{Mirror: channel.DefaultOptions()}
}

// Pipe is a pair of single-slot handoff queues.
type Pipe struct {
	commands chan *channel.Channel
	results  chan *channel.Channel
	done     chan struct{}
	once     sync.Once

	// mu guards the mirrors against Close.
	mu        sync.Mutex
	closed    bool
	copy      bool
	inMirror  *channel.Channel
	outMirror *channel.Channel
}

func NewPipe(opts Options) (*Pipe, error) {
	p := &Pipe{
		commands: make(chan *channel.Channel, 1),
		results:  make(chan *channel.Channel, 1),
		done:     make(chan struct{}),
		copy:     opts.Copy,
	}
	if opts.Copy {
		var err error
		if p.inMirror, err = channel.New(opts.Mirror); err != nil {
			return nil, fmt.Errorf("transport: command mirror: %w", err)
		}
		if p.outMirror, err = channel.New(opts.Mirror); err != nil {
			_ = p.inMirror.Close()
			return nil, fmt.Errorf("transport: report mirror: %w", err)
		}
	}
	return p, nil
}

// Close unblocks both sides. It is safe to call more than once. Mirror
// channels are released, so neither side may touch a received batch after.
func (p *Pipe) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		if p.copy {
			err = errors.Join(p.inMirror.Close(), p.outMirror.Close())
		}
	})
	return err
}

// Send hands a full command batch to the consumer.
func (p *Pipe) Send(ctx context.Context, ch *channel.Channel) error {
	batch, err := p.mirror(p.inMirror, ch)
	if err != nil {
		return err
	}
	return p.put(ctx, p.commands, batch)
}

// Recv blocks until a command batch arrives.
func (p *Pipe) Recv(ctx context.Context) (*channel.Channel, error) {
	return p.take(ctx, p.commands)
}

// Reply hands the report batch back to the producer.
func (p *Pipe) Reply(ctx context.Context, out *channel.Channel) error {
	batch, err := p.mirror(p.outMirror, out)
	if err != nil {
		return err
	}
	return p.put(ctx, p.results, batch)
}

// Await blocks until the report batch for the last Send arrives.
func (p *Pipe) Await(ctx context.Context) (*channel.Channel, error) {
	return p.take(ctx, p.results)
}

func (p *Pipe) mirror(dst, src *channel.Channel) (*channel.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if !p.copy {
		return src, nil
	}
	if !dst.Load(src.Bytes(), src.Buffers()) {
		return nil, fmt.Errorf("transport: load batch: %w", dst.Err())
	}
	return dst, nil
}

func (p *Pipe) put(ctx context.Context, q chan *channel.Channel, ch *channel.Channel) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case q <- ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

func (p *Pipe) take(ctx context.Context, q chan *channel.Channel) (*channel.Channel, error) {
	select {
	case ch := <-q:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}
