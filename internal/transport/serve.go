package transport

import (
	"context"
	"errors"

	"github.com/danmuck/simlink/internal/backend"
	"github.com/danmuck/simlink/internal/dispatch"
	"github.com/danmuck/simlink/internal/host"
	"github.com/danmuck/simlink/internal/logging"
)

// Serve runs the consumer loop: receive a batch, tick the backend, reply
// with its reports. It returns nil when ctx is cancelled or the pipe closes.
func Serve(ctx context.Context, p *Pipe, b *backend.Backend, dt float32) error {
	log := logging.Logger("transport").With().Str("side", "consumer").Logger()
	for {
		in, err := p.Recv(ctx)
		if err != nil {
			return quiet(err)
		}
		out, stats, err := b.Tick(ctx, in, dt)
		if err != nil {
			log.Error().Err(err).Int("executed", stats.Executed).Msg("tick desynchronized")
		}
		if err := p.Reply(ctx, out); err != nil {
			return quiet(err)
		}
	}
}

// Exchange runs one producer turn: flush the host, hand the batch over,
// wait for the reports and apply them.
func Exchange(ctx context.Context, p *Pipe, h *host.Host) (dispatch.Stats, error) {
	if err := p.Send(ctx, h.Flush()); err != nil {
		return dispatch.Stats{}, err
	}
	out, err := p.Await(ctx)
	if err != nil {
		return dispatch.Stats{}, err
	}
	h.Reset()
	return h.Apply(ctx, out)
}

func quiet(err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
