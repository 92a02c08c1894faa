// Package channel implements the growable binary command buffer used in both
// directions of the bridge.
//
// Layout: a 2-byte little-endian command counter at offset 0 followed by
// frames. Frames carry no length prefix; readers consume exactly what the
// paired writer emitted. Large payloads travel by reference in an ordered
// side-channel blob list.
//
// A Channel is not safe for concurrent use. Producer and consumer take turns.
package channel

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	HeaderSize = 2
	// CommandWidth is the protocol-wide command code width in bytes.
	CommandWidth = 2

	MaxCommands = math.MaxUint16
)

var ErrInvalidCapacity = errors.New("channel: capacity smaller than header")

// Options configures a Channel.
type Options struct {
	Capacity        int
	Growable        bool
	GrowthIncrement int
	SharedMemory    bool
	Logger          *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Capacity:        1024,
		Growable:        true,
		GrowthIncrement: 256,
	}
}

// Channel is a cursor over a byte store plus the side-channel blob list.
type Channel struct {
	buf       []byte
	off       int
	rd        int
	dirty     bool
	growable  bool
	increment int
	shared    bool

	blobs    [][]byte
	nextBlob int

	err         error
	warnedWrite bool
	warnedRead  bool
	log         zerolog.Logger
}

// New allocates the backing store and reserves the command counter.
func New(opts Options) (*Channel, error) {
	if opts.Capacity == 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if opts.Capacity < HeaderSize {
		return nil, ErrInvalidCapacity
	}
	if opts.GrowthIncrement < 0 {
		opts.GrowthIncrement = 0
	}
	c := &Channel{
		growable:  opts.Growable,
		increment: opts.GrowthIncrement,
		shared:    opts.SharedMemory && sharedSupported,
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	} else {
		c.log = logging.Logger("channel")
	}
	buf, err := c.alloc(opts.Capacity)
	if err != nil {
		return nil, err
	}
	c.buf = buf
	c.off = HeaderSize
	c.rd = HeaderSize
	c.log.Debug().
		Int("capacity", opts.Capacity).
		Bool("growable", c.growable).
		Bool("shared", c.shared).
		Msg("channel initialized")
	return c, nil
}

// Close releases a shared mapping. The channel must not be used afterwards.
func (c *Channel) Close() error {
	if c.buf == nil {
		return nil
	}
	buf := c.buf
	c.buf = nil
	c.off, c.rd = 0, 0
	if c.shared {
		return unmapShared(buf)
	}
	return nil
}

// Reset rewinds the channel for the next batch without reallocating.
func (c *Channel) Reset() {
	c.off = HeaderSize
	c.rd = HeaderSize
	binary.LittleEndian.PutUint16(c.buf[0:HeaderSize], 0)
	c.dirty = false
	clear(c.blobs)
	c.blobs = c.blobs[:0]
	c.nextBlob = 0
	c.err = nil
}

// Rewind moves the read cursor back to the first frame.
func (c *Channel) Rewind() {
	c.rd = HeaderSize
	c.nextBlob = 0
	c.err = nil
}

// CommandsCount returns the counter stored at offset 0.
func (c *Channel) CommandsCount() int {
	return int(binary.LittleEndian.Uint16(c.buf[0:HeaderSize]))
}

func (c *Channel) Dirty() bool    { return c.dirty }
func (c *Channel) Growable() bool { return c.growable }
func (c *Channel) Shared() bool   { return c.shared }

// Len is the logical length in bytes, header included.
func (c *Channel) Len() int { return c.off }

// Cap is the size of the backing store.
func (c *Channel) Cap() int { return len(c.buf) }

// Remaining is the number of unread bytes.
func (c *Channel) Remaining() int { return c.off - c.rd }

// Bytes returns the logical contents without copying.
func (c *Channel) Bytes() []byte { return c.buf[:c.off] }

// Err returns the first bounds or value error since the last Reset or Rewind.
func (c *Channel) Err() error { return c.err }

// Load copies a received batch into the channel so a remote consumer can
// drain it. Blobs are adopted by reference.
func (c *Channel) Load(data []byte, blobs [][]byte) bool {
	if len(data) < HeaderSize {
		c.fail(&protocol.BoundsError{Op: "load", Offset: 0, Need: HeaderSize, Cap: len(data)})
		return false
	}
	c.Reset()
	if !c.ensure(len(data)-HeaderSize, "load") {
		return false
	}
	copy(c.buf, data)
	c.off = len(data)
	c.blobs = append(c.blobs, blobs...)
	c.dirty = c.CommandsCount() > 0
	return true
}

// Reserve makes room for n more bytes, growing if allowed.
func (c *Channel) Reserve(n int) bool {
	return c.ensure(n, "reserve")
}

// AddBuffer attaches a blob by reference.
func (c *Channel) AddBuffer(b []byte) {
	c.blobs = append(c.blobs, b)
}

// Buffers returns the attached blobs in attach order.
func (c *Channel) Buffers() [][]byte { return c.blobs }

// NextBuffer returns the next unconsumed blob.
func (c *Channel) NextBuffer() ([]byte, bool) {
	if c.nextBlob >= len(c.blobs) {
		c.underflow("read blob", 1)
		return nil, false
	}
	b := c.blobs[c.nextBlob]
	c.nextBlob++
	return b, true
}

func (c *Channel) ensure(n int, op string) bool {
	if c.off+n <= len(c.buf) {
		return true
	}
	if !c.growable {
		c.dropWrite(op, n)
		return false
	}
	return c.grow(n, op)
}

func (c *Channel) grow(need int, op string) bool {
	capacity := len(c.buf)
	step := max(c.increment, need)
	next := max(capacity+step, capacity*3/2)
	if next < c.off+need {
		next = c.off + need
	}
	buf, err := c.alloc(next)
	if err != nil {
		c.log.Error().Err(err).Int("capacity", next).Msg("channel grow failed")
		c.dropWrite(op, need)
		return false
	}
	copy(buf, c.buf)
	old := c.buf
	c.buf = buf
	if c.shared {
		if err := unmapShared(old); err != nil {
			c.log.Warn().Err(err).Msg("channel unmap after grow failed")
		}
	}
	observability.RecordGrowth()
	c.log.Debug().Int("from", capacity).Int("to", next).Msg("channel grown")
	return true
}

func (c *Channel) alloc(n int) ([]byte, error) {
	if c.shared {
		return mapShared(n)
	}
	return make([]byte, n), nil
}

func (c *Channel) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) dropWrite(op string, n int) {
	c.fail(&protocol.BoundsError{Op: op, Offset: c.off, Need: n, Cap: len(c.buf)})
	observability.RecordDroppedWrite(observability.DropCapacity)
	if c.warnedWrite {
		return
	}
	c.warnedWrite = true
	c.log.Warn().
		Str("op", op).
		Int("offset", c.off).
		Int("need", n).
		Int("capacity", len(c.buf)).
		Msg("channel full and growth disabled; dropping writes")
}

func (c *Channel) underflow(op string, n int) {
	c.fail(&protocol.BoundsError{Op: op, Offset: c.rd, Need: n, Cap: c.off})
	if c.warnedRead {
		return
	}
	c.warnedRead = true
	c.log.Error().
		Str("op", op).
		Int("offset", c.rd).
		Int("need", n).
		Int("length", c.off).
		Msg("channel read past end; writer and reader are out of sync")
}

func (c *Channel) malformed(field, reason string) {
	c.fail(&protocol.MalformedValueError{Field: field, Reason: reason})
	observability.RecordDroppedWrite(observability.DropValue)
	c.log.Warn().Str("field", field).Str("reason", reason).Msg("channel rejected value")
}
