package schema

import (
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/channel"
)

var (
	ErrUnknownOperator = errors.New("schema: unknown operator")
	ErrFamilyMismatch  = errors.New("schema: command does not belong to operator")
)

// Frame is one decoded operator + command + fields.
type Frame struct {
	Operator Operator
	Command  Command
	Values   []channel.Value
	// Seq is the frame's position in its batch.
	Seq int
}

func (f Frame) Layout() Layout {
	l, _ := Lookup(f.Command)
	return l
}

// Value returns the named field.
func (f Frame) Value(name string) (channel.Value, bool) {
	i := f.Layout().Index(name)
	if i < 0 || i >= len(f.Values) {
		return channel.Value{}, false
	}
	return f.Values[i], true
}

// Has reports whether the named field is present.
func (f Frame) Has(name string) bool {
	v, ok := f.Value(name)
	return ok && v.Present
}

func (f Frame) U8(name string) uint8 {
	v, _ := f.Value(name)
	return v.U8
}

func (f Frame) U16(name string) uint16 {
	v, _ := f.Value(name)
	return v.U16
}

func (f Frame) U32(name string) uint32 {
	v, _ := f.Value(name)
	return v.U32
}

func (f Frame) I32(name string) int32 {
	v, _ := f.Value(name)
	return v.I32
}

func (f Frame) F32(name string) float32 {
	v, _ := f.Value(name)
	return v.F32
}

func (f Frame) Bool(name string) bool {
	v, _ := f.Value(name)
	return v.Bool
}

func (f Frame) Vec3(name string) geom.Vec3 {
	v, _ := f.Value(name)
	return v.Vec3
}

func (f Frame) Vec4(name string) geom.Quat {
	v, _ := f.Value(name)
	return v.Vec4
}

func (f Frame) Plane(name string) geom.Plane {
	v, _ := f.Value(name)
	return v.Plane
}

func (f Frame) Blob(name string) []byte {
	v, _ := f.Value(name)
	return v.Blob
}

// Size returns the inline bytes a frame of cmd with values occupies.
func Size(cmd Command, values ...channel.Value) int {
	l, ok := Lookup(cmd)
	if !ok {
		return 0
	}
	n := 1 + channel.CommandWidth
	for i, f := range l.Fields {
		var v channel.Value
		if i < len(values) {
			v = values[i]
		}
		n += channel.EncodedSize(f.Kind, v, f.Optional)
	}
	return n
}

// Validate checks values against the layout of cmd without writing.
func Validate(cmd Command, values ...channel.Value) error {
	l, ok := Lookup(cmd)
	if !ok {
		return fmt.Errorf("%w: %d", protocol.ErrUnknownCode, uint16(cmd))
	}
	if len(values) != len(l.Fields) {
		return &protocol.MalformedValueError{
			Command: l.Name,
			Reason:  fmt.Sprintf("expected %d values, got %d", len(l.Fields), len(values)),
		}
	}
	for i, f := range l.Fields {
		if err := checkValue(l, f, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(l Layout, f Field, v channel.Value) error {
	if v.Kind != 0 && v.Kind != f.Kind {
		return &protocol.MalformedValueError{Command: l.Name, Field: f.Name, Reason: fmt.Sprintf("kind %s, want %s", v.Kind, f.Kind)}
	}
	if !v.Present {
		if f.Optional {
			return nil
		}
		return &protocol.MalformedValueError{Command: l.Name, Field: f.Name, Reason: "required value missing"}
	}
	v.Kind = f.Kind
	if !v.Finite() {
		return &protocol.MalformedValueError{Command: l.Name, Field: f.Name, Reason: "non-finite float"}
	}
	if f.Limit > 0 && v.U8 >= f.Limit {
		return &protocol.MalformedValueError{Command: l.Name, Field: f.Name, Reason: fmt.Sprintf("enum value %d out of range", v.U8)}
	}
	return nil
}

// Encode writes one complete frame for cmd. Values are positional and must
// match the layout. Nothing is written unless the whole frame fits.
func Encode(ch *channel.Channel, cmd Command, values ...channel.Value) error {
	if err := Validate(cmd, values...); err != nil {
		return err
	}
	l := layouts[cmd]
	if ch.CommandsCount() >= channel.MaxCommands {
		return fmt.Errorf("schema: encode %s: %w", l.Name, protocol.ErrCounterLimit)
	}
	size := Size(cmd, values...)
	if !ch.Reserve(size) {
		return fmt.Errorf("schema: encode %s: %w", l.Name, &protocol.BoundsError{
			Op:     "encode " + l.Name,
			Offset: ch.Len(),
			Need:   size,
			Cap:    ch.Cap(),
		})
	}
	ch.WriteOperator(uint8(l.Operator))
	ch.WriteCommand(uint16(cmd))
	for i, f := range l.Fields {
		v := values[i]
		v.Kind = f.Kind
		ch.WriteValue(f.Kind, v, f.Optional)
	}
	return nil
}

// DecodeNext reads the next frame header and body. A returned error wrapping
// protocol.ErrBounds, protocol.ErrUnknownCode, ErrUnknownOperator or
// ErrFamilyMismatch means the stream can no longer be trusted. A
// protocol.ErrMalformed error leaves the stream aligned and only the frame is bad.
func DecodeNext(ch *channel.Channel) (Frame, error) {
	op := Operator(ch.ReadU8())
	cmd := Command(ch.ReadCommand())
	if err := ch.Err(); err != nil {
		return Frame{}, fmt.Errorf("schema: frame header: %w", err)
	}
	if !op.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownOperator, uint8(op))
	}
	return Decode(ch, op, cmd)
}

// Decode reads the fields of cmd using the same layout Encode wrote.
func Decode(ch *channel.Channel, op Operator, cmd Command) (Frame, error) {
	l, ok := Lookup(cmd)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %d", protocol.ErrUnknownCode, uint16(cmd))
	}
	if l.Operator != op {
		return Frame{}, fmt.Errorf("%w: %s is %s, frame says %s", ErrFamilyMismatch, l.Name, l.Operator, op)
	}
	f := Frame{Operator: op, Command: cmd, Values: make([]channel.Value, len(l.Fields))}
	for i, field := range l.Fields {
		f.Values[i] = ch.ReadValue(field.Kind, field.Optional)
	}
	if err := ch.Err(); err != nil {
		return Frame{}, fmt.Errorf("schema: decode %s: %w", l.Name, err)
	}
	for i, field := range l.Fields {
		if err := checkValue(l, field, f.Values[i]); err != nil {
			return f, err
		}
	}
	return f, nil
}
