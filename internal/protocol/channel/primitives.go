package channel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol"
)

// WriteOperator appends the operator byte. The command counter is unchanged.
func (c *Channel) WriteOperator(op uint8) bool {
	return c.WriteU8(op)
}

// WriteCommand increments the counter at offset 0 and appends the code.
func (c *Channel) WriteCommand(code uint16) bool {
	count := binary.LittleEndian.Uint16(c.buf[0:HeaderSize])
	if count == MaxCommands {
		c.fail(protocol.ErrCounterLimit)
		observability.RecordDroppedWrite(observability.DropCounter)
		c.log.Warn().Uint16("command", code).Msg("channel command counter saturated; dropping command")
		return false
	}
	if !c.ensure(CommandWidth, "write command") {
		return false
	}
	binary.LittleEndian.PutUint16(c.buf[0:HeaderSize], count+1)
	binary.LittleEndian.PutUint16(c.buf[c.off:], code)
	c.off += CommandWidth
	c.dirty = true
	return true
}

func (c *Channel) WriteU8(v uint8) bool {
	if !c.ensure(1, "write u8") {
		return false
	}
	c.buf[c.off] = v
	c.off++
	return true
}

func (c *Channel) WriteU16(v uint16) bool {
	if !c.ensure(2, "write u16") {
		return false
	}
	binary.LittleEndian.PutUint16(c.buf[c.off:], v)
	c.off += 2
	return true
}

func (c *Channel) WriteU32(v uint32) bool {
	if !c.ensure(4, "write u32") {
		return false
	}
	binary.LittleEndian.PutUint32(c.buf[c.off:], v)
	c.off += 4
	return true
}

func (c *Channel) WriteI32(v int32) bool {
	return c.WriteU32(uint32(v))
}

// WriteF32 rejects NaN and infinities.
func (c *Channel) WriteF32(v float32) bool {
	if !geom.Finite32(v) {
		c.malformed("f32", "non-finite float")
		return false
	}
	return c.writeF32(v)
}

func (c *Channel) writeF32(v float32) bool {
	if !c.ensure(4, "write f32") {
		return false
	}
	binary.LittleEndian.PutUint32(c.buf[c.off:], math.Float32bits(v))
	c.off += 4
	return true
}

func (c *Channel) WriteBool(v bool) bool {
	if v {
		return c.WriteU8(1)
	}
	return c.WriteU8(0)
}

func (c *Channel) WriteVec3(v geom.Vec3) bool {
	if !v.Finite() {
		c.malformed("vec3", "non-finite float")
		return false
	}
	if !c.ensure(12, "write vec3") {
		return false
	}
	c.writeF32(v.X)
	c.writeF32(v.Y)
	c.writeF32(v.Z)
	return true
}

func (c *Channel) WriteVec4(q geom.Quat) bool {
	if !q.Finite() {
		c.malformed("vec4", "non-finite float")
		return false
	}
	if !c.ensure(16, "write vec4") {
		return false
	}
	c.writeF32(q.X)
	c.writeF32(q.Y)
	c.writeF32(q.Z)
	c.writeF32(q.W)
	return true
}

func (c *Channel) WritePlane(p geom.Plane) bool {
	if !p.Finite() {
		c.malformed("plane", "non-finite float")
		return false
	}
	if !c.ensure(16, "write plane") {
		return false
	}
	c.writeF32(p.Normal.X)
	c.writeF32(p.Normal.Y)
	c.writeF32(p.Normal.Z)
	c.writeF32(p.Constant)
	return true
}

// WriteValue writes v as kind. With withFlag a presence byte precedes the
// value and an absent value writes only that byte.
func (c *Channel) WriteValue(kind Kind, v Value, withFlag bool) bool {
	if v.Kind != 0 && v.Kind != kind {
		c.malformed(kind.String(), fmt.Sprintf("value of kind %s", v.Kind))
		return false
	}
	if withFlag {
		if !v.Present {
			return c.WriteU8(0)
		}
		if !v.Finite() {
			c.malformed(kind.String(), "non-finite float")
			return false
		}
		if !c.ensure(1+kind.Size(), "write "+kind.String()) {
			return false
		}
		c.WriteU8(1)
	} else if !v.Present {
		c.malformed(kind.String(), "required value missing")
		return false
	}
	switch kind {
	case KindU8:
		return c.WriteU8(v.U8)
	case KindU16:
		return c.WriteU16(v.U16)
	case KindU32:
		return c.WriteU32(v.U32)
	case KindI32:
		return c.WriteI32(v.I32)
	case KindF32:
		return c.WriteF32(v.F32)
	case KindBool:
		return c.WriteBool(v.Bool)
	case KindVec3:
		return c.WriteVec3(v.Vec3)
	case KindVec4:
		return c.WriteVec4(v.Vec4)
	case KindPlane:
		return c.WritePlane(v.Plane)
	case KindBlob:
		c.AddBuffer(v.Blob)
		return true
	default:
		c.malformed(kind.String(), "unknown kind")
		return false
	}
}

func (c *Channel) readable(n int, op string) bool {
	if c.rd+n > c.off {
		c.underflow(op, n)
		return false
	}
	return true
}

func (c *Channel) ReadU8() uint8 {
	if !c.readable(1, "read u8") {
		return 0
	}
	v := c.buf[c.rd]
	c.rd++
	return v
}

func (c *Channel) ReadU16() uint16 {
	if !c.readable(2, "read u16") {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.buf[c.rd:])
	c.rd += 2
	return v
}

func (c *Channel) ReadU32() uint32 {
	if !c.readable(4, "read u32") {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.buf[c.rd:])
	c.rd += 4
	return v
}

func (c *Channel) ReadI32() int32 {
	return int32(c.ReadU32())
}

func (c *Channel) ReadF32() float32 {
	if !c.readable(4, "read f32") {
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(c.buf[c.rd:]))
	c.rd += 4
	return v
}

func (c *Channel) ReadBool() bool {
	return c.ReadU8() != 0
}

// ReadCommand reads a command code of CommandWidth bytes.
func (c *Channel) ReadCommand() uint16 {
	return c.ReadU16()
}

func (c *Channel) ReadVec3() geom.Vec3 {
	if !c.readable(12, "read vec3") {
		return geom.Vec3{}
	}
	return geom.Vec3{X: c.ReadF32(), Y: c.ReadF32(), Z: c.ReadF32()}
}

func (c *Channel) ReadVec4() geom.Quat {
	if !c.readable(16, "read vec4") {
		return geom.Quat{}
	}
	return geom.Quat{X: c.ReadF32(), Y: c.ReadF32(), Z: c.ReadF32(), W: c.ReadF32()}
}

func (c *Channel) ReadPlane() geom.Plane {
	if !c.readable(16, "read plane") {
		return geom.Plane{}
	}
	n := geom.Vec3{X: c.ReadF32(), Y: c.ReadF32(), Z: c.ReadF32()}
	return geom.Plane{Normal: n, Constant: c.ReadF32()}
}

// ReadValue mirrors WriteValue.
func (c *Channel) ReadValue(kind Kind, withFlag bool) Value {
	v := Value{Kind: kind}
	if withFlag && c.ReadU8() == 0 {
		return v
	}
	if c.err != nil {
		return v
	}
	v.Present = true
	switch kind {
	case KindU8:
		v.U8 = c.ReadU8()
	case KindU16:
		v.U16 = c.ReadU16()
	case KindU32:
		v.U32 = c.ReadU32()
	case KindI32:
		v.I32 = c.ReadI32()
	case KindF32:
		v.F32 = c.ReadF32()
	case KindBool:
		v.Bool = c.ReadBool()
	case KindVec3:
		v.Vec3 = c.ReadVec3()
	case KindVec4:
		v.Vec4 = c.ReadVec4()
	case KindPlane:
		v.Plane = c.ReadPlane()
	case KindBlob:
		v.Blob, v.Present = c.NextBuffer()
	default:
		c.malformed(kind.String(), "unknown kind")
		v.Present = false
	}
	return v
}
