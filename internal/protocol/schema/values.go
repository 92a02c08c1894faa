package schema

import (
	"github.com/danmuck/simlink/internal/geom"
	"github.com/danmuck/simlink/internal/protocol/channel"
)

// None is an absent optional value.
func None() channel.Value { return channel.Value{} }

func U8(v uint8) channel.Value {
	return channel.Value{Kind: channel.KindU8, Present: true, U8: v}
}

func U16(v uint16) channel.Value {
	return channel.Value{Kind: channel.KindU16, Present: true, U16: v}
}

func U32(v uint32) channel.Value {
	return channel.Value{Kind: channel.KindU32, Present: true, U32: v}
}

func I32(v int32) channel.Value {
	return channel.Value{Kind: channel.KindI32, Present: true, I32: v}
}

func F32(v float32) channel.Value {
	return channel.Value{Kind: channel.KindF32, Present: true, F32: v}
}

func Bool(v bool) channel.Value {
	return channel.Value{Kind: channel.KindBool, Present: true, Bool: v}
}

func Vec3(v geom.Vec3) channel.Value {
	return channel.Value{Kind: channel.KindVec3, Present: true, Vec3: v}
}

func Vec4(v geom.Quat) channel.Value {
	return channel.Value{Kind: channel.KindVec4, Present: true, Vec4: v}
}

func Plane(v geom.Plane) channel.Value {
	return channel.Value{Kind: channel.KindPlane, Present: true, Plane: v}
}

// Blob attaches b by reference. A nil slice is absent.
func Blob(b []byte) channel.Value {
	if b == nil {
		return None()
	}
	return channel.Value{Kind: channel.KindBlob, Present: true, Blob: b}
}

func OptU16(v *uint16) channel.Value {
	if v == nil {
		return None()
	}
	return U16(*v)
}

func OptI32(v *int32) channel.Value {
	if v == nil {
		return None()
	}
	return I32(*v)
}

func OptF32(v *float32) channel.Value {
	if v == nil {
		return None()
	}
	return F32(*v)
}

func OptVec3(v *geom.Vec3) channel.Value {
	if v == nil {
		return None()
	}
	return Vec3(*v)
}

func OptVec4(v *geom.Quat) channel.Value {
	if v == nil {
		return None()
	}
	return Vec4(*v)
}

func OptPlane(v *geom.Plane) channel.Value {
	if v == nil {
		return None()
	}
	return Plane(*v)
}
