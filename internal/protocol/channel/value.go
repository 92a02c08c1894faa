package channel

import (
	"fmt"

	"github.com/danmuck/simlink/internal/geom"
)

// Kind identifies a field encoding.
type Kind uint8

const (
	KindU8 Kind = iota + 1
	KindU16
	KindU32
	KindI32
	KindF32
	KindBool
	KindVec3
	KindVec4
	KindPlane
	// KindBlob carries no inline bytes; the payload travels in the side channel.
	KindBlob
)

// Size is the number of inline bytes the kind occupies, excluding any presence flag.
func (k Kind) Size() int {
	switch k {
	case KindU8, KindBool:
		return 1
	case KindU16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindVec3:
		return 12
	case KindVec4, KindPlane:
		return 16
	default:
		return 0
	}
}

func (k Kind) Valid() bool {
	return k >= KindU8 && k <= KindBlob
}

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindI32:
		return "i32"
	case KindF32:
		return "f32"
	case KindBool:
		return "bool"
	case KindVec3:
		return "vec3"
	case KindVec4:
		return "vec4"
	case KindPlane:
		return "plane"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one decoded or to-be-encoded field. Only the member matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Present bool
	U8      uint8
	U16     uint16
	U32     uint32
	I32     int32
	F32     float32
	Bool    bool
	Vec3    geom.Vec3
	Vec4    geom.Quat
	Plane   geom.Plane
	Blob    []byte
}

// Finite reports whether every float carried by v is finite. Absent values are finite.
func (v Value) Finite() bool {
	if !v.Present {
		return true
	}
	switch v.Kind {
	case KindF32:
		return geom.Finite32(v.F32)
	case KindVec3:
		return v.Vec3.Finite()
	case KindVec4:
		return v.Vec4.Finite()
	case KindPlane:
		return v.Plane.Finite()
	default:
		return true
	}
}

// EncodedSize is the number of inline bytes WriteValue emits for v.
func EncodedSize(kind Kind, v Value, withFlag bool) int {
	n := 0
	if withFlag {
		n = 1
		if !v.Present {
			return n
		}
	}
	return n + kind.Size()
}
