// Package schema is the single source of truth for frame field layouts.
// Encode and Decode both walk the same table, so a command's writer and
// reader cannot drift apart.
package schema

import (
	"fmt"

	"github.com/danmuck/simlink/internal/engine"
	"github.com/danmuck/simlink/internal/protocol/channel"
)

// Operator selects the handler family for a frame.
type Operator uint8

const (
	Creator Operator = iota
	Modifier
	Querier
	Cleaner
	// Reporter frames flow from the engine side back to the host.
	Reporter
)

// OperatorCount sizes per-family tables.
const OperatorCount = int(Reporter) + 1

func (o Operator) Valid() bool {
	return int(o) < OperatorCount
}

func (o Operator) String() string {
	switch o {
	case Creator:
		return "creator"
	case Modifier:
		return "modifier"
	case Querier:
		return "querier"
	case Cleaner:
		return "cleaner"
	case Reporter:
		return "reporter"
	default:
		return fmt.Sprintf("operator(%d)", uint8(o))
	}
}

// Command is a closed enum of command codes. Codes are dense so tables can be
// fixed-size arrays indexed by Command.
type Command uint16

const (
	CreateBody Command = iota + 1
	CreateConstraint

	SetPosition
	SetRotation
	SetLinearVelocity
	SetAngularVelocity
	SetMotionType
	AddImpulse
	SetGravityFactor
	SetConstraintEnabled

	GetTransform
	GetLinearVelocity

	DestroyBody
	DestroyConstraint

	ReportTransform
	ReportQueryTransform
	ReportVelocity
	ReportConstraintBroken
	ReportQueryMiss

	commandEnd
)

// CommandCount sizes per-command tables. Code 0 is never assigned.
const CommandCount = int(commandEnd)

func (c Command) Valid() bool {
	return c > 0 && c < commandEnd
}

func (c Command) String() string {
	if !c.Valid() {
		return fmt.Sprintf("command(%d)", uint16(c))
	}
	return layouts[c].Name
}

// Field names shared by layouts and handlers.
const (
	FieldHandle         = "handle"
	FieldKind           = "kind"
	FieldMotion         = "motion"
	FieldShape          = "shape"
	FieldPosition       = "position"
	FieldRotation       = "rotation"
	FieldLinearVelocity = "linear_velocity"
	FieldMass           = "mass"
	FieldGravityFactor  = "gravity_factor"
	FieldHalfExtents    = "half_extents"
	FieldRadius         = "radius"
	FieldPlane          = "plane"
	FieldGroup          = "group"
	FieldMask           = "mask"
	FieldMesh           = "mesh"

	FieldBodyA          = "body_a"
	FieldBodyB          = "body_b"
	FieldType           = "type"
	FieldBreakThreshold = "break_threshold"

	FieldVelocity = "velocity"
	FieldImpulse  = "impulse"
	FieldFactor   = "factor"
	FieldEnabled  = "enabled"
	FieldRequest  = "request"
)

// Field declares one positional field of a command.
type Field struct {
	Name     string
	Kind     channel.Kind
	Optional bool
	// Limit, when non-zero, is the exclusive upper bound of a u8 enum field.
	Limit uint8
}

// Layout is the full wire shape of one command.
type Layout struct {
	Command  Command
	Operator Operator
	Name     string
	Fields   []Field
}

// Index returns the position of the named field or -1.
func (l Layout) Index(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func required(name string, kind channel.Kind) Field {
	return Field{Name: name, Kind: kind}
}

func optional(name string, kind channel.Kind) Field {
	return Field{Name: name, Kind: kind, Optional: true}
}

func enum(name string, limit uint8) Field {
	return Field{Name: name, Kind: channel.KindU8, Limit: limit}
}

var layouts = [CommandCount]Layout{
	CreateBody: {
		Operator: Creator,
		Name:     "CreateBody",
		Fields: []Field{
			required(FieldHandle, channel.KindU32),
			enum(FieldKind, uint8(engine.BodyKindCount)),
			enum(FieldMotion, uint8(engine.MotionTypeCount)),
			enum(FieldShape, uint8(engine.ShapeCount)),
			required(FieldPosition, channel.KindVec3),
			optional(FieldRotation, channel.KindVec4),
			optional(FieldLinearVelocity, channel.KindVec3),
			optional(FieldMass, channel.KindF32),
			optional(FieldGravityFactor, channel.KindF32),
			optional(FieldHalfExtents, channel.KindVec3),
			optional(FieldRadius, channel.KindF32),
			optional(FieldPlane, channel.KindPlane),
			optional(FieldGroup, channel.KindI32),
			optional(FieldMask, channel.KindU16),
			optional(FieldMesh, channel.KindBlob),
		},
	},
	CreateConstraint: {
		Operator: Creator,
		Name:     "CreateConstraint",
		Fields: []Field{
			required(FieldHandle, channel.KindU32),
			required(FieldBodyA, channel.KindU32),
			required(FieldBodyB, channel.KindU32),
			enum(FieldType, uint8(engine.ConstraintTypeCount)),
			optional(FieldBreakThreshold, channel.KindF32),
		},
	},
	SetPosition: {
		Operator: Modifier,
		Name:     "SetPosition",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldPosition, channel.KindVec3)},
	},
	SetRotation: {
		Operator: Modifier,
		Name:     "SetRotation",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldRotation, channel.KindVec4)},
	},
	SetLinearVelocity: {
		Operator: Modifier,
		Name:     "SetLinearVelocity",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldVelocity, channel.KindVec3)},
	},
	SetAngularVelocity: {
		Operator: Modifier,
		Name:     "SetAngularVelocity",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldVelocity, channel.KindVec3)},
	},
	SetMotionType: {
		Operator: Modifier,
		Name:     "SetMotionType",
		Fields:   []Field{required(FieldHandle, channel.KindU32), enum(FieldMotion, uint8(engine.MotionTypeCount))},
	},
	AddImpulse: {
		Operator: Modifier,
		Name:     "AddImpulse",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldImpulse, channel.KindVec3)},
	},
	SetGravityFactor: {
		Operator: Modifier,
		Name:     "SetGravityFactor",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldFactor, channel.KindF32)},
	},
	SetConstraintEnabled: {
		Operator: Modifier,
		Name:     "SetConstraintEnabled",
		Fields:   []Field{required(FieldHandle, channel.KindU32), required(FieldEnabled, channel.KindBool)},
	},
	GetTransform: {
		Operator: Querier,
		Name:     "GetTransform",
		Fields:   []Field{required(FieldRequest, channel.KindU32), required(FieldHandle, channel.KindU32)},
	},
	GetLinearVelocity: {
		Operator: Querier,
		Name:     "GetLinearVelocity",
		Fields:   []Field{required(FieldRequest, channel.KindU32), required(FieldHandle, channel.KindU32)},
	},
	DestroyBody: {
		Operator: Cleaner,
		Name:     "DestroyBody",
		Fields:   []Field{required(FieldHandle, channel.KindU32)},
	},
	DestroyConstraint: {
		Operator: Cleaner,
		Name:     "DestroyConstraint",
		Fields:   []Field{required(FieldHandle, channel.KindU32)},
	},
	ReportTransform: {
		Operator: Reporter,
		Name:     "ReportTransform",
		Fields: []Field{
			required(FieldHandle, channel.KindU32),
			required(FieldPosition, channel.KindVec3),
			required(FieldRotation, channel.KindVec4),
		},
	},
	ReportQueryTransform: {
		Operator: Reporter,
		Name:     "ReportQueryTransform",
		Fields: []Field{
			required(FieldRequest, channel.KindU32),
			required(FieldHandle, channel.KindU32),
			required(FieldPosition, channel.KindVec3),
			required(FieldRotation, channel.KindVec4),
		},
	},
	ReportVelocity: {
		Operator: Reporter,
		Name:     "ReportVelocity",
		Fields: []Field{
			required(FieldRequest, channel.KindU32),
			required(FieldHandle, channel.KindU32),
			required(FieldVelocity, channel.KindVec3),
		},
	},
	ReportConstraintBroken: {
		Operator: Reporter,
		Name:     "ReportConstraintBroken",
		Fields:   []Field{required(FieldHandle, channel.KindU32)},
	},
	ReportQueryMiss: {
		Operator: Reporter,
		Name:     "ReportQueryMiss",
		Fields:   []Field{required(FieldRequest, channel.KindU32), required(FieldHandle, channel.KindU32)},
	},
}

func init() {
	for i := 1; i < CommandCount; i++ {
		layouts[i].Command = Command(i)
	}
}

// Lookup returns the layout of cmd.
func Lookup(cmd Command) (Layout, bool) {
	if !cmd.Valid() {
		return Layout{}, false
	}
	return layouts[cmd], true
}

// OperatorOf returns the family cmd belongs to.
func OperatorOf(cmd Command) (Operator, bool) {
	l, ok := Lookup(cmd)
	return l.Operator, ok
}

// Commands lists every command of op in code order.
func Commands(op Operator) []Command {
	out := make([]Command, 0, 8)
	for i := 1; i < CommandCount; i++ {
		if layouts[i].Operator == op {
			out = append(out, Command(i))
		}
	}
	return out
}
