// Package types is the primitive type registry: a fixed set of named,
// fixed-size types with typed little-endian read/write against a byte
// view. Modeled on a TableColumn.Type tagging scheme generalized from a
// single int8 tag into a full registry, with a schema.FieldType-style
// enum for the Size()/String() shape.
package types

import (
	"encoding/binary"
	"math"

	"github.com/logv/kruda/internal/errs"
)

// ID is the wire type index. The numbering is fixed by the binary
// format and must never change.
type ID uint32

const (
	U32  ID = 0
	I32  ID = 1
	F32  ID = 2
	U16  ID = 3
	I16  ID = 4
	U8   ID = 5
	I8   ID = 6
	BSTR ID = 7
	VOID ID = 8
)

// Type describes one primitive: its wire name, byte width, bit width,
// and whether it is a "primitive" (fixed numeric/opaque) as opposed to
// the bounded byte-string, which carries its own variable-but-bounded
// width.
type Type struct {
	ID          ID
	Name        string
	ByteSize    int
	BitSize     int
	IsPrimitive bool
}

var registry = map[ID]Type{
	U32:  {ID: U32, Name: "U32", ByteSize: 4, BitSize: 32, IsPrimitive: true},
	I32:  {ID: I32, Name: "I32", ByteSize: 4, BitSize: 32, IsPrimitive: true},
	F32:  {ID: F32, Name: "F32", ByteSize: 4, BitSize: 32, IsPrimitive: true},
	U16:  {ID: U16, Name: "U16", ByteSize: 2, BitSize: 16, IsPrimitive: true},
	I16:  {ID: I16, Name: "I16", ByteSize: 2, BitSize: 16, IsPrimitive: true},
	U8:   {ID: U8, Name: "U8", ByteSize: 1, BitSize: 8, IsPrimitive: true},
	I8:   {ID: I8, Name: "I8", ByteSize: 1, BitSize: 8, IsPrimitive: true},
	BSTR: {ID: BSTR, Name: "BSTR", ByteSize: 0, BitSize: 0, IsPrimitive: false},
	VOID: {ID: VOID, Name: "VOID", ByteSize: 1, BitSize: 8, IsPrimitive: true},
}

var nameToID = func() map[string]ID {
	m := make(map[string]ID, len(registry))
	for id, t := range registry {
		m[t.Name] = id
	}
	return m
}()

// Lookup returns the Type registered under id, or an error if id is not
// one of the fixed wire types. Callers must reject unknown indices
// rather than guess at a width.
func Lookup(id ID) (Type, error) {
	t, ok := registry[id]
	if !ok {
		return Type{}, errs.MalformedTable("unknown type index %d", id)
	}
	return t, nil
}

// ByName resolves a registered type by its wire name (e.g. "U32").
func ByName(name string) (Type, error) {
	id, ok := nameToID[name]
	if !ok {
		return Type{}, errs.SchemaMismatch("unknown type name %q", name)
	}
	return registry[id], nil
}

// ReadUint reads a little-endian unsigned integer of the receiver's byte
// width from view[offset:] and widens it to uint64. Not valid for BSTR
// or VOID.
func (t Type) ReadUint(view []byte, offset int) uint64 {
	switch t.ID {
	case U8:
		return uint64(view[offset])
	case U16:
		return uint64(binary.LittleEndian.Uint16(view[offset : offset+2]))
	case U32:
		return uint64(binary.LittleEndian.Uint32(view[offset : offset+4]))
	default:
		panic("ReadUint: not an unsigned-readable type: " + t.Name)
	}
}

// WriteUint writes the low t.ByteSize bytes of v, little-endian, into
// view[offset:].
func (t Type) WriteUint(view []byte, offset int, v uint64) {
	switch t.ID {
	case U8:
		view[offset] = byte(v)
	case U16:
		binary.LittleEndian.PutUint16(view[offset:offset+2], uint16(v))
	case U32:
		binary.LittleEndian.PutUint32(view[offset:offset+4], uint32(v))
	default:
		panic("WriteUint: not an unsigned-readable type: " + t.Name)
	}
}

// ReadInt reads a little-endian signed integer of the receiver's byte
// width and widens (with sign extension) to int64.
func (t Type) ReadInt(view []byte, offset int) int64 {
	switch t.ID {
	case I8:
		return int64(int8(view[offset]))
	case I16:
		return int64(int16(binary.LittleEndian.Uint16(view[offset : offset+2])))
	case I32:
		return int64(int32(binary.LittleEndian.Uint32(view[offset : offset+4])))
	default:
		panic("ReadInt: not a signed-readable type: " + t.Name)
	}
}

// WriteInt writes the low t.ByteSize bytes of v, little-endian.
func (t Type) WriteInt(view []byte, offset int, v int64) {
	switch t.ID {
	case I8:
		view[offset] = byte(int8(v))
	case I16:
		binary.LittleEndian.PutUint16(view[offset:offset+2], uint16(int16(v)))
	case I32:
		binary.LittleEndian.PutUint32(view[offset:offset+4], uint32(int32(v)))
	default:
		panic("WriteInt: not a signed-readable type: " + t.Name)
	}
}

// ReadFloat32 reads a little-endian IEEE-754 float32. Only valid for F32.
func (t Type) ReadFloat32(view []byte, offset int) float32 {
	if t.ID != F32 {
		panic("ReadFloat32: not F32: " + t.Name)
	}
	bits := binary.LittleEndian.Uint32(view[offset : offset+4])
	return math.Float32frombits(bits)
}

// WriteFloat32 writes a little-endian IEEE-754 float32. Only valid for F32.
func (t Type) WriteFloat32(view []byte, offset int, v float32) {
	if t.ID != F32 {
		panic("WriteFloat32: not F32: " + t.Name)
	}
	binary.LittleEndian.PutUint32(view[offset:offset+4], math.Float32bits(v))
}

// IsNumeric reports whether comparisons like GREATER_THAN are legal on
// values of this type. BSTR and VOID are not numeric.
func (t Type) IsNumeric() bool {
	switch t.ID {
	case U32, I32, F32, U16, I16, U8, I8:
		return true
	default:
		return false
	}
}

// IsFloat reports whether this type's numeric values are floating point.
func (t Type) IsFloat() bool {
	return t.ID == F32
}

// IsSigned reports whether this type's integer values are signed.
func (t Type) IsSigned() bool {
	switch t.ID {
	case I8, I16, I32:
		return true
	default:
		return false
	}
}
