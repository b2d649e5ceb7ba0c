package table

import (
	"github.com/logv/kruda/bstr"
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/types"
)

// columnAccessor is precomputed once per column at cursor construction:
// it captures the column's type and a fieldBytes closure
// that, given a row index, returns that row's bytes for this column.
// fieldBytes re-derives the table's data view on every call rather than
// caching it, so it always reflects the table's current backing array.
type columnAccessor struct {
	name        string
	typeID      types.ID
	fieldLength uint32
	fieldBytes  func(index uint32) []byte
}

func buildAccessors(t *Table) []columnAccessor {
	cols := t.Columns()
	layout := t.Layout()
	rowStep := t.RowStep()
	out := make([]columnAccessor, len(cols))

	for i, c := range cols {
		c := c
		switch layout {
		case RowMajor:
			out[i] = columnAccessor{
				name: c.Name, typeID: c.TypeID, fieldLength: c.FieldLength,
				fieldBytes: func(index uint32) []byte {
					start := index*rowStep + c.FieldOffset
					return t.DataView()[start : start+c.FieldLength]
				},
			}
		case ColumnMajor:
			out[i] = columnAccessor{
				name: c.Name, typeID: c.TypeID, fieldLength: c.FieldLength,
				fieldBytes: func(index uint32) []byte {
					start := c.DataOffset + index*c.FieldLength
					return t.DataView()[start : start+c.FieldLength]
				},
			}
		}
	}
	return out
}

// Cursor is a moving typed view over one row of a table.
type Cursor struct {
	table     *Table
	index     uint32
	accessors []columnAccessor
	byName    map[string]int
}

// NewCursor builds a cursor positioned at row 0. It is invalid to read
// from a table with zero rows until AddRows has reserved at least one.
func NewCursor(t *Table) *Cursor {
	accessors := buildAccessors(t)
	byName := make(map[string]int, len(accessors))
	for i, a := range accessors {
		byName[a.name] = i
	}
	return &Cursor{table: t, accessors: accessors, byName: byName}
}

// Index returns the cursor's current row index.
func (c *Cursor) Index() uint32 { return c.index }

// Seek moves the cursor to row i, failing if i is outside the table's
// current row_count.
func (c *Cursor) Seek(i uint32) error {
	if i >= c.table.RowCount() {
		return errs.OutOfBounds("row cursor index %d >= row_count %d", i, c.table.RowCount())
	}
	c.index = i
	return nil
}

// Next advances to the following row, returning false once it would run
// past the table's current row_count.
func (c *Cursor) Next() bool {
	if c.index+1 >= c.table.RowCount() {
		return false
	}
	c.index++
	return true
}

// FieldAccessor exposes a column's pre-resolved byte-window closure and
// registered type. The closure tracks the cursor's current index on
// every call, so callers that hold onto it across Seek/Next (like the
// filter engine's compiled predicates) see each row without re-doing
// the column-name lookup per row.
func (c *Cursor) FieldAccessor(name string) (func() []byte, types.Type, error) {
	a, err := c.column(name)
	if err != nil {
		return nil, types.Type{}, err
	}
	typ := columnTypeOrPanic(a.typeID)
	idx := &c.index
	return func() []byte { return a.fieldBytes(*idx) }, typ, nil
}

func (c *Cursor) column(name string) (columnAccessor, error) {
	i, ok := c.byName[name]
	if !ok {
		return columnAccessor{}, errs.SchemaMismatch("unknown column %q", name)
	}
	return c.accessors[i], nil
}

// Uint reads an unsigned integer column (U8, U16, or U32).
func (c *Cursor) Uint(name string) (uint64, error) {
	a, err := c.column(name)
	if err != nil {
		return 0, err
	}
	typ := columnTypeOrPanic(a.typeID)
	if typ.ID != types.U8 && typ.ID != types.U16 && typ.ID != types.U32 {
		return 0, errs.SchemaMismatch("column %q is %s, not an unsigned integer type", name, typ.Name)
	}
	return typ.ReadUint(a.fieldBytes(c.index), 0), nil
}

// Int reads a signed integer column (I8, I16, I32).
func (c *Cursor) Int(name string) (int64, error) {
	a, err := c.column(name)
	if err != nil {
		return 0, err
	}
	typ := columnTypeOrPanic(a.typeID)
	if !typ.IsSigned() {
		return 0, errs.SchemaMismatch("column %q is %s, not a signed integer type", name, typ.Name)
	}
	return typ.ReadInt(a.fieldBytes(c.index), 0), nil
}

// Float32 reads an F32 column.
func (c *Cursor) Float32(name string) (float32, error) {
	a, err := c.column(name)
	if err != nil {
		return 0, err
	}
	typ := columnTypeOrPanic(a.typeID)
	if typ.ID != types.F32 {
		return 0, errs.SchemaMismatch("column %q is %s, not F32", name, typ.Name)
	}
	return typ.ReadFloat32(a.fieldBytes(c.index), 0), nil
}

// String returns a live, pointer-backed bounded string handle: it
// re-reads the field's bytes on every access, including across later
// writes to the same row.
func (c *Cursor) String(name string) (bstr.String, error) {
	a, err := c.column(name)
	if err != nil {
		return bstr.String{}, err
	}
	if a.typeID != types.BSTR {
		return bstr.String{}, errs.SchemaMismatch("column %q is not BSTR", name)
	}
	idx := c.index
	return bstr.WrapPointerBacked(func() []byte { return a.fieldBytes(idx) }, int(a.fieldLength)), nil
}

// StringCopy materializes the current row's string column as a Go
// string.
func (c *Cursor) StringCopy(name string) (string, error) {
	s, err := c.String(name)
	if err != nil {
		return "", err
	}
	return s.ToUTF8String(), nil
}

// Value returns the current row's field as a Go value of the natural
// type for its column, for callers that want dynamic dispatch rather
// than a typed accessor per column.
func (c *Cursor) Value(name string) (interface{}, error) {
	a, err := c.column(name)
	if err != nil {
		return nil, err
	}
	typ := columnTypeOrPanic(a.typeID)
	switch {
	case typ.ID == types.BSTR:
		return c.String(name)
	case typ.IsFloat():
		return c.Float32(name)
	case typ.IsSigned():
		return c.Int(name)
	default:
		return c.Uint(name)
	}
}

// SetUint writes an unsigned integer column.
func (c *Cursor) SetUint(name string, v uint64) error {
	a, err := c.column(name)
	if err != nil {
		return err
	}
	typ := columnTypeOrPanic(a.typeID)
	if typ.ID != types.U8 && typ.ID != types.U16 && typ.ID != types.U32 {
		return errs.SchemaMismatch("column %q is %s, not an unsigned integer type", name, typ.Name)
	}
	typ.WriteUint(a.fieldBytes(c.index), 0, v)
	return nil
}

// SetInt writes a signed integer column.
func (c *Cursor) SetInt(name string, v int64) error {
	a, err := c.column(name)
	if err != nil {
		return err
	}
	typ := columnTypeOrPanic(a.typeID)
	if !typ.IsSigned() {
		return errs.SchemaMismatch("column %q is %s, not a signed integer type", name, typ.Name)
	}
	typ.WriteInt(a.fieldBytes(c.index), 0, v)
	return nil
}

// SetFloat32 writes an F32 column.
func (c *Cursor) SetFloat32(name string, v float32) error {
	a, err := c.column(name)
	if err != nil {
		return err
	}
	typ := columnTypeOrPanic(a.typeID)
	if typ.ID != types.F32 {
		return errs.SchemaMismatch("column %q is %s, not F32", name, typ.Name)
	}
	typ.WriteFloat32(a.fieldBytes(c.index), 0, v)
	return nil
}

// SetString writes a BSTR column, truncating (release) or erroring
// (debug, klog.Enabled) if s is longer than the field can hold minus its
// length byte.
func (c *Cursor) SetString(name string, s string) (truncated bool, err error) {
	a, colErr := c.column(name)
	if colErr != nil {
		return false, colErr
	}
	if a.typeID != types.BSTR {
		return false, errs.SchemaMismatch("column %q is not BSTR", name)
	}
	return bstr.WriteInto(a.fieldBytes(c.index), int(a.fieldLength), s)
}
