// Package table implements a self-describing binary table format: a
// header-embedded schema followed by row-major or column-major
// fixed-width data, a row cursor over it, and a filter-result proxy
// table. The header's layout is a length-prefixed sequence of
// fixed-width fields followed by per-column descriptors, generalized to
// support either a row-major or column-major data region plus atomic
// row_count/data_length words.
package table

import (
	"encoding/binary"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/types"
)

// Layout selects how row data is physically packed.
type Layout uint32

const (
	RowMajor    Layout = 0
	ColumnMajor Layout = 1
)

const (
	fixedHeaderWords = 7 // header_length, column_count, row_count, row_length, row_step, data_length, layout
	fixedHeaderSize  = fixedHeaderWords * 4
	columnDescSize   = 16 // field_length, data_offset, field_offset, type_index

	offHeaderLength = 0
	offColumnCount  = 4
	offRowCount     = 8
	offRowLength    = 12
	offRowStep      = 16
	offDataLength   = 20
	offLayout       = 24
)

// ColumnDescriptor is one column's position and type within a table, as
// recorded in the header.
type ColumnDescriptor struct {
	Name        string
	FieldLength uint32
	DataOffset  uint32
	FieldOffset uint32
	TypeID      types.ID
}

// ColumnSpec is the input to BuildHeader: a column's name and type, plus
// an explicit Size for BSTR columns (ignored for primitive types, whose
// size is fixed by the type registry).
type ColumnSpec struct {
	Name   string
	TypeID types.ID
	Size   uint32
}

// Header is a parsed view over a table's header bytes. Reading
// RowCount/DataLength and calling AddRows go through atomic 32-bit
// operations directly against the underlying bytes, since both words
// can be mutated concurrently by writers racing to append rows.
type Header struct {
	raw     []byte
	columns []ColumnDescriptor
	byName  map[string]int
}

func roundUp4(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return ((n - 1) | 3) + 1
}

// BuildHeader sorts columns by type index (groups equal-width fields
// together and puts BSTR, whose type index is above every numeric
// type's, after them; only a VOID column sorts later),
// compute offsets for the chosen layout, and serialize. The returned
// bytes have zero rows and a layout-appropriate data_length of zero;
// callers later copy them into a block's header region.
func BuildHeader(specs []ColumnSpec, memoryLength uint32, layout Layout) ([]byte, error) {
	if len(specs) == 0 {
		return nil, errs.MalformedTable("a table needs at least one column")
	}

	sorted := make([]ColumnSpec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TypeID < sorted[j].TypeID })

	seen := make(map[string]bool, len(sorted))
	cols := make([]ColumnDescriptor, len(sorted))
	var rowLength uint32

	for i, s := range sorted {
		if seen[s.Name] {
			return nil, errs.MalformedTable("duplicate column name %q", s.Name)
		}
		seen[s.Name] = true

		typ, err := types.Lookup(s.TypeID)
		if err != nil {
			return nil, err
		}

		var fieldLen uint32
		if typ.ID == types.BSTR {
			if s.Size == 0 || s.Size > 256 || s.Size%4 != 0 {
				return nil, errs.MalformedTable("bstr column %q size %d must be a positive multiple of 4, <= 256", s.Name, s.Size)
			}
			fieldLen = s.Size
		} else {
			fieldLen = uint32(typ.ByteSize)
		}

		cols[i] = ColumnDescriptor{Name: s.Name, FieldLength: fieldLen, TypeID: s.TypeID}
		rowLength += fieldLen
	}

	var rowStep uint32
	switch layout {
	case RowMajor:
		var offset uint32
		for i := range cols {
			cols[i].FieldOffset = offset
			cols[i].DataOffset = 0
			offset += cols[i].FieldLength
		}
		rowStep = roundUp4(rowLength)
	case ColumnMajor:
		if rowLength == 0 {
			return nil, errs.MalformedTable("column-major table has zero row length")
		}
		rowCount := memoryLength / rowLength
		if rowCount == 0 {
			return nil, errs.MalformedTable("memory length %d too small for row length %d in column-major layout", memoryLength, rowLength)
		}
		var stripe uint32
		for i := range cols {
			cols[i].DataOffset = stripe
			cols[i].FieldOffset = 0
			stripe += cols[i].FieldLength * rowCount
		}
		rowStep = cols[0].FieldLength
	default:
		return nil, errs.MalformedTable("unknown layout code %d", layout)
	}

	headerLen := fixedHeaderSize + len(cols)*columnDescSize
	for _, c := range cols {
		headerLen += 1 + len(c.Name)
	}
	headerLen = int(roundUp4(uint32(headerLen)))

	raw := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(raw[offHeaderLength:], uint32(headerLen))
	binary.LittleEndian.PutUint32(raw[offColumnCount:], uint32(len(cols)))
	binary.LittleEndian.PutUint32(raw[offRowCount:], 0)
	binary.LittleEndian.PutUint32(raw[offRowLength:], rowLength)
	binary.LittleEndian.PutUint32(raw[offRowStep:], rowStep)
	binary.LittleEndian.PutUint32(raw[offDataLength:], 0)
	binary.LittleEndian.PutUint32(raw[offLayout:], uint32(layout))

	pos := fixedHeaderSize
	for _, c := range cols {
		binary.LittleEndian.PutUint32(raw[pos:], c.FieldLength)
		binary.LittleEndian.PutUint32(raw[pos+4:], c.DataOffset)
		binary.LittleEndian.PutUint32(raw[pos+8:], c.FieldOffset)
		binary.LittleEndian.PutUint32(raw[pos+12:], uint32(c.TypeID))
		pos += columnDescSize
	}
	for _, c := range cols {
		raw[pos] = byte(len(c.Name))
		pos++
		copy(raw[pos:], c.Name)
		pos += len(c.Name)
	}
	// remaining bytes to headerLen are already zero from make().

	return raw, nil
}

// ParseHeader reverses BuildHeader's layout against live bytes — view
// must alias the table's actual header region (e.g. block.View()[:n]),
// not a copy, so AddRows's atomic stores are visible to every holder of
// the table.
func ParseHeader(view []byte) (*Header, error) {
	if len(view) < fixedHeaderSize {
		return nil, errs.MalformedTable("header region of %d bytes is smaller than the fixed header", len(view))
	}

	headerLen := binary.LittleEndian.Uint32(view[offHeaderLength:])
	if headerLen%4 != 0 || int(headerLen) > len(view) {
		return nil, errs.MalformedTable("invalid header_length %d", headerLen)
	}
	raw := view[:headerLen]

	columnCount := binary.LittleEndian.Uint32(raw[offColumnCount:])
	rowLength := binary.LittleEndian.Uint32(raw[offRowLength:])
	layout := Layout(binary.LittleEndian.Uint32(raw[offLayout:]))
	if layout != RowMajor && layout != ColumnMajor {
		return nil, errs.MalformedTable("unknown layout code %d", layout)
	}

	pos := fixedHeaderSize
	need := int(columnCount) * columnDescSize
	if pos+need > len(raw) {
		return nil, errs.MalformedTable("header too short for %d column descriptors", columnCount)
	}

	cols := make([]ColumnDescriptor, columnCount)
	for i := 0; i < int(columnCount); i++ {
		fieldLength := binary.LittleEndian.Uint32(raw[pos:])
		dataOffset := binary.LittleEndian.Uint32(raw[pos+4:])
		fieldOffset := binary.LittleEndian.Uint32(raw[pos+8:])
		typeIdx := binary.LittleEndian.Uint32(raw[pos+12:])

		typ, err := types.Lookup(types.ID(typeIdx))
		if err != nil {
			return nil, err
		}
		if layout == ColumnMajor && fieldOffset != 0 {
			return nil, errs.MalformedTable("column-major column %d has non-zero in-row field_offset %d", i, fieldOffset)
		}
		if typ.ID != types.BSTR && uint32(typ.ByteSize) != fieldLength {
			return nil, errs.MalformedTable("column %d field_length %d does not match type %s byte size %d", i, fieldLength, typ.Name, typ.ByteSize)
		}

		cols[i] = ColumnDescriptor{FieldLength: fieldLength, DataOffset: dataOffset, FieldOffset: fieldOffset, TypeID: types.ID(typeIdx)}
		pos += columnDescSize
	}

	byName := make(map[string]int, columnCount)
	for i := range cols {
		if pos >= len(raw) {
			return nil, errs.MalformedTable("header too short for column name %d", i)
		}
		nameLen := int(raw[pos])
		pos++
		if pos+nameLen > len(raw) {
			return nil, errs.MalformedTable("header too short for column name %d", i)
		}
		name := string(raw[pos : pos+nameLen])
		pos += nameLen

		if _, dup := byName[name]; dup {
			return nil, errs.MalformedTable("duplicate column name %q", name)
		}
		cols[i].Name = name
		byName[name] = i
	}

	var sumLen uint32
	for _, c := range cols {
		sumLen += c.FieldLength
		if layout == RowMajor && c.FieldOffset+c.FieldLength > rowLength {
			return nil, errs.MalformedTable("column %q field_offset+field_length exceeds row_length", c.Name)
		}
	}
	if sumLen != rowLength {
		return nil, errs.MalformedTable("row_length %d does not equal sum of column widths %d", rowLength, sumLen)
	}

	return &Header{raw: raw, columns: cols, byName: byName}, nil
}

func (h *Header) HeaderLength() uint32 { return binary.LittleEndian.Uint32(h.raw[offHeaderLength:]) }
func (h *Header) ColumnCount() uint32  { return binary.LittleEndian.Uint32(h.raw[offColumnCount:]) }
func (h *Header) RowLength() uint32    { return binary.LittleEndian.Uint32(h.raw[offRowLength:]) }
func (h *Header) RowStep() uint32      { return binary.LittleEndian.Uint32(h.raw[offRowStep:]) }
func (h *Header) Layout() Layout       { return Layout(binary.LittleEndian.Uint32(h.raw[offLayout:])) }
func (h *Header) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(h.columns))
	copy(out, h.columns)
	return out
}

// ColumnByName returns the descriptor and position of the named column.
func (h *Header) ColumnByName(name string) (ColumnDescriptor, int, error) {
	i, ok := h.byName[name]
	if !ok {
		return ColumnDescriptor{}, 0, errs.SchemaMismatch("unknown column %q", name)
	}
	return h.columns[i], i, nil
}

func (h *Header) rowCountPtr() *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&h.raw[offRowCount]))
}

func (h *Header) dataLengthPtr() *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&h.raw[offDataLength]))
}

func (h *Header) RowCount() uint32   { return h.rowCountPtr().Load() }
func (h *Header) DataLength() uint32 { return h.dataLengthPtr().Load() }

// AddRows atomically adds n to row_count and n*row_length to
// data_length, returning the row count observed before the add. The
// caller is responsible for n*row_length fitting within the table's
// data region.
func (h *Header) AddRows(n uint32) uint32 {
	old := h.rowCountPtr().Add(n) - n
	h.dataLengthPtr().Add(n * h.RowLength())
	return old
}

// SetRowCount and SetDataLength are used once, non-concurrently, by the
// filter engine when finalizing a result table, where the final values
// are computed directly rather than accumulated.
func (h *Header) SetRowCount(n uint32)    { h.rowCountPtr().Store(n) }
func (h *Header) SetDataLength(n uint32)  { h.dataLengthPtr().Store(n) }
