package table

import (
	"github.com/logv/kruda/heap"
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/types"
)

// Table wraps a memory block plus its parsed header, a
// "[Header][Data]" layout. It never copies the block's bytes: View
// always re-derives from the block's current backing region.
type Table struct {
	block  heap.Block
	header *Header
}

// Open parses a table header from the start of block's current view.
func Open(block heap.Block) (*Table, error) {
	h, err := ParseHeader(block.View())
	if err != nil {
		return nil, err
	}
	return &Table{block: block, header: h}, nil
}

// Create allocates a new block from h sized for header+memoryLength,
// serializes the header described by specs/layout into it, and returns
// the opened table. memoryLength bounds the data region the caller
// intends to fill via AddRows (e.g. result_row_width * source.RowCount()
// for a filter result).
func Create(h *heap.Heap, specs []ColumnSpec, memoryLength uint32, layout Layout) (*Table, error) {
	headerBytes, err := BuildHeader(specs, memoryLength, layout)
	if err != nil {
		return nil, err
	}
	block, err := h.AllocateZeroed(uint32(len(headerBytes)) + memoryLength)
	if err != nil {
		return nil, err
	}
	copy(block.View(), headerBytes)
	return Open(block)
}

func (t *Table) Block() heap.Block { return t.block }
func (t *Table) Header() *Header   { return t.header }
func (t *Table) RowCount() uint32  { return t.header.RowCount() }
func (t *Table) RowLength() uint32 { return t.header.RowLength() }
func (t *Table) RowStep() uint32   { return t.header.RowStep() }
func (t *Table) Layout() Layout    { return t.header.Layout() }

// Columns lists the table's column descriptors in their header order.
func (t *Table) Columns() []ColumnDescriptor { return t.header.Columns() }

// ColumnByName resolves a column by name.
func (t *Table) ColumnByName(name string) (ColumnDescriptor, int, error) {
	return t.header.ColumnByName(name)
}

// DataView returns the table's current data region: header.DataLength
// bytes starting right after the header, aliasing the block's live
// backing array.
func (t *Table) DataView() []byte {
	start := t.header.HeaderLength()
	end := start + t.header.DataLength()
	return t.block.View()[start:end]
}

// AddRows atomically reserves n additional rows by bumping the header's
// row_count and data_length, after checking the reservation still fits
// the block's allocated payload. It returns the row count observed
// before the reservation — the caller writes rows starting at that
// index.
func (t *Table) AddRows(n uint32) (uint32, error) {
	needed := uint64(t.header.HeaderLength()) + uint64(t.header.DataLength()) + uint64(n)*uint64(t.header.RowLength())
	if needed > uint64(t.block.PayloadSize()) {
		return 0, errs.OutOfBounds("add_rows(%d) would need %d bytes, block only has %d", n, needed, t.block.PayloadSize())
	}
	return t.header.AddRows(n), nil
}

// Shrink trims the table's underlying block down to newSize bytes via h
// (which must be the heap the block was allocated from), and keeps the
// table's own block handle in sync so a later Block()/Free call sees the
// block's true, shrunk payload size rather than the stale one. Used by
// the filter engine to release an oversized result allocation once the
// final row count is known.
func (t *Table) Shrink(h *heap.Heap, newSize uint32) error {
	b := t.block
	if err := h.Shrink(&b, newSize); err != nil {
		return err
	}
	t.block = b
	return nil
}

// Describe is a schema-introspection convenience for exposing a table's
// shape without a caller having to walk the header bytes by hand.
type Description struct {
	RowCount  uint32
	RowLength uint32
	RowStep   uint32
	Layout    Layout
	Columns   []ColumnDescriptor
}

func (t *Table) Describe() Description {
	return Description{
		RowCount:  t.RowCount(),
		RowLength: t.RowLength(),
		RowStep:   t.RowStep(),
		Layout:    t.Layout(),
		Columns:   t.Columns(),
	}
}

// columnTypeOrPanic is a small helper the cursor and proxy code in this
// package share: looking up a column's registered Type should never fail for a
// column that already passed header parsing, since ParseHeader rejects
// unknown type indices up front.
func columnTypeOrPanic(id types.ID) types.Type {
	typ, err := types.Lookup(id)
	if err != nil {
		panic(err)
	}
	return typ
}
