package table

import (
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/types"
)

// ProxyTable wraps a source table and an index table of row indices
// into it. It presents the source's schema while resolving row access
// indirectly.
type ProxyTable struct {
	Source *Table
	Index  *Table

	indexColumnName string
	indexAccessor   columnAccessor
}

// NewProxyTable wraps source and index, checking that index has exactly
// the single U32 ROW_INDEX column the filter engine produces for
// proxy-eligible results.
func NewProxyTable(source, index *Table) (*ProxyTable, error) {
	cols := index.Columns()
	if len(cols) != 1 || cols[0].TypeID != types.U32 {
		return nil, errs.MalformedTable("proxy index table must have exactly one U32 column, got %d columns", len(cols))
	}
	accessors := buildAccessors(index)
	return &ProxyTable{Source: source, Index: index, indexColumnName: cols[0].Name, indexAccessor: accessors[0]}, nil
}

// RowCount is the index table's row count.
func (p *ProxyTable) RowCount() uint32 { return p.Index.RowCount() }

// Columns exposes the source table's schema.
func (p *ProxyTable) Columns() []ColumnDescriptor { return p.Source.Columns() }

// SourceIndex returns the source row index that proxy row i refers to.
func (p *ProxyTable) SourceIndex(i uint32) (uint32, error) {
	if i >= p.RowCount() {
		return 0, errs.OutOfBounds("proxy row index %d >= row_count %d", i, p.RowCount())
	}
	view := p.indexAccessor.fieldBytes(i)
	return uint32(columnTypeOrPanic(types.U32).ReadUint(view, 0)), nil
}

// ProxyCursor holds two inner cursors: one on the index table positioned
// by the proxy row index, and one on the source table positioned by the
// index column's current value. Moving the proxy cursor moves both.
type ProxyCursor struct {
	proxy        *ProxyTable
	indexCursor  *Cursor
	sourceCursor *Cursor
}

// NewProxyCursor builds a cursor over p, starting at row 0.
func NewProxyCursor(p *ProxyTable) *ProxyCursor {
	pc := &ProxyCursor{
		proxy:        p,
		indexCursor:  NewCursor(p.Index),
		sourceCursor: NewCursor(p.Source),
	}
	if p.RowCount() > 0 {
		_ = pc.Seek(0)
	}
	return pc
}

// Index is the proxy cursor's position within the index table.
func (pc *ProxyCursor) Index() uint32 { return pc.indexCursor.Index() }

// SourceIndex is the source row the proxy cursor currently refers to.
func (pc *ProxyCursor) SourceIndex() (uint32, error) {
	v, err := pc.indexCursor.Uint(pc.proxy.indexColumnName)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Seek moves the proxy cursor to index row i and re-resolves the source
// cursor to the source row it now points at.
func (pc *ProxyCursor) Seek(i uint32) error {
	if err := pc.indexCursor.Seek(i); err != nil {
		return err
	}
	srcIdx, err := pc.SourceIndex()
	if err != nil {
		return err
	}
	return pc.sourceCursor.Seek(srcIdx)
}

// Next advances the proxy cursor, moving both inner cursors.
func (pc *ProxyCursor) Next() bool {
	if !pc.indexCursor.Next() {
		return false
	}
	srcIdx, err := pc.SourceIndex()
	if err != nil {
		return false
	}
	return pc.sourceCursor.Seek(srcIdx) == nil
}

// Uint, Int, Float32, StringCopy, and Value all delegate to the
// inner source cursor, so a proxy cursor reads exactly like a cursor
// over the source table.
func (pc *ProxyCursor) Uint(name string) (uint64, error)       { return pc.sourceCursor.Uint(name) }
func (pc *ProxyCursor) Int(name string) (int64, error)         { return pc.sourceCursor.Int(name) }
func (pc *ProxyCursor) Float32(name string) (float32, error)   { return pc.sourceCursor.Float32(name) }
func (pc *ProxyCursor) StringCopy(name string) (string, error) { return pc.sourceCursor.StringCopy(name) }
func (pc *ProxyCursor) Value(name string) (interface{}, error) { return pc.sourceCursor.Value(name) }
