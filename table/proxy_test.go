package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logv/kruda/types"
)

func buildIndexTable(t *testing.T, indices []uint32) *Table {
	t.Helper()
	heapRegion := newTestHeapForTable(t)
	tbl, err := Create(heapRegion, []ColumnSpec{{Name: "row_index", TypeID: types.U32}}, uint32(len(indices))*4, RowMajor)
	require.NoError(t, err)

	_, err = tbl.AddRows(uint32(len(indices)))
	require.NoError(t, err)

	c := NewCursor(tbl)
	for i, idx := range indices {
		require.NoError(t, c.Seek(uint32(i)))
		require.NoError(t, c.SetUint("row_index", uint64(idx)))
	}
	return tbl
}

func TestProxyTableRejectsWrongIndexSchema(t *testing.T) {
	source := buildFlights(t)
	_, err := NewProxyTable(source, source) // two columns, not one U32 column
	require.Error(t, err)
}

// TestProxyRowsMatchSourceRows checks the round-trip property:
// proxy.row(k).field[c] == source.row(proxy.row(k).source_index).field[c].
func TestProxyRowsMatchSourceRows(t *testing.T) {
	source := buildFlights(t)
	idx := buildIndexTable(t, []uint32{0, 2})

	proxy, err := NewProxyTable(source, idx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), proxy.RowCount())

	pc := NewProxyCursor(proxy)
	require.NoError(t, pc.Seek(0))

	srcIdx, err := pc.SourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(0), srcIdx)

	origin, err := pc.StringCopy("origin")
	require.NoError(t, err)
	require.Equal(t, "SEA", origin)

	require.NoError(t, pc.Seek(1))
	srcIdx, err = pc.SourceIndex()
	require.NoError(t, err)
	require.Equal(t, uint32(2), srcIdx)

	dest, err := pc.StringCopy("dest")
	require.NoError(t, err)
	require.Equal(t, "JFK", dest)
}

func TestProxyCursorNextMovesBothCursors(t *testing.T) {
	source := buildFlights(t)
	idx := buildIndexTable(t, []uint32{0, 2})
	proxy, err := NewProxyTable(source, idx)
	require.NoError(t, err)

	pc := NewProxyCursor(proxy)
	var seen []uint32
	for {
		srcIdx, err := pc.SourceIndex()
		require.NoError(t, err)
		seen = append(seen, srcIdx)
		if !pc.Next() {
			break
		}
	}
	require.Equal(t, []uint32{0, 2}, seen)
}
