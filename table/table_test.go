package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logv/kruda/heap"
	"github.com/logv/kruda/types"
)

func newTestHeapForTable(t *testing.T) *heap.Heap {
	t.Helper()
	h, err := heap.NewRegion(1 << 16)
	require.NoError(t, err)
	return h
}

// buildFlights creates a small 5-column, 3-row flights table used
// across this package's end-to-end tests.
func buildFlights(t *testing.T) *Table {
	t.Helper()
	h := newTestHeapForTable(t)
	tbl, err := Create(h, flightsSpecs(), 64*3, RowMajor)
	require.NoError(t, err)

	old, err := tbl.AddRows(3)
	require.NoError(t, err)
	require.Equal(t, uint32(0), old)

	type row struct {
		origin, dest, date string
		passengers         uint64
		distance           float32
	}
	rows := []row{
		{"SEA", "SFO", "2001-06-01", 110, 1089.0},
		{"SEA", "LAX", "1999-12-31", 110, 1550.0},
		{"MCO", "JFK", "2001-03-14", 190, 1080.0},
	}

	c := NewCursor(tbl)
	for i, r := range rows {
		require.NoError(t, c.Seek(uint32(i)))
		_, err := c.SetString("origin", r.origin)
		require.NoError(t, err)
		_, err = c.SetString("dest", r.dest)
		require.NoError(t, err)
		require.NoError(t, c.SetUint("passengers", r.passengers))
		_, err = c.SetString("date", r.date)
		require.NoError(t, err)
		require.NoError(t, c.SetFloat32("distance", r.distance))
	}
	return tbl
}

func TestCreateThenOpenRoundTrips(t *testing.T) {
	tbl := buildFlights(t)

	again, err := Open(tbl.Block())
	require.NoError(t, err)
	require.Equal(t, tbl.RowCount(), again.RowCount())
	require.Equal(t, tbl.RowLength(), again.RowLength())
}

func TestTableDescribe(t *testing.T) {
	tbl := buildFlights(t)
	d := tbl.Describe()
	require.Equal(t, uint32(3), d.RowCount)
	require.Len(t, d.Columns, 5)
}

func TestAddRowsRejectsWhenBlockTooSmall(t *testing.T) {
	h := newTestHeapForTable(t)
	tbl, err := Create(h, []ColumnSpec{{Name: "a", TypeID: types.U32}}, 8, RowMajor)
	require.NoError(t, err)

	_, err = tbl.AddRows(1)
	require.NoError(t, err)
	_, err = tbl.AddRows(1)
	require.NoError(t, err)
	_, err = tbl.AddRows(1)
	require.Error(t, err, "third row should not fit in an 8-byte data region with row_length 4")
}

func TestColumnByNameUnknownIsSchemaMismatch(t *testing.T) {
	tbl := buildFlights(t)
	_, _, err := tbl.ColumnByName("nonexistent")
	require.Error(t, err)
}
