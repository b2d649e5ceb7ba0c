package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/logv/kruda/types"
)

func flightsSpecs() []ColumnSpec {
	return []ColumnSpec{
		{Name: "origin", TypeID: types.BSTR, Size: 8},
		{Name: "dest", TypeID: types.BSTR, Size: 8},
		{Name: "passengers", TypeID: types.U32},
		{Name: "date", TypeID: types.BSTR, Size: 16},
		{Name: "distance", TypeID: types.F32},
	}
}

func TestBuildHeaderThenParseRoundTrips(t *testing.T) {
	raw, err := BuildHeader(flightsSpecs(), 1024, RowMajor)
	require.NoError(t, err)
	require.Equal(t, 0, len(raw)%4)

	h, err := ParseHeader(raw)
	require.NoError(t, err)
	require.Equal(t, uint32(5), h.ColumnCount())
	require.Equal(t, uint32(0), h.RowCount())

	var wantRowLength uint32
	for _, c := range flightsSpecs() {
		if c.TypeID == types.BSTR {
			wantRowLength += c.Size
		} else {
			typ, _ := types.Lookup(c.TypeID)
			wantRowLength += uint32(typ.ByteSize)
		}
	}
	require.Equal(t, wantRowLength, h.RowLength())
}

func TestBuildHeaderSortsByTypeIndexPuttingBstrLast(t *testing.T) {
	raw, err := BuildHeader(flightsSpecs(), 1024, RowMajor)
	require.NoError(t, err)
	h, err := ParseHeader(raw)
	require.NoError(t, err)

	cols := h.Columns()
	for i := 1; i < len(cols); i++ {
		require.LessOrEqual(t, cols[i-1].TypeID, cols[i].TypeID)
	}
	require.Equal(t, types.BSTR, cols[len(cols)-1].TypeID)
}

func TestBuildHeaderRejectsDuplicateColumnNames(t *testing.T) {
	specs := []ColumnSpec{
		{Name: "x", TypeID: types.U32},
		{Name: "x", TypeID: types.I32},
	}
	_, err := BuildHeader(specs, 1024, RowMajor)
	require.Error(t, err)
}

func TestBuildHeaderRejectsBadBstrSize(t *testing.T) {
	specs := []ColumnSpec{{Name: "s", TypeID: types.BSTR, Size: 3}}
	_, err := BuildHeader(specs, 1024, RowMajor)
	require.Error(t, err)
}

func TestColumnMajorComputesStripeOffsetsAndRowCount(t *testing.T) {
	specs := []ColumnSpec{
		{Name: "a", TypeID: types.U32},
		{Name: "b", TypeID: types.U32},
	}
	raw, err := BuildHeader(specs, 800, ColumnMajor)
	require.NoError(t, err)
	h, err := ParseHeader(raw)
	require.NoError(t, err)

	cols := h.Columns()
	require.Equal(t, uint32(0), cols[0].DataOffset)
	require.Equal(t, uint32(0), cols[0].FieldOffset)
	// 800 / 8 (row_length) = 100 rows per column stripe.
	require.Equal(t, uint32(100*4), cols[1].DataOffset)
	require.Equal(t, cols[0].FieldLength, h.RowStep())
}

func TestColumnMajorRejectsNonZeroFieldOffsetOnParse(t *testing.T) {
	raw, err := BuildHeader([]ColumnSpec{{Name: "a", TypeID: types.U32}}, 400, ColumnMajor)
	require.NoError(t, err)
	_, err = ParseHeader(raw)
	require.NoError(t, err)

	pos := fixedHeaderSize + 8 // field_offset word of the first column
	raw[pos] = 4
	_, err = ParseHeader(raw)
	require.Error(t, err)
}

func TestParseHeaderRejectsUnknownTypeIndex(t *testing.T) {
	raw, err := BuildHeader([]ColumnSpec{{Name: "a", TypeID: types.U32}}, 400, RowMajor)
	require.NoError(t, err)
	typeIdxPos := fixedHeaderSize + 12
	raw[typeIdxPos] = 99
	_, err = ParseHeader(raw)
	require.Error(t, err)
}

func TestAddRowsAdvancesRowCountAndDataLength(t *testing.T) {
	raw, err := BuildHeader([]ColumnSpec{{Name: "a", TypeID: types.U32}}, 400, RowMajor)
	require.NoError(t, err)
	h, err := ParseHeader(raw)
	require.NoError(t, err)

	old := h.AddRows(3)
	require.Equal(t, uint32(0), old)
	require.Equal(t, uint32(3), h.RowCount())
	require.Equal(t, uint32(3)*h.RowLength(), h.DataLength())

	old = h.AddRows(2)
	require.Equal(t, uint32(3), old)
	require.Equal(t, uint32(5), h.RowCount())
}

func TestHeaderDescriptorRoundTripIgnoringPadding(t *testing.T) {
	raw, err := BuildHeader(flightsSpecs(), 1024, RowMajor)
	require.NoError(t, err)
	h1, err := ParseHeader(raw)
	require.NoError(t, err)

	raw2, err := BuildHeader(flightsSpecs(), 1024, RowMajor)
	require.NoError(t, err)
	h2, err := ParseHeader(raw2)
	require.NoError(t, err)

	if diff := cmp.Diff(h1.Columns(), h2.Columns()); diff != "" {
		t.Fatalf("column descriptors differ:\n%s", diff)
	}
}
