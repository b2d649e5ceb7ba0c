package table

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorReadsMatchWrittenRows(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)

	require.NoError(t, c.Seek(0))
	origin, err := c.StringCopy("origin")
	require.NoError(t, err)
	require.Equal(t, "SEA", origin)

	passengers, err := c.Uint("passengers")
	require.NoError(t, err)
	require.Equal(t, uint64(110), passengers)

	distance, err := c.Float32("distance")
	require.NoError(t, err)
	require.InDelta(t, float32(1089.0), distance, 0.01)
}

// TestFreshCursorAtSameIndexReadsSameBytes checks that every field
// getter reads the same bytes a fresh row cursor at the same index
// would.
func TestFreshCursorAtSameIndexReadsSameBytes(t *testing.T) {
	tbl := buildFlights(t)
	c1 := NewCursor(tbl)
	require.NoError(t, c1.Seek(2))

	c2 := NewCursor(tbl)
	require.NoError(t, c2.Seek(2))

	for _, name := range []string{"origin", "dest", "date"} {
		v1, err := c1.StringCopy(name)
		require.NoError(t, err)
		v2, err := c2.StringCopy(name)
		require.NoError(t, err)
		require.Equal(t, v1, v2)
	}

	p1, _ := c1.Uint("passengers")
	p2, _ := c2.Uint("passengers")
	require.Equal(t, p1, p2)
}

func TestCursorSeekOutOfBounds(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)
	require.Error(t, c.Seek(3))
}

func TestCursorNextStopsAtRowCount(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)
	count := 1
	for c.Next() {
		count++
	}
	require.Equal(t, 3, count)
}

func TestCursorTypeMismatchIsSchemaMismatch(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)
	require.NoError(t, c.Seek(0))

	_, err := c.Uint("origin")
	require.Error(t, err)
	_, err = c.Float32("passengers")
	require.Error(t, err)
}

func TestSetStringTruncatesLongerValueInRelease(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)
	require.NoError(t, c.Seek(0))

	truncated, err := c.SetString("origin", "WAY_TOO_LONG_FOR_AN_8_BYTE_FIELD")
	require.NoError(t, err)
	require.True(t, truncated)

	s, err := c.StringCopy("origin")
	require.NoError(t, err)
	require.LessOrEqual(t, len(s), 7)
}

func TestPointerBackedStringReflectsLaterWrites(t *testing.T) {
	tbl := buildFlights(t)
	c := NewCursor(tbl)
	require.NoError(t, c.Seek(0))

	live, err := c.String("origin")
	require.NoError(t, err)
	require.Equal(t, "SEA", live.ToUTF8String())

	_, err = c.SetString("origin", "PDX")
	require.NoError(t, err)
	require.Equal(t, "PDX", live.ToUTF8String(), "a live bstr handle re-reads the field on every access")
}
