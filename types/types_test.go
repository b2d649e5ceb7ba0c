package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownTypes(t *testing.T) {
	cases := []struct {
		id       ID
		name     string
		byteSize int
	}{
		{U32, "U32", 4},
		{I32, "I32", 4},
		{F32, "F32", 4},
		{U16, "U16", 2},
		{I16, "I16", 2},
		{U8, "U8", 1},
		{I8, "I8", 1},
		{VOID, "VOID", 1},
	}

	for _, c := range cases {
		typ, err := Lookup(c.id)
		require.NoError(t, err)
		require.Equal(t, c.name, typ.Name)
		require.Equal(t, c.byteSize, typ.ByteSize)
	}
}

func TestLookupUnknownTypeRejected(t *testing.T) {
	_, err := Lookup(ID(99))
	require.Error(t, err)
}

func TestByNameRoundTrip(t *testing.T) {
	for _, name := range []string{"U32", "I32", "F32", "U16", "I16", "U8", "I8", "BSTR", "VOID"} {
		typ, err := ByName(name)
		require.NoError(t, err)
		require.Equal(t, name, typ.Name)
	}
}

func TestReadWriteUintRoundTrip(t *testing.T) {
	buf := make([]byte, 4)

	u32, _ := Lookup(U32)
	u32.WriteUint(buf, 0, 0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), u32.ReadUint(buf, 0))

	u16, _ := Lookup(U16)
	u16.WriteUint(buf, 0, 0xbeef)
	require.Equal(t, uint64(0xbeef), u16.ReadUint(buf, 0))

	u8, _ := Lookup(U8)
	u8.WriteUint(buf, 0, 0xab)
	require.Equal(t, uint64(0xab), u8.ReadUint(buf, 0))
}

func TestReadWriteIntRoundTripNegative(t *testing.T) {
	buf := make([]byte, 4)

	i32, _ := Lookup(I32)
	i32.WriteInt(buf, 0, -12345)
	require.Equal(t, int64(-12345), i32.ReadInt(buf, 0))

	i16, _ := Lookup(I16)
	i16.WriteInt(buf, 0, -1234)
	require.Equal(t, int64(-1234), i16.ReadInt(buf, 0))

	i8, _ := Lookup(I8)
	i8.WriteInt(buf, 0, -12)
	require.Equal(t, int64(-12), i8.ReadInt(buf, 0))
}

func TestReadWriteFloat32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	f32, _ := Lookup(F32)
	f32.WriteFloat32(buf, 0, 1089.5)
	require.InDelta(t, float32(1089.5), f32.ReadFloat32(buf, 0), 0.0001)
}

func TestIsNumericExcludesBstrAndVoid(t *testing.T) {
	bstr, _ := Lookup(BSTR)
	require.False(t, bstr.IsNumeric())

	void, _ := Lookup(VOID)
	require.False(t, void.IsNumeric())

	u32, _ := Lookup(U32)
	require.True(t, u32.IsNumeric())
}

func TestIsSignedIsFloat(t *testing.T) {
	f32, _ := Lookup(F32)
	require.True(t, f32.IsFloat())
	require.False(t, f32.IsSigned())

	i32, _ := Lookup(I32)
	require.True(t, i32.IsSigned())
	require.False(t, i32.IsFloat())

	u32, _ := Lookup(U32)
	require.False(t, u32.IsSigned())
}
