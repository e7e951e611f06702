package ndarray

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/swiftserve/apierr"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<f4", "<f4"},
		{">f4", ">f4"},
		{"=f8", "<f8"},
		{"!i8", ">i8"},
		{"i4", "<i4"},
		{"<u1", "|u1"},
		{"|i1", "|i1"},
		{"float32", "<f4"},
		{"float", "<f8"},
		{"int64", "<i8"},
		{"uint16", "<u2"},
		{"bool", "|b1"},
		{"?", "|b1"},
		{"|b1", "|b1"},
		{"|S12", "|S12"},
		{"|O", "|O"},
		{"O8", "|O"},
		{"object", "|O"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDType(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, d.String())
		})
	}
}

func TestParseDTypeInvalid(t *testing.T) {
	for _, in := range []string{"", "nt64", "<", "<f2", "<i3", "|S", "<x4", "O4", "f-1"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDType(in)
			require.Error(t, err)
			require.Equal(t, apierr.InvalidDType, apierr.KindOf(err))
			require.Contains(t, err.Error(), "Invalid data type")
		})
	}
}

func TestFromRawLittleEndian(t *testing.T) {
	raw := []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
	a, err := FromRaw(Int64, []int{2}, raw)
	require.NoError(t, err)
	require.Equal(t, []int64{1, -1}, a.Data)

	back, err := a.Bytes()
	require.NoError(t, err)
	require.Equal(t, raw, back)
}

func TestFromRawBytesTrimsPadding(t *testing.T) {
	raw := []byte("abc\x00\x00de\x00\x00\x00")
	a, err := FromRaw(Bytes(5), []int{2}, raw)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("abc"), []byte("de")}, a.Data)
}

func TestFromRawSizeMismatch(t *testing.T) {
	_, err := FromRaw(Float32, []int{3}, make([]byte, 8))
	require.Error(t, err)

	_, err = FromRaw(Object, []int{1}, make([]byte, 8))
	require.Error(t, err)
}

func TestZerosShape(t *testing.T) {
	a, err := Zeros(Float32, []int{4, 3})
	require.NoError(t, err)
	require.Equal(t, 12, a.Len())
	require.Equal(t, float32(0), a.At(11))
}
