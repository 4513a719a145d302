package leb128

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint32(t *testing.T) {
	for _, c := range []struct {
		input    uint32
		expected []byte
	}{
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 4, expected: []byte{0x04}},
		{input: 16256, expected: []byte{0x80, 0x7f}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: 165675008, expected: []byte{0x80, 0x80, 0x80, 0x4f}},
		{input: 0xffffffff, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xf}},
	} {
		require.Equal(t, c.expected, EncodeUint32(c.input))

		v, n, err := DecodeUint32(bytes.NewReader(c.expected))
		require.NoError(t, err)
		require.Equal(t, c.input, v)
		require.Equal(t, uint64(len(c.expected)), n)
	}
}

func TestDecodeUint32_errors(t *testing.T) {
	for _, c := range []struct {
		name   string
		bytes  []byte
		expErr error
	}{
		{name: "too many groups", bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, expErr: ErrTooLong},
		{name: "terminal group overflows width", bytes: []byte{0xff, 0xff, 0xff, 0xff, 0x10}, expErr: ErrOverflow},
	} {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, _, err := DecodeUint32(bytes.NewReader(c.bytes))
			require.ErrorIs(t, err, c.expErr)
		})
	}
}

func TestEncodeDecodeInt32(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 64, -65, 2147483647, -2147483648} {
		enc := EncodeInt32(v)
		got, n, err := DecodeInt32(bytes.NewReader(enc))
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, uint64(len(enc)), n)
	}
}

func TestEncodeDecodeInt64(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 9223372036854775807, -9223372036854775808} {
		enc := EncodeInt64(v)
		got, n, err := DecodeInt64(bytes.NewReader(enc))
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, uint64(len(enc)), n)
	}
}

func TestDecodeUint64(t *testing.T) {
	enc := EncodeUint64(0xffffffffffffffff)
	v, n, err := DecodeUint64(bytes.NewReader(enc))
	require.NoError(t, err)
	require.Equal(t, uint64(0xffffffffffffffff), v)
	require.Equal(t, uint64(len(enc)), n)
}

func TestDecodeInt33AsInt64(t *testing.T) {
	// -1 as a 33-bit signed LEB128 is 0x7f (single byte, sign bit set, no continuation).
	v, n, err := DecodeInt33AsInt64(bytes.NewReader([]byte{0x7f}))
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)
	require.Equal(t, uint64(1), n)
}
