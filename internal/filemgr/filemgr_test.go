package filemgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadByte(t *testing.T) {
	r := New([]byte{0x01, 0x02})
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), b)

	b, err = r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x02), b)

	_, err = r.ReadByte()
	require.Error(t, err)
	require.Equal(t, UnexpectedEnd, r.Status())
}

func TestStickyStatus(t *testing.T) {
	r := New([]byte{0x01})
	_, err := r.ReadBytes(5)
	require.Error(t, err)
	require.Equal(t, UnexpectedEnd, r.Status())

	// Once sticky, further reads short-circuit to the same error without consuming input.
	_, err = r.ReadByte()
	require.Error(t, err)
	fmErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, UnexpectedEnd, fmErr.Kind)
}

func TestReadBytesAtomic(t *testing.T) {
	r := New([]byte{0x01, 0x02})
	before := r.GetOffset()
	_, err := r.ReadBytes(10)
	require.Error(t, err)
	require.Equal(t, before, r.GetOffset())
}

func TestReadU32(t *testing.T) {
	r := New([]byte{0xe5, 0x8e, 0x26})
	v, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(624485), v)
}

func TestReadU32_tooLarge(t *testing.T) {
	// 5 groups whose terminal byte carries bits beyond 32.
	r := New([]byte{0xff, 0xff, 0xff, 0xff, 0x10})
	_, err := r.ReadU32()
	require.Error(t, err)
	require.Equal(t, IntegerTooLarge, r.Status())
}

func TestReadU32_tooLong(t *testing.T) {
	r := New([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00})
	_, err := r.ReadU32()
	require.Error(t, err)
	require.Equal(t, IntegerTooLong, r.Status())
}

func TestReadS33(t *testing.T) {
	r := New([]byte{0x7f})
	v, err := r.ReadS33()
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)
}

func TestReadF32(t *testing.T) {
	r := New([]byte{0x00, 0x00, 0x80, 0x3f}) // 1.0f
	v, err := r.ReadF32()
	require.NoError(t, err)
	require.Equal(t, float32(1.0), v)
}

func TestReadF64(t *testing.T) {
	r := New([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f}) // 1.0
	v, err := r.ReadF64()
	require.NoError(t, err)
	require.Equal(t, float64(1.0), v)
}

func TestReadName(t *testing.T) {
	r := New([]byte{0x05, 'h', 'e', 'l', 'l', 'o'})
	s, err := r.ReadName()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestReadName_overlong(t *testing.T) {
	// Overlong 2-byte encoding of U+0000 (0xc0 0x80) is invalid UTF-8.
	r := New([]byte{0x02, 0xc0, 0x80})
	_, err := r.ReadName()
	require.Error(t, err)
	require.Equal(t, MalformedUTF8, r.Status())
}

func TestReadName_strayContinuation(t *testing.T) {
	r := New([]byte{0x01, 0x80})
	_, err := r.ReadName()
	require.Error(t, err)
	require.Equal(t, MalformedUTF8, r.Status())
}

func TestPeekByte(t *testing.T) {
	r := New([]byte{0x42})
	b, err := r.PeekByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)
	// Peek does not advance.
	require.Equal(t, uint64(0), r.GetOffset())
}

func TestJumpContent(t *testing.T) {
	r := New([]byte{0x03, 0xaa, 0xbb, 0xcc, 0x01})
	n, err := r.JumpContent()
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), b)
}

func TestGetRemainSize(t *testing.T) {
	r := New([]byte{0x01, 0x02, 0x03})
	require.Equal(t, uint64(3), r.GetRemainSize())
	_, _ = r.ReadByte()
	require.Equal(t, uint64(2), r.GetRemainSize())
}

func TestGetHeaderType(t *testing.T) {
	require.Equal(t, HeaderWasm, New([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}).GetHeaderType())
	require.Equal(t, HeaderELF, New([]byte{0x7f, 'E', 'L', 'F'}).GetHeaderType())
	require.Equal(t, HeaderPE, New([]byte{'M', 'Z'}).GetHeaderType())
	require.Equal(t, HeaderUnknown, New([]byte{0x01, 0x02, 0x03, 0x04}).GetHeaderType())
}

func TestOpen_illegalPath(t *testing.T) {
	r := Open("/nonexistent/path/to/nowhere.wasm")
	require.Equal(t, IllegalPath, r.Status())
}
