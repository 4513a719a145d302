// Package filemgr presents a module image as a seekable byte stream with format-aware readers: bounds-checked
// bytes, LEB128 integers, IEEE-754 floats, and length-prefixed UTF-8 names. The Loader consumes a *Reader to
// build the AST; filemgr itself knows nothing about Wasm sections or opcodes.
package filemgr

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"unicode/utf8"

	"github.com/wasmforge/wasmforge/internal/leb128"
)

// ErrorKind is a sticky decode failure. Once a Reader's status becomes non-zero, every subsequent read
// short-circuits to the same error without consuming more input.
type ErrorKind int

const (
	// Success is the zero value: no error has occurred yet.
	Success ErrorKind = iota
	EndOfFile
	IllegalPath
	UnexpectedEnd
	IntegerTooLong
	IntegerTooLarge
	LengthOutOfBounds
	MalformedUTF8
)

func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "success"
	case EndOfFile:
		return "end of file"
	case IllegalPath:
		return "illegal path"
	case UnexpectedEnd:
		return "unexpected end"
	case IntegerTooLong:
		return "integer representation too long"
	case IntegerTooLarge:
		return "integer too large"
	case LengthOutOfBounds:
		return "length out of bounds"
	case MalformedUTF8:
		return "malformed UTF-8 encoding"
	default:
		return "unknown error"
	}
}

// Error reports a sticky ErrorKind together with the offset at which the failing read began.
type Error struct {
	Kind ErrorKind
	Pos  uint64
}

func (e *Error) Error() string { return e.Kind.String() }

// HeaderType classifies the leading bytes of an image, letting a Loader reject non-Wasm inputs before parsing.
type HeaderType int

const (
	HeaderUnknown HeaderType = iota
	HeaderWasm
	HeaderELF
	HeaderMachO32
	HeaderMachO64
	HeaderPE
)

// Reader is a borrowed or owned byte slice plus a cursor, with sticky error tracking.
//
// Reader never mutates its backing bytes and never retains a reference beyond Close; New copies nothing, so the
// caller must keep the slice alive (or use Open, which owns its own copy read from disk).
type Reader struct {
	backing []byte
	pos     uint64
	lastPos uint64
	status  ErrorKind
	owned   bool
}

// New wraps b, a borrowed slice, for sequential reading. b must not be modified while the Reader is in use.
func New(b []byte) *Reader {
	return &Reader{backing: b}
}

// Open reads the file at path into an owned buffer. IllegalPath is reported as the Reader's initial status rather
// than returned directly, so callers can treat open and decode failures uniformly.
func Open(path string) *Reader {
	b, err := os.ReadFile(path)
	if err != nil {
		return &Reader{status: IllegalPath, owned: true}
	}
	return &Reader{backing: b, owned: true}
}

// Close releases the Reader's backing buffer if it owns one. Borrowed slices (via New) are left untouched.
func (r *Reader) Close() error {
	if r.owned {
		r.backing = nil
	}
	return nil
}

// Status returns the sticky error kind, or Success if no read has failed.
func (r *Reader) Status() ErrorKind { return r.status }

// LastPos returns the offset at which the most recent read began, for diagnostics.
func (r *Reader) LastPos() uint64 { return r.lastPos }

// GetOffset returns the current cursor position.
func (r *Reader) GetOffset() uint64 { return r.pos }

// GetRemainSize returns the number of unread bytes.
func (r *Reader) GetRemainSize() uint64 {
	if r.pos >= uint64(len(r.backing)) {
		return 0
	}
	return uint64(len(r.backing)) - r.pos
}

// RemainingBytes returns every unread byte and advances the cursor to the end. Unlike ReadBytes, this never
// fails: it is used where a caller wants "the rest of this section's content" as an undecoded instruction stream.
func (r *Reader) RemainingBytes() []byte {
	b := r.backing[r.pos:]
	r.pos = uint64(len(r.backing))
	return b
}

// Seek repositions the cursor to an absolute offset, clearing any EndOfFile/UnexpectedEnd status encountered
// past that point. The Executor uses this to implement branches over a function body it has already validated.
func (r *Reader) Seek(pos uint64) {
	r.pos = pos
	r.status = Success
}

func (r *Reader) fail(kind ErrorKind) error {
	if r.status == Success {
		r.status = kind
	}
	return &Error{Kind: r.status, Pos: r.lastPos}
}

// mark records lastPos and rejects the read outright if the Reader is already in a sticky error state.
func (r *Reader) mark() error {
	r.lastPos = r.pos
	if r.status != Success {
		return &Error{Kind: r.status, Pos: r.lastPos}
	}
	return nil
}

// ReadByte reads one byte, advancing the cursor. UnexpectedEnd if past the end of the backing buffer.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	return r.rawByte()
}

// rawByte reads one byte without touching lastPos, so a composite read (LEB128, UTF-8) can report the offset
// where IT began rather than the offset of whichever inner byte happened to fail.
func (r *Reader) rawByte() (byte, error) {
	if r.pos >= uint64(len(r.backing)) {
		return 0, r.fail(UnexpectedEnd)
	}
	b := r.backing[r.pos]
	r.pos++
	return b, nil
}

// byteSource adapts rawByte to io.ByteReader for the leb128 decoders, which read byte-at-a-time.
type byteSource struct{ r *Reader }

func (s byteSource) ReadByte() (byte, error) { return s.r.rawByte() }

// PeekByte returns the next byte without advancing the cursor. EndOfFile if the buffer is exhausted; this does
// not set the sticky status, since peeking past the end is a normal way to detect the end of a section loop.
func (r *Reader) PeekByte() (byte, error) {
	if r.status != Success {
		return 0, &Error{Kind: r.status, Pos: r.lastPos}
	}
	if r.pos >= uint64(len(r.backing)) {
		return 0, &Error{Kind: EndOfFile, Pos: r.pos}
	}
	return r.backing[r.pos], nil
}

// ReadBytes reads exactly n bytes as a slice into the backing buffer. Atomic: on failure the cursor does not
// advance at all.
func (r *Reader) ReadBytes(n uint64) ([]byte, error) {
	if err := r.mark(); err != nil {
		return nil, err
	}
	if n > r.GetRemainSize() {
		return nil, r.fail(UnexpectedEnd)
	}
	b := r.backing[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// JumpContent reads a u32 length prefix and skips exactly that many bytes, returning the number skipped.
func (r *Reader) JumpContent() (uint64, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadBytes(uint64(n)); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// ReadU32 reads an unsigned 32-bit LEB128 integer.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	v, _, err := leb128.DecodeUint32(byteSource{r})
	if err != nil {
		return 0, r.fail(classifyLEB(err))
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit LEB128 integer.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	v, _, err := leb128.DecodeUint64(byteSource{r})
	if err != nil {
		return 0, r.fail(classifyLEB(err))
	}
	return v, nil
}

// ReadS32 reads a signed 32-bit LEB128 integer, canonically sign-extended.
func (r *Reader) ReadS32() (int32, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	v, _, err := leb128.DecodeInt32(byteSource{r})
	if err != nil {
		return 0, r.fail(classifyLEB(err))
	}
	return v, nil
}

// ReadS33 reads a signed 33-bit LEB128 integer (used for block types), sign-extended into an int64.
func (r *Reader) ReadS33() (int64, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	v, _, err := leb128.DecodeInt33AsInt64(byteSource{r})
	if err != nil {
		return 0, r.fail(classifyLEB(err))
	}
	return v, nil
}

// ReadS64 reads a signed 64-bit LEB128 integer, canonically sign-extended.
func (r *Reader) ReadS64() (int64, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	v, _, err := leb128.DecodeInt64(byteSource{r})
	if err != nil {
		return 0, r.fail(classifyLEB(err))
	}
	return v, nil
}

func classifyLEB(err error) ErrorKind {
	switch {
	case errors.Is(err, leb128.ErrTooLong):
		return IntegerTooLong
	case errors.Is(err, leb128.ErrOverflow):
		return IntegerTooLarge
	default:
		return UnexpectedEnd
	}
}

// ReadF32 reads 4 little-endian bytes as the raw bits of an IEEE-754 single-precision float.
func (r *Reader) ReadF32() (float32, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadF64 reads 8 little-endian bytes as the raw bits of an IEEE-754 double-precision float.
func (r *Reader) ReadF64() (float64, error) {
	if err := r.mark(); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadName reads a u32-prefixed UTF-8 string, rejecting overlong encodings, surrogates, out-of-range code points,
// and stray continuation bytes per the Unicode well-formedness rules. Any such defect yields MalformedUTF8.
func (r *Reader) ReadName() (string, error) {
	if err := r.mark(); err != nil {
		return "", err
	}
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(uint64(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", r.fail(MalformedUTF8)
	}
	// utf8.Valid accepts the replacement character's own encoding but rejects anything decoding to it from
	// invalid input, so a rune-by-rune walk isn't needed: Go's decoder already applies the surrogate, overlong,
	// and out-of-range-codepoint rejections the Wasm spec requires.
	return string(b), nil
}

// GetHeaderType classifies the first few bytes of the image as a known container format, without consuming them.
func (r *Reader) GetHeaderType() HeaderType {
	if len(r.backing) >= 4 && r.backing[0] == 0x00 && r.backing[1] == 0x61 && r.backing[2] == 0x73 && r.backing[3] == 0x6d {
		return HeaderWasm
	}
	if len(r.backing) >= 4 && r.backing[0] == 0x7f && r.backing[1] == 'E' && r.backing[2] == 'L' && r.backing[3] == 'F' {
		return HeaderELF
	}
	if len(r.backing) >= 4 {
		magic := binary.LittleEndian.Uint32(r.backing[:4])
		switch magic {
		case 0xfeedface, 0xcefaedfe:
			return HeaderMachO32
		case 0xfeedfacf, 0xcffaedfe:
			return HeaderMachO64
		}
	}
	if len(r.backing) >= 2 && r.backing[0] == 'M' && r.backing[1] == 'Z' {
		return HeaderPE
	}
	return HeaderUnknown
}
