// Package leb128 encodes and decodes the LEB128 variable-length integer encoding used throughout the WebAssembly
// binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A6
package leb128

import (
	"errors"
	"io"
)

// ErrTooLong indicates the encoding used more continuation bytes than the target width allows.
var ErrTooLong = errors.New("leb128: integer representation too long")

// ErrOverflow indicates the final byte of an encoding carries bits beyond the target width.
var ErrOverflow = errors.New("leb128: integer overflows the target width")

const (
	maxVarint32Len = 5
	maxVarint33Len = 5
	maxVarint64Len = 10
)

// DecodeUint32 decodes an unsigned 32-bit LEB128 integer, returning the value and the number of bytes consumed.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(r, 32, maxVarint32Len)
	return uint32(v), n, err
}

// DecodeUint64 decodes an unsigned 64-bit LEB128 integer, returning the value and the number of bytes consumed.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsigned(r, 64, maxVarint64Len)
}

// decodeUnsigned decodes an unsigned LEB128 integer of the given bit width, rejecting encodings that use more than
// maxLen groups (ErrTooLong) or whose terminal group sets bits beyond width (ErrOverflow).
func decodeUnsigned(r io.ByteReader, width uint, maxLen int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++
		if n > uint64(maxLen) {
			return 0, n, ErrTooLong
		}

		payload := uint64(b & 0x7f)
		more := b&0x80 != 0
		if !more && shift+7 > width {
			validBits := width - shift
			if payload>>validBits != 0 {
				return 0, n, ErrOverflow
			}
		}
		result |= payload << shift
		if !more {
			return result, n, nil
		}
		shift += 7
	}
}

// DecodeInt32 decodes a signed 32-bit LEB128 integer, returning the value and the number of bytes consumed.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32, maxVarint32Len)
	return int32(v), n, err
}

// DecodeInt33AsInt64 decodes a signed 33-bit LEB128 integer (used for block types), sign-extended into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33, maxVarint33Len)
}

// DecodeInt64 decodes a signed 64-bit LEB128 integer, returning the value and the number of bytes consumed.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64, maxVarint64Len)
}

// decodeSigned decodes a signed LEB128 integer of the given bit width with canonical sign-extension, rejecting
// encodings that use more than maxLen groups (ErrTooLong) or whose terminal group's payload does not agree with
// the sign bit once extended beyond width (ErrOverflow).
func decodeSigned(r io.ByteReader, width uint, maxLen int) (int64, uint64, error) {
	var result int64
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++
		if n > uint64(maxLen) {
			return 0, n, ErrTooLong
		}

		payload := int64(b & 0x7f)
		more := b&0x80 != 0
		remaining := width - shift
		if !more && remaining < 7 {
			validMask := int64(0x7f) &^ (int64(1)<<remaining - 1)
			hi := payload & validMask
			if payload&(int64(1)<<(remaining-1)) != 0 {
				if hi != validMask {
					return 0, n, ErrOverflow
				}
			} else if hi != 0 {
				return 0, n, ErrOverflow
			}
		}

		result |= payload << shift
		shift += 7
		if !more {
			if shift < 64 && b&0x40 != 0 {
				result |= int64(-1) << shift
			}
			return result, n, nil
		}
	}
}

// EncodeUint32 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, maxVarint64Len)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

// EncodeInt32 encodes v as a signed LEB128 byte sequence.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as a signed LEB128 byte sequence.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, maxVarint64Len)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
