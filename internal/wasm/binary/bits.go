package binary

import (
	"encoding/binary"
	"math"
)

// leU32/leU64 store a constant expression's decoded operand as fixed-width little-endian bytes, so the
// Executor can re-read it without re-running LEB128/IEEE-754 decoding at instantiation time.
func leU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func leU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func float32bits(f float32) uint32 { return math.Float32bits(f) }
func float64bits(f float64) uint64 { return math.Float64bits(f) }
