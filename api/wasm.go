// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import (
	"context"
	"fmt"
	"math"
)

// ExternType classifies imports and exports with their respective types.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// The below are exported to consolidate parsing behavior for external types.
const (
	ExternTypeFuncName   = "func"
	ExternTypeTableName  = "table"
	ExternTypeMemoryName = "memory"
	ExternTypeGlobalName = "global"
)

// ExternTypeName returns the name of the given ExternType.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return ExternTypeFuncName
	case ExternTypeTable:
		return ExternTypeTableName
	case ExternTypeMemory:
		return ExternTypeMemoryName
	case ExternTypeGlobal:
		return ExternTypeGlobalName
	}
	return fmt.Sprintf("%#x", et)
}

// ValueType describes a numeric or reference type used in the WebAssembly binary format.
//
// The following describes how to convert between Wasm and Go types:
//
//   - ValueTypeI32 - uint64(uint32,int32)
//   - ValueTypeI64 - uint64(int64)
//   - ValueTypeF32 - EncodeF32 / DecodeF32 from float32
//   - ValueTypeF64 - EncodeF64 / DecodeF64 from float64
//   - ValueTypeFuncref, ValueTypeExternref - uintptr opaque reference, 0 is null
//
// Note: This is a type alias as it is easier to encode and decode in the binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit floating point number.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit floating point number.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeV128 is a 128-bit vector of packed integer or floating-point values (SIMD proposal).
	ValueTypeV128 ValueType = 0x7b

	// ValueTypeFuncref is a nullable reference to a function (ReferenceTypes proposal).
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is a nullable opaque reference to a host object (ReferenceTypes proposal).
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the text format name of the given ValueType, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsReferenceType returns true for funcref and externref.
func IsReferenceType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// Closer closes a resource.
type Closer interface {
	Close(context.Context) error
}

// Module is a fully instantiated WebAssembly module, registered in a Store under Name.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated/registered with.
	Name() string

	// Memory returns the sole memory defined or imported by this module, or nil.
	Memory() Memory

	// ExportedFunction returns a function exported from this module or nil if it wasn't.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported from this module or nil if it wasn't.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported from this module or nil if it wasn't.
	ExportedGlobal(name string) Global

	Closer
}

// Function is an invocable WebAssembly function, either defined in Wasm or implemented by the host.
type Function interface {
	// ParamTypes are the possibly empty sequence of value types accepted by this function.
	ParamTypes() []ValueType

	// ResultTypes are the possibly empty sequence of value types returned by this function.
	ResultTypes() []ValueType

	// Call invokes the function with parameters encoded per ParamTypes, returning results encoded per ResultTypes.
	// The context is not consulted during execution, and nil is accepted.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Global is a WebAssembly global exported from an instantiated module.
type Global interface {
	fmt.Stringer

	// Type describes the numeric type of the global.
	Type() ValueType

	// Get returns the current value of this global.
	Get() uint64
}

// MutableGlobal is a Global whose value can be updated at runtime.
type MutableGlobal interface {
	Global

	// Set updates the value of this global.
	Set(v uint64)
}

// Memory allows restricted access to a module's linear memory.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#storage%E2%91%A0
type Memory interface {
	// Size returns the size in bytes available. Ex. If the underlying memory has 1 page: 65536
	Size() uint32

	// Grow increases memory by the delta in pages (65536 bytes per page). The return value is the previous memory
	// size in pages, or false if the delta would exceed the memory's maximum (or the engine's page cap).
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte reads a single byte at the offset, or returns false if out of range.
	ReadByte(offset uint32) (byte, bool)

	// ReadUint32Le reads a little-endian uint32 at the offset, or returns false if out of range.
	ReadUint32Le(offset uint32) (uint32, bool)

	// ReadFloat32Le reads a little-endian IEEE-754 float32 at the offset, or returns false if out of range.
	ReadFloat32Le(offset uint32) (float32, bool)

	// ReadUint64Le reads a little-endian uint64 at the offset, or returns false if out of range.
	ReadUint64Le(offset uint32) (uint64, bool)

	// ReadFloat64Le reads a little-endian IEEE-754 float64 at the offset, or returns false if out of range.
	ReadFloat64Le(offset uint32) (float64, bool)

	// Read returns a byteCount-length view of the underlying buffer at the offset, or false if out of range.
	//
	// This is a view, not a copy: writes to the returned slice are visible to Wasm and vice versa, until the
	// underlying buffer is reallocated (e.g. by Grow).
	Read(offset, byteCount uint32) ([]byte, bool)

	// WriteByte writes a single byte at the offset, or returns false if out of range.
	WriteByte(offset uint32, v byte) bool

	// WriteUint32Le writes a little-endian uint32 at the offset, or returns false if out of range.
	WriteUint32Le(offset, v uint32) bool

	// WriteFloat32Le writes a little-endian IEEE-754 float32 at the offset, or returns false if out of range.
	WriteFloat32Le(offset uint32, v float32) bool

	// WriteUint64Le writes a little-endian uint64 at the offset, or returns false if out of range.
	WriteUint64Le(offset uint32, v uint64) bool

	// WriteFloat64Le writes a little-endian IEEE-754 float64 at the offset, or returns false if out of range.
	WriteFloat64Le(offset uint32, v float64) bool

	// Write writes the slice to the underlying buffer at the offset, or returns false if out of range.
	Write(offset uint32, v []byte) bool
}

// EncodeExternref encodes the input as a ValueTypeExternref.
func EncodeExternref(input uintptr) uint64 { return uint64(input) }

// DecodeExternref decodes the input as a ValueTypeExternref.
func DecodeExternref(input uint64) uintptr { return uintptr(input) }

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }
