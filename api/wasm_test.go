package api

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternTypeName(t *testing.T) {
	tests := []struct {
		name     string
		input    ExternType
		expected string
	}{
		{"func", ExternTypeFunc, "func"},
		{"table", ExternTypeTable, "table"},
		{"mem", ExternTypeMemory, "memory"},
		{"global", ExternTypeGlobal, "global"},
		{"unknown", 100, "0x64"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ExternTypeName(tc.input))
		})
	}
}

func TestValueTypeName(t *testing.T) {
	tests := []struct {
		name     string
		input    ValueType
		expected string
	}{
		{"i32", ValueTypeI32, "i32"},
		{"i64", ValueTypeI64, "i64"},
		{"f32", ValueTypeF32, "f32"},
		{"f64", ValueTypeF64, "f64"},
		{"v128", ValueTypeV128, "v128"},
		{"funcref", ValueTypeFuncref, "funcref"},
		{"externref", ValueTypeExternref, "externref"},
		{"unknown", 0x00, "unknown"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, ValueTypeName(tc.input))
		})
	}
}

func TestIsReferenceType(t *testing.T) {
	require.True(t, IsReferenceType(ValueTypeFuncref))
	require.True(t, IsReferenceType(ValueTypeExternref))
	require.False(t, IsReferenceType(ValueTypeI32))
}

func TestEncodeDecodeI32(t *testing.T) {
	require.Equal(t, uint64(0xffffffff), EncodeI32(-1))
}

func TestEncodeDecodeF32(t *testing.T) {
	v := float32(math.Pi)
	require.Equal(t, v, DecodeF32(EncodeF32(v)))
}

func TestEncodeDecodeF64(t *testing.T) {
	v := math.Pi
	require.Equal(t, v, DecodeF64(EncodeF64(v)))
}

func TestEncodeDecodeExternref(t *testing.T) {
	require.Equal(t, uint64(42), EncodeExternref(42))
	require.Equal(t, uintptr(42), DecodeExternref(42))
}
