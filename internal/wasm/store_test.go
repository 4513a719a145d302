package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_RegisterAndLookup(t *testing.T) {
	s := NewStore(Features20220419, MemoryMaxPages)
	mi := &ModuleInstance{Name: "env"}
	s.Register("env", mi)

	got, ok := s.Module("env")
	require.True(t, ok)
	require.Same(t, mi, got)

	s.Unregister("env")
	_, ok = s.Module("env")
	require.False(t, ok)
}

func TestStore_addFunction(t *testing.T) {
	s := NewStore(Features20220419, MemoryMaxPages)
	addr := s.addFunction(&FunctionInstance{DebugName: "f0"})
	require.Equal(t, FunctionAddr(0), addr)
	require.Equal(t, "f0", s.Function(addr).DebugName)

	addr2 := s.addFunction(&FunctionInstance{DebugName: "f1"})
	require.Equal(t, FunctionAddr(1), addr2)
}

func TestMemoryInstance_Grow(t *testing.T) {
	max := uint32(2)
	m := &MemoryInstance{Buffer: make([]byte, MemoryPageSize), Cap: MemoryMaxPages, Max: &max}

	prev, ok := m.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(2), m.PageSize())

	_, ok = m.Grow(1)
	require.False(t, ok, "exceeds declared max")
}

func TestTableInstance_Grow(t *testing.T) {
	max := uint32(4)
	tbl := &TableInstance{Type: ValueTypeFuncref, Max: &max}

	prev, ok := tbl.Grow(2)
	require.True(t, ok)
	require.Equal(t, uint32(0), prev)
	require.Len(t, tbl.References, 2)

	_, ok = tbl.Grow(10)
	require.False(t, ok, "exceeds declared max")
}

func TestModuleInstance_ExportedFuncAddr(t *testing.T) {
	mi := &ModuleInstance{
		Functions: []FunctionAddr{5},
		Exports:   map[string]ExportInstance{"run": {Type: ExternTypeFunc, Addr: 5}},
	}
	addr, ok := mi.ExportedFuncAddr("run")
	require.True(t, ok)
	require.Equal(t, FunctionAddr(5), addr)

	_, ok = mi.ExportedFuncAddr("missing")
	require.False(t, ok)
}
