package wasmforge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/testing/binaryencoding"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func addModule() *wasm.Module {
	i32 := wasm.ValueTypeI32
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}},
		FunctionSection: []uint32{0},
		CodeSection: []*wasm.Code{
			{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd}},
		},
		ExportSection: []*wasm.Export{{Name: "add", Type: wasm.ExternTypeFunc, Index: 0}},
	}
}

func TestRuntime_CompileAndInstantiate(t *testing.T) {
	r := NewRuntime()
	compiled, err := r.CompileModule(binaryencoding.Encode(addModule()))
	require.NoError(t, err)

	mod, err := r.InstantiateModule("wasm/math", compiled)
	require.NoError(t, err)
	require.Equal(t, "wasm/math", mod.Name())

	add := mod.ExportedFunction("add")
	require.NotNil(t, add)

	results, err := add.Call(nil, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, results)
}

func TestRuntime_HostModuleBuilder(t *testing.T) {
	r := NewRuntime()
	_, err := r.NewHostModuleBuilder("env").
		ExportFunction("double", func(x uint32) uint32 { return x * 2 }).
		Instantiate()
	require.NoError(t, err)

	i32 := wasm.ValueTypeI32
	m := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}},
		ImportSection: []*wasm.Import{{Module: "env", Name: "double", Type: wasm.ExternTypeFunc, DescFunc: 0}},
		ExportSection: []*wasm.Export{{Name: "double", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	compiled, err := r.CompileModule(binaryencoding.Encode(m))
	require.NoError(t, err)

	mod, err := r.InstantiateModule("importer", compiled)
	require.NoError(t, err)

	results, err := mod.ExportedFunction("double").Call(nil, 21)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestRuntime_MemoryView(t *testing.T) {
	r := NewRuntime()
	m := &wasm.Module{
		MemorySection: []*wasm.MemoryType{{Min: 1, Cap: wasm.MemoryMaxPages}},
		ExportSection: []*wasm.Export{{Name: "mem", Type: wasm.ExternTypeMemory, Index: 0}},
	}
	compiled, err := r.CompileModule(binaryencoding.Encode(m))
	require.NoError(t, err)
	mod, err := r.InstantiateModule("", compiled)
	require.NoError(t, err)

	mem := mod.ExportedMemory("mem")
	require.NotNil(t, mem)
	require.True(t, mem.WriteUint32Le(0, 0xdeadbeef))
	v, ok := mem.ReadUint32Le(0)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v)
}
