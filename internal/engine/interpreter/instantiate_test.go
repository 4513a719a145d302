package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

func simpleModule() *wasm.Module {
	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{wasm.OpcodeI32Const, 42, wasm.OpcodeEnd}}},
		ExportSection:   []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "answer", Index: 0}},
	}
}

func TestInstantiate_exportsAndCall(t *testing.T) {
	store := wasm.NewStore(wasm.Features20220419, wasm.MemoryMaxPages)
	mi, err := Instantiate(store, "m", simpleModule())
	require.NoError(t, err)

	addr, ok := mi.ExportedFuncAddr("answer")
	require.True(t, ok)

	eng := NewEngine(store)
	results, err := eng.Call(addr, nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)

	registered, ok := store.Module("m")
	require.True(t, ok)
	require.Same(t, mi, registered)
}

func TestInstantiate_startFunctionRuns(t *testing.T) {
	store := wasm.NewStore(wasm.Features20220419, wasm.MemoryMaxPages)
	ft := &wasm.FunctionType{}
	gt := wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}
	startIdx := uint32(0)
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []uint32{0},
		GlobalSection:   []*wasm.Global{{Type: gt, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0, 0, 0, 0}}}},
		CodeSection: []*wasm.Code{
			{Body: []byte{wasm.OpcodeI32Const, 7, wasm.OpcodeGlobalSet, 0, wasm.OpcodeEnd}},
		},
		StartSection: &startIdx,
	}
	mi, err := Instantiate(store, "", m)
	require.NoError(t, err)
	require.Equal(t, uint64(7), store.Global(mi.Globals[0]).Value)
}

func TestInstantiate_importedFunctionResolved(t *testing.T) {
	store := wasm.NewStore(wasm.Features20220419, wasm.MemoryMaxPages)

	hostModule := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}
	hostFT := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	hostAddr := store.AddFunction(&wasm.FunctionInstance{
		Type: hostFT,
		GoFunc: func(ctx *wasm.CallContext, params []uint64) ([]uint64, error) {
			return []uint64{99}, nil
		},
	})
	hostModule.Functions = []wasm.FunctionAddr{hostAddr}
	hostModule.Exports["get99"] = wasm.ExportInstance{Type: wasm.ExternTypeFunc, Addr: uint32(hostAddr)}
	store.Register("host", hostModule)

	ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
	m := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{ft},
		ImportSection: []*wasm.Import{{Type: wasm.ExternTypeFunc, Module: "host", Name: "get99", DescFunc: 0}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "reexported", Index: 0}},
	}
	mi, err := Instantiate(store, "importer", m)
	require.NoError(t, err)

	addr, ok := mi.ExportedFuncAddr("reexported")
	require.True(t, ok)
	require.Equal(t, hostAddr, addr)
}

func TestInstantiate_activeDataSegment(t *testing.T) {
	store := wasm.NewStore(wasm.Features20220419, wasm.MemoryMaxPages)
	m := &wasm.Module{
		MemorySection: []*wasm.MemoryType{{Min: 1, Cap: wasm.MemoryMaxPages}},
		DataSection: []*wasm.DataSegment{
			{OffsetExpr: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0, 0, 0, 0}}, Init: []byte("hi")},
		},
	}
	mi, err := Instantiate(store, "", m)
	require.NoError(t, err)
	mem := store.Memory(mi.Memories[0])
	require.Equal(t, []byte("hi"), mem.Buffer[:2])
}
