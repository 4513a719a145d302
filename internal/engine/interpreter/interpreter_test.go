package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/wasm"
	"github.com/wasmforge/wasmforge/internal/wasmruntime"
)

func newTestStore() *wasm.Store {
	return wasm.NewStore(wasm.Features20220419, wasm.MemoryMaxPages)
}

func addFuncInstance(mi *wasm.ModuleInstance) *wasm.FunctionInstance {
	return &wasm.FunctionInstance{
		Type:   &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Module: mi,
		Body:   []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd},
	}
}

func TestEngine_Call_simpleAdd(t *testing.T) {
	store := newTestStore()
	mi := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}
	addr := store.AddFunction(addFuncInstance(mi))
	mi.Functions = []wasm.FunctionAddr{addr}

	eng := NewEngine(store)
	results, err := eng.Call(addr, []uint64{3, 4})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

func TestEngine_Call_ifElse(t *testing.T) {
	store := newTestStore()
	mi := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}
	// if (i32) -> i32: local.get 0, if result i32: i32.const 1, else: i32.const 0, end, end
	body := []byte{
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeIf, wasm.ValueTypeI32,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeElse,
		wasm.OpcodeI32Const, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	fn := &wasm.FunctionInstance{
		Type:   &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Module: mi,
		Body:   body,
	}
	addr := store.AddFunction(fn)
	mi.Functions = []wasm.FunctionAddr{addr}

	eng := NewEngine(store)
	results, err := eng.Call(addr, []uint64{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)

	eng2 := NewEngine(store)
	results, err = eng2.Call(addr, []uint64{0})
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, results)
}

func TestEngine_Call_loopCountdown(t *testing.T) {
	store := newTestStore()
	mi := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}
	// local 0 is the param (counter); loop: local.get 0, i32.eqz, br_if 1 (exit); local.get 0, i32.const 1, i32.sub,
	// local.set 0, br 0; end; end. Returns when local 0 reaches zero: result is always 0, but exercises looping.
	body := []byte{
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLoop, 0x40,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Eqz,
		wasm.OpcodeBrIf, 1,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeI32Const, 1,
		wasm.OpcodeI32Sub,
		wasm.OpcodeLocalSet, 0,
		wasm.OpcodeBr, 0,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeEnd,
	}
	fn := &wasm.FunctionInstance{
		Type:   &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Module: mi,
		Body:   body,
	}
	addr := store.AddFunction(fn)
	mi.Functions = []wasm.FunctionAddr{addr}

	eng := NewEngine(store)
	results, err := eng.Call(addr, []uint64{5})
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, results)
}

func TestEngine_Call_divByZeroTraps(t *testing.T) {
	store := newTestStore()
	mi := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}
	body := []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeI32Const, 0, wasm.OpcodeI32DivS, wasm.OpcodeEnd}
	fn := &wasm.FunctionInstance{
		Type:   &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Module: mi,
		Body:   body,
	}
	addr := store.AddFunction(fn)
	mi.Functions = []wasm.FunctionAddr{addr}

	eng := NewEngine(store)
	_, err := eng.Call(addr, []uint64{1})
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeIntegerDivideByZero)
}

func TestEngine_Call_hostFunctionAndCall(t *testing.T) {
	store := newTestStore()
	mi := &wasm.ModuleInstance{Exports: map[string]wasm.ExportInstance{}}

	hostAddr := store.AddFunction(&wasm.FunctionInstance{
		Type: &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		GoFunc: func(ctx *wasm.CallContext, params []uint64) ([]uint64, error) {
			return []uint64{params[0] * 2}, nil
		},
	})
	callerAddr := store.AddFunction(&wasm.FunctionInstance{
		Type:   &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		Module: mi,
		Body:   []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeCall, 0, wasm.OpcodeEnd},
	})
	mi.Functions = []wasm.FunctionAddr{hostAddr, callerAddr}

	eng := NewEngine(store)
	results, err := eng.Call(callerAddr, []uint64{21})
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}
