// Package wasmforge is a WebAssembly runtime: it decodes, validates, instantiates and executes Wasm 1.0 binaries
// (plus several finished post-1.0 proposals), and lets Go functions be imported into a running module.
package wasmforge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/engine/interpreter"
	"github.com/wasmforge/wasmforge/internal/wasm"
	binaryformat "github.com/wasmforge/wasmforge/internal/wasm/binary"
)

// Runtime compiles, instantiates and runs WebAssembly modules against a shared Store.
type Runtime struct {
	store  *wasm.Store
	engine *interpreter.Engine
	ctx    context.Context
}

// NewRuntime returns a Runtime with NewRuntimeConfig's defaults.
func NewRuntime() *Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime configured per cfg.
func NewRuntimeWithConfig(cfg *RuntimeConfig) *Runtime {
	store := wasm.NewStore(cfg.enabledFeatures, cfg.memoryMaxPages)
	return &Runtime{store: store, engine: interpreter.NewEngine(store), ctx: cfg.ctx}
}

// CompileModule decodes and validates a binary Wasm image, ready for InstantiateModule. The same CompiledModule
// can be instantiated any number of times.
func (r *Runtime) CompileModule(source []byte) (*CompiledModule, error) {
	m, err := binaryformat.DecodeModule(source, r.store.EnabledFeatures, r.store.MemoryCapPages)
	if err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	if err := wasm.Validate(m, r.store.EnabledFeatures); err != nil {
		return nil, fmt.Errorf("validating module: %w", err)
	}
	return &CompiledModule{module: m}, nil
}

// InstantiateModule instantiates compiled under name, running its start function if declared. An empty name
// instantiates anonymously: the instance still works, but cannot satisfy another module's imports by name.
func (r *Runtime) InstantiateModule(name string, compiled *CompiledModule) (api.Module, error) {
	mi, err := interpreter.Instantiate(r.store, name, compiled.module)
	if err != nil {
		return nil, err
	}
	return &moduleInstance{store: r.store, engine: r.engine, mi: mi}, nil
}

// Module looks up an already-instantiated module by the name it was registered under.
func (r *Runtime) Module(name string) (api.Module, bool) {
	mi, ok := r.store.Module(name)
	if !ok {
		return nil, false
	}
	return &moduleInstance{store: r.store, engine: r.engine, mi: mi}, true
}

type moduleInstance struct {
	store  *wasm.Store
	engine *interpreter.Engine
	mi     *wasm.ModuleInstance
}

func (m *moduleInstance) String() string { return fmt.Sprintf("module[%s]", m.mi.Name) }
func (m *moduleInstance) Name() string   { return m.mi.Name }

func (m *moduleInstance) Memory() api.Memory {
	if len(m.mi.Memories) == 0 {
		return nil
	}
	return &memoryView{inst: m.store.Memory(m.mi.Memories[0])}
}

func (m *moduleInstance) ExportedFunction(name string) api.Function {
	addr, ok := m.mi.ExportedFuncAddr(name)
	if !ok {
		return nil
	}
	return &function{engine: m.engine, addr: addr, fn: m.store.Function(addr)}
}

func (m *moduleInstance) ExportedMemory(name string) api.Memory {
	addr, ok := m.mi.ExportedMemoryAddr(name)
	if !ok {
		return nil
	}
	return &memoryView{inst: m.store.Memory(addr)}
}

func (m *moduleInstance) ExportedGlobal(name string) api.Global {
	addr, ok := m.mi.ExportedGlobalAddr(name)
	if !ok {
		return nil
	}
	return &global{store: m.store, addr: addr}
}

func (m *moduleInstance) Close(context.Context) error {
	m.store.Unregister(m.mi.Name)
	return nil
}

type function struct {
	engine *interpreter.Engine
	addr   wasm.FunctionAddr
	fn     *wasm.FunctionInstance
}

func (f *function) ParamTypes() []api.ValueType  { return f.fn.Type.Params }
func (f *function) ResultTypes() []api.ValueType { return f.fn.Type.Results }

func (f *function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.engine.Call(f.addr, params)
}

type global struct {
	store *wasm.Store
	addr  wasm.GlobalAddr
}

func (g *global) String() string      { return fmt.Sprintf("global(%d)", g.store.Global(g.addr).Value) }
func (g *global) Type() api.ValueType { return g.store.Global(g.addr).Type.ValType }
func (g *global) Get() uint64         { return g.store.Global(g.addr).Value }
func (g *global) Set(v uint64)        { g.store.Global(g.addr).Value = v }

// memoryView is a restricted, bounds-checked façade over a wasm.MemoryInstance's backing buffer.
type memoryView struct {
	inst *wasm.MemoryInstance
}

func (m *memoryView) Size() uint32 { return uint32(len(m.inst.Buffer)) }

func (m *memoryView) Grow(deltaPages uint32) (uint32, bool) { return m.inst.Grow(deltaPages) }

func (m *memoryView) ReadByte(offset uint32) (byte, bool) {
	if uint64(offset) >= uint64(len(m.inst.Buffer)) {
		return 0, false
	}
	return m.inst.Buffer[offset], true
}

func (m *memoryView) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *memoryView) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func (m *memoryView) ReadUint64Le(offset uint32) (uint64, bool) {
	b, ok := m.Read(offset, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (m *memoryView) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

func (m *memoryView) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.inst.Buffer)) {
		return nil, false
	}
	return m.inst.Buffer[offset:end], true
}

func (m *memoryView) WriteByte(offset uint32, v byte) bool {
	if uint64(offset) >= uint64(len(m.inst.Buffer)) {
		return false
	}
	m.inst.Buffer[offset] = v
	return true
}

func (m *memoryView) WriteUint32Le(offset, v uint32) bool {
	b, ok := m.Read(offset, 4)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint32(b, v)
	return true
}

func (m *memoryView) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *memoryView) WriteUint64Le(offset uint32, v uint64) bool {
	b, ok := m.Read(offset, 8)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint64(b, v)
	return true
}

func (m *memoryView) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

func (m *memoryView) Write(offset uint32, v []byte) bool {
	b, ok := m.Read(offset, uint32(len(v)))
	if !ok {
		return false
	}
	copy(b, v)
	return true
}
