package wasm

import (
	"fmt"
	"sync"
)

// FunctionAddr, TableAddr, MemoryAddr, and GlobalAddr are opaque indices into a Store's instance arenas. They are
// stable for the Store's lifetime: nothing is ever compacted or reused while the Store is alive.
type (
	FunctionAddr uint32
	TableAddr    uint32
	MemoryAddr   uint32
	GlobalAddr   uint32
)

// GoFunc is a host function's callable descriptor: given the calling ModuleInstance (for memory/table access) and
// encoded parameters, it returns encoded results or an error (wrapped as wasmruntime.HostFuncError by the caller).
type GoFunc func(ctx *CallContext, params []uint64) ([]uint64, error)

// FunctionInstance is either a Wasm-defined function or a host function, never both.
type FunctionInstance struct {
	Type *FunctionType

	// Module is set for a Wasm function: the instance whose locals/globals/memory/table it closes over.
	Module *ModuleInstance
	// LocalTypes are the declared local variable types, following the parameter types in index order.
	LocalTypes []ValueType
	// Body is the raw, not-yet-decoded instruction stream, terminated by OpcodeEnd.
	Body []byte

	// GoFunc is set for a host function instead of Module/LocalTypes/Body.
	GoFunc GoFunc

	// DebugName is used in trap messages and stack traces; derived from the export or import name if known.
	DebugName string
}

// IsHostFunction reports whether this instance is implemented by the host rather than compiled Wasm code.
func (f *FunctionInstance) IsHostFunction() bool { return f.GoFunc != nil }

// TableInstance is a dense array of reference values (funcref or externref), initially all null (0).
type TableInstance struct {
	Type        ValueType
	Min         uint32
	Max         *uint32
	References  []uint64 // funcref stores a FunctionAddr+1 (0 is null); externref stores an opaque uintptr
}

// Grow extends the table by delta elements, returning the previous length, or false if that would exceed Max.
func (t *TableInstance) Grow(delta uint32) (previous uint32, ok bool) {
	previous = uint32(len(t.References))
	next := previous + delta
	if delta == 0 {
		return previous, true
	}
	if next < previous { // overflow
		return previous, false
	}
	if t.Max != nil && next > *t.Max {
		return previous, false
	}
	grown := make([]uint64, next)
	copy(grown, t.References)
	t.References = grown
	return previous, true
}

// MemoryInstance is a byte array sized to Min*MemoryPageSize, grown in whole-page increments up to Max and the
// engine-wide page cap.
type MemoryInstance struct {
	Buffer   []byte
	Min, Cap uint32
	Max      *uint32
}

// PageSize returns the current size of the memory in pages.
func (m *MemoryInstance) PageSize() uint32 { return uint32(len(m.Buffer) / MemoryPageSize) }

// Grow extends the memory by delta pages, returning the previous size in pages, or false if that would exceed Max
// or the engine-wide page cap.
func (m *MemoryInstance) Grow(delta uint32) (previous uint32, ok bool) {
	previous = m.PageSize()
	if delta == 0 {
		return previous, true
	}
	next := previous + delta
	if next < previous { // overflow
		return previous, false
	}
	if next > m.Cap {
		return previous, false
	}
	if m.Max != nil && next > *m.Max {
		return previous, false
	}
	grown := make([]byte, next*MemoryPageSize)
	copy(grown, m.Buffer)
	m.Buffer = grown
	return previous, true
}

// GlobalInstance is a module-owned or imported global's declared type, mutability, and current value.
type GlobalInstance struct {
	Type  GlobalType
	Value uint64
}

// ModuleInstance is the runtime counterpart of a Module, created during instantiation: its resolved exports plus
// the lists of addresses it owns (as opposed to imported), in definition order.
type ModuleInstance struct {
	Name   string
	Types  []*FunctionType

	Functions []FunctionAddr
	Tables    []TableAddr
	Memories  []MemoryAddr
	Globals   []GlobalAddr

	// Exports maps a public name directly to its resolved Store address, so lookups never need to re-derive a
	// module-local index into Functions/Tables/Memories/Globals.
	Exports map[string]ExportInstance

	// DataSegments holds each data segment's bytes, in DataSection order, for memory.init; data.drop nils out the
	// entry it targets, matching the one-shot "dropped" state the bulk-memory-operations proposal describes.
	DataSegments [][]byte
	// ElementSegments holds each element segment's resolved references (funcref addresses, +1 so 0 means null),
	// in ElementSection order, for table.init; elem.drop nils out the entry it targets.
	ElementSegments [][]uint64
}

// ExportInstance is one resolved export: a kind tag plus the Store address of the matching instance.
type ExportInstance struct {
	Type ExternType
	Addr uint32 // reinterpreted as FunctionAddr/TableAddr/MemoryAddr/GlobalAddr per Type
}

// ExportedFuncAddr resolves an exported function name to its Store address. ok is false if name is not exported
// or names a different kind of entity.
func (m *ModuleInstance) ExportedFuncAddr(name string) (FunctionAddr, bool) {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeFunc {
		return 0, false
	}
	return FunctionAddr(exp.Addr), true
}

// ExportedMemoryAddr resolves an exported memory name to its Store address.
func (m *ModuleInstance) ExportedMemoryAddr(name string) (MemoryAddr, bool) {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeMemory {
		return 0, false
	}
	return MemoryAddr(exp.Addr), true
}

// ExportedGlobalAddr resolves an exported global name to its Store address.
func (m *ModuleInstance) ExportedGlobalAddr(name string) (GlobalAddr, bool) {
	exp, ok := m.Exports[name]
	if !ok || exp.Type != ExternTypeGlobal {
		return 0, false
	}
	return GlobalAddr(exp.Addr), true
}

// Store owns every instance ever allocated and the registry of modules instantiated under a name. All mutation
// happens through Store methods so the Executor never hands out a raw slice index without going through the
// bounds checks here.
type Store struct {
	mux sync.RWMutex

	Functions []*FunctionInstance
	Tables    []*TableInstance
	Memories  []*MemoryInstance
	Globals   []*GlobalInstance

	// modules indexes the ModuleInstances registered under a name. Anonymous instances are not recorded here; a
	// function reaches its own module through FunctionInstance.Module instead.
	modules map[string]*ModuleInstance

	// EnabledFeatures gates which instructions and limits this Store's Executor will accept at instantiation.
	EnabledFeatures Features

	// MemoryCapPages is the engine-wide ceiling on any single memory's page count, independent of a module's own
	// declared maximum.
	MemoryCapPages uint32
}

// NewStore creates an empty Store with the given enabled feature set and memory page cap.
func NewStore(features Features, memoryCapPages uint32) *Store {
	return &Store{
		modules:         map[string]*ModuleInstance{},
		EnabledFeatures: features,
		MemoryCapPages:  memoryCapPages,
	}
}

// Module looks up a registered ModuleInstance by name.
func (s *Store) Module(name string) (*ModuleInstance, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	m, ok := s.modules[name]
	return m, ok
}

// Register records mi under name, replacing any module previously registered under that name.
func (s *Store) Register(name string, mi *ModuleInstance) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.modules[name] = mi
}

// Unregister removes a module registered under name, if any.
func (s *Store) Unregister(name string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.modules, name)
}

// addFunction appends a FunctionInstance and returns its address.
func (s *Store) addFunction(f *FunctionInstance) FunctionAddr {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.Functions = append(s.Functions, f)
	return FunctionAddr(len(s.Functions) - 1)
}

// addTable appends a TableInstance and returns its address.
func (s *Store) addTable(t *TableInstance) TableAddr {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.Tables = append(s.Tables, t)
	return TableAddr(len(s.Tables) - 1)
}

// addMemory appends a MemoryInstance and returns its address.
func (s *Store) addMemory(m *MemoryInstance) MemoryAddr {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.Memories = append(s.Memories, m)
	return MemoryAddr(len(s.Memories) - 1)
}

// addGlobal appends a GlobalInstance and returns its address.
func (s *Store) addGlobal(g *GlobalInstance) GlobalAddr {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.Globals = append(s.Globals, g)
	return GlobalAddr(len(s.Globals) - 1)
}

// AddFunction appends a FunctionInstance and returns its address. Exported for the Executor's instantiation step.
func (s *Store) AddFunction(f *FunctionInstance) FunctionAddr { return s.addFunction(f) }

// AddTable appends a TableInstance and returns its address.
func (s *Store) AddTable(t *TableInstance) TableAddr { return s.addTable(t) }

// AddMemory appends a MemoryInstance and returns its address.
func (s *Store) AddMemory(m *MemoryInstance) MemoryAddr { return s.addMemory(m) }

// AddGlobal appends a GlobalInstance and returns its address.
func (s *Store) AddGlobal(g *GlobalInstance) GlobalAddr { return s.addGlobal(g) }

// Function resolves an address to its instance, panicking if out of range: a Store never hands an Executor an
// address it didn't itself allocate, so an out-of-range address is an engine bug, not a trappable condition.
func (s *Store) Function(addr FunctionAddr) *FunctionInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.Functions[addr]
}

func (s *Store) Table(addr TableAddr) *TableInstance   { s.mux.RLock(); defer s.mux.RUnlock(); return s.Tables[addr] }
func (s *Store) Memory(addr MemoryAddr) *MemoryInstance { s.mux.RLock(); defer s.mux.RUnlock(); return s.Memories[addr] }
func (s *Store) Global(addr GlobalAddr) *GlobalInstance { s.mux.RLock(); defer s.mux.RUnlock(); return s.Globals[addr] }

// CallContext is the view of a running call's owning module handed to host functions and to the interpreter's
// instruction dispatch, so both can reach the current module's memory, table, and globals without a Store lookup
// per instruction.
type CallContext struct {
	Store  *Store
	Module *ModuleInstance
}

// Memory returns the call's module's first memory instance, or nil if it defines/imports none.
func (c *CallContext) Memory() *MemoryInstance {
	if len(c.Module.Memories) == 0 {
		return nil
	}
	return c.Store.Memory(c.Module.Memories[0])
}

func (c *CallContext) String() string { return fmt.Sprintf("module[%s]", c.Module.Name) }
