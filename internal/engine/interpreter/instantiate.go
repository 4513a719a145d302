package interpreter

import (
	"encoding/binary"
	"fmt"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

// Instantiate allocates a ModuleInstance for m in store: it resolves imports against already-registered modules,
// allocates module-defined tables/memories/globals, evaluates constant expressions, applies active element/data
// segments, builds the export map, and runs the start function if one is declared. On success the instance is
// registered under name (pass "" to instantiate anonymously).
func Instantiate(store *wasm.Store, name string, m *wasm.Module) (*wasm.ModuleInstance, error) {
	if err := wasm.Validate(m, store.EnabledFeatures); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	mi := &wasm.ModuleInstance{Name: name, Types: m.TypeSection, Exports: map[string]wasm.ExportInstance{}}

	if err := resolveImports(store, m, mi); err != nil {
		return nil, err
	}
	instantiateDefinedTables(store, m, mi)
	instantiateDefinedMemories(store, m, mi)
	if err := instantiateDefinedGlobals(store, m, mi); err != nil {
		return nil, err
	}
	instantiateDefinedFunctions(store, m, mi)

	if err := applyElementSegments(store, m, mi); err != nil {
		return nil, err
	}
	if err := applyDataSegments(store, m, mi); err != nil {
		return nil, err
	}
	buildExports(m, mi)

	if m.StartSection != nil {
		eng := NewEngine(store)
		if _, err := eng.Call(mi.Functions[*m.StartSection], nil); err != nil {
			return nil, fmt.Errorf("start function trapped: %w", err)
		}
	}

	if name != "" {
		store.Register(name, mi)
	}
	return mi, nil
}

func resolveImports(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) error {
	for _, imp := range m.ImportSection {
		src, ok := store.Module(imp.Module)
		if !ok {
			return fmt.Errorf("module %q not registered, required by import %q.%q", imp.Module, imp.Module, imp.Name)
		}
		switch imp.Type {
		case wasm.ExternTypeFunc:
			addr, ok := src.ExportedFuncAddr(imp.Name)
			if !ok {
				return fmt.Errorf("%q.%q: no such exported function", imp.Module, imp.Name)
			}
			wantType := m.TypeSection[imp.DescFunc]
			gotType := store.Function(addr).Type
			if gotType.String() != wantType.String() {
				return fmt.Errorf("%q.%q: function signature mismatch: want %s, got %s", imp.Module, imp.Name, wantType, gotType)
			}
			mi.Functions = append(mi.Functions, addr)
		case wasm.ExternTypeTable:
			exp, ok := src.Exports[imp.Name]
			if !ok || exp.Type != wasm.ExternTypeTable {
				return fmt.Errorf("%q.%q: no such exported table", imp.Module, imp.Name)
			}
			mi.Tables = append(mi.Tables, wasm.TableAddr(exp.Addr))
		case wasm.ExternTypeMemory:
			exp, ok := src.Exports[imp.Name]
			if !ok || exp.Type != wasm.ExternTypeMemory {
				return fmt.Errorf("%q.%q: no such exported memory", imp.Module, imp.Name)
			}
			mi.Memories = append(mi.Memories, wasm.MemoryAddr(exp.Addr))
		case wasm.ExternTypeGlobal:
			exp, ok := src.Exports[imp.Name]
			if !ok || exp.Type != wasm.ExternTypeGlobal {
				return fmt.Errorf("%q.%q: no such exported global", imp.Module, imp.Name)
			}
			mi.Globals = append(mi.Globals, wasm.GlobalAddr(exp.Addr))
		}
	}
	return nil
}

func instantiateDefinedTables(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) {
	for _, tt := range m.TableSection {
		t := &wasm.TableInstance{Type: tt.ElemType, Min: tt.Lim.Min, Max: tt.Lim.Max, References: make([]uint64, tt.Lim.Min)}
		mi.Tables = append(mi.Tables, store.AddTable(t))
	}
}

func instantiateDefinedMemories(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) {
	for _, mt := range m.MemorySection {
		memInst := &wasm.MemoryInstance{Min: mt.Min, Cap: mt.Cap, Max: mt.Max, Buffer: make([]byte, uint64(mt.Min)*wasm.MemoryPageSize)}
		mi.Memories = append(mi.Memories, store.AddMemory(memInst))
	}
}

func instantiateDefinedGlobals(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) error {
	for _, g := range m.GlobalSection {
		v, err := evalConstExpr(store, mi, g.Init)
		if err != nil {
			return err
		}
		mi.Globals = append(mi.Globals, store.AddGlobal(&wasm.GlobalInstance{Type: g.Type, Value: v}))
	}
	return nil
}

func instantiateDefinedFunctions(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) {
	importFuncCount := m.ImportFuncCount()
	for i, typeIdx := range m.FunctionSection {
		code := m.CodeSection[i]
		fn := &wasm.FunctionInstance{
			Type:       m.TypeSection[typeIdx],
			Module:     mi,
			LocalTypes: code.LocalTypes,
			Body:       code.Body,
			DebugName:  debugFuncName(m, importFuncCount+uint32(i)),
		}
		mi.Functions = append(mi.Functions, store.AddFunction(fn))
	}
}

func debugFuncName(m *wasm.Module, idx uint32) string {
	if m.NameSection != nil {
		if n, ok := m.NameSection.FunctionNames[idx]; ok {
			return n
		}
	}
	return fmt.Sprintf("func[%d]", idx)
}

// evalConstExpr interprets a decoded ConstantExpression against an in-progress instantiation: globals referenced
// by global.get must be already-resolved imports, since a module may only read imported globals in initializers.
func evalConstExpr(store *wasm.Store, mi *wasm.ModuleInstance, ce wasm.ConstantExpression) (uint64, error) {
	switch ce.Opcode {
	case wasm.OpcodeI32Const, wasm.OpcodeF32Const:
		return uint64(binary.LittleEndian.Uint32(ce.Data)), nil
	case wasm.OpcodeI64Const, wasm.OpcodeF64Const:
		return binary.LittleEndian.Uint64(ce.Data), nil
	case wasm.OpcodeGlobalGet:
		idx := binary.LittleEndian.Uint32(ce.Data)
		return store.Global(mi.Globals[idx]).Value, nil
	case wasm.OpcodeRefNull:
		return 0, nil
	case wasm.OpcodeRefFunc:
		idx := binary.LittleEndian.Uint32(ce.Data)
		return uint64(mi.Functions[idx]) + 1, nil
	default:
		return 0, fmt.Errorf("unsupported constant expression opcode %#x", ce.Opcode)
	}
}

func applyElementSegments(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) error {
	mi.ElementSegments = make([][]uint64, len(m.ElementSection))
	for i, seg := range m.ElementSection {
		refs := make([]uint64, len(seg.Init))
		for j, init := range seg.Init {
			v, err := evalConstExpr(store, mi, init)
			if err != nil {
				return err
			}
			refs[j] = v
		}
		mi.ElementSegments[i] = refs

		if seg.Mode != wasm.ElementModeActive {
			continue
		}
		offset, err := evalConstExpr(store, mi, seg.OffsetExpr)
		if err != nil {
			return err
		}
		table := store.Table(mi.Tables[seg.TableIndex])
		off := uint32(offset)
		if uint64(off)+uint64(len(refs)) > uint64(len(table.References)) {
			return fmt.Errorf("element segment %d out of bounds for table %d", i, seg.TableIndex)
		}
		copy(table.References[off:], refs)
		mi.ElementSegments[i] = nil // active segments are consumed at instantiation, same as an implicit elem.drop
	}
	return nil
}

func applyDataSegments(store *wasm.Store, m *wasm.Module, mi *wasm.ModuleInstance) error {
	mi.DataSegments = make([][]byte, len(m.DataSection))
	for i, seg := range m.DataSection {
		mi.DataSegments[i] = seg.Init

		if seg.Mode != wasm.DataModeActive {
			continue
		}
		offset, err := evalConstExpr(store, mi, seg.OffsetExpr)
		if err != nil {
			return err
		}
		memInst := store.Memory(mi.Memories[seg.MemoryIndex])
		off := uint64(uint32(offset))
		if off+uint64(len(seg.Init)) > uint64(len(memInst.Buffer)) {
			return fmt.Errorf("data segment %d out of bounds for memory %d", i, seg.MemoryIndex)
		}
		copy(memInst.Buffer[off:], seg.Init)
		mi.DataSegments[i] = nil // active segments are consumed at instantiation, same as an implicit data.drop
	}
	return nil
}

func buildExports(m *wasm.Module, mi *wasm.ModuleInstance) {
	for _, exp := range m.ExportSection {
		var addr uint32
		switch exp.Type {
		case wasm.ExternTypeFunc:
			addr = uint32(mi.Functions[exp.Index])
		case wasm.ExternTypeTable:
			addr = uint32(mi.Tables[exp.Index])
		case wasm.ExternTypeMemory:
			addr = uint32(mi.Memories[exp.Index])
		case wasm.ExternTypeGlobal:
			addr = uint32(mi.Globals[exp.Index])
		}
		mi.Exports[exp.Name] = wasm.ExportInstance{Type: exp.Type, Addr: addr}
	}
}
