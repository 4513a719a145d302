package binary

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func decodeValueType(r *filemgr.Reader) (wasm.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeV128, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return b, nil
	}
	return 0, fmt.Errorf("invalid value type %#x", b)
}

func decodeValueTypes(r *filemgr.Reader) ([]wasm.ValueType, error) {
	n, err := readVecLen(r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ValueType, n)
	for i := range out {
		if out[i], err = decodeValueType(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeLimits(r *filemgr.Reader) (wasm.Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := r.ReadU32()
	if err != nil {
		return wasm.Limits{}, err
	}
	lim := wasm.Limits{Min: min}
	if flag == 1 {
		max, err := r.ReadU32()
		if err != nil {
			return wasm.Limits{}, err
		}
		lim.Max = &max
	}
	return lim, nil
}

func decodeTypeSection(m *wasm.Module, r *filemgr.Reader, enabled wasm.Features) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.TypeSection = make([]*wasm.FunctionType, n)
	for i := range m.TypeSection {
		tag, err := r.ReadByte()
		if err != nil || tag != 0x60 {
			return fmt.Errorf("function type must begin with 0x60")
		}
		params, err := decodeValueTypes(r)
		if err != nil {
			return err
		}
		results, err := decodeValueTypes(r)
		if err != nil {
			return err
		}
		if len(results) > 1 && !enabled.Get(wasm.FeatureMultiValue) {
			return fmt.Errorf("multiple result types requires the multi-value feature")
		}
		m.TypeSection[i] = &wasm.FunctionType{Params: params, Results: results}
	}
	return nil
}

func decodeImportSection(m *wasm.Module, r *filemgr.Reader, memoryCapPages uint32) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.ImportSection = make([]*wasm.Import, n)
	for i := range m.ImportSection {
		mod, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := &wasm.Import{Type: kind, Module: mod, Name: name}
		switch kind {
		case wasm.ExternTypeFunc:
			if imp.DescFunc, err = r.ReadU32(); err != nil {
				return err
			}
		case wasm.ExternTypeTable:
			if imp.DescTable, err = decodeTableType(r); err != nil {
				return err
			}
		case wasm.ExternTypeMemory:
			if imp.DescMem, err = decodeMemoryType(r, memoryCapPages); err != nil {
				return err
			}
		case wasm.ExternTypeGlobal:
			if imp.DescGlobal, err = decodeGlobalType(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid import kind %#x", kind)
		}
		m.ImportSection[i] = imp
	}
	return nil
}

func decodeTableType(r *filemgr.Reader) (wasm.TableType, error) {
	elem, err := decodeValueType(r)
	if err != nil {
		return wasm.TableType{}, err
	}
	lim, err := decodeLimits(r)
	if err != nil {
		return wasm.TableType{}, err
	}
	return wasm.TableType{ElemType: elem, Lim: lim}, nil
}

func decodeMemoryType(r *filemgr.Reader, memoryCapPages uint32) (wasm.MemoryType, error) {
	lim, err := decodeLimits(r)
	if err != nil {
		return wasm.MemoryType{}, err
	}
	return wasm.MemoryType{Min: lim.Min, Max: lim.Max, Cap: memoryCapPages}, nil
}

func decodeGlobalType(r *filemgr.Reader) (wasm.GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return wasm.GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return wasm.GlobalType{}, err
	}
	if mut > 1 {
		return wasm.GlobalType{}, fmt.Errorf("invalid global mutability %#x", mut)
	}
	return wasm.GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func decodeFunctionSection(m *wasm.Module, r *filemgr.Reader) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.FunctionSection = make([]uint32, n)
	for i := range m.FunctionSection {
		if m.FunctionSection[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTableSection(m *wasm.Module, r *filemgr.Reader) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.TableSection = make([]*wasm.TableType, n)
	for i := range m.TableSection {
		tt, err := decodeTableType(r)
		if err != nil {
			return err
		}
		m.TableSection[i] = &tt
	}
	return nil
}

func decodeMemorySection(m *wasm.Module, r *filemgr.Reader, memoryCapPages uint32) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.MemorySection = make([]*wasm.MemoryType, n)
	for i := range m.MemorySection {
		mt, err := decodeMemoryType(r, memoryCapPages)
		if err != nil {
			return err
		}
		m.MemorySection[i] = &mt
	}
	return nil
}

// decodeConstantExpression reads a single constant instruction terminated by OpcodeEnd, capturing its opcode and
// raw operand bytes for the Validator/Executor to interpret later.
func decodeConstantExpression(r *filemgr.Reader) (wasm.ConstantExpression, error) {
	op, err := r.ReadByte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	var data []byte
	switch op {
	case wasm.OpcodeI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU32(uint32(v))
	case wasm.OpcodeI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU64(uint64(v))
	case wasm.OpcodeF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU32(float32bits(v))
	case wasm.OpcodeF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU64(float64bits(v))
	case wasm.OpcodeGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU32(idx)
	case wasm.OpcodeRefNull:
		vt, err := decodeValueType(r)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = []byte{vt}
	case wasm.OpcodeRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		data = leU32(idx)
	default:
		return wasm.ConstantExpression{}, fmt.Errorf("opcode %#x is not valid in a constant expression", op)
	}
	end, err := r.ReadByte()
	if err != nil || end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, fmt.Errorf("constant expression must be terminated by end")
	}
	return wasm.ConstantExpression{Opcode: op, Data: data}, nil
}

func decodeGlobalSection(m *wasm.Module, r *filemgr.Reader) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.GlobalSection = make([]*wasm.Global, n)
	for i := range m.GlobalSection {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return err
		}
		init, err := decodeConstantExpression(r)
		if err != nil {
			return err
		}
		m.GlobalSection[i] = &wasm.Global{Type: gt, Init: init}
	}
	return nil
}

func decodeExportSection(m *wasm.Module, r *filemgr.Reader) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.ExportSection = make([]*wasm.Export, n)
	for i := range m.ExportSection {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.ExportSection[i] = &wasm.Export{Name: name, Type: kind, Index: idx}
	}
	return nil
}
