package binary

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// decodeElementSection handles the seven element-segment prefix cases from the bulk-memory-operations proposal.
// Prefixes 1-7 require FeatureBulkMemoryOperations; prefix 0 is the MVP's sole active-table-0 form.
func decodeElementSection(m *wasm.Module, r *filemgr.Reader, enabled wasm.Features) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.ElementSection = make([]*wasm.ElementSegment, n)
	for i := range m.ElementSection {
		prefix, err := r.ReadU32()
		if err != nil {
			return err
		}
		if prefix != 0 && !enabled.Get(wasm.FeatureBulkMemoryOperations) {
			return fmt.Errorf("element segment prefix %d requires the bulk-memory-operations feature", prefix)
		}
		seg := &wasm.ElementSegment{Type: wasm.ValueTypeFuncref}
		switch prefix {
		case 0:
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 1:
			seg.Mode = wasm.ElementModePassive
			if _, err := r.ReadByte(); err != nil { // elemkind, must be 0 (funcref)
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 2:
			if seg.TableIndex, err = r.ReadU32(); err != nil {
				return err
			}
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
			if _, err := r.ReadByte(); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 3:
			seg.Mode = wasm.ElementModeDeclarative
			if _, err := r.ReadByte(); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 4:
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 5:
			seg.Mode = wasm.ElementModePassive
			if seg.Type, err = decodeValueType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 6:
			if seg.TableIndex, err = r.ReadU32(); err != nil {
				return err
			}
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
			if seg.Type, err = decodeValueType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 7:
			seg.Mode = wasm.ElementModeDeclarative
			if seg.Type, err = decodeValueType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid element segment prefix %d", prefix)
		}
		m.ElementSection[i] = seg
	}
	return nil
}

func decodeFuncIndexInits(r *filemgr.Reader) ([]wasm.ConstantExpression, error) {
	n, err := readVecLen(r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ConstantExpression, n)
	for i := range out {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.ConstantExpression{Opcode: wasm.OpcodeRefFunc, Data: leU32(idx)}
	}
	return out, nil
}

func decodeExprInits(r *filemgr.Reader) ([]wasm.ConstantExpression, error) {
	n, err := readVecLen(r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ConstantExpression, n)
	for i := range out {
		ce, err := decodeConstantExpression(r)
		if err != nil {
			return nil, err
		}
		out[i] = ce
	}
	return out, nil
}

func decodeCodeSection(m *wasm.Module, r *filemgr.Reader) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.CodeSection = make([]*wasm.Code, n)
	for i := range m.CodeSection {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes(uint64(size))
		if err != nil {
			return err
		}
		br := filemgr.New(body)
		code, err := decodeCode(br)
		if err != nil {
			return err
		}
		if br.GetRemainSize() != 0 {
			return fmt.Errorf("code entry %d: %d bytes remain after decoding", i, br.GetRemainSize())
		}
		m.CodeSection[i] = code
	}
	return nil
}

// decodeCode reads a run-length-encoded locals declaration ((count, value-type)*) followed by the raw
// instruction stream, kept undecoded for the Validator/Executor to walk directly.
func decodeCode(r *filemgr.Reader) (*wasm.Code, error) {
	numGroups, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	var locals []wasm.ValueType
	for i := uint32(0); i < numGroups; i++ {
		count, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, vt)
		}
	}
	body := r.RemainingBytes()
	return &wasm.Code{LocalTypes: locals, Body: body}, nil
}

func decodeDataSection(m *wasm.Module, r *filemgr.Reader, enabled wasm.Features) error {
	n, err := readVecLen(r)
	if err != nil {
		return err
	}
	m.DataSection = make([]*wasm.DataSegment, n)
	for i := range m.DataSection {
		prefix, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg := &wasm.DataSegment{}
		switch prefix {
		case 0:
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
		case 1:
			if !enabled.Get(wasm.FeatureBulkMemoryOperations) {
				return fmt.Errorf("passive data segments require the bulk-memory-operations feature")
			}
			seg.Mode = wasm.DataModePassive
		case 2:
			if !enabled.Get(wasm.FeatureBulkMemoryOperations) {
				return fmt.Errorf("data segments naming a memory index require the bulk-memory-operations feature")
			}
			if seg.MemoryIndex, err = r.ReadU32(); err != nil {
				return err
			}
			if seg.OffsetExpr, err = decodeConstantExpression(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid data segment prefix %d", prefix)
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(uint64(size)); err != nil {
			return err
		}
		m.DataSection[i] = seg
	}
	return nil
}

func decodeNameSection(r *filemgr.Reader) (*wasm.NameSection, error) {
	ns := &wasm.NameSection{FunctionNames: map[uint32]string{}, LocalNames: map[uint32]map[uint32]string{}}
	for r.GetRemainSize() > 0 {
		subID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		content, err := r.ReadBytes(uint64(size))
		if err != nil {
			return nil, err
		}
		sr := filemgr.New(content)
		switch subID {
		case 0:
			if ns.ModuleName, err = sr.ReadName(); err != nil {
				return nil, err
			}
		case 1:
			n, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < n; i++ {
				idx, err := sr.ReadU32()
				if err != nil {
					return nil, err
				}
				name, err := sr.ReadName()
				if err != nil {
					return nil, err
				}
				ns.FunctionNames[idx] = name
			}
		default:
			// local names and anything newer are skipped; diagnostics-only data, not required for execution.
		}
	}
	return ns, nil
}
