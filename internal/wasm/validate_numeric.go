package wasm

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/filemgr"
)

// memArgWidths gives the natural access width in bytes for each load/store opcode, used only to validate the
// declared alignment does not exceed it; the Executor re-derives the same width from the opcode when it runs.
var memArgWidths = map[Opcode]uint32{
	OpcodeI32Load: 4, OpcodeI64Load: 8, OpcodeF32Load: 4, OpcodeF64Load: 8,
	OpcodeI32Load8S: 1, OpcodeI32Load8U: 1, OpcodeI32Load16S: 2, OpcodeI32Load16U: 2,
	OpcodeI64Load8S: 1, OpcodeI64Load8U: 1, OpcodeI64Load16S: 2, OpcodeI64Load16U: 2,
	OpcodeI64Load32S: 4, OpcodeI64Load32U: 4,
	OpcodeI32Store: 4, OpcodeI64Store: 8, OpcodeF32Store: 4, OpcodeF64Store: 8,
	OpcodeI32Store8: 1, OpcodeI32Store16: 2, OpcodeI64Store8: 1, OpcodeI64Store16: 2, OpcodeI64Store32: 4,
}

var memArgLoadResult = map[Opcode]ValueType{
	OpcodeI32Load: ValueTypeI32, OpcodeI32Load8S: ValueTypeI32, OpcodeI32Load8U: ValueTypeI32,
	OpcodeI32Load16S: ValueTypeI32, OpcodeI32Load16U: ValueTypeI32,
	OpcodeI64Load: ValueTypeI64, OpcodeI64Load8S: ValueTypeI64, OpcodeI64Load8U: ValueTypeI64,
	OpcodeI64Load16S: ValueTypeI64, OpcodeI64Load16U: ValueTypeI64,
	OpcodeI64Load32S: ValueTypeI64, OpcodeI64Load32U: ValueTypeI64,
	OpcodeF32Load: ValueTypeF32, OpcodeF64Load: ValueTypeF64,
}

var memArgStoreOperand = map[Opcode]ValueType{
	OpcodeI32Store: ValueTypeI32, OpcodeI32Store8: ValueTypeI32, OpcodeI32Store16: ValueTypeI32,
	OpcodeI64Store: ValueTypeI64, OpcodeI64Store8: ValueTypeI64, OpcodeI64Store16: ValueTypeI64, OpcodeI64Store32: ValueTypeI64,
	OpcodeF32Store: ValueTypeF32, OpcodeF64Store: ValueTypeF64,
}

// numericSig describes a numeric instruction's fixed operand/result shape.
type numericSig struct {
	params  []ValueType
	results []ValueType
}

var i32 = ValueTypeI32
var i64 = ValueTypeI64
var f32 = ValueTypeF32
var f64 = ValueTypeF64

var numericSigs = buildNumericSigs()

func buildNumericSigs() map[Opcode]numericSig {
	sigs := map[Opcode]numericSig{}
	unary := func(in, out ValueType, ops ...Opcode) {
		for _, op := range ops {
			sigs[op] = numericSig{params: []ValueType{in}, results: []ValueType{out}}
		}
	}
	binary := func(in, out ValueType, ops ...Opcode) {
		for _, op := range ops {
			sigs[op] = numericSig{params: []ValueType{in, in}, results: []ValueType{out}}
		}
	}

	unary(i32, i32, OpcodeI32Eqz, OpcodeI32Clz, OpcodeI32Ctz, OpcodeI32Popcnt, OpcodeI32Extend8S, OpcodeI32Extend16S)
	binary(i32, i32, OpcodeI32Eq, OpcodeI32Ne, OpcodeI32LtS, OpcodeI32LtU, OpcodeI32GtS, OpcodeI32GtU,
		OpcodeI32LeS, OpcodeI32LeU, OpcodeI32GeS, OpcodeI32GeU,
		OpcodeI32Add, OpcodeI32Sub, OpcodeI32Mul, OpcodeI32DivS, OpcodeI32DivU, OpcodeI32RemS, OpcodeI32RemU,
		OpcodeI32And, OpcodeI32Or, OpcodeI32Xor, OpcodeI32Shl, OpcodeI32ShrS, OpcodeI32ShrU, OpcodeI32Rotl, OpcodeI32Rotr)

	unary(i64, i64, OpcodeI64Clz, OpcodeI64Ctz, OpcodeI64Popcnt, OpcodeI64Extend8S, OpcodeI64Extend16S, OpcodeI64Extend32S)
	unary(i64, i32, OpcodeI64Eqz)
	binary(i64, i64, OpcodeI64Add, OpcodeI64Sub, OpcodeI64Mul, OpcodeI64DivS, OpcodeI64DivU, OpcodeI64RemS, OpcodeI64RemU,
		OpcodeI64And, OpcodeI64Or, OpcodeI64Xor, OpcodeI64Shl, OpcodeI64ShrS, OpcodeI64ShrU, OpcodeI64Rotl, OpcodeI64Rotr)
	binary(i64, i32, OpcodeI64Eq, OpcodeI64Ne, OpcodeI64LtS, OpcodeI64LtU, OpcodeI64GtS, OpcodeI64GtU, OpcodeI64LeS, OpcodeI64LeU, OpcodeI64GeS, OpcodeI64GeU)

	unary(f32, f32, OpcodeF32Abs, OpcodeF32Neg, OpcodeF32Ceil, OpcodeF32Floor, OpcodeF32Trunc, OpcodeF32Nearest, OpcodeF32Sqrt)
	binary(f32, f32, OpcodeF32Add, OpcodeF32Sub, OpcodeF32Mul, OpcodeF32Div, OpcodeF32Min, OpcodeF32Max, OpcodeF32Copysign)
	binary(f32, i32, OpcodeF32Eq, OpcodeF32Ne, OpcodeF32Lt, OpcodeF32Gt, OpcodeF32Le, OpcodeF32Ge)

	unary(f64, f64, OpcodeF64Abs, OpcodeF64Neg, OpcodeF64Ceil, OpcodeF64Floor, OpcodeF64Trunc, OpcodeF64Nearest, OpcodeF64Sqrt)
	binary(f64, f64, OpcodeF64Add, OpcodeF64Sub, OpcodeF64Mul, OpcodeF64Div, OpcodeF64Min, OpcodeF64Max, OpcodeF64Copysign)
	binary(f64, i32, OpcodeF64Eq, OpcodeF64Ne, OpcodeF64Lt, OpcodeF64Gt, OpcodeF64Le, OpcodeF64Ge)

	sigs[OpcodeI32WrapI64] = numericSig{params: []ValueType{i64}, results: []ValueType{i32}}
	sigs[OpcodeI64ExtendI32S] = numericSig{params: []ValueType{i32}, results: []ValueType{i64}}
	sigs[OpcodeI64ExtendI32U] = numericSig{params: []ValueType{i32}, results: []ValueType{i64}}
	for _, op := range []Opcode{OpcodeI32TruncF32S, OpcodeI32TruncF32U} {
		sigs[op] = numericSig{params: []ValueType{f32}, results: []ValueType{i32}}
	}
	for _, op := range []Opcode{OpcodeI32TruncF64S, OpcodeI32TruncF64U} {
		sigs[op] = numericSig{params: []ValueType{f64}, results: []ValueType{i32}}
	}
	for _, op := range []Opcode{OpcodeI64TruncF32S, OpcodeI64TruncF32U} {
		sigs[op] = numericSig{params: []ValueType{f32}, results: []ValueType{i64}}
	}
	for _, op := range []Opcode{OpcodeI64TruncF64S, OpcodeI64TruncF64U} {
		sigs[op] = numericSig{params: []ValueType{f64}, results: []ValueType{i64}}
	}
	for _, op := range []Opcode{OpcodeF32ConvertI32S, OpcodeF32ConvertI32U} {
		sigs[op] = numericSig{params: []ValueType{i32}, results: []ValueType{f32}}
	}
	for _, op := range []Opcode{OpcodeF32ConvertI64S, OpcodeF32ConvertI64U} {
		sigs[op] = numericSig{params: []ValueType{i64}, results: []ValueType{f32}}
	}
	sigs[OpcodeF32DemoteF64] = numericSig{params: []ValueType{f64}, results: []ValueType{f32}}
	for _, op := range []Opcode{OpcodeF64ConvertI32S, OpcodeF64ConvertI32U} {
		sigs[op] = numericSig{params: []ValueType{i32}, results: []ValueType{f64}}
	}
	for _, op := range []Opcode{OpcodeF64ConvertI64S, OpcodeF64ConvertI64U} {
		sigs[op] = numericSig{params: []ValueType{i64}, results: []ValueType{f64}}
	}
	sigs[OpcodeF64PromoteF32] = numericSig{params: []ValueType{f32}, results: []ValueType{f64}}
	sigs[OpcodeI32ReinterpretF32] = numericSig{params: []ValueType{f32}, results: []ValueType{i32}}
	sigs[OpcodeI64ReinterpretF64] = numericSig{params: []ValueType{f64}, results: []ValueType{i64}}
	sigs[OpcodeF32ReinterpretI32] = numericSig{params: []ValueType{i32}, results: []ValueType{f32}}
	sigs[OpcodeF64ReinterpretI64] = numericSig{params: []ValueType{i64}, results: []ValueType{f64}}
	return sigs
}

// stepNumericOrMemory handles every opcode not given bespoke control-flow treatment in step: memory loads/stores,
// the fixed-arity numeric instructions, reference instructions, and the 0xfc-prefixed bulk-memory/saturating ops.
func (fv *funcValidator) stepNumericOrMemory(op Opcode, r *filemgr.Reader) error {
	if width, ok := memArgWidths[op]; ok {
		align, err := r.ReadU32()
		if err != nil {
			return errf("malformed memory instruction alignment")
		}
		if _, err := r.ReadU32(); err != nil { // offset
			return errf("malformed memory instruction offset")
		}
		if uint32(1)<<align > width {
			return errf("alignment must not exceed the natural alignment of the access")
		}
		if len(fv.m.MemorySection)+int(fv.m.ImportMemoryCount()) == 0 {
			return errf("memory instruction without a memory")
		}
		if result, ok := memArgLoadResult[op]; ok {
			if err := fv.popExpect(ValueTypeI32); err != nil {
				return err
			}
			fv.pushVal(result)
			return nil
		}
		operand := memArgStoreOperand[op]
		if err := fv.popExpect(operand); err != nil {
			return err
		}
		return fv.popExpect(ValueTypeI32)
	}

	if sig, ok := numericSigs[op]; ok {
		if err := fv.popTypesInOrder(sig.params); err != nil {
			return err
		}
		for _, rt := range sig.results {
			fv.pushVal(rt)
		}
		return nil
	}

	switch op {
	case OpcodeRefNull:
		vt, err := r.ReadByte()
		if err != nil || !isValueTypeByte(vt) || !api.IsReferenceType(vt) {
			return errf("malformed ref.null type")
		}
		fv.pushVal(vt)
	case OpcodeRefIsNull:
		if _, err := fv.pop(); err != nil {
			return err
		}
		fv.pushVal(ValueTypeI32)
	case OpcodeRefFunc:
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed ref.func immediate")
		}
		fv.pushVal(ValueTypeFuncref)
	case OpcodeTableGet:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed table.get immediate")
		}
		tt, err := fv.tableType(idx)
		if err != nil {
			return err
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		fv.pushVal(tt.ElemType)
	case OpcodeTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed table.set immediate")
		}
		tt, err := fv.tableType(idx)
		if err != nil {
			return err
		}
		if err := fv.popExpect(tt.ElemType); err != nil {
			return err
		}
		return fv.popExpect(ValueTypeI32)
	case OpcodeMiscPrefix:
		return fv.stepMisc(r)
	default:
		return errf("illegal or unsupported opcode %#x", op)
	}
	return nil
}

func (fv *funcValidator) tableType(idx uint32) (*TableType, error) {
	importCount := fv.m.ImportTableCount()
	if idx < importCount {
		return &fv.m.ImportSection[importIndexOf(fv.m, ExternTypeTable, idx)].DescTable, nil
	}
	defIdx := idx - importCount
	if int(defIdx) >= len(fv.m.TableSection) {
		return nil, errf("table index %d out of range", idx)
	}
	return fv.m.TableSection[defIdx], nil
}

// stepMisc validates the 0xfc-prefixed saturating-truncation and bulk-memory/table instructions.
func (fv *funcValidator) stepMisc(r *filemgr.Reader) error {
	sub, err := r.ReadU32()
	if err != nil {
		return errf("malformed misc opcode")
	}
	switch byte(sub) {
	case MiscOpcodeI32TruncSatF32S, MiscOpcodeI32TruncSatF32U:
		return fv.popPush(f32, i32)
	case MiscOpcodeI32TruncSatF64S, MiscOpcodeI32TruncSatF64U:
		return fv.popPush(f64, i32)
	case MiscOpcodeI64TruncSatF32S, MiscOpcodeI64TruncSatF32U:
		return fv.popPush(f32, i64)
	case MiscOpcodeI64TruncSatF64S, MiscOpcodeI64TruncSatF64U:
		return fv.popPush(f64, i64)
	case MiscOpcodeMemoryInit:
		if _, err := r.ReadU32(); err != nil { // data index
			return errf("malformed memory.init immediate")
		}
		if _, err := r.ReadByte(); err != nil { // memory index (reserved, must be 0 in MVP)
			return errf("malformed memory.init immediate")
		}
		return fv.popTypesInOrder([]ValueType{i32, i32, i32})
	case MiscOpcodeDataDrop:
		_, err := r.ReadU32()
		return wrapErr(err, "malformed data.drop immediate")
	case MiscOpcodeMemoryCopy:
		if _, err := r.ReadByte(); err != nil {
			return errf("malformed memory.copy immediate")
		}
		if _, err := r.ReadByte(); err != nil {
			return errf("malformed memory.copy immediate")
		}
		return fv.popTypesInOrder([]ValueType{i32, i32, i32})
	case MiscOpcodeMemoryFill:
		if _, err := r.ReadByte(); err != nil {
			return errf("malformed memory.fill immediate")
		}
		return fv.popTypesInOrder([]ValueType{i32, i32, i32})
	case MiscOpcodeTableInit:
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed table.init immediate")
		}
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed table.init immediate")
		}
		return fv.popTypesInOrder([]ValueType{i32, i32, i32})
	case MiscOpcodeElemDrop:
		_, err := r.ReadU32()
		return wrapErr(err, "malformed elem.drop immediate")
	case MiscOpcodeTableCopy:
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed table.copy immediate")
		}
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed table.copy immediate")
		}
		return fv.popTypesInOrder([]ValueType{i32, i32, i32})
	case MiscOpcodeTableGrow:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed table.grow immediate")
		}
		tt, err := fv.tableType(idx)
		if err != nil {
			return err
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		if err := fv.popExpect(tt.ElemType); err != nil {
			return err
		}
		fv.pushVal(ValueTypeI32)
	case MiscOpcodeTableSize:
		if _, err := r.ReadU32(); err != nil {
			return errf("malformed table.size immediate")
		}
		fv.pushVal(ValueTypeI32)
	case MiscOpcodeTableFill:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed table.fill immediate")
		}
		tt, err := fv.tableType(idx)
		if err != nil {
			return err
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		if err := fv.popExpect(tt.ElemType); err != nil {
			return err
		}
		return fv.popExpect(ValueTypeI32)
	default:
		return errf("illegal misc opcode %#x", sub)
	}
	return nil
}

func (fv *funcValidator) popPush(in, out ValueType) error {
	if err := fv.popExpect(in); err != nil {
		return err
	}
	fv.pushVal(out)
	return nil
}

func wrapErr(err error, msg string) error {
	if err != nil {
		return errf(msg)
	}
	return nil
}
