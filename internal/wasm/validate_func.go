package wasm

import (
	"github.com/wasmforge/wasmforge/internal/filemgr"
)

// stackType is an operand-stack entry: a concrete ValueType, or unknownType for a polymorphic slot pushed after
// an unreachable instruction (matches anything, needed so dead code past unreachable/br/return still validates).
type stackType = int16

const unknownType stackType = -1

func toStackType(v ValueType) stackType { return stackType(v) }

// controlFrame tracks one nested block/loop/if/else while validating a function body.
type controlFrame struct {
	opcode      Opcode
	blockType   *FunctionType
	startHeight int  // operand stack height at frame entry (below this, the validator can't pop)
	unreachable bool // set once an unreachable/br/br_table/return instruction makes the rest of this frame dead code
	sawElse     bool
}

// funcValidator holds the operand and control stacks for a single function body.
type funcValidator struct {
	m       *Module
	enabled Features
	locals  []ValueType // params followed by declared locals
	operand []stackType
	control []controlFrame
}

func validateFunctionBody(m *Module, ft *FunctionType, code *Code, enabled Features) error {
	fv := &funcValidator{m: m, enabled: enabled}
	fv.locals = append(fv.locals, ft.Params...)
	fv.locals = append(fv.locals, code.LocalTypes...)
	fv.control = append(fv.control, controlFrame{opcode: OpcodeBlock, blockType: ft, startHeight: 0})

	r := filemgr.New(code.Body)
	for {
		if len(fv.control) == 0 {
			break // the implicit outer block's End was consumed, function body is fully validated
		}
		op, err := r.ReadByte()
		if err != nil {
			return errf("unexpected end of function body")
		}
		if err := fv.step(op, r); err != nil {
			return err
		}
	}
	if r.GetRemainSize() != 0 {
		return errf("function body has %d bytes after the final end", r.GetRemainSize())
	}
	return nil
}

func (fv *funcValidator) push(t stackType)  { fv.operand = append(fv.operand, t) }
func (fv *funcValidator) pushVal(t ValueType) { fv.push(toStackType(t)) }

func (fv *funcValidator) pop() (stackType, error) {
	top := &fv.control[len(fv.control)-1]
	if len(fv.operand) == top.startHeight {
		if top.unreachable {
			return unknownType, nil
		}
		return 0, errf("operand stack underflow")
	}
	v := fv.operand[len(fv.operand)-1]
	fv.operand = fv.operand[:len(fv.operand)-1]
	return v, nil
}

func (fv *funcValidator) popExpect(want ValueType) error {
	got, err := fv.pop()
	if err != nil {
		return err
	}
	if got != unknownType && got != toStackType(want) {
		return errf("type mismatch: expected %s, got %s", ValueTypeName(want), ValueTypeName(byte(got)))
	}
	return nil
}

// setUnreachable discards the current frame's operand stack down to its entry height and marks it polymorphic,
// the standard handling for code following unreachable/br/br_table/return.
func (fv *funcValidator) setUnreachable() {
	top := &fv.control[len(fv.control)-1]
	fv.operand = fv.operand[:top.startHeight]
	top.unreachable = true
}

func (fv *funcValidator) labelTypes(depth uint32) ([]ValueType, error) {
	if int(depth) >= len(fv.control) {
		return nil, errf("branch depth %d out of range", depth)
	}
	frame := fv.control[len(fv.control)-1-int(depth)]
	if frame.opcode == OpcodeLoop {
		return frame.blockType.Params, nil
	}
	return frame.blockType.Results, nil
}

// step decodes and validates one instruction, consuming its immediates from r.
func (fv *funcValidator) step(op Opcode, r *filemgr.Reader) error {
	switch op {
	case OpcodeUnreachable:
		fv.setUnreachable()
	case OpcodeNop:
	case OpcodeBlock, OpcodeLoop, OpcodeIf:
		bt, err := fv.readBlockType(r)
		if err != nil {
			return err
		}
		if op == OpcodeIf {
			if err := fv.popExpect(ValueTypeI32); err != nil {
				return err
			}
		}
		for _, p := range bt.Params {
			if err := fv.popExpect(p); err != nil {
				return err
			}
		}
		fv.control = append(fv.control, controlFrame{opcode: op, blockType: bt, startHeight: len(fv.operand)})
		for _, p := range bt.Params {
			fv.pushVal(p)
		}
	case OpcodeElse:
		top := fv.control[len(fv.control)-1]
		if top.opcode != OpcodeIf {
			return errf("else without a matching if")
		}
		if err := fv.popTypesInOrder(top.blockType.Results); err != nil {
			return err
		}
		fv.control[len(fv.control)-1].sawElse = true
		fv.control[len(fv.control)-1].unreachable = false
		fv.operand = fv.operand[:top.startHeight]
		for _, p := range top.blockType.Params {
			fv.pushVal(p)
		}
	case OpcodeEnd:
		top := fv.control[len(fv.control)-1]
		if top.opcode == OpcodeIf && !top.sawElse && !fv.blockTypeEqual(top.blockType) {
			return errf("if without else must not change the operand stack's arity")
		}
		if err := fv.popTypesInOrder(top.blockType.Results); err != nil {
			return err
		}
		fv.control = fv.control[:len(fv.control)-1]
		// The results just validated stay logically on the stack; push them back for the enclosing frame (or,
		// for the outermost frame, for the caller to observe as the function's return values).
		for _, rt := range top.blockType.Results {
			fv.pushVal(rt)
		}
	case OpcodeBr:
		depth, err := r.ReadU32()
		if err != nil {
			return errf("malformed br immediate")
		}
		types, err := fv.labelTypes(depth)
		if err != nil {
			return err
		}
		if err := fv.popTypesInOrder(types); err != nil {
			return err
		}
		fv.setUnreachable()
	case OpcodeBrIf:
		depth, err := r.ReadU32()
		if err != nil {
			return errf("malformed br_if immediate")
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		types, err := fv.labelTypes(depth)
		if err != nil {
			return err
		}
		if err := fv.popTypesInOrder(types); err != nil {
			return err
		}
		for _, t := range types {
			fv.pushVal(t)
		}
	case OpcodeBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return errf("malformed br_table immediate")
		}
		for i := uint32(0); i < n; i++ {
			if _, err := r.ReadU32(); err != nil {
				return errf("malformed br_table target")
			}
		}
		defaultDepth, err := r.ReadU32()
		if err != nil {
			return errf("malformed br_table default")
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		types, err := fv.labelTypes(defaultDepth)
		if err != nil {
			return err
		}
		if err := fv.popTypesInOrder(types); err != nil {
			return err
		}
		fv.setUnreachable()
	case OpcodeReturn:
		outer := fv.control[0]
		if err := fv.popTypesInOrder(outer.blockType.Results); err != nil {
			return err
		}
		fv.setUnreachable()
	case OpcodeCall:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed call immediate")
		}
		ft := fv.m.TypeOfFunction(idx)
		if ft == nil {
			return errf("call: function index %d out of range", idx)
		}
		if err := fv.popTypesInOrder(ft.Params); err != nil {
			return err
		}
		for _, t := range ft.Results {
			fv.pushVal(t)
		}
	case OpcodeCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return errf("malformed call_indirect type index")
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return errf("malformed call_indirect table index")
		}
		if int(tableIdx) >= len(fv.m.TableSection)+int(fv.m.ImportTableCount()) {
			return errf("call_indirect: table index %d out of range", tableIdx)
		}
		if int(typeIdx) >= len(fv.m.TypeSection) {
			return errf("call_indirect: type index %d out of range", typeIdx)
		}
		ft := fv.m.TypeSection[typeIdx]
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		if err := fv.popTypesInOrder(ft.Params); err != nil {
			return err
		}
		for _, t := range ft.Results {
			fv.pushVal(t)
		}
	case OpcodeDrop:
		if _, err := fv.pop(); err != nil {
			return err
		}
	case OpcodeSelect:
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		b, err := fv.pop()
		if err != nil {
			return err
		}
		a, err := fv.pop()
		if err != nil {
			return err
		}
		if a != unknownType && b != unknownType && a != b {
			return errf("select operands must have the same type")
		}
		if a != unknownType {
			fv.push(a)
		} else {
			fv.push(b)
		}
	case OpcodeSelectT:
		n, err := r.ReadU32()
		if err != nil {
			return errf("malformed select immediate")
		}
		var result ValueType
		for i := uint32(0); i < n; i++ {
			vt, err := r.ReadByte()
			if err != nil {
				return errf("malformed select type")
			}
			result = vt
		}
		if err := fv.popExpect(ValueTypeI32); err != nil {
			return err
		}
		if err := fv.popExpect(result); err != nil {
			return err
		}
		if err := fv.popExpect(result); err != nil {
			return err
		}
		fv.pushVal(result)
	case OpcodeLocalGet:
		idx, err := r.ReadU32()
		if err != nil || int(idx) >= len(fv.locals) {
			return errf("local.get: index out of range")
		}
		fv.pushVal(fv.locals[idx])
	case OpcodeLocalSet, OpcodeLocalTee:
		idx, err := r.ReadU32()
		if err != nil || int(idx) >= len(fv.locals) {
			return errf("local index out of range")
		}
		if err := fv.popExpect(fv.locals[idx]); err != nil {
			return err
		}
		if op == OpcodeLocalTee {
			fv.pushVal(fv.locals[idx])
		}
	case OpcodeGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed global.get immediate")
		}
		gt, err := fv.globalType(idx)
		if err != nil {
			return err
		}
		fv.pushVal(gt.ValType)
	case OpcodeGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return errf("malformed global.set immediate")
		}
		gt, err := fv.globalType(idx)
		if err != nil {
			return err
		}
		if !gt.Mutable {
			return errf("global.set: global %d is immutable", idx)
		}
		if err := fv.popExpect(gt.ValType); err != nil {
			return err
		}
	case OpcodeI32Const:
		if _, err := r.ReadS32(); err != nil {
			return errf("malformed i32.const immediate")
		}
		fv.pushVal(ValueTypeI32)
	case OpcodeI64Const:
		if _, err := r.ReadS64(); err != nil {
			return errf("malformed i64.const immediate")
		}
		fv.pushVal(ValueTypeI64)
	case OpcodeF32Const:
		if _, err := r.ReadF32(); err != nil {
			return errf("malformed f32.const immediate")
		}
		fv.pushVal(ValueTypeF32)
	case OpcodeF64Const:
		if _, err := r.ReadF64(); err != nil {
			return errf("malformed f64.const immediate")
		}
		fv.pushVal(ValueTypeF64)
	case OpcodeMemorySize, OpcodeMemoryGrow:
		if _, err := r.ReadByte(); err != nil { // reserved byte, must be 0
			return errf("malformed memory.size/grow immediate")
		}
		if op == OpcodeMemoryGrow {
			if err := fv.popExpect(ValueTypeI32); err != nil {
				return err
			}
		}
		fv.pushVal(ValueTypeI32)
	default:
		if err := fv.stepNumericOrMemory(op, r); err != nil {
			return err
		}
	}
	return nil
}

func (fv *funcValidator) globalType(idx uint32) (GlobalType, error) {
	importCount := fv.m.ImportGlobalCount()
	if idx < importCount {
		return fv.m.ImportSection[importIndexOf(fv.m, ExternTypeGlobal, idx)].DescGlobal, nil
	}
	defIdx := idx - importCount
	if int(defIdx) >= len(fv.m.GlobalSection) {
		return GlobalType{}, errf("global index %d out of range", idx)
	}
	return fv.m.GlobalSection[defIdx].Type, nil
}

func (fv *funcValidator) popTypesInOrder(types []ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		if err := fv.popExpect(types[i]); err != nil {
			return err
		}
	}
	return nil
}

func (fv *funcValidator) blockTypeEqual(ft *FunctionType) bool {
	return ft.String() == (&FunctionType{Params: ft.Params, Results: ft.Params}).String()
}

// readBlockType decodes a block type: either 0x40 (empty), a single value type byte, or a signed LEB128 type
// index naming a function type in the module (multi-value blocks).
func (fv *funcValidator) readBlockType(r *filemgr.Reader) (*FunctionType, error) {
	b, err := r.PeekByte()
	if err == nil && b == 0x40 {
		_, _ = r.ReadByte()
		return &FunctionType{}, nil
	}
	if err == nil && isValueTypeByte(b) {
		_, _ = r.ReadByte()
		return &FunctionType{Results: []ValueType{b}}, nil
	}
	idx, err := r.ReadS33()
	if err != nil || idx < 0 || int(idx) >= len(fv.m.TypeSection) {
		return nil, errf("malformed block type")
	}
	return fv.m.TypeSection[idx], nil
}

func isValueTypeByte(b byte) bool {
	switch b {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return true
	}
	return false
}
