package interpreter

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/moremath"
	"github.com/wasmforge/wasmforge/internal/wasm"
	"github.com/wasmforge/wasmforge/internal/wasmruntime"
)

// maxCallStackDepth bounds recursive Wasm-to-Wasm calls; exceeding it traps as CallStackExhausted rather than
// overflowing the host goroutine's own stack.
const maxCallStackDepth = 2000

// Engine runs compiled functions against a wasm.Store. It caches each FunctionInstance's branchTargets the first
// time it is called, keyed by the *wasm.FunctionInstance pointer, so a hot function is only scanned once.
type Engine struct {
	store     *wasm.Store
	compiled  map[*wasm.FunctionInstance]*branchTargets
	callDepth int
}

// NewEngine creates an Engine bound to store.
func NewEngine(store *wasm.Store) *Engine {
	return &Engine{store: store, compiled: map[*wasm.FunctionInstance]*branchTargets{}}
}

// Call invokes the function at addr with the given encoded parameters, returning encoded results or a trapped
// error (*wasmruntime.Error or *wasmruntime.HostFuncError). A host function returning wasmruntime.Terminated ends
// the invocation with nil results and a nil error.
func (e *Engine) Call(addr wasm.FunctionAddr, params []uint64) (results []uint64, err error) {
	fn := e.store.Function(addr)
	depth := e.callDepth
	defer func() {
		if r := recover(); r != nil {
			e.callDepth = depth // frames abandoned by the unwind no longer count against maxCallStackDepth
			if trap, ok := wasmruntime.AsTrap(r); ok {
				err = trap
				return
			}
			if hostErr, ok := r.(*wasmruntime.HostFuncError); ok {
				if hostErr.Err == wasmruntime.Terminated {
					results, err = nil, nil
					return
				}
				err = hostErr
				return
			}
			panic(r) // not one of ours: a genuine engine bug, let it surface
		}
	}()
	return e.call(fn, params)
}

func (e *Engine) call(fn *wasm.FunctionInstance, params []uint64) ([]uint64, error) {
	if e.callDepth >= maxCallStackDepth {
		panic(wasmruntime.ErrRuntimeCallStackExhausted)
	}
	if fn.IsHostFunction() {
		ctx := &wasm.CallContext{Store: e.store, Module: fn.Module}
		e.callDepth++
		results, err := fn.GoFunc(ctx, params)
		e.callDepth--
		if err != nil {
			panic(&wasmruntime.HostFuncError{Err: err})
		}
		return results, nil
	}

	bt := e.branchTargetsFor(fn)
	locals := make([]uint64, len(fn.Type.Params)+len(fn.LocalTypes))
	copy(locals, params)

	e.callDepth++
	f := &frame{fn: fn, bt: bt, locals: locals, store: e.store, eng: e}
	results := f.run()
	e.callDepth--
	return results, nil
}

func (e *Engine) branchTargetsFor(fn *wasm.FunctionInstance) *branchTargets {
	if bt, ok := e.compiled[fn]; ok {
		return bt
	}
	bt, err := compileBranchTargets(fn.Body)
	if err != nil {
		// Body was already accepted by the Validator; a failure here is an engine bug, not a trappable fault.
		panic(fmt.Errorf("compiling branch targets for %s: %w", fn.DebugName, err))
	}
	e.compiled[fn] = bt
	return bt
}

// ctrlFrame is one entry of the runtime control stack: enough to execute a branch into, out of, or back to a
// Block/Loop/If without re-deriving it from the validator's symbolic stack.
type ctrlFrame struct {
	isLoop      bool
	operandBase int // value-stack height when this frame was entered
	startPC     uint64
	contPC      uint64
	branchTypes []wasm.ValueType // Results for block/if, Params for loop: the arity carried across a branch to it
}

// frame executes one Wasm function invocation: its own operand stack, locals, and control stack.
type frame struct {
	fn      *wasm.FunctionInstance
	bt      *branchTargets
	locals  []uint64
	store   *wasm.Store
	eng     *Engine
	operand []uint64
	control []ctrlFrame
}

func (f *frame) push(v uint64)  { f.operand = append(f.operand, v) }
func (f *frame) pop() uint64 {
	v := f.operand[len(f.operand)-1]
	f.operand = f.operand[:len(f.operand)-1]
	return v
}
func (f *frame) pushI32(v int32)     { f.push(uint64(uint32(v))) }
func (f *frame) popI32() int32       { return int32(uint32(f.pop())) }
func (f *frame) popU32() uint32      { return uint32(f.pop()) }
func (f *frame) pushI64(v int64)     { f.push(uint64(v)) }
func (f *frame) popI64() int64       { return int64(f.pop()) }
func (f *frame) pushF32(v float32)   { f.push(uint64(math.Float32bits(v))) }
func (f *frame) popF32() float32     { return math.Float32frombits(uint32(f.pop())) }
func (f *frame) pushF64(v float64)   { f.push(math.Float64bits(v)) }
func (f *frame) popF64() float64     { return math.Float64frombits(f.pop()) }

// run executes the function body to completion (falling off the end, or a `return`), yielding its results.
func (f *frame) run() []uint64 {
	ft := f.fn.Type
	outer := ctrlFrame{operandBase: 0, branchTypes: ft.Results}
	f.control = append(f.control, outer)

	r := filemgr.New(f.fn.Body)
	if ret, done := f.exec(r); done {
		return ret
	}
	// fell off the end of the body without an explicit `return`: the top of the operand stack holds the results.
	return f.take(len(ft.Results))
}

// take returns the top n values in program order, removing them from the operand stack.
func (f *frame) take(n int) []uint64 {
	base := len(f.operand) - n
	out := make([]uint64, n)
	copy(out, f.operand[base:])
	f.operand = f.operand[:base]
	return out
}

// branch implements `br`/`br_if`/`br_table`'s target depth once the condition (if any) has already been checked.
// It returns the PC to resume at and whether execution should keep going (false only for a branch to the
// outermost, function-level frame, which is equivalent to `return`).
func (f *frame) branch(depth uint32) (pc uint64, keepGoing bool) {
	target := f.control[len(f.control)-1-int(depth)]
	arity := len(target.branchTypes)
	carried := f.take(arity)
	f.operand = f.operand[:target.operandBase]
	f.operand = append(f.operand, carried...)

	if target.isLoop {
		f.control = f.control[:len(f.control)-int(depth)]
		return target.startPC, true
	}
	if len(f.control)-1-int(depth) == 0 {
		// branching out of the function's own implicit block: this is `return`.
		return 0, false
	}
	f.control = f.control[:len(f.control)-1-int(depth)]
	return target.contPC, true
}

// exec runs instructions from r until the body ends or a `return`/outermost branch occurs. done is true once the
// function should yield; the return slice is only meaningful when done is true.
func (f *frame) exec(r *filemgr.Reader) ([]uint64, bool) {
	for {
		op, err := r.ReadByte()
		if err != nil {
			// ran off the end of the body: equivalent to the implicit End of the outermost block.
			return f.take(len(f.fn.Type.Results)), true
		}
		switch op {
		case wasm.OpcodeUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)
		case wasm.OpcodeNop:
		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			offset := r.GetOffset() - 1
			bodyStart := f.bt.bodyStart[offset]
			cf := ctrlFrame{isLoop: op == wasm.OpcodeLoop, operandBase: len(f.operand), startPC: bodyStart, contPC: f.bt.matchEnd[offset]}
			cf.branchTypes = f.blockArity(offset, op == wasm.OpcodeLoop)
			f.control = append(f.control, cf)
			r.Seek(bodyStart)
		case wasm.OpcodeIf:
			offset := r.GetOffset() - 1
			bodyStart := f.bt.bodyStart[offset]
			cond := f.popI32()
			cf := ctrlFrame{operandBase: len(f.operand), contPC: f.bt.matchEnd[offset]}
			cf.branchTypes = f.blockArity(offset, false)
			if cond != 0 {
				f.control = append(f.control, cf)
				r.Seek(bodyStart)
			} else if elsePC, ok := f.bt.matchElse[offset]; ok {
				f.control = append(f.control, cf)
				r.Seek(elsePC)
			} else {
				r.Seek(cf.contPC)
			}
		case wasm.OpcodeElse:
			// reached by falling through the "then" arm: skip the "else" arm entirely, behaving like End.
			top := f.control[len(f.control)-1]
			f.control = f.control[:len(f.control)-1]
			r.Seek(top.contPC)
		case wasm.OpcodeEnd:
			if len(f.control) == 1 {
				return f.take(len(f.fn.Type.Results)), true
			}
			f.control = f.control[:len(f.control)-1]
		case wasm.OpcodeBr:
			depth, _ := r.ReadU32()
			pc, keepGoing := f.branch(depth)
			if !keepGoing {
				return f.take(len(f.fn.Type.Results)), true
			}
			r.Seek(pc)
		case wasm.OpcodeBrIf:
			depth, _ := r.ReadU32()
			if f.popI32() != 0 {
				pc, keepGoing := f.branch(depth)
				if !keepGoing {
					return f.take(len(f.fn.Type.Results)), true
				}
				r.Seek(pc)
			}
		case wasm.OpcodeBrTable:
			n, _ := r.ReadU32()
			targets := make([]uint32, n)
			for i := range targets {
				targets[i], _ = r.ReadU32()
			}
			defaultTarget, _ := r.ReadU32()
			idx := f.popU32()
			depth := defaultTarget
			if idx < uint32(len(targets)) {
				depth = targets[idx]
			}
			pc, keepGoing := f.branch(depth)
			if !keepGoing {
				return f.take(len(f.fn.Type.Results)), true
			}
			r.Seek(pc)
		case wasm.OpcodeReturn:
			return f.take(len(f.fn.Type.Results)), true
		case wasm.OpcodeCall:
			idx, _ := r.ReadU32()
			callee := f.store.Function(f.fn.Module.Functions[idx])
			f.doCall(callee)
		case wasm.OpcodeCallIndirect:
			typeIdx, _ := r.ReadU32()
			tableIdx, _ := r.ReadU32()
			tableAddr := f.fn.Module.Tables[tableIdx]
			table := f.store.Table(tableAddr)
			elemIdx := f.popU32()
			if elemIdx >= uint32(len(table.References)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
			}
			ref := table.References[elemIdx]
			if ref == 0 {
				panic(wasmruntime.ErrRuntimeUninitializedElement)
			}
			callee := f.store.Function(wasm.FunctionAddr(ref - 1))
			wantType := f.fn.Module.Types[typeIdx]
			if callee.Type.String() != wantType.String() {
				panic(wasmruntime.ErrRuntimeIndirectCallTypeMismatch)
			}
			f.doCall(callee)
		case wasm.OpcodeDrop:
			f.pop()
		case wasm.OpcodeSelect, wasm.OpcodeSelectT:
			if op == wasm.OpcodeSelectT {
				n, _ := r.ReadU32()
				_, _ = r.ReadBytes(uint64(n))
			}
			cond := f.popI32()
			b := f.pop()
			a := f.pop()
			if cond != 0 {
				f.push(a)
			} else {
				f.push(b)
			}
		case wasm.OpcodeLocalGet:
			idx, _ := r.ReadU32()
			f.push(f.locals[idx])
		case wasm.OpcodeLocalSet:
			idx, _ := r.ReadU32()
			f.locals[idx] = f.pop()
		case wasm.OpcodeLocalTee:
			idx, _ := r.ReadU32()
			f.locals[idx] = f.operand[len(f.operand)-1]
		case wasm.OpcodeGlobalGet:
			idx, _ := r.ReadU32()
			f.push(f.store.Global(f.fn.Module.Globals[idx]).Value)
		case wasm.OpcodeGlobalSet:
			idx, _ := r.ReadU32()
			f.store.Global(f.fn.Module.Globals[idx]).Value = f.pop()
		case wasm.OpcodeI32Const:
			v, _ := r.ReadS32()
			f.pushI32(v)
		case wasm.OpcodeI64Const:
			v, _ := r.ReadS64()
			f.pushI64(v)
		case wasm.OpcodeF32Const:
			v, _ := r.ReadF32()
			f.pushF32(v)
		case wasm.OpcodeF64Const:
			v, _ := r.ReadF64()
			f.pushF64(v)
		case wasm.OpcodeRefNull:
			_, _ = r.ReadByte()
			f.push(0)
		case wasm.OpcodeRefIsNull:
			if f.pop() == 0 {
				f.pushI32(1)
			} else {
				f.pushI32(0)
			}
		case wasm.OpcodeRefFunc:
			idx, _ := r.ReadU32()
			f.push(uint64(f.fn.Module.Functions[idx]) + 1)
		case wasm.OpcodeMiscPrefix:
			f.execMisc(r)
		default:
			f.execNumericOrMemory(op, r)
		}
	}
}

func (f *frame) doCall(callee *wasm.FunctionInstance) {
	args := f.take(len(callee.Type.Params))
	results, err := f.eng.call(callee, args)
	if err != nil {
		panic(err)
	}
	for _, v := range results {
		f.push(v)
	}
}

// blockArity resolves a Block/Loop/If's declared type to the value types carried across a branch to it: Params
// for a loop (branching restarts it, so its "input" arity is what a branch must supply), Results otherwise.
func (f *frame) blockArity(offset uint64, isLoop bool) []wasm.ValueType {
	bodyStart := f.bt.bodyStart[offset]
	immStart := offset + 1 // skip the opcode byte itself
	if bodyStart-immStart == 1 {
		b := f.fn.Body[immStart]
		if b == 0x40 || isLoop {
			return nil // a single-value block type has no params
		}
		return []wasm.ValueType{b}
	}
	peek := filemgr.New(f.fn.Body)
	peek.Seek(immStart)
	idx, _ := peek.ReadS33()
	ft := f.fn.Module.Types[idx]
	if isLoop {
		return ft.Params
	}
	return ft.Results
}

// execNumericOrMemory dispatches every load/store and arithmetic/comparison/conversion instruction. It is a plain
// big switch, not a table, to keep immediate decoding (memargs) next to the operation that consumes it.
func (f *frame) execNumericOrMemory(op wasm.Opcode, r *filemgr.Reader) {
	switch op {
	case wasm.OpcodeMemorySize:
		_, _ = r.ReadU32()
		f.pushI32(int32(f.mem().PageSize()))
	case wasm.OpcodeMemoryGrow:
		_, _ = r.ReadU32()
		delta := f.popU32()
		prev, ok := f.mem().Grow(delta)
		if !ok {
			f.pushI32(-1)
		} else {
			f.pushI32(int32(prev))
		}
	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		f.execLoad(op, r)
	case wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		f.execStore(op, r)
	case wasm.OpcodeTableGet:
		idx, _ := r.ReadU32()
		t := f.store.Table(f.fn.Module.Tables[idx])
		i := f.popU32()
		if i >= uint32(len(t.References)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
		}
		f.push(t.References[i])
	case wasm.OpcodeTableSet:
		idx, _ := r.ReadU32()
		t := f.store.Table(f.fn.Module.Tables[idx])
		v := f.pop()
		i := f.popU32()
		if i >= uint32(len(t.References)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
		}
		t.References[i] = v
	default:
		f.execArith(op)
	}
}

func (f *frame) mem() *wasm.MemoryInstance {
	return f.store.Memory(f.fn.Module.Memories[0])
}

func (f *frame) execLoad(op wasm.Opcode, r *filemgr.Reader) {
	_, _ = r.ReadU32() // align
	offset, _ := r.ReadU32()
	base := f.popU32()
	ea := uint64(base) + uint64(offset)
	mem := f.mem()
	width := map[wasm.Opcode]uint64{
		wasm.OpcodeI32Load: 4, wasm.OpcodeI64Load: 8, wasm.OpcodeF32Load: 4, wasm.OpcodeF64Load: 8,
		wasm.OpcodeI32Load8S: 1, wasm.OpcodeI32Load8U: 1, wasm.OpcodeI32Load16S: 2, wasm.OpcodeI32Load16U: 2,
		wasm.OpcodeI64Load8S: 1, wasm.OpcodeI64Load8U: 1, wasm.OpcodeI64Load16S: 2, wasm.OpcodeI64Load16U: 2,
		wasm.OpcodeI64Load32S: 4, wasm.OpcodeI64Load32U: 4,
	}[op]
	if ea+width > uint64(len(mem.Buffer)) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	b := mem.Buffer[ea : ea+width]
	switch op {
	case wasm.OpcodeI32Load:
		f.push(uint64(leGetU32(b)))
	case wasm.OpcodeI64Load:
		f.push(leGetU64(b))
	case wasm.OpcodeF32Load:
		f.push(uint64(leGetU32(b)))
	case wasm.OpcodeF64Load:
		f.push(leGetU64(b))
	case wasm.OpcodeI32Load8S:
		f.pushI32(int32(int8(b[0])))
	case wasm.OpcodeI32Load8U:
		f.pushI32(int32(b[0]))
	case wasm.OpcodeI32Load16S:
		f.pushI32(int32(int16(leGetU16(b))))
	case wasm.OpcodeI32Load16U:
		f.pushI32(int32(leGetU16(b)))
	case wasm.OpcodeI64Load8S:
		f.pushI64(int64(int8(b[0])))
	case wasm.OpcodeI64Load8U:
		f.pushI64(int64(b[0]))
	case wasm.OpcodeI64Load16S:
		f.pushI64(int64(int16(leGetU16(b))))
	case wasm.OpcodeI64Load16U:
		f.pushI64(int64(leGetU16(b)))
	case wasm.OpcodeI64Load32S:
		f.pushI64(int64(int32(leGetU32(b))))
	case wasm.OpcodeI64Load32U:
		f.pushI64(int64(leGetU32(b)))
	}
}

func (f *frame) execStore(op wasm.Opcode, r *filemgr.Reader) {
	_, _ = r.ReadU32() // align
	offset, _ := r.ReadU32()
	var raw uint64
	var width uint64
	switch op {
	case wasm.OpcodeI32Store, wasm.OpcodeF32Store:
		raw = f.pop()
		width = 4
	case wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		raw = f.pop()
		width = 8
	case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		raw = f.pop()
		width = 1
	case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		raw = f.pop()
		width = 2
	case wasm.OpcodeI64Store32:
		raw = f.pop()
		width = 4
	}
	base := f.popU32()
	ea := uint64(base) + uint64(offset)
	mem := f.mem()
	if ea+width > uint64(len(mem.Buffer)) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	b := mem.Buffer[ea : ea+width]
	switch width {
	case 1:
		b[0] = byte(raw)
	case 2:
		lePutU16(b, uint16(raw))
	case 4:
		lePutU32(b, uint32(raw))
	case 8:
		lePutU64(b, raw)
	}
}

func leGetU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leGetU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leGetU64(b []byte) uint64 {
	return uint64(leGetU32(b[:4])) | uint64(leGetU32(b[4:8]))<<32
}
func lePutU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func lePutU32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}
func lePutU64(b []byte, v uint64) {
	lePutU32(b[:4], uint32(v))
	lePutU32(b[4:8], uint32(v>>32))
}

// execArith handles every opcode with no memory/immediate-index operand: comparisons, arithmetic, conversions,
// sign-extension ops, and reinterprets. It traps on division by zero and on integer overflow (the INT_MIN / -1
// case) per the spec's closed trap taxonomy.
func (f *frame) execArith(op wasm.Opcode) {
	switch op {
	case wasm.OpcodeI32Eqz:
		f.pushBool(f.popI32() == 0)
	case wasm.OpcodeI32Eq:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a == b)
	case wasm.OpcodeI32Ne:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a != b)
	case wasm.OpcodeI32LtS:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a < b)
	case wasm.OpcodeI32LtU:
		b, a := f.popU32(), f.popU32()
		f.pushBool(a < b)
	case wasm.OpcodeI32GtS:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a > b)
	case wasm.OpcodeI32GtU:
		b, a := f.popU32(), f.popU32()
		f.pushBool(a > b)
	case wasm.OpcodeI32LeS:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a <= b)
	case wasm.OpcodeI32LeU:
		b, a := f.popU32(), f.popU32()
		f.pushBool(a <= b)
	case wasm.OpcodeI32GeS:
		b, a := f.popI32(), f.popI32()
		f.pushBool(a >= b)
	case wasm.OpcodeI32GeU:
		b, a := f.popU32(), f.popU32()
		f.pushBool(a >= b)

	case wasm.OpcodeI32Clz:
		f.pushI32(int32(bits.LeadingZeros32(uint32(f.popI32()))))
	case wasm.OpcodeI32Ctz:
		f.pushI32(int32(bits.TrailingZeros32(uint32(f.popI32()))))
	case wasm.OpcodeI32Popcnt:
		f.pushI32(int32(bits.OnesCount32(uint32(f.popI32()))))
	case wasm.OpcodeI32Add:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a + b)
	case wasm.OpcodeI32Sub:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a - b)
	case wasm.OpcodeI32Mul:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a * b)
	case wasm.OpcodeI32DivS:
		b, a := f.popI32(), f.popI32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		f.pushI32(a / b)
	case wasm.OpcodeI32DivU:
		b, a := f.popU32(), f.popU32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		f.pushI32(int32(a / b))
	case wasm.OpcodeI32RemS:
		b, a := f.popI32(), f.popI32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt32 && b == -1 {
			f.pushI32(0)
		} else {
			f.pushI32(a % b)
		}
	case wasm.OpcodeI32RemU:
		b, a := f.popU32(), f.popU32()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		f.pushI32(int32(a % b))
	case wasm.OpcodeI32And:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a & b)
	case wasm.OpcodeI32Or:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a | b)
	case wasm.OpcodeI32Xor:
		b, a := f.popI32(), f.popI32()
		f.pushI32(a ^ b)
	case wasm.OpcodeI32Shl:
		b, a := f.popU32(), f.popI32()
		f.pushI32(a << (b % 32))
	case wasm.OpcodeI32ShrS:
		b, a := f.popU32(), f.popI32()
		f.pushI32(a >> (b % 32))
	case wasm.OpcodeI32ShrU:
		b, a := f.popU32(), f.popU32()
		f.pushI32(int32(a >> (b % 32)))
	case wasm.OpcodeI32Rotl:
		b, a := f.popU32(), f.popU32()
		f.pushI32(int32(bits.RotateLeft32(a, int(b))))
	case wasm.OpcodeI32Rotr:
		b, a := f.popU32(), f.popU32()
		f.pushI32(int32(bits.RotateLeft32(a, -int(b))))

	case wasm.OpcodeI64Eqz:
		f.pushBool(f.popI64() == 0)
	case wasm.OpcodeI64Eq:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a == b)
	case wasm.OpcodeI64Ne:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a != b)
	case wasm.OpcodeI64LtS:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a < b)
	case wasm.OpcodeI64LtU:
		b, a := f.pop(), f.pop()
		f.pushBool(a < b)
	case wasm.OpcodeI64GtS:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a > b)
	case wasm.OpcodeI64GtU:
		b, a := f.pop(), f.pop()
		f.pushBool(a > b)
	case wasm.OpcodeI64LeS:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a <= b)
	case wasm.OpcodeI64LeU:
		b, a := f.pop(), f.pop()
		f.pushBool(a <= b)
	case wasm.OpcodeI64GeS:
		b, a := f.popI64(), f.popI64()
		f.pushBool(a >= b)
	case wasm.OpcodeI64GeU:
		b, a := f.pop(), f.pop()
		f.pushBool(a >= b)

	case wasm.OpcodeI64Clz:
		f.pushI64(int64(bits.LeadingZeros64(uint64(f.popI64()))))
	case wasm.OpcodeI64Ctz:
		f.pushI64(int64(bits.TrailingZeros64(uint64(f.popI64()))))
	case wasm.OpcodeI64Popcnt:
		f.pushI64(int64(bits.OnesCount64(uint64(f.popI64()))))
	case wasm.OpcodeI64Add:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a + b)
	case wasm.OpcodeI64Sub:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a - b)
	case wasm.OpcodeI64Mul:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a * b)
	case wasm.OpcodeI64DivS:
		b, a := f.popI64(), f.popI64()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		f.pushI64(a / b)
	case wasm.OpcodeI64DivU:
		b, a := f.pop(), f.pop()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		f.push(a / b)
	case wasm.OpcodeI64RemS:
		b, a := f.popI64(), f.popI64()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if a == math.MinInt64 && b == -1 {
			f.pushI64(0)
		} else {
			f.pushI64(a % b)
		}
	case wasm.OpcodeI64RemU:
		b, a := f.pop(), f.pop()
		if b == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		f.push(a % b)
	case wasm.OpcodeI64And:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a & b)
	case wasm.OpcodeI64Or:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a | b)
	case wasm.OpcodeI64Xor:
		b, a := f.popI64(), f.popI64()
		f.pushI64(a ^ b)
	case wasm.OpcodeI64Shl:
		b, a := f.pop(), f.popI64()
		f.pushI64(a << (b % 64))
	case wasm.OpcodeI64ShrS:
		b, a := f.pop(), f.popI64()
		f.pushI64(a >> (b % 64))
	case wasm.OpcodeI64ShrU:
		b, a := f.pop(), f.pop()
		f.push(a >> (b % 64))
	case wasm.OpcodeI64Rotl:
		b, a := f.pop(), f.pop()
		f.push(bits.RotateLeft64(a, int(b)))
	case wasm.OpcodeI64Rotr:
		b, a := f.pop(), f.pop()
		f.push(bits.RotateLeft64(a, -int(b)))

	case wasm.OpcodeF32Eq:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a == b)
	case wasm.OpcodeF32Ne:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a != b)
	case wasm.OpcodeF32Lt:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a < b)
	case wasm.OpcodeF32Gt:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a > b)
	case wasm.OpcodeF32Le:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a <= b)
	case wasm.OpcodeF32Ge:
		b, a := f.popF32(), f.popF32()
		f.pushBool(a >= b)
	case wasm.OpcodeF32Abs:
		f.pushF32(float32(math.Abs(float64(f.popF32()))))
	case wasm.OpcodeF32Neg:
		f.pushF32(-f.popF32())
	case wasm.OpcodeF32Ceil:
		f.pushF32(float32(math.Ceil(float64(f.popF32()))))
	case wasm.OpcodeF32Floor:
		f.pushF32(float32(math.Floor(float64(f.popF32()))))
	case wasm.OpcodeF32Trunc:
		f.pushF32(float32(math.Trunc(float64(f.popF32()))))
	case wasm.OpcodeF32Nearest:
		f.pushF32(moremath.WasmCompatNearestF32(f.popF32()))
	case wasm.OpcodeF32Sqrt:
		f.pushF32(float32(math.Sqrt(float64(f.popF32()))))
	case wasm.OpcodeF32Add:
		b, a := f.popF32(), f.popF32()
		f.pushF32(a + b)
	case wasm.OpcodeF32Sub:
		b, a := f.popF32(), f.popF32()
		f.pushF32(a - b)
	case wasm.OpcodeF32Mul:
		b, a := f.popF32(), f.popF32()
		f.pushF32(a * b)
	case wasm.OpcodeF32Div:
		b, a := f.popF32(), f.popF32()
		f.pushF32(a / b)
	case wasm.OpcodeF32Min:
		b, a := f.popF32(), f.popF32()
		f.pushF32(float32(moremath.WasmCompatMin(float64(a), float64(b))))
	case wasm.OpcodeF32Max:
		b, a := f.popF32(), f.popF32()
		f.pushF32(float32(moremath.WasmCompatMax(float64(a), float64(b))))
	case wasm.OpcodeF32Copysign:
		b, a := f.popF32(), f.popF32()
		f.pushF32(float32(math.Copysign(float64(a), float64(b))))

	case wasm.OpcodeF64Eq:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a == b)
	case wasm.OpcodeF64Ne:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a != b)
	case wasm.OpcodeF64Lt:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a < b)
	case wasm.OpcodeF64Gt:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a > b)
	case wasm.OpcodeF64Le:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a <= b)
	case wasm.OpcodeF64Ge:
		b, a := f.popF64(), f.popF64()
		f.pushBool(a >= b)
	case wasm.OpcodeF64Abs:
		f.pushF64(math.Abs(f.popF64()))
	case wasm.OpcodeF64Neg:
		f.pushF64(-f.popF64())
	case wasm.OpcodeF64Ceil:
		f.pushF64(math.Ceil(f.popF64()))
	case wasm.OpcodeF64Floor:
		f.pushF64(math.Floor(f.popF64()))
	case wasm.OpcodeF64Trunc:
		f.pushF64(math.Trunc(f.popF64()))
	case wasm.OpcodeF64Nearest:
		f.pushF64(moremath.WasmCompatNearestF64(f.popF64()))
	case wasm.OpcodeF64Sqrt:
		f.pushF64(math.Sqrt(f.popF64()))
	case wasm.OpcodeF64Add:
		b, a := f.popF64(), f.popF64()
		f.pushF64(a + b)
	case wasm.OpcodeF64Sub:
		b, a := f.popF64(), f.popF64()
		f.pushF64(a - b)
	case wasm.OpcodeF64Mul:
		b, a := f.popF64(), f.popF64()
		f.pushF64(a * b)
	case wasm.OpcodeF64Div:
		b, a := f.popF64(), f.popF64()
		f.pushF64(a / b)
	case wasm.OpcodeF64Min:
		b, a := f.popF64(), f.popF64()
		f.pushF64(moremath.WasmCompatMin(a, b))
	case wasm.OpcodeF64Max:
		b, a := f.popF64(), f.popF64()
		f.pushF64(moremath.WasmCompatMax(a, b))
	case wasm.OpcodeF64Copysign:
		b, a := f.popF64(), f.popF64()
		f.pushF64(math.Copysign(a, b))

	case wasm.OpcodeI32WrapI64:
		f.pushI32(int32(f.popI64()))
	case wasm.OpcodeI32TruncF32S:
		f.pushI32(truncToI32(float64(f.popF32())))
	case wasm.OpcodeI32TruncF32U:
		f.pushI32(int32(truncToU32(float64(f.popF32()))))
	case wasm.OpcodeI32TruncF64S:
		f.pushI32(truncToI32(f.popF64()))
	case wasm.OpcodeI32TruncF64U:
		f.pushI32(int32(truncToU32(f.popF64())))
	case wasm.OpcodeI64ExtendI32S:
		f.pushI64(int64(f.popI32()))
	case wasm.OpcodeI64ExtendI32U:
		f.pushI64(int64(f.popU32()))
	case wasm.OpcodeI64TruncF32S:
		f.pushI64(truncToI64(float64(f.popF32())))
	case wasm.OpcodeI64TruncF32U:
		f.pushI64(int64(truncToU64(float64(f.popF32()))))
	case wasm.OpcodeI64TruncF64S:
		f.pushI64(truncToI64(f.popF64()))
	case wasm.OpcodeI64TruncF64U:
		f.pushI64(int64(truncToU64(f.popF64())))
	case wasm.OpcodeF32ConvertI32S:
		f.pushF32(float32(f.popI32()))
	case wasm.OpcodeF32ConvertI32U:
		f.pushF32(float32(f.popU32()))
	case wasm.OpcodeF32ConvertI64S:
		f.pushF32(float32(f.popI64()))
	case wasm.OpcodeF32ConvertI64U:
		f.pushF32(float32(f.pop()))
	case wasm.OpcodeF32DemoteF64:
		f.pushF32(float32(f.popF64()))
	case wasm.OpcodeF64ConvertI32S:
		f.pushF64(float64(f.popI32()))
	case wasm.OpcodeF64ConvertI32U:
		f.pushF64(float64(f.popU32()))
	case wasm.OpcodeF64ConvertI64S:
		f.pushF64(float64(f.popI64()))
	case wasm.OpcodeF64ConvertI64U:
		f.pushF64(float64(f.pop()))
	case wasm.OpcodeF64PromoteF32:
		f.pushF64(float64(f.popF32()))
	case wasm.OpcodeI32ReinterpretF32:
		f.push(uint64(uint32(math.Float32bits(f.popF32()))))
	case wasm.OpcodeI64ReinterpretF64:
		f.push(math.Float64bits(f.popF64()))
	case wasm.OpcodeF32ReinterpretI32:
		f.push(uint64(math.Float32bits(math.Float32frombits(f.popU32()))))
	case wasm.OpcodeF64ReinterpretI64:
		f.push(f.pop())

	case wasm.OpcodeI32Extend8S:
		f.pushI32(int32(int8(f.popI32())))
	case wasm.OpcodeI32Extend16S:
		f.pushI32(int32(int16(f.popI32())))
	case wasm.OpcodeI64Extend8S:
		f.pushI64(int64(int8(f.popI64())))
	case wasm.OpcodeI64Extend16S:
		f.pushI64(int64(int16(f.popI64())))
	case wasm.OpcodeI64Extend32S:
		f.pushI64(int64(int32(f.popI64())))

	default:
		panic(fmt.Errorf("unimplemented opcode %#x", op))
	}
}

func (f *frame) pushBool(b bool) {
	if b {
		f.pushI32(1)
	} else {
		f.pushI32(0)
	}
}

func truncToI32(v float64) int32 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < math.MinInt32 || t > math.MaxInt32 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int32(t)
}

func truncToU32(v float64) uint32 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < 0 || t > math.MaxUint32 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint32(t)
}

func truncToI64(v float64) int64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int64(t)
}

func truncToU64(v float64) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < 0 || t >= math.MaxUint64 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}
