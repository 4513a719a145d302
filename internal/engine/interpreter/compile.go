// Package interpreter is the Executor: it instantiates wasm.Module ASTs into a wasm.Store and runs their
// functions by walking the raw instruction stream directly, rather than lowering to a separate IR first.
package interpreter

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// branchTargets is the precomputed control-flow structure of one function body: for every Block/Loop/If opcode
// offset, where its contained instructions begin and where its matching End (and, for If, its Else) sits. The
// interpreter computes this once per FunctionInstance and reuses it on every call.
type branchTargets struct {
	bodyStart map[uint64]uint64
	matchEnd  map[uint64]uint64
	matchElse map[uint64]uint64
}

// compileBranchTargets performs a single forward pass over body, recording the structure above. It assumes body
// is already validated: unbalanced blocks or truncated immediates here indicate an engine bug, not bad input.
func compileBranchTargets(body []byte) (*branchTargets, error) {
	bt := &branchTargets{bodyStart: map[uint64]uint64{}, matchEnd: map[uint64]uint64{}, matchElse: map[uint64]uint64{}}
	r := filemgr.New(body)
	type open struct {
		offset uint64
		opcode wasm.Opcode
	}
	var stack []open

	for r.GetRemainSize() > 0 {
		offset := r.GetOffset()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			if _, err := skipBlockType(r); err != nil {
				return nil, err
			}
			bt.bodyStart[offset] = r.GetOffset()
			stack = append(stack, open{offset: offset, opcode: op})
		case wasm.OpcodeElse:
			if len(stack) == 0 || stack[len(stack)-1].opcode != wasm.OpcodeIf {
				return nil, fmt.Errorf("else without matching if")
			}
			bt.matchElse[stack[len(stack)-1].offset] = r.GetOffset()
		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				// the function body's own implicit outer block; nothing more to record.
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			bt.matchEnd[top.offset] = r.GetOffset()
		default:
			if err := skipImmediate(op, r); err != nil {
				return nil, err
			}
		}
	}
	return bt, nil
}

// skipBlockType consumes a block type immediate without interpreting it.
func skipBlockType(r *filemgr.Reader) (int64, error) {
	b, err := r.PeekByte()
	if err == nil && (b == 0x40 || isValueTypeByte(b)) {
		_, _ = r.ReadByte()
		return 0, nil
	}
	return r.ReadS33()
}

func isValueTypeByte(b byte) bool {
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeV128, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return true
	}
	return false
}

// skipImmediate consumes op's immediate bytes, whatever shape they take, advancing r past them.
func skipImmediate(op wasm.Opcode, r *filemgr.Reader) error {
	switch op {
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall, wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet, wasm.OpcodeTableGet, wasm.OpcodeTableSet, wasm.OpcodeRefFunc,
		wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		_, err := r.ReadU32()
		return err
	case wasm.OpcodeBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n+1; i++ { // +1 for the default target
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		return nil
	case wasm.OpcodeCallIndirect:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case wasm.OpcodeSelectT:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		_, err = r.ReadBytes(uint64(n))
		return err
	case wasm.OpcodeI32Const:
		_, err := r.ReadS32()
		return err
	case wasm.OpcodeI64Const:
		_, err := r.ReadS64()
		return err
	case wasm.OpcodeF32Const:
		_, err := r.ReadF32()
		return err
	case wasm.OpcodeF64Const:
		_, err := r.ReadF64()
		return err
	case wasm.OpcodeRefNull:
		_, err := r.ReadByte()
		return err
	case wasm.OpcodeMiscPrefix:
		return skipMiscImmediate(r)
	default:
		if _, ok := memArgOpcodes[op]; ok {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
			_, err := r.ReadU32()
			return err
		}
		return nil // no immediate
	}
}

func skipMiscImmediate(r *filemgr.Reader) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	switch byte(sub) {
	case wasm.MiscOpcodeMemoryInit:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	case wasm.MiscOpcodeDataDrop, wasm.MiscOpcodeElemDrop, wasm.MiscOpcodeTableGrow, wasm.MiscOpcodeTableSize:
		_, err := r.ReadU32()
		return err
	case wasm.MiscOpcodeMemoryCopy:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	case wasm.MiscOpcodeMemoryFill:
		_, err := r.ReadByte()
		return err
	case wasm.MiscOpcodeTableInit, wasm.MiscOpcodeTableCopy:
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case wasm.MiscOpcodeTableFill:
		_, err := r.ReadU32()
		return err
	}
	return nil
}

var memArgOpcodes = map[wasm.Opcode]bool{
	wasm.OpcodeI32Load: true, wasm.OpcodeI64Load: true, wasm.OpcodeF32Load: true, wasm.OpcodeF64Load: true,
	wasm.OpcodeI32Load8S: true, wasm.OpcodeI32Load8U: true, wasm.OpcodeI32Load16S: true, wasm.OpcodeI32Load16U: true,
	wasm.OpcodeI64Load8S: true, wasm.OpcodeI64Load8U: true, wasm.OpcodeI64Load16S: true, wasm.OpcodeI64Load16U: true,
	wasm.OpcodeI64Load32S: true, wasm.OpcodeI64Load32U: true,
	wasm.OpcodeI32Store: true, wasm.OpcodeI64Store: true, wasm.OpcodeF32Store: true, wasm.OpcodeF64Store: true,
	wasm.OpcodeI32Store8: true, wasm.OpcodeI32Store16: true, wasm.OpcodeI64Store8: true, wasm.OpcodeI64Store16: true,
	wasm.OpcodeI64Store32: true,
}
