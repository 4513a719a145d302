package interpreter

import (
	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/moremath"
	"github.com/wasmforge/wasmforge/internal/wasm"
	"github.com/wasmforge/wasmforge/internal/wasmruntime"
)

// execMisc dispatches the 0xfc-prefixed space: saturating truncation and the bulk-memory/table operations. The
// leading opcode byte has already been consumed by the caller; r is positioned at the u32 sub-opcode.
func (f *frame) execMisc(r *filemgr.Reader) {
	sub, _ := r.ReadU32()
	switch byte(sub) {
	case wasm.MiscOpcodeI32TruncSatF32S:
		f.pushI32(int32(moremath.I32TruncSatF32(f.popF32(), true)))
	case wasm.MiscOpcodeI32TruncSatF32U:
		f.pushI32(int32(uint32(moremath.I32TruncSatF32(f.popF32(), false))))
	case wasm.MiscOpcodeI32TruncSatF64S:
		f.pushI32(int32(moremath.I32TruncSatF64(f.popF64(), true)))
	case wasm.MiscOpcodeI32TruncSatF64U:
		f.pushI32(int32(uint32(moremath.I32TruncSatF64(f.popF64(), false))))
	case wasm.MiscOpcodeI64TruncSatF32S:
		f.pushI64(moremath.I64TruncSatF32(f.popF32(), true))
	case wasm.MiscOpcodeI64TruncSatF32U:
		f.pushI64(moremath.I64TruncSatF32(f.popF32(), false))
	case wasm.MiscOpcodeI64TruncSatF64S:
		f.pushI64(moremath.I64TruncSatF64(f.popF64(), true))
	case wasm.MiscOpcodeI64TruncSatF64U:
		f.pushI64(moremath.I64TruncSatF64(f.popF64(), false))

	case wasm.MiscOpcodeMemoryInit:
		segIdx, _ := r.ReadU32()
		_, _ = r.ReadByte() // memory index, always 0 in the MVP's single-memory model
		n := f.popU32()
		src := f.popU32()
		dst := f.popU32()
		seg := f.fn.Module.DataSegments[segIdx]
		if seg == nil && n != 0 {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		if uint64(src)+uint64(n) > uint64(len(seg)) || uint64(dst)+uint64(n) > uint64(len(f.mem().Buffer)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		copy(f.mem().Buffer[dst:dst+n], seg[src:src+n])
	case wasm.MiscOpcodeDataDrop:
		segIdx, _ := r.ReadU32()
		f.fn.Module.DataSegments[segIdx] = nil
	case wasm.MiscOpcodeMemoryCopy:
		_, _ = r.ReadByte()
		_, _ = r.ReadByte()
		n := f.popU32()
		src := f.popU32()
		dst := f.popU32()
		mem := f.mem()
		if uint64(src)+uint64(n) > uint64(len(mem.Buffer)) || uint64(dst)+uint64(n) > uint64(len(mem.Buffer)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		copy(mem.Buffer[dst:dst+n], mem.Buffer[src:src+n])
	case wasm.MiscOpcodeMemoryFill:
		_, _ = r.ReadByte()
		n := f.popU32()
		val := byte(f.popU32())
		dst := f.popU32()
		mem := f.mem()
		if uint64(dst)+uint64(n) > uint64(len(mem.Buffer)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		for i := uint32(0); i < n; i++ {
			mem.Buffer[dst+i] = val
		}
	case wasm.MiscOpcodeTableInit:
		segIdx, _ := r.ReadU32()
		tableIdx, _ := r.ReadU32()
		n := f.popU32()
		src := f.popU32()
		dst := f.popU32()
		seg := f.fn.Module.ElementSegments[segIdx]
		table := f.store.Table(f.fn.Module.Tables[tableIdx])
		if uint64(src)+uint64(n) > uint64(len(seg)) || uint64(dst)+uint64(n) > uint64(len(table.References)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
		}
		copy(table.References[dst:dst+n], seg[src:src+n])
	case wasm.MiscOpcodeElemDrop:
		segIdx, _ := r.ReadU32()
		f.fn.Module.ElementSegments[segIdx] = nil
	case wasm.MiscOpcodeTableCopy:
		dstTableIdx, _ := r.ReadU32()
		srcTableIdx, _ := r.ReadU32()
		n := f.popU32()
		src := f.popU32()
		dst := f.popU32()
		dstTable := f.store.Table(f.fn.Module.Tables[dstTableIdx])
		srcTable := f.store.Table(f.fn.Module.Tables[srcTableIdx])
		if uint64(src)+uint64(n) > uint64(len(srcTable.References)) || uint64(dst)+uint64(n) > uint64(len(dstTable.References)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
		}
		copy(dstTable.References[dst:dst+n], srcTable.References[src:src+n])
	case wasm.MiscOpcodeTableGrow:
		tableIdx, _ := r.ReadU32()
		table := f.store.Table(f.fn.Module.Tables[tableIdx])
		n := f.popU32()
		val := f.pop()
		prev, ok := table.Grow(n)
		if !ok {
			f.pushI32(-1)
			return
		}
		for i := prev; i < prev+n; i++ {
			table.References[i] = val
		}
		f.pushI32(int32(prev))
	case wasm.MiscOpcodeTableSize:
		tableIdx, _ := r.ReadU32()
		table := f.store.Table(f.fn.Module.Tables[tableIdx])
		f.pushI32(int32(len(table.References)))
	case wasm.MiscOpcodeTableFill:
		tableIdx, _ := r.ReadU32()
		table := f.store.Table(f.fn.Module.Tables[tableIdx])
		n := f.popU32()
		val := f.pop()
		dst := f.popU32()
		if uint64(dst)+uint64(n) > uint64(len(table.References)) {
			panic(wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
		}
		for i := uint32(0); i < n; i++ {
			table.References[dst+i] = val
		}
	}
}
