// Package binaryencoding builds raw Wasm binary images from a wasm.Module, the inverse of the Loader's decoder.
// It exists for test fixtures: hand-writing a byte-accurate module is error-prone, so tests build a wasm.Module
// with Go struct literals and let this package encode it instead.
package binaryencoding

import (
	"encoding/binary"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

// Magic and version are the eight leading bytes every Wasm binary module begins with.
var Magic = []byte{0x00, 0x61, 0x73, 0x6d}

var version = []byte{0x01, 0x00, 0x00, 0x00}

const (
	sectionIDCustom    = 0
	sectionIDType      = 1
	sectionIDImport    = 2
	sectionIDFunction  = 3
	sectionIDTable     = 4
	sectionIDMemory    = 5
	sectionIDGlobal    = 6
	sectionIDExport    = 7
	sectionIDStart     = 8
	sectionIDElement   = 9
	sectionIDCode      = 10
	sectionIDData      = 11
	sectionIDDataCount = 12
)

const subsectionIDModuleName = 0
const subsectionIDFunctionNames = 1

// Encode renders m as a complete Wasm binary image, with non-custom sections in the ascending section-ID order
// the Loader enforces (the data count section, ID 12, comes last) and the name section at the end.
func Encode(m *wasm.Module) []byte {
	out := append(append([]byte{}, Magic...), version...)

	if len(m.TypeSection) > 0 {
		out = appendSection(out, sectionIDType, encodeTypeSection(m.TypeSection))
	}
	if len(m.ImportSection) > 0 {
		out = appendSection(out, sectionIDImport, encodeImportSection(m.ImportSection))
	}
	if len(m.FunctionSection) > 0 {
		out = appendSection(out, sectionIDFunction, encodeFunctionSection(m.FunctionSection))
	}
	if len(m.TableSection) > 0 {
		out = appendSection(out, sectionIDTable, encodeTableSection(m.TableSection))
	}
	if len(m.MemorySection) > 0 {
		out = appendSection(out, sectionIDMemory, encodeMemorySection(m.MemorySection))
	}
	if len(m.GlobalSection) > 0 {
		out = appendSection(out, sectionIDGlobal, encodeGlobalSection(m.GlobalSection))
	}
	if len(m.ExportSection) > 0 {
		out = appendSection(out, sectionIDExport, encodeExportSection(m.ExportSection))
	}
	if m.StartSection != nil {
		out = appendSection(out, sectionIDStart, encodeU32(*m.StartSection))
	}
	if len(m.ElementSection) > 0 {
		out = appendSection(out, sectionIDElement, encodeElementSection(m.ElementSection))
	}
	if len(m.CodeSection) > 0 {
		out = appendSection(out, sectionIDCode, encodeCodeSection(m.CodeSection))
	}
	if len(m.DataSection) > 0 {
		out = appendSection(out, sectionIDData, encodeDataSection(m.DataSection))
	}
	if m.DataCountSection != nil {
		out = appendSection(out, sectionIDDataCount, encodeU32(*m.DataCountSection))
	}
	if m.NameSection != nil {
		out = appendSection(out, sectionIDCustom, encodeNameSection(m.NameSection))
	}
	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = append(out, encodeU32(uint32(len(content)))...)
	return append(out, content...)
}

// encodeU32 LEB128-encodes v. Tests never need values large enough to exercise multi-group encoding subtleties
// beyond what this straightforward implementation produces, so it is not shared with the Loader's decoder.
func encodeU32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func encodeS32(v int32) []byte { return encodeS64(int64(v)) }

func encodeS64(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func encodeName(s string) []byte {
	return append(encodeU32(uint32(len(s))), []byte(s)...)
}

func encodeVec(n int) []byte { return encodeU32(uint32(n)) }

func encodeValueTypes(vs []wasm.ValueType) []byte {
	out := encodeVec(len(vs))
	return append(out, vs...)
}

func encodeLimits(lim wasm.Limits) []byte {
	if lim.Max == nil {
		return append([]byte{0x00}, encodeU32(lim.Min)...)
	}
	out := append([]byte{0x01}, encodeU32(lim.Min)...)
	return append(out, encodeU32(*lim.Max)...)
}

func encodeTypeSection(types []*wasm.FunctionType) []byte {
	out := encodeVec(len(types))
	for _, ft := range types {
		out = append(out, 0x60)
		out = append(out, encodeValueTypes(ft.Params)...)
		out = append(out, encodeValueTypes(ft.Results)...)
	}
	return out
}

func encodeImportSection(imports []*wasm.Import) []byte {
	out := encodeVec(len(imports))
	for _, imp := range imports {
		out = append(out, encodeName(imp.Module)...)
		out = append(out, encodeName(imp.Name)...)
		out = append(out, imp.Type)
		switch imp.Type {
		case wasm.ExternTypeFunc:
			out = append(out, encodeU32(imp.DescFunc)...)
		case wasm.ExternTypeTable:
			out = append(out, imp.DescTable.ElemType)
			out = append(out, encodeLimits(imp.DescTable.Lim)...)
		case wasm.ExternTypeMemory:
			out = append(out, encodeLimits(wasm.Limits{Min: imp.DescMem.Min, Max: imp.DescMem.Max})...)
		case wasm.ExternTypeGlobal:
			out = append(out, imp.DescGlobal.ValType)
			out = append(out, boolByte(imp.DescGlobal.Mutable))
		}
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func encodeFunctionSection(idxs []uint32) []byte {
	out := encodeVec(len(idxs))
	for _, idx := range idxs {
		out = append(out, encodeU32(idx)...)
	}
	return out
}

func encodeTableSection(tables []*wasm.TableType) []byte {
	out := encodeVec(len(tables))
	for _, tt := range tables {
		out = append(out, tt.ElemType)
		out = append(out, encodeLimits(tt.Lim)...)
	}
	return out
}

func encodeMemorySection(mems []*wasm.MemoryType) []byte {
	out := encodeVec(len(mems))
	for _, mt := range mems {
		out = append(out, encodeLimits(wasm.Limits{Min: mt.Min, Max: mt.Max})...)
	}
	return out
}

// EncodeConstantExpression renders a ConstantExpression back to the original instruction encoding. Exported since
// element/data/global fixtures often build these directly.
func EncodeConstantExpression(ce wasm.ConstantExpression) []byte {
	out := []byte{ce.Opcode}
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		out = append(out, encodeS32(int32(binary.LittleEndian.Uint32(ce.Data)))...)
	case wasm.OpcodeI64Const:
		out = append(out, encodeS64(int64(binary.LittleEndian.Uint64(ce.Data)))...)
	case wasm.OpcodeF32Const:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, binary.LittleEndian.Uint32(ce.Data))
		out = append(out, b...)
	case wasm.OpcodeF64Const:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, binary.LittleEndian.Uint64(ce.Data))
		out = append(out, b...)
	case wasm.OpcodeGlobalGet, wasm.OpcodeRefFunc:
		out = append(out, encodeU32(binary.LittleEndian.Uint32(ce.Data))...)
	case wasm.OpcodeRefNull:
		out = append(out, ce.Data[0])
	}
	return append(out, wasm.OpcodeEnd)
}

func encodeGlobalSection(globals []*wasm.Global) []byte {
	out := encodeVec(len(globals))
	for _, g := range globals {
		out = append(out, g.Type.ValType)
		out = append(out, boolByte(g.Type.Mutable))
		out = append(out, EncodeConstantExpression(g.Init)...)
	}
	return out
}

func encodeExportSection(exports []*wasm.Export) []byte {
	out := encodeVec(len(exports))
	for _, exp := range exports {
		out = append(out, encodeName(exp.Name)...)
		out = append(out, exp.Type)
		out = append(out, encodeU32(exp.Index)...)
	}
	return out
}

// encodeElementSection always uses the MVP's prefix-0 form (active, table 0, funcref index list): every fixture
// this package has needed so far stays within the MVP subset.
func encodeElementSection(elems []*wasm.ElementSegment) []byte {
	out := encodeVec(len(elems))
	for _, es := range elems {
		out = append(out, encodeU32(0)...) // prefix 0
		out = append(out, EncodeConstantExpression(es.OffsetExpr)...)
		out = append(out, encodeVec(len(es.Init))...)
		for _, init := range es.Init {
			out = append(out, encodeU32(binary.LittleEndian.Uint32(init.Data))...)
		}
	}
	return out
}

func encodeCode(code *wasm.Code) []byte {
	// locals are run-length encoded: each run of consecutive equal types becomes one (count, type) pair.
	var runs []byte
	numRuns := 0
	for i := 0; i < len(code.LocalTypes); {
		j := i
		for j < len(code.LocalTypes) && code.LocalTypes[j] == code.LocalTypes[i] {
			j++
		}
		runs = append(runs, encodeU32(uint32(j-i))...)
		runs = append(runs, code.LocalTypes[i])
		numRuns++
		i = j
	}
	body := append(encodeVec(numRuns), runs...)
	body = append(body, code.Body...)
	return append(encodeU32(uint32(len(body))), body...)
}

func encodeCodeSection(codes []*wasm.Code) []byte {
	out := encodeVec(len(codes))
	for _, c := range codes {
		out = append(out, encodeCode(c)...)
	}
	return out
}

func encodeDataSection(segs []*wasm.DataSegment) []byte {
	out := encodeVec(len(segs))
	for _, seg := range segs {
		switch seg.Mode {
		case wasm.DataModeActive:
			out = append(out, encodeU32(0)...)
			out = append(out, EncodeConstantExpression(seg.OffsetExpr)...)
		case wasm.DataModePassive:
			out = append(out, encodeU32(1)...)
		}
		out = append(out, encodeU32(uint32(len(seg.Init)))...)
		out = append(out, seg.Init...)
	}
	return out
}

func encodeNameSection(ns *wasm.NameSection) []byte {
	out := append([]byte{0x04}, []byte("name")...)
	if ns.ModuleName != "" {
		sub := encodeName(ns.ModuleName)
		out = append(out, subsectionIDModuleName)
		out = append(out, encodeU32(uint32(len(sub)))...)
		out = append(out, sub...)
	}
	if len(ns.FunctionNames) > 0 {
		var sub []byte
		sub = append(sub, encodeVec(len(ns.FunctionNames))...)
		for idx, name := range ns.FunctionNames {
			sub = append(sub, encodeU32(idx)...)
			sub = append(sub, encodeName(name)...)
		}
		out = append(out, subsectionIDFunctionNames)
		out = append(out, encodeU32(uint32(len(sub)))...)
		out = append(out, sub...)
	}
	return out
}
