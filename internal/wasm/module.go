// Package wasm holds the AST produced by the Loader, the runtime Store the Executor instantiates modules into,
// and the Validator that checks an AST before it is ever instantiated.
package wasm

import (
	"strings"

	"github.com/wasmforge/wasmforge/api"
)

// ValueType is one of the four numeric types, the vector type, or a reference type. It is an alias of api.ValueType
// so the public API and the internal AST speak the same vocabulary without a conversion at the boundary.
type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeV128      = api.ValueTypeV128
	ValueTypeFuncref   = api.ValueTypeFuncref
	ValueTypeExternref = api.ValueTypeExternref
)

// ValueTypeName renders a ValueType for diagnostics; delegates to the public API's naming.
func ValueTypeName(t ValueType) string { return api.ValueTypeName(t) }

// FunctionType is a parameter sequence and a result sequence of value types.
type FunctionType struct {
	Params, Results []ValueType

	// string caches String(), computed once since it is used as a cache key during instantiation.
	string string
}

// String renders the signature as "params_results", e.g. "i32i64_f32", used as a cache key for matching
// call_indirect targets against a declared type without allocating on every call.
func (f *FunctionType) String() string {
	if f.string != "" {
		return f.string
	}
	var sb strings.Builder
	for _, p := range f.Params {
		sb.WriteString(ValueTypeName(p))
	}
	if len(f.Params) == 0 {
		sb.WriteString("null")
	}
	sb.WriteByte('_')
	for _, r := range f.Results {
		sb.WriteString(ValueTypeName(r))
	}
	if len(f.Results) == 0 {
		sb.WriteString("null")
	}
	f.string = sb.String()
	return f.string
}

// EqualsSignature reports whether f has exactly the given params and results.
func (f *FunctionType) EqualsSignature(params, results []ValueType) bool {
	return f.String() == (&FunctionType{Params: params, Results: results}).String()
}

// Limits bounds the size of a table or memory: a required minimum and an optional maximum.
type Limits struct {
	Min uint32
	Max *uint32
}

// MemoryType is a Limits in units of 64KiB pages, additionally capped by the engine-wide page limit.
type MemoryType struct {
	Min, Cap uint32
	Max      *uint32
}

// MemoryPageSize is the fixed size, in bytes, of one memory page.
const MemoryPageSize = 65536

// MemoryMaxPages is the absolute ceiling on memory size, imposed by the 32-bit address space.
const MemoryMaxPages = 65536

// TableType is a reference-typed table's element type and size limits.
type TableType struct {
	ElemType ValueType
	Lim      Limits
}

// GlobalType is a global's declared value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ExternType classifies the four kinds of importable/exportable entity.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)

// Import describes one entry of the import section: a (module, name) pair and the descriptor of what is imported.
type Import struct {
	Type       ExternType
	Module     string
	Name       string
	DescFunc   uint32 // type index, valid when Type == ExternTypeFunc
	DescTable  TableType
	DescMem    MemoryType
	DescGlobal GlobalType
}

// Export describes one entry of the export section: a public name bound to an index of the given kind.
type Export struct {
	Type  ExternType
	Name  string
	Index uint32
}

// Global is a module-defined global: its type and constant initializer expression.
type Global struct {
	Type GlobalType
	Init ConstantExpression
}

// ConstantExpression is a single constant instruction (or a global.get of an imported immutable global) used to
// initialize a global, table element offset, or data segment offset.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte // fixed-width little-endian operand (integer, index or float bits; one type byte for ref.null)
}

// ElementMode classifies how an element segment is applied at instantiation time.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// ElementSegment initializes a range of a table (if active), or is held as a passive pool for table.init.
type ElementSegment struct {
	Type      ValueType
	Mode      ElementMode
	TableIndex uint32
	OffsetExpr ConstantExpression
	// Init is the resolved list of initializers: either a function index (encoded as a funcref-valued
	// ConstantExpression with Opcode OpcodeRefFunc) or a general constant expression per element.
	Init []ConstantExpression
}

// DataMode classifies how a data segment is applied at instantiation time.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment initializes a range of memory (if active), or is held as a passive pool for memory.init.
type DataSegment struct {
	Mode       DataMode
	MemoryIndex uint32
	OffsetExpr ConstantExpression
	Init       []byte
}

// Code is one entry of the code section: a function body's locals declaration and instruction sequence.
type Code struct {
	LocalTypes []ValueType
	Body       []byte // the raw instruction stream, never decoded into an IR: the Validator and interpreter walk it directly
}

// NameSection holds the optional debug names carried by the custom "name" section, kept only for diagnostics.
type NameSection struct {
	ModuleName    string
	FunctionNames map[uint32]string
	LocalNames    map[uint32]map[uint32]string
}

// Module is the AST produced by the Loader: the ordered collection of sections of a single binary image.
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []uint32 // type index per defined function
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*Global
	ExportSection   []*Export
	StartSection    *uint32
	ElementSection  []*ElementSegment
	CodeSection     []*Code
	DataSection     []*DataSegment
	DataCountSection *uint32

	NameSection *NameSection

	// ID is a slot for a content hash to key compilation caches. DecodeModule does not fill it in and nothing
	// reads it, so it stays zero.
	ID [32]byte
}

// ImportFuncCount returns the number of function imports, i.e. the index of the first module-defined function.
func (m *Module) ImportFuncCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeFunc {
			n++
		}
	}
	return n
}

// ImportTableCount returns the number of table imports.
func (m *Module) ImportTableCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeTable {
			n++
		}
	}
	return n
}

// ImportMemoryCount returns the number of memory imports.
func (m *Module) ImportMemoryCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeMemory {
			n++
		}
	}
	return n
}

// ImportGlobalCount returns the number of global imports.
func (m *Module) ImportGlobalCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeGlobal {
			n++
		}
	}
	return n
}

// TypeOfFunction returns the declared type of the funcIdx'th function, counting imports first, or nil if out of
// range.
func (m *Module) TypeOfFunction(funcIdx uint32) *FunctionType {
	importFuncCount := m.ImportFuncCount()
	if funcIdx < importFuncCount {
		var i uint32
		for _, imp := range m.ImportSection {
			if imp.Type != ExternTypeFunc {
				continue
			}
			if i == funcIdx {
				if int(imp.DescFunc) >= len(m.TypeSection) {
					return nil
				}
				return m.TypeSection[imp.DescFunc]
			}
			i++
		}
		return nil
	}
	defIdx := funcIdx - importFuncCount
	if int(defIdx) >= len(m.FunctionSection) {
		return nil
	}
	typeIdx := m.FunctionSection[defIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil
	}
	return m.TypeSection[typeIdx]
}
