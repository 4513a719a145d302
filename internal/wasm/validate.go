package wasm

import (
	"fmt"
)

// ValidationError reports a single structural defect found while validating a Module, before it is ever
// instantiated.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func errf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Validate checks m's structural well-formedness: type/index ranges, limits, constant expressions, and every
// function body's control-flow and operand-stack discipline. It never mutates m.
func Validate(m *Module, enabled Features) error {
	if err := validateLimitsAndIndices(m, enabled); err != nil {
		return err
	}
	if len(m.FunctionSection) != len(m.CodeSection) {
		return errf("function and code section have inconsistent lengths: %d != %d", len(m.FunctionSection), len(m.CodeSection))
	}

	if err := validateExports(m); err != nil {
		return err
	}
	if err := validateStart(m); err != nil {
		return err
	}
	if err := validateGlobals(m, enabled); err != nil {
		return err
	}
	if err := validateElements(m, enabled); err != nil {
		return err
	}
	if err := validateData(m); err != nil {
		return err
	}

	importFuncCount := m.ImportFuncCount()
	for i, code := range m.CodeSection {
		funcIdx := importFuncCount + uint32(i)
		ft := m.TypeOfFunction(funcIdx)
		if ft == nil {
			return errf("function %d: invalid type index", funcIdx)
		}
		if err := validateFunctionBody(m, ft, code, enabled); err != nil {
			return errf("function %d: %w", funcIdx, err)
		}
	}
	return nil
}

func validateLimitsAndIndices(m *Module, enabled Features) error {
	for i, ft := range m.TypeSection {
		if len(ft.Results) > 1 && !enabled.Get(FeatureMultiValue) {
			return errf("type %d: multiple results requires the multi-value feature", i)
		}
	}

	if !enabled.Get(FeatureMultiMemory) && len(m.MemorySection)+int(m.ImportMemoryCount()) > 1 {
		return errf("at most one memory is allowed without the multi-memory feature")
	}
	for i, mt := range m.MemorySection {
		if err := validateMemoryLimits(mt); err != nil {
			return errf("memory %d: %w", i, err)
		}
	}
	for i, tt := range m.TableSection {
		if tt.Lim.Max != nil && *tt.Lim.Max < tt.Lim.Min {
			return errf("table %d: size minimum must not be greater than maximum", i)
		}
		if !enabled.Get(FeatureReferenceTypes) && tt.ElemType != ValueTypeFuncref {
			return errf("table %d: non-funcref tables require the reference-types feature", i)
		}
	}
	for i, imp := range m.ImportSection {
		switch imp.Type {
		case ExternTypeFunc:
			if int(imp.DescFunc) >= len(m.TypeSection) {
				return errf("import %d: type index %d out of range", i, imp.DescFunc)
			}
		case ExternTypeMemory:
			if err := validateMemoryLimits(&imp.DescMem); err != nil {
				return errf("import %d: %w", i, err)
			}
		}
	}
	for i, typeIdx := range m.FunctionSection {
		if int(typeIdx) >= len(m.TypeSection) {
			return errf("function %d: type index %d out of range", i, typeIdx)
		}
	}
	return nil
}

func validateMemoryLimits(mt *MemoryType) error {
	if mt.Max != nil && *mt.Max < mt.Min {
		return errf("size minimum must not be greater than maximum")
	}
	if mt.Min > MemoryMaxPages || (mt.Max != nil && *mt.Max > MemoryMaxPages) {
		return errf("size must be at most %d pages", MemoryMaxPages)
	}
	return nil
}

func validateExports(m *Module) error {
	seen := map[string]bool{}
	funcCount := m.ImportFuncCount() + uint32(len(m.FunctionSection))
	tableCount := m.ImportTableCount() + uint32(len(m.TableSection))
	memCount := m.ImportMemoryCount() + uint32(len(m.MemorySection))
	globalCount := m.ImportGlobalCount() + uint32(len(m.GlobalSection))

	for _, exp := range m.ExportSection {
		if seen[exp.Name] {
			return errf("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = true

		var limit uint32
		switch exp.Type {
		case ExternTypeFunc:
			limit = funcCount
		case ExternTypeTable:
			limit = tableCount
		case ExternTypeMemory:
			limit = memCount
		case ExternTypeGlobal:
			limit = globalCount
		default:
			return errf("export %q: unknown kind", exp.Name)
		}
		if exp.Index >= limit {
			return errf("export %q: index %d out of range", exp.Name, exp.Index)
		}
	}
	return nil
}

func validateStart(m *Module) error {
	if m.StartSection == nil {
		return nil
	}
	ft := m.TypeOfFunction(*m.StartSection)
	if ft == nil {
		return errf("start function %d: invalid index", *m.StartSection)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return errf("start function must have no parameters or results")
	}
	return nil
}

func validateGlobals(m *Module, enabled Features) error {
	importGlobalCount := m.ImportGlobalCount()
	for i, g := range m.GlobalSection {
		globalIdx := importGlobalCount + uint32(i)
		resultType, err := validateConstantExpression(m, g.Init, importGlobalCount, enabled)
		if err != nil {
			return errf("global %d: %w", globalIdx, err)
		}
		if resultType != g.Type.ValType {
			return errf("global %d: initializer type %s does not match declared type %s",
				globalIdx, ValueTypeName(resultType), ValueTypeName(g.Type.ValType))
		}
	}
	return nil
}

// validateConstantExpression checks a constant expression used for a global initializer or an element/data
// segment offset: it must be a single const, ref.null or ref.func instruction, or global.get of an imported
// immutable global. It returns the expression's result type; the caller compares it with the type it needs.
func validateConstantExpression(m *Module, ce ConstantExpression, importGlobalCount uint32, enabled Features) (ValueType, error) {
	switch ce.Opcode {
	case OpcodeI32Const:
		return ValueTypeI32, nil
	case OpcodeI64Const:
		return ValueTypeI64, nil
	case OpcodeF32Const:
		return ValueTypeF32, nil
	case OpcodeF64Const:
		return ValueTypeF64, nil
	case OpcodeRefNull:
		if len(ce.Data) != 1 {
			return 0, errf("malformed ref.null operand")
		}
		return ce.Data[0], nil
	case OpcodeRefFunc:
		return ValueTypeFuncref, nil
	case OpcodeGlobalGet:
		idx := decodeIndexOperand(ce.Data)
		if idx >= importGlobalCount {
			return 0, errf("global.get in a constant expression may only reference an imported global")
		}
		g := m.ImportSection[importIndexOf(m, ExternTypeGlobal, idx)]
		if g.DescGlobal.Mutable {
			return 0, errf("global.get in a constant expression may not reference a mutable global")
		}
		return g.DescGlobal.ValType, nil
	default:
		return 0, errf("opcode %#x is not valid in a constant expression", ce.Opcode)
	}
}

// importIndexOf returns the position within m.ImportSection of the n'th import of the given kind.
func importIndexOf(m *Module, kind ExternType, n uint32) int {
	var seen uint32
	for i, imp := range m.ImportSection {
		if imp.Type != kind {
			continue
		}
		if seen == n {
			return i
		}
		seen++
	}
	return -1
}

// decodeIndexOperand reinterprets a constant expression's raw operand bytes as a little-endian u32; the Loader
// stores global/function indices this way rather than as a LEB128 byte run, since they are fixed-width once
// decoded.
func decodeIndexOperand(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func validateElements(m *Module, enabled Features) error {
	if len(m.ElementSection) > 0 && !enabled.Get(FeatureBulkMemoryOperations) {
		for _, es := range m.ElementSection {
			if es.Mode != ElementModeActive {
				return errf("passive and declarative element segments require the bulk-memory-operations feature")
			}
		}
	}
	tableCount := m.ImportTableCount() + uint32(len(m.TableSection))
	for i, es := range m.ElementSection {
		if es.Mode == ElementModeActive {
			if es.TableIndex >= tableCount {
				return errf("element %d: table index %d out of range", i, es.TableIndex)
			}
			if _, err := validateConstantExpression(m, es.OffsetExpr, m.ImportGlobalCount(), enabled); err != nil {
				return errf("element %d: offset: %w", i, err)
			}
		}
	}
	return nil
}

func validateData(m *Module) error {
	memCount := m.ImportMemoryCount() + uint32(len(m.MemorySection))
	for i, ds := range m.DataSection {
		if ds.Mode == DataModeActive && ds.MemoryIndex >= memCount {
			return errf("data %d: memory index %d out of range", i, ds.MemoryIndex)
		}
	}
	if m.DataCountSection != nil && int(*m.DataCountSection) != len(m.DataSection) {
		return errf("data count section (%d) does not match the number of data segments (%d)", *m.DataCountSection, len(m.DataSection))
	}
	return nil
}
