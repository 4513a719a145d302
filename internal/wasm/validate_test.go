package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func addI32Module() *Module {
	ft := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	return &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection: []*Code{
			{Body: []byte{OpcodeLocalGet, 0, OpcodeLocalGet, 1, OpcodeI32Add, OpcodeEnd}},
		},
	}
}

func TestValidate_simpleAdd(t *testing.T) {
	m := addI32Module()
	require.NoError(t, Validate(m, Features20220419))
}

func TestValidate_operandStackUnderflow(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	m := &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection:     []*Code{{Body: []byte{OpcodeEnd}}},
	}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}

func TestValidate_typeMismatch(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	m := &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection: []*Code{
			{Body: []byte{OpcodeF32Const, 0, 0, 0, 0, OpcodeEnd}},
		},
	}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}

func TestValidate_unreachableMakesStackPolymorphic(t *testing.T) {
	// unreachable followed by an instruction needing operands validates: the stack is polymorphic past it.
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	m := &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection: []*Code{
			{Body: []byte{OpcodeUnreachable, OpcodeI32Add, OpcodeEnd}},
		},
	}
	require.NoError(t, Validate(m, Features20220419))
}

func TestValidate_callIndirectOutOfRange(t *testing.T) {
	ft := &FunctionType{}
	m := &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection: []*Code{
			{Body: []byte{OpcodeI32Const, 0, OpcodeCallIndirect, 0, 0, OpcodeEnd}},
		},
	}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}

func TestValidate_duplicateExportName(t *testing.T) {
	m := addI32Module()
	m.ExportSection = []*Export{
		{Name: "run", Type: ExternTypeFunc, Index: 0},
		{Name: "run", Type: ExternTypeFunc, Index: 0},
	}
	err := Validate(m, Features20220419)
	require.ErrorContains(t, err, "duplicate export name")
}

func TestValidate_memoryLimitsMinGreaterThanMax(t *testing.T) {
	max := uint32(1)
	m := &Module{MemorySection: []*MemoryType{{Min: 2, Max: &max}}}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}

func TestValidate_globalInitializerTypeMismatch(t *testing.T) {
	m := &Module{
		GlobalSection: []*Global{
			{Type: GlobalType{ValType: ValueTypeI32}, Init: ConstantExpression{Opcode: OpcodeF64Const, Data: make([]byte, 8)}},
		},
	}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}

func TestValidate_ifWithoutElseMustPreserveArity(t *testing.T) {
	ft := &FunctionType{Results: []ValueType{ValueTypeI32}}
	m := &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []uint32{0},
		CodeSection: []*Code{
			// if (i32.const 0) (result i32) (i32.const 1) end -- no else, but declares an i32 result: invalid.
			{Body: []byte{OpcodeI32Const, 0, OpcodeIf, ValueTypeI32, OpcodeI32Const, 1, OpcodeEnd, OpcodeEnd}},
		},
	}
	err := Validate(m, Features20220419)
	require.Error(t, err)
}
