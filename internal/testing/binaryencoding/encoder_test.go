package binaryencoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

func TestEncode_empty(t *testing.T) {
	require.Equal(t, append(append([]byte{}, Magic...), version...), Encode(&wasm.Module{}))
}

func TestEncode_onlyNameSection(t *testing.T) {
	m := &wasm.Module{NameSection: &wasm.NameSection{ModuleName: "simple"}}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDCustom, 0x0e, // 14 bytes in this section
		0x04, 'n', 'a', 'm', 'e',
		subsectionIDModuleName, 0x07, // 7 bytes in this subsection
		0x06,
		's', 'i', 'm', 'p', 'l', 'e')
	require.Equal(t, want, got)
}

func TestEncode_typeSection(t *testing.T) {
	i32 := wasm.ValueTypeI32
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{},
			{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
		},
	}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDType, 0x0a, // 10 bytes in this section
		0x02,
		0x60, 0x00, 0x00,
		0x60, 0x02, i32, i32, 0x01, i32,
	)
	require.Equal(t, want, got)
}

func TestEncode_typeAndImportSection(t *testing.T) {
	i32 := wasm.ValueTypeI32
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}},
		ImportSection: []*wasm.Import{
			{Module: "Math", Name: "Add", Type: wasm.ExternTypeFunc, DescFunc: 0},
		},
	}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDType, 0x07,
		0x01,
		0x60, 0x02, i32, i32, 0x01, i32,
		sectionIDImport, 0x0c,
		0x01,
		0x04, 'M', 'a', 't', 'h', 0x03, 'A', 'd', 'd', wasm.ExternTypeFunc,
		0x00,
	)
	require.Equal(t, want, got)
}

func TestEncode_exportedFuncWithInstructions(t *testing.T) {
	i32 := wasm.ValueTypeI32
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}},
		FunctionSection: []uint32{0},
		CodeSection: []*wasm.Code{
			{Body: []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd}},
		},
		ExportSection: []*wasm.Export{{Name: "AddInt", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDType, 0x07,
		0x01,
		0x60, 0x02, i32, i32, 0x01, i32,
		sectionIDFunction, 0x02,
		0x01,
		0x00,
		sectionIDExport, 0x0a,
		0x01,
		0x06, 'A', 'd', 'd', 'I', 'n', 't',
		wasm.ExternTypeFunc, 0x00,
		sectionIDCode, 0x09,
		0x01,
		0x07,
		0x00,
		wasm.OpcodeLocalGet, 0,
		wasm.OpcodeLocalGet, 1,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	)
	require.Equal(t, want, got)
}

func TestEncode_exportedGlobal(t *testing.T) {
	i32 := wasm.ValueTypeI32
	m := &wasm.Module{
		GlobalSection: []*wasm.Global{
			{
				Type: wasm.GlobalType{ValType: i32, Mutable: true},
				Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0, 0, 0, 0}},
			},
		},
		ExportSection: []*wasm.Export{{Name: "sp", Type: wasm.ExternTypeGlobal, Index: 0}},
	}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDGlobal, 0x06,
		0x01, i32, 0x01,
		wasm.OpcodeI32Const, 0x00, wasm.OpcodeEnd,
		sectionIDExport, 0x06,
		0x01,
		0x02, 's', 'p',
		wasm.ExternTypeGlobal, 0x00,
	)
	require.Equal(t, want, got)
}

func TestEncode_tableAndMemorySection(t *testing.T) {
	max := uint32(1)
	m := &wasm.Module{
		TableSection:  []*wasm.TableType{{ElemType: wasm.ValueTypeFuncref, Lim: wasm.Limits{Min: 3}}},
		MemorySection: []*wasm.MemoryType{{Min: 1, Max: &max}},
	}
	got := Encode(m)
	want := append(append(append([]byte{}, Magic...), version...),
		sectionIDTable, 0x04,
		0x01,
		wasm.ValueTypeFuncref, 0x00, 0x03,
		sectionIDMemory, 0x04,
		0x01,
		0x01, 0x01, 0x01,
	)
	require.Equal(t, want, got)
}

func TestEncodeCode(t *testing.T) {
	addBody := []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd}
	tests := []struct {
		name     string
		input    *wasm.Code
		expected []byte
	}{
		{
			name:     "smallest function body",
			input:    &wasm.Code{Body: []byte{wasm.OpcodeEnd}},
			expected: []byte{0x02, 0x00, wasm.OpcodeEnd},
		},
		{
			name:  "params and instructions",
			input: &wasm.Code{Body: addBody},
			expected: append([]byte{
				0x07,
				0x00,
			}, addBody...),
		},
		{
			name:  "locals and instructions",
			input: &wasm.Code{LocalTypes: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Body: addBody},
			expected: append([]byte{
				0x09,
				0x01,
				0x02, wasm.ValueTypeI32,
			}, addBody...),
		},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, encodeCode(tc.input))
		})
	}
}

func TestEncodeExportSection_singleEntry(t *testing.T) {
	exports := []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "pi", Index: 10}}
	want := append(encodeVec(1), append(encodeName("pi"), wasm.ExternTypeFunc, 0x0a)...)
	require.Equal(t, want, encodeExportSection(exports))
}

func TestEncodeValueTypes(t *testing.T) {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	tests := []struct {
		name     string
		input    []wasm.ValueType
		expected []byte
	}{
		{name: "empty", input: []wasm.ValueType{}, expected: []byte{0}},
		{name: "i32", input: []wasm.ValueType{i32}, expected: []byte{1, i32}},
		{name: "i32i64f32f64", input: []wasm.ValueType{i32, i64, f32, f64}, expected: []byte{4, i32, i64, f32, f64}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, encodeValueTypes(tc.input))
		})
	}
}

func TestConstantExpressionRoundTrip(t *testing.T) {
	ce := wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x2a, 0, 0, 0}}
	encoded := EncodeConstantExpression(ce)
	require.Equal(t, []byte{wasm.OpcodeI32Const, 0x2a, wasm.OpcodeEnd}, encoded)
}
