package binary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

func header() []byte { return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00} }

func TestDecodeModule_emptyHeaderOnly(t *testing.T) {
	m, err := DecodeModule(header(), wasm.Features20220419, wasm.MemoryMaxPages)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Empty(t, m.TypeSection)
}

func TestDecodeModule_badMagic(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}, wasm.Features20220419, wasm.MemoryMaxPages)
	require.Error(t, err)
}

func TestDecodeModule_badVersion(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, wasm.Features20220419, wasm.MemoryMaxPages)
	require.Error(t, err)
}

func TestDecodeModule_typeSection(t *testing.T) {
	buf := append(header(),
		0x01,                   // section id: type
		0x07,                   // section size
		0x01,                   // 1 type
		0x60,                   // func
		0x02, 0x7f, 0x7f,       // 2 params: i32 i32
		0x01, 0x7f, // 1 result: i32
	)
	m, err := DecodeModule(buf, wasm.Features20220419, wasm.MemoryMaxPages)
	require.NoError(t, err)
	require.Len(t, m.TypeSection, 1)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, m.TypeSection[0].Params)
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32}, m.TypeSection[0].Results)
}

func TestDecodeModule_outOfOrderSections(t *testing.T) {
	buf := append(header(),
		0x03, 0x01, 0x00, // function section (id 3) before type section (id 1): out of order
		0x01, 0x01, 0x00,
	)
	_, err := DecodeModule(buf, wasm.Features20220419, wasm.MemoryMaxPages)
	require.Error(t, err)
}

func TestDecodeModule_functionAndCodeSection(t *testing.T) {
	buf := append(header(),
		0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00, // type: (i32) -> ()
		0x03, 0x02, 0x01, 0x00, // function section: 1 function, type 0
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x20, 0x00, 0x0b, // code: 1 entry, size 4, 0 locals, local.get 0, end
	)
	m, err := DecodeModule(buf, wasm.Features20220419, wasm.MemoryMaxPages)
	require.NoError(t, err)
	require.Len(t, m.CodeSection, 1)
	require.Equal(t, []byte{wasm.OpcodeLocalGet, 0x00, wasm.OpcodeEnd}, m.CodeSection[0].Body)
}
