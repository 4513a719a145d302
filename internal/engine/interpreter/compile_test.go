package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

func TestCompileBranchTargets_flatBody(t *testing.T) {
	body := []byte{wasm.OpcodeLocalGet, 0, wasm.OpcodeLocalGet, 1, wasm.OpcodeI32Add, wasm.OpcodeEnd}
	bt, err := compileBranchTargets(body)
	require.NoError(t, err)
	require.Empty(t, bt.bodyStart)
	require.Empty(t, bt.matchEnd)
}

func TestCompileBranchTargets_block(t *testing.T) {
	// block (empty type) / nop / end / end
	body := []byte{wasm.OpcodeBlock, 0x40, wasm.OpcodeNop, wasm.OpcodeEnd, wasm.OpcodeEnd}
	bt, err := compileBranchTargets(body)
	require.NoError(t, err)
	require.Equal(t, uint64(2), bt.bodyStart[0])
	require.Equal(t, uint64(4), bt.matchEnd[0])
}

func TestCompileBranchTargets_ifElse(t *testing.T) {
	// if (empty type) / nop / else / nop / end / end
	body := []byte{
		wasm.OpcodeIf, 0x40,
		wasm.OpcodeNop,
		wasm.OpcodeElse,
		wasm.OpcodeNop,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	bt, err := compileBranchTargets(body)
	require.NoError(t, err)
	require.Equal(t, uint64(2), bt.bodyStart[0])
	require.Equal(t, uint64(4), bt.matchElse[0])
	require.Equal(t, uint64(6), bt.matchEnd[0])
}

func TestCompileBranchTargets_loopWithBranch(t *testing.T) {
	// loop (empty type) / br 0 / end / end
	body := []byte{
		wasm.OpcodeLoop, 0x40,
		wasm.OpcodeBr, 0x00,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}
	bt, err := compileBranchTargets(body)
	require.NoError(t, err)
	require.Equal(t, uint64(2), bt.bodyStart[0])
	require.Equal(t, uint64(5), bt.matchEnd[0])
}
