// Package binary implements the Loader: decoding a WebAssembly binary image (via internal/filemgr) into an
// internal/wasm AST. It has no encoder; test fixtures are encoded by internal/testing/binaryencoding.
package binary

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/filemgr"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}
var version = [4]byte{0x01, 0x00, 0x00, 0x00}

// section IDs, in the fixed ascending order the Loader enforces (0 may interleave anywhere).
const (
	sectionCustom = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
	sectionDataCount
)

// DecodeModule decodes a whole binary image into a *wasm.Module. It does not validate the module; call
// wasm.Validate separately before instantiating it.
func DecodeModule(buf []byte, enabled wasm.Features, memoryCapPages uint32) (*wasm.Module, error) {
	r := filemgr.New(buf)

	hdr, err := r.ReadBytes(4)
	if err != nil || string(hdr) != string(magic[:]) {
		return nil, fmt.Errorf("invalid magic number")
	}
	ver, err := r.ReadBytes(4)
	if err != nil || string(ver) != string(version[:]) {
		return nil, fmt.Errorf("invalid version header")
	}

	m := &wasm.Module{}
	lastNonCustomID := -1
	for r.GetRemainSize() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading section id: %w", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("reading section %d size: %w", id, err)
		}
		content, err := r.ReadBytes(uint64(size))
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		sr := filemgr.New(content)

		if id != sectionCustom {
			if int(id) <= lastNonCustomID {
				return nil, fmt.Errorf("section %d is out of order or duplicated", id)
			}
			lastNonCustomID = int(id)
		}

		if err := decodeSection(m, id, sr, enabled, memoryCapPages); err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		if sr.GetRemainSize() != 0 {
			return nil, fmt.Errorf("section %d: %d bytes remain after decoding its contents", id, sr.GetRemainSize())
		}
	}
	return m, nil
}

func decodeSection(m *wasm.Module, id byte, r *filemgr.Reader, enabled wasm.Features, memoryCapPages uint32) error {
	switch id {
	case sectionCustom:
		return decodeCustomSection(m, r)
	case sectionType:
		return decodeTypeSection(m, r, enabled)
	case sectionImport:
		return decodeImportSection(m, r, memoryCapPages)
	case sectionFunction:
		return decodeFunctionSection(m, r)
	case sectionTable:
		return decodeTableSection(m, r)
	case sectionMemory:
		return decodeMemorySection(m, r, memoryCapPages)
	case sectionGlobal:
		return decodeGlobalSection(m, r)
	case sectionExport:
		return decodeExportSection(m, r)
	case sectionStart:
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.StartSection = &idx
		return nil
	case sectionElement:
		return decodeElementSection(m, r, enabled)
	case sectionCode:
		return decodeCodeSection(m, r)
	case sectionData:
		return decodeDataSection(m, r, enabled)
	case sectionDataCount:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.DataCountSection = &n
		return nil
	default:
		return fmt.Errorf("unknown section id %d", id)
	}
}

// decodeCustomSection only recognizes the "name" section; any other custom section (or a malformed "name"
// section) is skipped, since custom sections are defined to be opaque to the Loader.
func decodeCustomSection(m *wasm.Module, r *filemgr.Reader) error {
	name, err := r.ReadName()
	if err != nil {
		return nil // not even a well-formed name: treat the whole section as opaque
	}
	if name != "name" {
		return nil
	}
	ns, err := decodeNameSection(r)
	if err != nil {
		return nil // malformed name sections are ignored, not fatal
	}
	m.NameSection = ns
	return nil
}

func readVecLen(r *filemgr.Reader) (uint32, error) { return r.ReadU32() }
