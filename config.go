package wasmforge

import (
	"context"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

// RuntimeConfig controls the behavior of a Runtime created by NewRuntimeWithConfig.
type RuntimeConfig struct {
	enabledFeatures wasm.Features
	ctx             context.Context
	memoryMaxPages  uint32
}

var defaultConfig = &RuntimeConfig{
	enabledFeatures: wasm.Features20220419,
	ctx:             context.Background(),
	memoryMaxPages:  wasm.MemoryMaxPages,
}

// NewRuntimeConfig returns a RuntimeConfig with the engine's default feature set: the proposals that had reached
// phase 4 as of the 20220419 snapshot.
func NewRuntimeConfig() *RuntimeConfig {
	ret := *defaultConfig
	return &ret
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithContext sets the context stored on the Runtime; a nil ctx is replaced by context.Background, the default.
// The interpreter does not consult it: start functions and Function.Call run without any context.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithMemoryMaxPages lowers the engine-wide ceiling on any single memory's page count from the 32-bit address
// space maximum (65536 pages, 4GiB). memory.grow fails past this many pages whatever maximum a module declares;
// CompileModule does not reject a module whose declared maximum is larger.
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithFeatureBulkMemoryOperations toggles memory.copy, memory.fill, table.copy and the *.init/*.drop family.
func (c *RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureBulkMemoryOperations, enabled)
	return ret
}

// WithFeatureReferenceTypes toggles externref, table.grow/table.size/table.fill, and multiple tables.
func (c *RuntimeConfig) WithFeatureReferenceTypes(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureReferenceTypes, enabled)
	return ret
}

// WithFeatureSignExtensionOps toggles the i32.extend8_s family.
func (c *RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureSignExtensionOps, enabled)
	return ret
}

// WithFeatureMultiValue toggles function types and block types with more than one result.
func (c *RuntimeConfig) WithFeatureMultiValue(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMultiValue, enabled)
	return ret
}

// CompiledModule is a decoded and validated Wasm binary, ready to be instantiated by Runtime.InstantiateModule.
// Compiling is separated from instantiation so the same CompiledModule can back many independent instances.
type CompiledModule struct {
	module *wasm.Module
	name   string
}
