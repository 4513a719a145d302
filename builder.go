package wasmforge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// HostModuleBuilder assembles a set of Go functions into a module other Wasm modules can import by name.
type HostModuleBuilder struct {
	r       *Runtime
	name    string
	exports []*wasm.FunctionInstance
	names   []string
}

// NewHostModuleBuilder starts building a host module registered under moduleName once Instantiate is called.
func (r *Runtime) NewHostModuleBuilder(moduleName string) *HostModuleBuilder {
	return &HostModuleBuilder{r: r, name: moduleName}
}

// ExportFunction reflects over fn's signature and exports it under exportName.
//
// fn may optionally take a leading context.Context and/or api.Module parameter; remaining parameters and all
// results must be one of uint32, int32, uint64, int64, float32, float64.
//
//	builder.ExportFunction("add", func(x, y uint32) uint32 { return x + y })
func (b *HostModuleBuilder) ExportFunction(exportName string, fn interface{}) *HostModuleBuilder {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		panic(fmt.Sprintf("ExportFunction(%q): not a func: %v", exportName, t))
	}

	passCtx, passMod, goParamTypes := analyzeParams(t)
	paramTypes := make([]wasm.ValueType, len(goParamTypes))
	for i, gt := range goParamTypes {
		paramTypes[i] = valueTypeOf(gt)
	}
	resultTypes := make([]wasm.ValueType, t.NumOut())
	for i := range resultTypes {
		resultTypes[i] = valueTypeOf(t.Out(i))
	}

	skip := t.NumIn() - len(goParamTypes)

	goFunc := func(cc *wasm.CallContext, params []uint64) ([]uint64, error) {
		args := make([]reflect.Value, t.NumIn())
		i := 0
		if passCtx {
			args[i] = reflect.ValueOf(context.Background())
			i++
		}
		if passMod {
			args[i] = reflect.ValueOf(&moduleInstance{store: cc.Store, engine: b.r.engine, mi: cc.Module})
			i++
		}
		for j, gt := range goParamTypes {
			args[skip+j] = decodeArg(params[j], gt)
		}
		out := v.Call(args)
		results := make([]uint64, len(out))
		for i, o := range out {
			results[i] = encodeResult(o)
		}
		return results, nil
	}

	fi := &wasm.FunctionInstance{
		Type:      &wasm.FunctionType{Params: paramTypes, Results: resultTypes},
		GoFunc:    goFunc,
		DebugName: fmt.Sprintf("%s.%s", b.name, exportName),
	}
	b.exports = append(b.exports, fi)
	b.names = append(b.names, exportName)
	return b
}

// Instantiate registers the built functions as a module named per NewHostModuleBuilder, so other modules can
// import them by (module, name).
func (b *HostModuleBuilder) Instantiate() (api.Module, error) {
	mi := &wasm.ModuleInstance{Name: b.name, Exports: map[string]wasm.ExportInstance{}}
	for i, fi := range b.exports {
		addr := b.r.store.AddFunction(fi)
		mi.Functions = append(mi.Functions, addr)
		mi.Exports[b.names[i]] = wasm.ExportInstance{Type: wasm.ExternTypeFunc, Addr: uint32(addr)}
	}
	b.r.store.Register(b.name, mi)
	return &moduleInstance{store: b.r.store, engine: b.r.engine, mi: mi}, nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
)

func analyzeParams(t reflect.Type) (passCtx, passMod bool, rest []reflect.Type) {
	i := 0
	if t.NumIn() > i && t.In(i) == contextType {
		passCtx = true
		i++
	}
	if t.NumIn() > i && t.In(i).Implements(moduleType) {
		passMod = true
		i++
	}
	for ; i < t.NumIn(); i++ {
		rest = append(rest, t.In(i))
	}
	return
}

func valueTypeOf(t reflect.Type) wasm.ValueType {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValueTypeI32
	case reflect.Int64, reflect.Uint64:
		return wasm.ValueTypeI64
	case reflect.Float32:
		return wasm.ValueTypeF32
	case reflect.Float64:
		return wasm.ValueTypeF64
	default:
		panic(fmt.Sprintf("unsupported host function type: %v", t))
	}
}

func decodeArg(v uint64, goType reflect.Type) reflect.Value {
	switch goType.Kind() {
	case reflect.Uint32:
		return reflect.ValueOf(uint32(v))
	case reflect.Int32:
		return reflect.ValueOf(int32(uint32(v)))
	case reflect.Uint64:
		return reflect.ValueOf(v)
	case reflect.Int64:
		return reflect.ValueOf(int64(v))
	case reflect.Float32:
		return reflect.ValueOf(api.DecodeF32(v))
	case reflect.Float64:
		return reflect.ValueOf(api.DecodeF64(v))
	default:
		panic(fmt.Sprintf("unsupported host function parameter type: %v", goType))
	}
}

func encodeResult(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Uint32:
		return uint64(uint32(v.Uint()))
	case reflect.Int32:
		return uint64(uint32(v.Int()))
	case reflect.Uint64:
		return v.Uint()
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return api.EncodeF64(v.Float())
	default:
		panic(fmt.Sprintf("unsupported host function result type: %v", v.Kind()))
	}
}
