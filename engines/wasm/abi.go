package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ABI is the calling convention a module follows.
type ABI string

const (
	// ABICore modules export plain numeric functions and import nothing.
	ABICore ABI = "core"
	// ABIExtism modules exchange bytes with the host through the Extism kernel.
	ABIExtism ABI = "extism"
)

const extismImportModule = "extism:host/env"

// signature is the parameter and result types of an exported function.
type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

// inspect compiles src without instantiating it and reports its ABI and exported functions.
func inspect(ctx context.Context, src []byte) (ABI, map[string]signature, error) {
	if len(src) == 0 {
		return "", nil, ErrContentNil
	}
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, src)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	abi := ABICore
	for _, fn := range compiled.ImportedFunctions() {
		module, _, _ := fn.Import()
		if module == extismImportModule {
			abi = ABIExtism
			break
		}
	}
	exports := make(map[string]signature)
	for name, def := range compiled.ExportedFunctions() {
		exports[name] = signature{params: def.ParamTypes(), results: def.ResultTypes()}
	}
	return abi, exports, nil
}

// DetectABI reports which calling convention src follows.
func DetectABI(ctx context.Context, src []byte) (ABI, error) {
	abi, _, err := inspect(ctx, src)
	return abi, err
}
