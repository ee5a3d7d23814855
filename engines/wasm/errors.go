package wasm

import "errors"

var (
	ErrContentNil       = errors.New("wasm content is empty")
	ErrInvalidBinary    = errors.New("invalid wasm binary")
	ErrImportsForbidden = errors.New("wasm module imports host functions")
	ErrUnknownExport    = errors.New("wasm module has no such export")
	ErrArgumentMismatch = errors.New("wasm argument mismatch")
	ErrCallFailed       = errors.New("wasm call failed")
)
