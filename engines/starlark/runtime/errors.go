package runtime

import "errors"

var (
	ErrPayloadInvalid = errors.New("starlark payload is not a compiled program")
	ErrMissingMethod  = errors.New("compiled program lacks entry point")
	ErrImportCycle    = errors.New("module import cycle")
	ErrResultType     = errors.New("expression result cannot cross the boundary")
)
