package runtime

import "errors"

var (
	ErrPayloadInvalid = errors.New("risor payload is malformed")
	ErrMissingMethod  = errors.New("payload lacks entry point")
	ErrResultType     = errors.New("expression result cannot cross the boundary")
	ErrModules        = errors.New("risor containers cannot bind resolver modules")
)
