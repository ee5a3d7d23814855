package compiler

import "errors"

var (
	ErrUnitNil     = errors.New("compilation unit is nil")
	ErrRenderFault = errors.New("rendered container failed to compile")
)
