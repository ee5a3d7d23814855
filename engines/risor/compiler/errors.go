package compiler

import "errors"

var ErrUnitNil = errors.New("compilation unit is nil")
