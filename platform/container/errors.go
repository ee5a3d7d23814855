package container

import "errors"

var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrDuplicateEntry  = errors.New("duplicate capability")
	ErrUnsupportedKind = errors.New("unsupported module kind")
)
