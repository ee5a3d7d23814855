package isolation

import "errors"

var (
	ErrExecuteDenied = errors.New("execution permission not granted")
	ErrAnchorInvalid = errors.New("anchor must be an existing absolute directory")
	ErrOutsideAnchor = errors.New("path is outside the anchor directory")
	ErrNotElevated   = errors.New("file access requires elevation")
)
