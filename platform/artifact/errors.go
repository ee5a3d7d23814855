package artifact

import "errors"

var (
	ErrEmptyDir        = errors.New("artifact directory is empty")
	ErrMalformed       = errors.New("malformed artifact")
	ErrVersionMismatch = errors.New("unsupported artifact version")
)
