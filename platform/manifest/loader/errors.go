package loader

import "errors"

var (
	ErrSchemeUnsupported = errors.New("unsupported scheme")
	ErrNotAvailable      = errors.New("manifest not available")
)
