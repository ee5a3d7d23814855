package proxy

import (
	"errors"
	"fmt"

	"github.com/robbyt/go-polyexpr/platform/container"
)

var (
	ErrResolverMissing = errors.New("resolver must be installed before load")
	ErrAlreadyLoaded   = errors.New("a container is already loaded")
	ErrNotLoaded       = errors.New("no container loaded")
	ErrUnknownOp       = errors.New("unknown command")
	ErrTypeMissing     = errors.New("artifact does not define the container type")

	// ErrModuleUnknown wraps container.ErrModuleNotFound so loaders fall back to
	// resolving the name as a path.
	ErrModuleUnknown = fmt.Errorf("%w: not in resolver table", container.ErrModuleNotFound)
)
