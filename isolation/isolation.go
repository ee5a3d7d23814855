// Package isolation defines the contract between the host and an isolation context:
// the permission set a context is created with, the capability gate guarding file
// access inside it, and the host-side client that talks to its execution proxy.
package isolation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/container"
)

const (
	DefaultMaxSteps       = 10_000_000
	DefaultMaxMemoryPages = 256 // 16 MiB
	DefaultTimeout        = 5 * time.Second
)

// Permissions is the complete set of grants an isolation context can hold. There is no
// file, network, environment or clock permission to grant.
type Permissions struct {
	Execute        bool          `json:"execute"`
	MaxSteps       uint64        `json:"max_steps"`
	MaxMemoryPages uint32        `json:"max_memory_pages"`
	Timeout        time.Duration `json:"timeout"`
}

// MinimalPermissions grants execution with the default budgets.
func MinimalPermissions() Permissions {
	return Permissions{
		Execute:        true,
		MaxSteps:       DefaultMaxSteps,
		MaxMemoryPages: DefaultMaxMemoryPages,
		Timeout:        DefaultTimeout,
	}
}

// Limits converts the budgets into what a language loader understands.
func (p Permissions) Limits() container.Limits {
	return container.Limits{MaxSteps: p.MaxSteps, MaxMemoryPages: p.MaxMemoryPages}
}

// Validate fails with ErrIsolationCreation unless execution is granted.
func (p Permissions) Validate() error {
	if !p.Execute {
		return fmt.Errorf("%w: %w", platform.ErrIsolationCreation, ErrExecuteDenied)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", platform.ErrIsolationCreation)
	}
	return nil
}

// CheckAnchor verifies dir can serve as the base directory of a context and returns its
// cleaned form.
func CheckAnchor(dir string) (string, error) {
	if dir == "" || !filepath.IsAbs(dir) {
		return "", fmt.Errorf("%w: %w: %q", platform.ErrIsolationCreation, ErrAnchorInvalid, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", platform.ErrIsolationCreation, ErrAnchorInvalid, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %w: %q", platform.ErrIsolationCreation, ErrAnchorInvalid, dir)
	}
	return filepath.Clean(dir), nil
}

// Runtime creates isolation contexts.
type Runtime interface {
	// Create starts a context anchored at anchorDir holding perms. On failure nothing
	// is left running and the error wraps platform.ErrIsolationCreation.
	Create(ctx context.Context, anchorDir string, perms Permissions) (Context, error)
	String() string
}

// Context is one running isolation context.
type Context interface {
	ID() string
	// Proxy is the only way to reach code loaded inside the context.
	Proxy() *Client
	// Unload tears the context down in an orderly way, with a final round trip.
	Unload(ctx context.Context) error
	// Abandon releases the context's resources without talking to it.
	Abandon()
}
