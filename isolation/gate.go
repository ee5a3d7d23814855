package isolation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robbyt/go-polyexpr/platform"
)

// Gate guards file reads inside an isolation context. A read succeeds only while an
// elevation is held and only for paths inside the anchor directory or registered with
// Allow.
type Gate struct {
	anchor string

	mu       sync.Mutex
	elevated int
	allowed  map[string]struct{}
}

func NewGate(anchor string) *Gate {
	return &Gate{
		anchor:  canonical(anchor),
		allowed: make(map[string]struct{}),
	}
}

// Anchor is the directory the context is rooted at.
func (g *Gate) Anchor() string {
	return g.anchor
}

// Allow registers paths outside the anchor that may be read while elevated.
func (g *Gate) Allow(paths ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range paths {
		g.allowed[canonical(g.Abs(p))] = struct{}{}
	}
}

// Elevate grants file access until the returned release func is called. Release is
// safe to call more than once.
func (g *Gate) Elevate() (release func()) {
	g.mu.Lock()
	g.elevated++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.elevated--
			g.mu.Unlock()
		})
	}
}

func (g *Gate) Elevated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.elevated > 0
}

// Abs resolves a relative path against the anchor.
func (g *Gate) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(g.anchor, path)
}

// InAnchor reports whether path lies inside the anchor directory.
func (g *Gate) InAnchor(path string) bool {
	rel, err := filepath.Rel(g.anchor, canonical(g.Abs(path)))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFile reads path if the gate currently allows it.
func (g *Gate) ReadFile(path string) ([]byte, error) {
	g.mu.Lock()
	elevated := g.elevated > 0
	_, allowed := g.allowed[canonical(g.Abs(path))]
	g.mu.Unlock()

	if !elevated {
		return nil, fmt.Errorf("%w: %w: %s", platform.ErrPermissionDenied, ErrNotElevated, path)
	}
	if !allowed && !g.InAnchor(path) {
		return nil, fmt.Errorf("%w: %w: %s", platform.ErrPermissionDenied, ErrOutsideAnchor, path)
	}
	return os.ReadFile(g.Abs(path))
}

// canonical resolves symlinks where possible so that aliases of the same file compare
// equal. Missing trailing elements are kept as written.
func canonical(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	return filepath.Join(canonical(parent), filepath.Base(path))
}
