// Package cache keeps compiled evaluators around, keyed by the content of the expression
// set that produced them. Evaluators handed out by the cache belong to it: callers must
// not Close them, and an evicted evaluator is closed by the cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr"
	"github.com/robbyt/go-polyexpr/evaluator"
	"github.com/robbyt/go-polyexpr/internal/helpers"
	"github.com/robbyt/go-polyexpr/options"
	"github.com/robbyt/go-polyexpr/platform/boundary"
	"golang.org/x/sync/singleflight"
)

var ErrUncacheable = errors.New("expression set has extensions without a stable encoding")

// keyCodec sorts map keys so equal boundary values encode identically.
var keyCodec = jsoniter.Config{SortMapKeys: true}.Froze()

type Cache struct {
	entries *lru.Cache[string, *entry]
	group   singleflight.Group
	opts    []options.Option
	logger  *slog.Logger
}

// entry counts the in-flight evaluations of a cached evaluator. An evicted entry is
// closed once its last holder releases it.
type entry struct {
	ev      *evaluator.Evaluator
	mu      sync.Mutex
	holders int
	evicted bool
}

func (e *entry) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return false
	}
	e.holders++
	return true
}

func (e *entry) release() error {
	e.mu.Lock()
	e.holders--
	done := e.evicted && e.holders == 0
	e.mu.Unlock()
	if !done {
		return nil
	}
	return e.ev.Close()
}

func (e *entry) evict() error {
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return nil
	}
	e.evicted = true
	done := e.holders == 0
	e.mu.Unlock()
	if !done {
		return nil
	}
	return e.ev.Close()
}

// New creates a cache holding at most size evaluators, compiled with opts.
func New(size int, handler slog.Handler, opts ...options.Option) (*Cache, error) {
	_, logger := helpers.SetupLogger(handler, "polyexpr", "Cache")
	c := &Cache{
		opts:   append([]options.Option{options.WithLogHandler(handler)}, opts...),
		logger: logger,
	}
	entries, err := lru.NewWithEvict(size, c.evict)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) evict(key string, e *entry) {
	if err := e.evict(); err != nil {
		c.logger.Warn("Failed to close evicted evaluator", "key", key, "error", err)
	}
}

func (c *Cache) lookup(ctx context.Context, meta *polyexpr.ExpressionMeta) (*entry, error) {
	key, err := Key(meta)
	if err != nil {
		return nil, err
	}
	if e, ok := c.entries.Get(key); ok {
		return e, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		ev, err := polyexpr.Compile(ctx, meta, c.opts...)
		if err != nil {
			return nil, err
		}
		e := &entry{ev: ev}
		c.entries.Add(key, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Cache miss", "key", key, "shared", shared)
	return v.(*entry), nil
}

// Get returns the evaluator for meta, compiling it on a miss. Concurrent misses for the
// same key share one compilation.
//
// The returned evaluator stays owned by the cache. If another Get pushes it out of the
// cache it is closed right away, and later calls on it return nil. Use Evaluate when the
// cache may be under eviction pressure.
func (c *Cache) Get(ctx context.Context, meta *polyexpr.ExpressionMeta) (*evaluator.Evaluator, error) {
	e, err := c.lookup(ctx, meta)
	if err != nil {
		return nil, err
	}
	return e.ev, nil
}

// Evaluate is Get followed by Evaluate. Construction failures are returned; evaluation
// failures yield nil like Evaluator.Evaluate. The evaluator is held for the duration of
// the call, so an eviction in the meantime defers its closing until the call returns.
func (c *Cache) Evaluate(ctx context.Context, meta *polyexpr.ExpressionMeta, expression string) (any, error) {
	for {
		e, err := c.lookup(ctx, meta)
		if err != nil {
			return nil, err
		}
		// an entry evicted between lookup and acquire is already closed, look again
		if !e.acquire() {
			continue
		}
		result := e.ev.Evaluate(ctx, expression)
		if err := e.release(); err != nil {
			c.logger.Warn("Failed to close evicted evaluator", "error", err)
		}
		return result, nil
	}
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

// Close disposes of every cached evaluator.
func (c *Cache) Close() error {
	c.entries.Purge()
	return nil
}

// Key fingerprints everything that affects the compiled container and its field values.
func Key(meta *polyexpr.ExpressionMeta) (string, error) {
	if meta == nil {
		return "", fmt.Errorf("%w: nil meta", ErrUncacheable)
	}
	req := meta.Request()
	parts := []string{"lang", req.Language.String(), "expr"}
	parts = append(parts, req.Expressions...)
	parts = append(parts, "imports")
	parts = append(parts, req.Imports...)
	parts = append(parts, "refs")
	parts = append(parts, req.References...)

	parts = append(parts, "modules")
	modules := meta.Modules()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		parts = append(parts, name, modules[name])
	}

	parts = append(parts, "ext")
	for _, ext := range req.Extensions {
		// converted first so cyclic or unsupported instances fail before encoding
		value, err := boundary.FromGo(ext.Instance)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrUncacheable, ext.Name, err)
		}
		encoded, err := keyCodec.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %w", ErrUncacheable, ext.Name, err)
		}
		t, err := ext.ResolveType()
		if err != nil {
			return "", err
		}
		parts = append(parts, ext.Name, t.String(), string(encoded))
	}
	return helpers.Fingerprint(parts...), nil
}
