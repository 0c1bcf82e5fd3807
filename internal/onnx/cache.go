package onnx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// LoaderFunc creates a model on first use.
type LoaderFunc func(ctx context.Context) (Forwarder, error)

type loadedModel struct {
	fwd Forwarder
}

// ModelCache owns one lazily initialized model for the lifetime of the process.
// The loader runs under a one-slot semaphore so concurrent first users wait for
// a single initialization. A successful load is kept forever; a failed load is
// reported as ErrModelUnavailable and attempted again by the next caller.
type ModelCache struct {
	name   string
	load   LoaderFunc
	sem    chan struct{}
	model  atomic.Pointer[loadedModel]
	closed atomic.Bool
}

// NewModelCache creates a cache that initializes its model with load.
func NewModelCache(name string, load LoaderFunc) *ModelCache {
	return &ModelCache{
		name: name,
		load: load,
		sem:  make(chan struct{}, 1),
	}
}

// NewSessionCache creates a cache that opens an ONNX Runtime session on first use.
func NewSessionCache(name string, cfg SessionConfig) *ModelCache {
	return NewModelCache(name, func(context.Context) (Forwarder, error) {
		return NewSession(cfg)
	})
}

// StaticModel wraps an already available forwarder in a cache.
func StaticModel(name string, fwd Forwarder) *ModelCache {
	c := NewModelCache(name, func(context.Context) (Forwarder, error) { return fwd, nil })
	c.model.Store(&loadedModel{fwd: fwd})
	return c
}

// Name returns the model name used in errors and logs.
func (c *ModelCache) Name() string { return c.name }

// Loaded reports whether the model has been initialized.
func (c *ModelCache) Loaded() bool { return c.model.Load() != nil }

// Get returns the cached model, loading it if necessary.
func (c *ModelCache) Get(ctx context.Context) (Forwarder, error) {
	if m := c.model.Load(); m != nil {
		return m.fwd, nil
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: %s: cache closed", ErrModelUnavailable, c.name)
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, c.name, ctx.Err())
	}
	defer func() { <-c.sem }()

	// Another caller may have finished loading while we waited.
	if m := c.model.Load(); m != nil {
		return m.fwd, nil
	}
	if c.load == nil {
		return nil, fmt.Errorf("%w: %s: no loader", ErrModelUnavailable, c.name)
	}

	start := time.Now()
	fwd, err := c.load(ctx)
	if err != nil {
		slog.Error("Model initialization failed", "model", c.name, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, c.name, err)
	}
	if fwd == nil {
		return nil, fmt.Errorf("%w: %s: loader returned nil", ErrModelUnavailable, c.name)
	}

	c.model.Store(&loadedModel{fwd: fwd})
	slog.Info("Model loaded", "model", c.name, "duration_ms", time.Since(start).Milliseconds())
	return fwd, nil
}

// Close releases the cached model if it implements io.Closer. Subsequent Get
// calls that would need to load fail with ErrModelUnavailable.
func (c *ModelCache) Close() error {
	c.closed.Store(true)
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	m := c.model.Swap(nil)
	if m == nil {
		return nil
	}
	if closer, ok := m.fwd.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
