// Package scope provides a swappable cancellation scope.
package scope

import (
	"context"
	"sync"
)

// Cell holds the current cancellation scope. Replacing the scope stores
// the new one before the old one is cancelled, so readers never observe
// a cancelled scope as current.
type Cell struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Replace installs a new scope derived from parent and cancels the previous one.
func (c *Cell) Replace(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	old := c.cancel
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	if old != nil {
		old()
	}
	return ctx, cancel
}

// Current returns the current scope, creating one if none exists.
func (c *Cell) Current() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	return c.ctx
}

// Link returns a context cancelled when either ctx or the current scope is done.
func (c *Cell) Link(ctx context.Context) (context.Context, context.CancelFunc) {
	current := c.Current()
	linked, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(current, cancel)
	return linked, func() {
		stop()
		cancel()
	}
}

// Cancel cancels the current scope. The next Current call creates a fresh one.
func (c *Cell) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.ctx, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
