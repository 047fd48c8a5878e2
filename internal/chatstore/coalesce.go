// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Coalescer bounds how often a high-frequency caller (a streaming token
// handler) reaches the store: at most one call per interval runs
// immediately, the newest suppressed call is kept as pending, and Flush
// runs it. The store itself never batches; this is an opt-in helper for
// the caller side of that contract.
type Coalescer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	pending func()
}

// NewCoalescer creates a coalescer allowing one call per interval. A
// non-positive interval disables coalescing entirely.
func NewCoalescer(interval time.Duration) *Coalescer {
	c := &Coalescer{}
	if interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return c
}

// Do runs fn now when the interval allows it, otherwise records fn as
// the pending call, replacing any previously pending one.
func (c *Coalescer) Do(fn func()) {
	if c.limiter == nil {
		fn()
		return
	}

	c.mu.Lock()
	if c.limiter.Allow() {
		c.pending = nil
		c.mu.Unlock()
		fn()
		return
	}
	c.pending = fn
	c.mu.Unlock()
}

// Flush runs the pending call, if any. Callers invoke this when the
// stream ends so the final state is never lost to rate limiting.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	fn := c.pending
	c.pending = nil
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}
