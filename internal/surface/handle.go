/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package surface

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultWait bounds Handle.Get when no deadline is configured.
const DefaultWait = 2 * time.Second

// Handle is a reference to a surface that may not exist yet, for example
// while the preview window is still opening.
type Handle struct {
	mu      sync.Mutex
	s       Surface
	ready   chan struct{}
	waiters []func(Surface)
	wait    time.Duration
}

// NewHandle creates an empty handle; wait bounds Get (DefaultWait when <= 0).
func NewHandle(wait time.Duration) *Handle {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Handle{ready: make(chan struct{}), wait: wait}
}

// Attached returns a handle that is already ready.
func Attached(s Surface) *Handle {
	h := NewHandle(0)
	h.Attach(s)
	return h
}

// Attach installs s and completes the ready future. Re-attaching replaces
// the surface; OnReady callbacks only fire once.
func (h *Handle) Attach(s Surface) {
	h.mu.Lock()
	first := h.s == nil
	h.s = s
	waiters := h.waiters
	h.waiters = nil
	if first {
		close(h.ready)
	}
	h.mu.Unlock()
	for _, fn := range waiters {
		fn(s)
	}
}

// Detach drops the surface; later Get calls wait for a new Attach.
func (h *Handle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s == nil {
		return
	}
	h.s = nil
	h.ready = make(chan struct{})
}

// Current returns the surface without waiting.
func (h *Handle) Current() (Surface, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s, h.s != nil
}

// OnReady runs fn with the surface, now if attached, otherwise on Attach.
func (h *Handle) OnReady(fn func(Surface)) {
	h.mu.Lock()
	s := h.s
	if s == nil {
		h.waiters = append(h.waiters, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn(s)
}

// Get waits until a surface is attached, ctx ends or the handle's wait
// bound expires. Expiry yields ErrSurfaceUnavailable.
func (h *Handle) Get(ctx context.Context) (Surface, error) {
	h.mu.Lock()
	s, ready := h.s, h.ready
	h.mu.Unlock()
	if s != nil {
		return s, nil
	}
	t := time.NewTimer(h.wait)
	defer t.Stop()
	select {
	case <-ready:
		if s, ok := h.Current(); ok {
			return s, nil
		}
		return nil, ErrSurfaceUnavailable
	case <-t.C:
		return nil, fmt.Errorf("%w: not ready after %s", ErrSurfaceUnavailable, h.wait)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, ctx.Err())
	}
}
