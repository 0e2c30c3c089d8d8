/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package schedule serializes editor work onto one logical thread and
// provides the single-slot debounced task used for sync and preview passes.
package schedule

import (
	"context"
	"sync"
)

// Queue accepts work that must run on the editor's single mutation thread.
type Queue interface {
	Post(fn func())
}

// Inline runs posted work immediately on the caller's goroutine. Headless
// renders and tests use it.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// Loop is a single goroutine draining an unbounded FIFO of tasks. Post
// never blocks, so tasks may post follow-up work from the loop itself.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	once   sync.Once
	closed chan struct{}
	done   chan struct{}
}

// NewLoop creates a loop; buf is the initial task capacity.
func NewLoop(buf int) *Loop {
	if buf <= 0 {
		buf = 64
	}
	return &Loop{
		tasks:  make([]func(), 0, buf),
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine until ctx ends or Stop is called.
func (l *Loop) Start(ctx context.Context) { go l.Run(ctx) }

// Run drains tasks until ctx ends or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case <-l.wake:
		}
		for {
			select {
			case <-l.closed:
				return
			default:
			}
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	return fn, true
}

// Post enqueues fn. After Stop, work is dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.closed:
		return
	default:
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to run. It must not be called from the loop
// goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	}
}

// Stop ends the loop; pending tasks are discarded.
func (l *Loop) Stop() { l.once.Do(func() { close(l.closed) }) }
