/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package schedule

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending task. Triggering again replaces the
// pending task and restarts the delay; a superseded task never runs.
// Fired tasks run through the Queue.
type Debouncer struct {
	q     Queue
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
}

func NewDebouncer(q Queue, delay time.Duration) *Debouncer {
	if q == nil {
		q = Inline{}
	}
	return &Debouncer{q: q, delay: delay}
}

func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger schedules fn after the delay, cancelling any pending task.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = fn
	if d.delay <= 0 {
		d.mu.Unlock()
		d.q.Post(func() { d.fire(gen) })
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.q.Post(func() { d.fire(gen) })
	})
	d.mu.Unlock()
}

// TriggerNow cancels any pending task and posts fn right away.
func (d *Debouncer) TriggerNow(fn func()) {
	d.mu.Lock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = fn
	d.mu.Unlock()
	d.q.Post(func() { d.fire(gen) })
}

// Cancel drops the pending task. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	had := d.pending != nil
	d.stopLocked()
	d.gen++
	d.pending = nil
	return had
}

// Flush runs the pending task synchronously on the caller's goroutine.
// It reports whether a task ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	d.stopLocked()
	d.gen++
	d.pending = nil
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	fn()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
