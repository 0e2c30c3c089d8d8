/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var runs atomic.Int32
	var last atomic.Int32
	d := NewDebouncer(Inline{}, 20*time.Millisecond)
	for i := 1; i <= 5; i++ {
		v := int32(i)
		d.Trigger(func() { runs.Add(1); last.Store(v) })
	}
	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(40 * time.Millisecond)
	if runs.Load() != 1 || last.Load() != 5 {
		t.Fatalf("expected one run of the last task, runs=%d last=%d", runs.Load(), last.Load())
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	var runs int
	d := NewDebouncer(Inline{}, time.Hour)
	d.Trigger(func() { runs++ })
	if !d.Pending() {
		t.Fatalf("task should be pending")
	}
	if !d.Flush() || runs != 1 || d.Pending() {
		t.Fatalf("flush should run pending task once, runs=%d", runs)
	}
	if d.Flush() {
		t.Fatalf("second flush has nothing to run")
	}
	d.Trigger(func() { runs++ })
	if !d.Cancel() || d.Flush() || runs != 1 {
		t.Fatalf("cancelled task must never run, runs=%d", runs)
	}
}

func TestTriggerNowSupersedesPending(t *testing.T) {
	var got []string
	d := NewDebouncer(Inline{}, time.Hour)
	d.Trigger(func() { got = append(got, "slow") })
	d.TriggerNow(func() { got = append(got, "now") })
	if d.Flush() {
		t.Fatalf("nothing should remain pending")
	}
	if len(got) != 1 || got[0] != "now" {
		t.Fatalf("got %v", got)
	}
}

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	var seq []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { seq = append(seq, i) })
	}
	if err := l.Do(ctx, func() {}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	for i, v := range seq {
		if v != i {
			t.Fatalf("out of order: %v", seq)
		}
	}
	l.Stop()
	l.Post(func() { t.Errorf("posted after stop must be dropped") })
}

func TestLoopTaskCanPostFromLoop(t *testing.T) {
	l := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Stop()
	n := 0
	done := make(chan struct{})
	l.Post(func() {
		for i := 0; i < 100; i++ {
			l.Post(func() { n++ })
		}
		l.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("follow-up tasks did not run")
	}
	if n != 100 {
		t.Fatalf("ran %d follow-up tasks, want 100", n)
	}
}

func TestDebouncerPostsThroughLoop(t *testing.T) {
	l := NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	done := make(chan struct{})
	d := NewDebouncer(l, 0)
	d.Trigger(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task did not run via loop")
	}
}
