/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package history

import (
	"testing"
)

func snap(s string) Snapshot { return Snapshot{Blob: []byte(s)} }

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{})
	m.Record(snap("a"))
	m.Record(snap("b"))
	if _, past, _ := m.Stats(); past != 2 {
		t.Fatalf("expected 2 past snapshots, got %d", past)
	}
	s, ok := m.Undo(snap("c"))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, s.Blob)
	}
	s, ok = m.Redo(snap("b"))
	if !ok || string(s.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, s.Blob)
	}
	if _, past, future := m.Stats(); past != 2 || future != 0 {
		t.Fatalf("stacks after redo: past=%d future=%d", past, future)
	}
}

func TestEmptyStacksAreNoOps(t *testing.T) {
	m := NewManager(Config{})
	if _, ok := m.Undo(snap("x")); ok {
		t.Fatalf("undo on empty past must be a no-op")
	}
	if _, ok := m.Redo(snap("x")); ok {
		t.Fatalf("redo on empty future must be a no-op")
	}
	if b, past, future := m.Stats(); b != 0 || past != 0 || future != 0 {
		t.Fatalf("no-op changed state: %d %d %d", b, past, future)
	}
}

func TestRecordDeduplicatesTop(t *testing.T) {
	m := NewManager(Config{})
	if !m.Record(snap("same")) {
		t.Fatalf("first record should push")
	}
	if m.Record(snap("same")) {
		t.Fatalf("identical record should be skipped")
	}
	if _, past, _ := m.Stats(); past != 1 {
		t.Fatalf("expected 1 snapshot, got %d", past)
	}
}

func TestRecordClearsFuture(t *testing.T) {
	m := NewManager(Config{})
	m.Record(snap("a"))
	m.Undo(snap("b"))
	if !m.CanRedo() {
		t.Fatalf("redo should be available after undo")
	}
	m.Record(snap("a"))
	if m.CanRedo() {
		t.Fatalf("a new record must clear future")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	m := NewManager(Config{})
	blob := []byte("abc")
	m.Record(Snapshot{Blob: blob})
	blob[0] = 'z'
	s, _ := m.Undo(snap("cur"))
	if string(s.Blob) != "abc" {
		t.Fatalf("stored snapshot was mutated through caller slice: %q", s.Blob)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxDepth: 2})
	for _, s := range []string{"1", "2", "3", "4"} {
		m.Record(snap(s))
	}
	if _, past, _ := m.Stats(); past != 2 {
		t.Fatalf("expected depth cap 2, got %d", past)
	}
	s, _ := m.Undo(snap("5"))
	if string(s.Blob) != "4" {
		t.Fatalf("newest entry must survive pruning, got %q", s.Blob)
	}

	mb := NewManager(Config{MaxBytes: 10})
	for _, s := range []string{"xxxxx", "yyyyy", "zzzzz"} {
		mb.Record(snap(s))
	}
	if b, past, _ := mb.Stats(); b > 10 || past != 2 {
		t.Fatalf("byte cap not enforced: bytes=%d past=%d", b, past)
	}
}
