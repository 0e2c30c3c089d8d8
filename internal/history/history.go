/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps undo/redo stacks of encoded scene snapshots.
package history

import (
	"bytes"
	"sync"
	"time"
)

// Snapshot is an immutable encoded scene plus the selection pointer at the time
// it was captured. Blob content is opaque to the manager; equality for
// de-duplication is byte equality of Blob. Size is estimated as len(Blob).
type Snapshot struct {
	Blob     []byte
	Selected string
	TS       time.Time
}

func (s Snapshot) clone() Snapshot {
	s.Blob = append([]byte(nil), s.Blob...)
	return s
}

// Config controls optional depth and memory caps. Zero values leave the
// stacks unbounded.
type Config struct {
	MaxDepth int
	MaxBytes int
}

// Manager provides past/future stacks with copy-on-write snapshots.
// It is safe for concurrent use.
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	past   []Snapshot
	future []Snapshot
	bytes  int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.MaxBytes < 0 {
		cfg.MaxBytes = 0
	}
	return &Manager{cfg: cfg}
}

// Record pushes s onto past and clears future. It returns false when s equals
// the top of past, in which case nothing changes.
func (m *Manager) Record(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.past); n > 0 && bytes.Equal(m.past[n-1].Blob, s.Blob) {
		return false
	}
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	m.push(s.clone())
	m.dropFutureLocked()
	m.enforceCapsLocked()
	return true
}

// Undo pops the top of past and pushes current onto future.
// It returns false and leaves both stacks untouched when past is empty.
func (m *Manager) Undo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.past) == 0 {
		return Snapshot{}, false
	}
	s := m.pop()
	m.future = append(m.future, current.clone())
	m.bytes += len(current.Blob)
	return s.clone(), true
}

// Redo pops the top of future and pushes current onto past.
func (m *Manager) Redo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.future)
	if n == 0 {
		return Snapshot{}, false
	}
	s := m.future[n-1]
	m.future = m.future[:n-1]
	m.bytes -= len(s.Blob)
	m.push(current.clone())
	m.enforceCapsLocked()
	return s.clone(), true
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.past, m.future, m.bytes = nil, nil, 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes, past, future int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes, len(m.past), len(m.future)
}

func (m *Manager) push(s Snapshot) {
	m.past = append(m.past, s)
	m.bytes += len(s.Blob)
}

func (m *Manager) pop() Snapshot {
	n := len(m.past)
	s := m.past[n-1]
	m.past = m.past[:n-1]
	m.bytes -= len(s.Blob)
	return s
}

func (m *Manager) dropFutureLocked() {
	for _, s := range m.future {
		m.bytes -= len(s.Blob)
	}
	m.future = nil
}

// enforceCapsLocked prunes the oldest past entries until both caps hold.
// The future stack is never pruned.
func (m *Manager) enforceCapsLocked() {
	if m.cfg.MaxDepth > 0 && len(m.past) > m.cfg.MaxDepth {
		drop := len(m.past) - m.cfg.MaxDepth
		for i := 0; i < drop; i++ {
			m.bytes -= len(m.past[i].Blob)
		}
		m.past = append([]Snapshot(nil), m.past[drop:]...)
	}
	for m.cfg.MaxBytes > 0 && m.bytes > m.cfg.MaxBytes && len(m.past) > 1 {
		m.bytes -= len(m.past[0].Blob)
		m.past = m.past[1:]
	}
}
