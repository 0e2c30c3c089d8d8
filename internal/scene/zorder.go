/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import "fmt"

// Reorder swaps the element with its neighbour in dir. It reports whether
// anything moved; at the boundary it is a no-op and records nothing.
func (m *Model) Reorder(id string, dir Direction) (bool, error) {
	m.mu.Lock()
	i := m.scene.Index(id)
	if i < 0 {
		m.mu.Unlock()
		return false, fmt.Errorf("reorder %s: %w", id, ErrNotFound)
	}
	j := i + 1
	if dir == Down {
		j = i - 1
	}
	if j < 0 || j >= len(m.scene.Elements) {
		m.mu.Unlock()
		return false, nil
	}
	m.recordLocked()
	els := m.scene.Elements
	els[i], els[j] = els[j], els[i]
	ch := m.bumpLocked(Change{Kind: ChangeElements, ElementID: id})
	m.mu.Unlock()
	m.notify(ch)
	return true, nil
}

// IsTopmost reports whether id is painted last. Unknown ids are neither
// topmost nor bottommost.
func (m *Model) IsTopmost(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.scene.Index(id)
	return i >= 0 && i == len(m.scene.Elements)-1
}

// IsBottommost reports whether id is painted first.
func (m *Model) IsBottommost(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scene.Elements) > 0 && m.scene.Index(id) == 0
}
