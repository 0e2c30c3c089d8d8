/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

// Select makes id the single selected element. An id that is not in the
// scene clears the selection.
func (m *Model) Select(id string) {
	m.mu.Lock()
	next := ""
	if m.scene.Index(id) >= 0 {
		next = id
	}
	if next == m.selected {
		m.mu.Unlock()
		return
	}
	m.selected = next
	ch := m.bumpLocked(Change{Kind: ChangeSelection, ElementID: next})
	m.mu.Unlock()
	m.notify(ch)
}

// Deselect clears the selection.
func (m *Model) Deselect() { m.Select("") }

// Selected returns the selected element id.
func (m *Model) Selected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected, m.selected != ""
}

// IsSelected reports whether id is the selected element.
func (m *Model) IsSelected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return id != "" && m.selected == id
}
