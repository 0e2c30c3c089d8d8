/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"thumbtory/internal/history"
	applog "thumbtory/internal/log"
)

// ChangeKind classifies model notifications.
type ChangeKind int

const (
	ChangeElements ChangeKind = iota
	ChangeBackground
	ChangeSelection
	ChangeHistory // undo, redo, clear or replace: the whole scene may differ
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind      ChangeKind
	ElementID string
	// Added is set for a freshly created element; the synchronizer syncs
	// those immediately instead of debouncing.
	Added bool
	// Transient marks high-frequency updates such as drag frames.
	Transient bool
	Version   uint64
}

// Placement is the geometry of a new element. Zero scale defaults to 1. A
// nil Opacity means fully opaque; Float(0) creates a transparent element.
type Placement struct {
	X, Y     float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
	Opacity  *float64
}

// UpdateOptions selects the history behaviour of UpdateElement.
type UpdateOptions struct {
	// Transient updates skip history except for the first one of a gesture,
	// which records the pre-gesture state once.
	Transient bool
}

// Direction for Reorder. Up moves toward the end of the sequence (on top).
type Direction int

const (
	Up Direction = iota
	Down
)

// Model is the editor state with command-style undo. Every element or
// background mutation records the pre-mutation scene first.
// It is safe for concurrent use; subscribers run outside the lock.
type Model struct {
	mu       sync.Mutex
	scene    Scene
	selected string
	seo      SEO
	hist     *history.Manager
	version  uint64
	gesture  string // element id of an open transient gesture
	newID    func() string
	subs     map[int]func(Change)
	nextSub  int
	log      *slog.Logger
}

// NewModel creates an empty scene. A nil manager gets an unbounded one.
func NewModel(h *history.Manager) *Model {
	if h == nil {
		h = history.NewManager(history.Config{})
	}
	return &Model{
		scene: Scene{Elements: []Element{}},
		hist:  h,
		newID: uuid.NewString,
		subs:  map[int]func(Change){},
		log:   applog.WithComponent("scene"),
	}
}

// Subscribe registers fn for change notifications and returns an unsubscribe func.
func (m *Model) Subscribe(fn func(Change)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Scene returns a deep copy of the current scene.
func (m *Model) Scene() Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.Clone()
}

// Element returns a copy of one element.
func (m *Model) Element(id string) (Element, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scene.Element(id)
}

// Version is a generation counter bumped by every mutation.
func (m *Model) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *Model) History() *history.Manager { return m.hist }

// AddElement appends a new element on top, selects it and returns it.
func (m *Model) AddElement(body Body, p Placement) (Element, error) {
	if body == nil {
		return Element{}, fmt.Errorf("add element: nil body")
	}
	if p.ScaleX == 0 {
		p.ScaleX = 1
	}
	if p.ScaleY == 0 {
		p.ScaleY = 1
	}
	opacity := 1.0
	if p.Opacity != nil {
		opacity = math.Max(0, math.Min(1, *p.Opacity))
	}
	m.mu.Lock()
	e := Element{
		ID: m.newID(), X: p.X, Y: p.Y, ScaleX: p.ScaleX, ScaleY: p.ScaleY,
		Rotation: p.Rotation, Opacity: opacity, Body: body,
	}
	m.recordLocked()
	m.scene.Elements = append(m.scene.Elements, e)
	m.selected = e.ID
	ch := m.bumpLocked(Change{Kind: ChangeElements, ElementID: e.ID, Added: true})
	m.mu.Unlock()
	m.log.Debug("element added", slog.String("id", e.ID), slog.String("kind", string(e.Kind())))
	m.notify(ch)
	return e, nil
}

// UpdateElement merges patch into the element with id.
func (m *Model) UpdateElement(id string, patch Patch, opts UpdateOptions) (Element, error) {
	m.mu.Lock()
	i := m.scene.Index(id)
	if i < 0 {
		m.mu.Unlock()
		return Element{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	updated := patch.Apply(m.scene.Elements[i])
	switch {
	case opts.Transient && m.gesture != id:
		m.recordLocked()
		m.gesture = id
	case opts.Transient:
		// mid-gesture: live value only
	case m.gesture == id:
		// commit of a gesture whose pre-state is already recorded
		m.gesture = ""
	default:
		m.recordLocked()
	}
	m.scene.Elements[i] = updated
	ch := m.bumpLocked(Change{Kind: ChangeElements, ElementID: id, Transient: opts.Transient})
	m.mu.Unlock()
	m.notify(ch)
	return updated, nil
}

// RemoveElement deletes the element; unknown ids are ignored.
func (m *Model) RemoveElement(id string) {
	m.mu.Lock()
	i := m.scene.Index(id)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.recordLocked()
	m.scene.Elements = append(m.scene.Elements[:i:i], m.scene.Elements[i+1:]...)
	if m.selected == id {
		m.selected = ""
	}
	ch := m.bumpLocked(Change{Kind: ChangeElements, ElementID: id})
	m.mu.Unlock()
	m.notify(ch)
}

// SetBackground replaces the background wholesale.
func (m *Model) SetBackground(bg Background) {
	m.mu.Lock()
	m.recordLocked()
	m.scene.Background = bg
	ch := m.bumpLocked(Change{Kind: ChangeBackground})
	m.mu.Unlock()
	m.notify(ch)
}

// Clear empties the scene; it can be undone.
func (m *Model) Clear() {
	m.Replace(Scene{Elements: []Element{}})
}

// Replace swaps in a whole scene (template load); it can be undone.
func (m *Model) Replace(s Scene) {
	m.mu.Lock()
	m.recordLocked()
	m.scene = s.Clone()
	if m.scene.Index(m.selected) < 0 {
		m.selected = ""
	}
	ch := m.bumpLocked(Change{Kind: ChangeHistory})
	m.mu.Unlock()
	m.notify(ch)
}

// Reset empties the scene and drops history and selection (session end).
// SEO metadata is kept.
func (m *Model) Reset() {
	m.mu.Lock()
	m.scene = Scene{Elements: []Element{}}
	m.selected = ""
	m.gesture = ""
	m.hist.Clear()
	ch := m.bumpLocked(Change{Kind: ChangeHistory})
	m.mu.Unlock()
	m.notify(ch)
}

// Undo restores the previous scene. It returns false when there is nothing to undo.
func (m *Model) Undo() bool {
	m.mu.Lock()
	snap, ok := m.hist.Undo(m.snapshotLocked())
	if !ok {
		m.mu.Unlock()
		return false
	}
	return m.restoreLocked(snap, "undo")
}

// Redo re-applies an undone scene.
func (m *Model) Redo() bool {
	m.mu.Lock()
	snap, ok := m.hist.Redo(m.snapshotLocked())
	if !ok {
		m.mu.Unlock()
		return false
	}
	return m.restoreLocked(snap, "redo")
}

// restoreLocked is entered with m.mu held and releases it.
func (m *Model) restoreLocked(snap history.Snapshot, op string) bool {
	s, err := Decode(snap.Blob)
	if err != nil {
		m.mu.Unlock()
		// snapshots are produced by Encode, so this indicates a bug
		m.log.Error("restore snapshot", slog.String("op", op), slog.Any("err", err))
		return false
	}
	m.scene = s
	m.gesture = ""
	m.selected = snap.Selected
	if m.scene.Index(m.selected) < 0 {
		m.selected = ""
	}
	ch := m.bumpLocked(Change{Kind: ChangeHistory})
	m.mu.Unlock()
	m.notify(ch)
	return true
}

func (m *Model) CanUndo() bool { return m.hist.CanUndo() }
func (m *Model) CanRedo() bool { return m.hist.CanRedo() }

// SetSEO replaces the SEO metadata. It does not touch history.
func (m *Model) SetSEO(s SEO) {
	m.mu.Lock()
	m.seo = s.Normalize()
	m.mu.Unlock()
}

func (m *Model) SEO() SEO {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.seo
	s.Keywords = append([]string(nil), s.Keywords...)
	return s
}

func (m *Model) snapshotLocked() history.Snapshot {
	blob, err := m.scene.Encode()
	if err != nil {
		m.log.Error("encode scene", slog.Any("err", err))
	}
	return history.Snapshot{Blob: blob, Selected: m.selected}
}

func (m *Model) recordLocked() {
	m.hist.Record(m.snapshotLocked())
	if m.gesture != "" {
		m.gesture = ""
	}
}

func (m *Model) bumpLocked(c Change) Change {
	m.version++
	c.Version = m.version
	return c
}

func (m *Model) notify(c Change) {
	m.mu.Lock()
	subs := make([]func(Change), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}
