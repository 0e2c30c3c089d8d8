/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package canvas keeps a drawing surface in step with the scene model and
// feeds user gestures on the surface back into the model.
package canvas

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"thumbtory/internal/assets"
	applog "thumbtory/internal/log"
	"thumbtory/internal/scene"
	"thumbtory/internal/schedule"
	"thumbtory/internal/surface"
	"thumbtory/internal/vector"
)

// DefaultDebounce coalesces bursts of model changes into one pass.
const DefaultDebounce = 100 * time.Millisecond

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

var (
	lightBackground = vector.White
	darkBackground  = vector.Color{R: 0x18, G: 0x18, B: 0x1b, A: 255}
)

// DefaultBackground is the fill used when the scene has no background.
func (t Theme) DefaultBackground() vector.Color {
	if t == ThemeDark {
		return darkBackground
	}
	return lightBackground
}

// ParseTheme maps config values; "system" and unknown values are light.
func ParseTheme(s string) Theme {
	if s == string(ThemeDark) {
		return ThemeDark
	}
	return ThemeLight
}

type Options struct {
	Debounce time.Duration // DefaultDebounce when zero; negative means none
	Theme    Theme
	// SnapThreshold enables snapping to canvas centre and edges while
	// moving; 0 disables it.
	SnapThreshold float64
}

// Stats describes one pass.
type Stats struct {
	Added, Removed, Updated int
}

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d ~%d", s.Added, s.Removed, s.Updated)
}

// Synchronizer projects the scene onto the surface.
type Synchronizer struct {
	model  *scene.Model
	handle *surface.Handle
	assets *assets.Loader
	deb    *schedule.Debouncer
	log    *slog.Logger

	passMu sync.Mutex

	mu         sync.Mutex
	theme      Theme
	snap       float64
	border     bool
	orderDirty bool
	guides     []vector.GuideLine
	last       Stats
	passes     int
	failed     map[string]bool // sources already reported as undecodable
	waiting    map[string]bool // sources with a decode in flight
	unsubs     []func()
}

// New wires a synchronizer. Model changes schedule passes; surface events
// are fed back once the handle has a surface.
func New(m *scene.Model, h *surface.Handle, loader *assets.Loader, q schedule.Queue, opts Options) *Synchronizer {
	if q == nil {
		q = schedule.Inline{}
	}
	if loader == nil {
		loader = assets.NewLoader(q)
	}
	d := opts.Debounce
	if d == 0 {
		d = DefaultDebounce
	}
	if opts.Theme == "" {
		opts.Theme = ThemeLight
	}
	s := &Synchronizer{
		model:   m,
		handle:  h,
		assets:  loader,
		deb:     schedule.NewDebouncer(q, d),
		log:     applog.WithComponent("canvas"),
		theme:   opts.Theme,
		snap:    opts.SnapThreshold,
		failed:  map[string]bool{},
		waiting: map[string]bool{},
	}
	s.unsubs = append(s.unsubs, m.Subscribe(s.onChange))
	h.OnReady(func(surf surface.Surface) {
		unsub := surf.Subscribe(s.HandleEvent)
		s.mu.Lock()
		s.unsubs = append(s.unsubs, unsub)
		s.orderDirty = true
		s.mu.Unlock()
		s.Schedule(true)
	})
	return s
}

// Close detaches listeners and drops any pending pass.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
	s.deb.Cancel()
}

func (s *Synchronizer) onChange(c scene.Change) {
	switch c.Kind {
	case scene.ChangeSelection:
		if surf, ok := s.handle.Current(); ok {
			surf.SetActive(c.ElementID)
		}
		return
	case scene.ChangeHistory:
		s.mu.Lock()
		s.orderDirty = true
		s.mu.Unlock()
		s.Schedule(true)
		return
	}
	s.Schedule(c.Added)
}

// Schedule requests a pass. Immediate passes skip the debounce and replace
// any pending one.
func (s *Synchronizer) Schedule(immediate bool) {
	if immediate {
		s.deb.TriggerNow(s.run)
		return
	}
	s.deb.Trigger(s.run)
}

// Flush runs a pending pass now. It reports whether one was pending.
func (s *Synchronizer) Flush() bool { return s.deb.Flush() }

func (s *Synchronizer) run() {
	s.mu.Lock()
	reorder := s.orderDirty
	s.orderDirty = false
	s.mu.Unlock()
	if _, err := s.Pass(); err != nil {
		return
	}
	if reorder {
		s.ApplyOrder()
	}
}

// Pass reconciles the surface with the current scene. Errors, including
// panics, are logged and returned; the scheduled path discards them.
func (s *Synchronizer) Pass() (st Stats, err error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("canvas pass panic: %v", r)
			s.log.Error("pass panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	surf, ok := s.handle.Current()
	if !ok {
		return st, surface.ErrSurfaceUnavailable
	}
	sc := s.model.Scene()
	editing := surf.Editing()

	want := make(map[string]struct{}, len(sc.Elements))
	for _, e := range sc.Elements {
		want[e.ID] = struct{}{}
	}
	for _, o := range surf.Objects() {
		if o.Protected || o.ID == editing {
			continue
		}
		if _, ok := want[o.ID]; !ok && surf.Remove(o.ID) {
			st.Removed++
		}
	}

	var newText []string
	for _, e := range sc.Elements {
		if e.ID == editing {
			continue
		}
		cur, exists := surf.Object(e.ID)
		obj := s.objectFor(e, cur, exists)
		if !exists {
			if err := surf.Add(obj); err != nil {
				s.log.Error("add object", slog.String("id", e.ID), slog.Any("err", err))
				return st, err
			}
			st.Added++
			if obj.Kind == surface.KindText {
				newText = append(newText, e.ID)
			}
			continue
		}
		if !sameObject(cur, obj) {
			if err := surf.Update(obj); err != nil {
				s.log.Error("update object", slog.String("id", e.ID), slog.Any("err", err))
				return st, err
			}
			st.Updated++
		}
	}
	for _, id := range newText {
		surf.BringToFront(id)
	}
	if sel, ok := s.model.Selected(); ok && surf.Active() != sel {
		surf.SetActive(sel)
	}

	s.applyBackground(surf, sc.Background)
	s.applyBorder(surf)
	surf.RequestRender()

	s.mu.Lock()
	s.last = st
	s.passes++
	s.mu.Unlock()
	s.log.Debug("pass", slog.String("stats", st.String()), slog.Int("elements", len(sc.Elements)))
	return st, nil
}

// ApplyOrder moves surface objects into model order. Objects that are not
// scene elements stay above them.
func (s *Synchronizer) ApplyOrder() {
	surf, ok := s.handle.Current()
	if !ok {
		return
	}
	i := 0
	for _, id := range s.model.Scene().IDs() {
		if _, ok := surf.Object(id); ok {
			surf.MoveTo(id, i)
			i++
		}
	}
	surf.RequestRender()
}

// SetTheme changes the default background and triggers a pass.
func (s *Synchronizer) SetTheme(t Theme) {
	s.mu.Lock()
	s.theme = t
	s.mu.Unlock()
	s.Schedule(true)
}

func (s *Synchronizer) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetSize resizes the surface to the active platform size and triggers a pass.
func (s *Synchronizer) SetSize(w, h int) {
	if surf, ok := s.handle.Current(); ok {
		surf.Resize(w, h)
	}
	s.Schedule(true)
}

// SetBorderGuide shows or hides a protected outline around the canvas.
func (s *Synchronizer) SetBorderGuide(show bool) {
	s.mu.Lock()
	s.border = show
	s.mu.Unlock()
	s.Schedule(true)
}

// Guides returns the snapping guides of the current move gesture.
func (s *Synchronizer) Guides() []vector.GuideLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vector.GuideLine(nil), s.guides...)
}

// LastStats returns the result of the most recent successful pass and the
// number of passes so far.
func (s *Synchronizer) LastStats() (Stats, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.passes
}

const borderGuideID = "guide:border"

func (s *Synchronizer) applyBorder(surf surface.Surface) {
	s.mu.Lock()
	show := s.border
	s.mu.Unlock()
	_, exists := surf.Object(borderGuideID)
	if !show {
		if exists {
			surf.Remove(borderGuideID)
		}
		return
	}
	w, h := surf.Size()
	g := surface.Object{
		ID: borderGuideID, Kind: surface.KindGuide, Protected: true,
		Width: float64(w), Height: float64(h), Opacity: 1,
		Stroke: vector.Color{R: 0x63, G: 0x66, B: 0xf1, A: 0xff}, StrokeWidth: 1,
	}
	if exists {
		_ = surf.Update(g)
		return
	}
	_ = surf.Add(g)
}
