/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"errors"
	"log/slog"

	"thumbtory/internal/scene"
	"thumbtory/internal/surface"
	"thumbtory/internal/vector"
)

// HandleEvent feeds a surface interaction back into the model. Continuous
// gesture frames are transient updates; releases and finished text edits
// commit.
func (s *Synchronizer) HandleEvent(ev surface.Event) {
	if ev.Object.Protected {
		return
	}
	switch ev.Type {
	case surface.ObjectMoving:
		o := s.snapMove(ev.Object)
		s.update(ev.ID, geometry(o), true)
	case surface.ObjectScaling, surface.ObjectRotating:
		s.update(ev.ID, geometry(ev.Object), true)
	case surface.ObjectModified:
		s.clearGuides()
		s.update(ev.ID, geometry(ev.Object), false)
	case surface.TextEditExited:
		p := geometry(ev.Object)
		p.Text = scene.String(ev.Object.Text)
		s.update(ev.ID, p, false)
		// the edited object was skipped by passes while in edit mode
		s.Schedule(true)
	case surface.SelectionChanged:
		s.model.Select(ev.ID)
	}
}

func (s *Synchronizer) update(id string, p scene.Patch, transient bool) {
	if _, err := s.model.UpdateElement(id, p, scene.UpdateOptions{Transient: transient}); err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			s.log.Debug("event for unknown element", slog.String("id", id))
			return
		}
		s.log.Warn("feedback update failed", slog.String("id", id), slog.Any("err", err))
	}
}

func geometry(o surface.Object) scene.Patch {
	return scene.Patch{
		X: scene.Float(o.X), Y: scene.Float(o.Y),
		ScaleX: scene.Float(o.ScaleX), ScaleY: scene.Float(o.ScaleY),
		Rotation: scene.Float(o.Rotation),
	}
}

// snapMove aligns a moving object with the canvas centre and edges and
// writes the snapped position back to the surface.
func (s *Synchronizer) snapMove(o surface.Object) surface.Object {
	s.mu.Lock()
	threshold := s.snap
	s.mu.Unlock()
	if threshold <= 0 {
		return o
	}
	surf, ok := s.handle.Current()
	if !ok {
		return o
	}
	w, h := surf.Size()
	b := vector.TransformRect(o.Box(), o.Transform())
	snapped, guides := vector.ComputeSmartGuides(b,
		[]vector.Anchor{{Rect: vector.R(0, 0, float64(w), float64(h)), Weight: 1}},
		vector.SnapOptions{Threshold: threshold, SnapToEdges: true, SnapToCenters: true})
	s.mu.Lock()
	s.guides = guides
	s.mu.Unlock()
	dx, dy := snapped.X-b.X, snapped.Y-b.Y
	if dx == 0 && dy == 0 {
		return o
	}
	o.X += dx
	o.Y += dy
	if err := surf.Update(o); err != nil {
		s.log.Debug("snap write-back failed", slog.String("id", o.ID), slog.Any("err", err))
	}
	return o
}

func (s *Synchronizer) clearGuides() {
	s.mu.Lock()
	s.guides = nil
	s.mu.Unlock()
}
