/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"fmt"

	"thumbtory/internal/assets"
	"thumbtory/internal/scene"
	"thumbtory/internal/schedule"
	"thumbtory/internal/surface"
	"thumbtory/internal/textlayout"
)

// Headless is a synchronizer bound to an off-screen raster, used by the CLI
// renderer and the server.
type Headless struct {
	*Synchronizer
	Raster *surface.Raster
	Handle *surface.Handle
}

// NewHeadless builds an inline-scheduled synchronizer over a fresh w×h
// raster. Passes run synchronously on the mutating goroutine.
func NewHeadless(m *scene.Model, w, h int, theme Theme, fonts textlayout.Provider) *Headless {
	r := surface.NewRaster(w, h, fonts)
	hd := surface.Attached(r)
	loader := assets.NewLoader(schedule.Inline{})
	s := New(m, hd, loader, schedule.Inline{}, Options{Debounce: -1, Theme: theme})
	return &Headless{Synchronizer: s, Raster: r, Handle: hd}
}

// Sync decodes every image the scene references, then runs a pass and
// restores model order.
func (h *Headless) Sync() (Stats, error) {
	sc := h.model.Scene()
	for _, e := range sc.Elements {
		if im, ok := e.Body.(scene.Image); ok && im.Src != "" {
			_, _ = h.assets.Load(im.Src)
		}
	}
	if sc.Background.Kind == scene.BackgroundImage {
		_, _ = h.assets.Load(sc.Background.Src)
	}
	st, err := h.Pass()
	if err != nil {
		return st, fmt.Errorf("headless sync: %w", err)
	}
	h.ApplyOrder()
	return st, nil
}
