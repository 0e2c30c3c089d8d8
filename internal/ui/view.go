/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"path/filepath"
	"strings"

	"thumbtory/internal/vector"
)

// viewport maps between widget pixels and surface units. At zoom 1 the
// surface fits the widget; offsets pan in widget pixels.
type viewport struct {
	surfW, surfH float32
	zoom         float32
	offX, offY   float32
}

const (
	minZoom = 0.1
	maxZoom = 4
)

func newViewport(w, h int) viewport {
	return viewport{surfW: float32(w), surfH: float32(h), zoom: 1}
}

// scale is widget pixels per surface unit for a widget of size w x h.
func (v viewport) scale(w, h float32) float32 {
	if v.surfW <= 0 || v.surfH <= 0 || w <= 0 || h <= 0 {
		return 0
	}
	s := w / v.surfW
	if hs := h / v.surfH; hs < s {
		s = hs
	}
	return s * v.zoom
}

// origin is the widget position of the surface's top-left corner.
func (v viewport) origin(w, h float32) (x, y float32) {
	s := v.scale(w, h)
	return (w-v.surfW*s)/2 + v.offX, (h-v.surfH*s)/2 + v.offY
}

func (v viewport) toSurface(px, py, w, h float32) vector.Pt {
	s := v.scale(w, h)
	if s == 0 {
		return vector.Pt{}
	}
	ox, oy := v.origin(w, h)
	return vector.Pt{X: float64((px - ox) / s), Y: float64((py - oy) / s)}
}

func (v viewport) toWidget(p vector.Pt, w, h float32) (x, y float32) {
	s := v.scale(w, h)
	ox, oy := v.origin(w, h)
	return ox + float32(p.X)*s, oy + float32(p.Y)*s
}

func (v *viewport) zoomBy(step float32) {
	v.zoom += step
	if v.zoom < minZoom {
		v.zoom = minZoom
	}
	if v.zoom > maxZoom {
		v.zoom = maxZoom
	}
}

func (v *viewport) reset() { v.zoom, v.offX, v.offY = 1, 0, 0 }

const recentMax = 10

// pushRecent puts path first, drops duplicates (case-insensitive) and
// entries that no longer exist, and caps the list at recentMax.
func pushRecent(items []string, path string, exists func(string) bool) []string {
	out := make([]string, 0, len(items)+1)
	if p := strings.TrimSpace(path); p != "" {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || (len(out) > 0 && strings.EqualFold(s, out[0])) {
			continue
		}
		if exists != nil && !exists(s) {
			continue
		}
		out = append(out, s)
	}
	if len(out) > recentMax {
		out = out[:recentMax]
	}
	return out
}
