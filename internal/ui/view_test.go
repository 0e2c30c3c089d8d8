/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"math"
	"path/filepath"
	"testing"

	"thumbtory/internal/vector"
)

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestViewportFitsAndRoundTrips(t *testing.T) {
	v := newViewport(1280, 720)
	// 640x640 widget: width-bound, scale 0.5, letterboxed vertically
	if s := v.scale(640, 640); s != 0.5 {
		t.Fatalf("scale = %v", s)
	}
	if x, y := v.origin(640, 640); x != 0 || y != 140 {
		t.Fatalf("origin = %v,%v", x, y)
	}
	p := v.toSurface(320, 320, 640, 640)
	if !near(p.X, 640) || !near(p.Y, 360) {
		t.Fatalf("center maps to %+v", p)
	}
	x, y := v.toWidget(vector.Pt{X: 640, Y: 360}, 640, 640)
	if x != 320 || y != 320 {
		t.Fatalf("toWidget = %v,%v", x, y)
	}
}

func TestViewportZoomAndPan(t *testing.T) {
	v := newViewport(100, 100)
	v.zoomBy(1)
	v.offX, v.offY = 10, -10
	if s := v.scale(100, 100); s != 2 {
		t.Fatalf("scale = %v", s)
	}
	p := v.toSurface(10-50, -10-50, 100, 100)
	if !near(p.X, 0) || !near(p.Y, 0) {
		t.Fatalf("top-left maps to %+v", p)
	}
	v.zoomBy(100)
	if v.zoom != maxZoom {
		t.Fatalf("zoom not clamped: %v", v.zoom)
	}
	v.reset()
	if v.zoom != 1 || v.offX != 0 {
		t.Fatalf("reset = %+v", v)
	}
	if s := newViewport(0, 0).scale(10, 10); s != 0 {
		t.Fatalf("empty surface scale = %v", s)
	}
}

func TestPushRecent(t *testing.T) {
	dir := t.TempDir()
	exists := func(p string) bool { return p != "/gone" }
	got := pushRecent([]string{"/a", "/gone", "  ", dir}, dir, exists)
	abs, _ := filepath.Abs(dir)
	if len(got) != 2 || got[0] != abs || got[1] != "/a" {
		t.Fatalf("pushRecent = %v", got)
	}
	var many []string
	for i := 0; i < 20; i++ {
		many = append(many, filepath.Join("/w", string(rune('a'+i))))
	}
	if got := pushRecent(many, "", nil); len(got) != recentMax {
		t.Fatalf("cap = %d", len(got))
	}
}
