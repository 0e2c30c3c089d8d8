//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests need Fyne and are gated behind the "fyne" build tag:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"

	"thumbtory/internal/surface"
	"thumbtory/internal/textlayout"
)

func newTestCanvas(t *testing.T) (*ThumbCanvas, *surface.Raster) {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)
	r := surface.NewRaster(640, 360, textlayout.BasicProvider{})
	if err := r.Add(surface.Object{ID: "box", Kind: surface.KindRect, X: 100, Y: 100, Width: 50, Height: 50, Opacity: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tc := NewThumbCanvas(r)
	t.Cleanup(tc.Detach)
	tc.Resize(fyne.NewSize(640, 360))
	return tc, r
}

func TestThumbCanvasTapSelects(t *testing.T) {
	tc, r := newTestCanvas(t)
	tc.Tapped(&fyne.PointEvent{Position: fyne.NewPos(120, 120)})
	if r.Active() != "box" {
		t.Fatalf("active = %q", r.Active())
	}
	tc.Tapped(&fyne.PointEvent{Position: fyne.NewPos(400, 300)})
	if r.Active() != "" {
		t.Fatalf("tap on empty area should clear selection, got %q", r.Active())
	}
}

func TestThumbCanvasDragMovesObject(t *testing.T) {
	tc, r := newTestCanvas(t)
	var events []surface.EventType
	unsub := r.Subscribe(func(ev surface.Event) { events = append(events, ev.Type) })
	defer unsub()

	drag := func(x, y, dx, dy float32) {
		tc.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}, Dragged: fyne.NewDelta(dx, dy)})
	}
	drag(130, 130, 10, 10)
	drag(140, 135, 10, 5)
	tc.DragEnd()

	o, _ := r.Object("box")
	if o.X != 120 || o.Y != 115 {
		t.Fatalf("object at %v,%v", o.X, o.Y)
	}
	if events[len(events)-1] != surface.ObjectModified {
		t.Fatalf("last event = %v", events[len(events)-1])
	}
}

func TestThumbCanvasDragOnEmptyAreaPans(t *testing.T) {
	tc, r := newTestCanvas(t)
	tc.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(420, 320)}, Dragged: fyne.NewDelta(20, 0)})
	tc.DragEnd()
	if tc.view.offX != 20 {
		t.Fatalf("offX = %v", tc.view.offX)
	}
	if o, _ := r.Object("box"); o.X != 100 {
		t.Fatalf("object should not move, X = %v", o.X)
	}
}

func TestThumbCanvasScrollZooms(t *testing.T) {
	tc, _ := newTestCanvas(t)
	tc.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 10)})
	if tc.view.zoom != 1.5 {
		t.Fatalf("zoom = %v", tc.view.zoom)
	}
	tc.ResetView()
	if tc.view.zoom != 1 {
		t.Fatalf("zoom after reset = %v", tc.view.zoom)
	}
}
