//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	applog "thumbtory/internal/log"
	"thumbtory/internal/surface"
	"thumbtory/internal/vector"
)

// ThumbCanvas shows the drawing surface and turns pointer input into
// surface gestures. The synchronizer feeds those back into the scene.
type ThumbCanvas struct {
	widget.BaseWidget

	raster *surface.Raster
	view   viewport
	log    *slog.Logger

	dragID  string
	dragPos vector.Pt
	panning bool

	// OnEditText is called on double-tap of a text object that entered edit
	// mode. The callee finishes with EditText and EndTextEdit.
	OnEditText func(id, current string)
	// OnError reports gesture failures.
	OnError func(error)

	unsub func()
}

func NewThumbCanvas(r *surface.Raster) *ThumbCanvas {
	w, h := r.Size()
	tc := &ThumbCanvas{raster: r, view: newViewport(w, h), log: applog.WithComponent("ui")}
	tc.unsub = r.Subscribe(func(ev surface.Event) {
		if ev.Type == surface.RenderRequested || ev.Type == surface.SelectionChanged {
			fyne.Do(tc.Refresh)
		}
	})
	tc.ExtendBaseWidget(tc)
	return tc
}

// Detach stops listening to the surface.
func (c *ThumbCanvas) Detach() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// ResetView fits the surface again.
func (c *ThumbCanvas) ResetView() {
	c.view.reset()
	c.Refresh()
}

func (c *ThumbCanvas) MinSize() fyne.Size { return fyne.NewSize(480, 270) }

func (c *ThumbCanvas) toSurface(p fyne.Position) vector.Pt {
	sz := c.Size()
	return c.view.toSurface(p.X, p.Y, sz.Width, sz.Height)
}

func (c *ThumbCanvas) Tapped(e *fyne.PointEvent) {
	p := c.toSurface(e.Position)
	id, _ := c.raster.HitTest(p.X, p.Y)
	c.raster.SetActive(id)
}

func (c *ThumbCanvas) DoubleTapped(e *fyne.PointEvent) {
	p := c.toSurface(e.Position)
	id, ok := c.raster.HitTest(p.X, p.Y)
	if !ok {
		return
	}
	o, _ := c.raster.Object(id)
	if o.Kind != surface.KindText {
		return
	}
	if err := c.raster.BeginTextEdit(id); err != nil {
		c.fail(err)
		return
	}
	if c.OnEditText != nil {
		c.OnEditText(id, o.Text)
		return
	}
	_ = c.raster.EndTextEdit(id)
}

func (c *ThumbCanvas) Dragged(e *fyne.DragEvent) {
	s := c.view.scale(c.Size().Width, c.Size().Height)
	if s == 0 {
		return
	}
	if c.dragID == "" && !c.panning {
		start := c.toSurface(e.Position.Subtract(e.Dragged))
		if id, ok := c.raster.HitTest(start.X, start.Y); ok {
			o, _ := c.raster.Object(id)
			c.dragID, c.dragPos = id, vector.Pt{X: o.X, Y: o.Y}
			c.raster.SetActive(id)
		} else {
			c.panning = true
		}
	}
	if c.panning {
		c.view.offX += e.Dragged.DX
		c.view.offY += e.Dragged.DY
		c.Refresh()
		return
	}
	c.dragPos.X += float64(e.Dragged.DX / s)
	c.dragPos.Y += float64(e.Dragged.DY / s)
	if err := c.raster.Interact(c.dragID, surface.Gesture{Op: surface.GestureMove, X: c.dragPos.X, Y: c.dragPos.Y}); err != nil {
		c.fail(err)
		c.dragID = ""
	}
}

func (c *ThumbCanvas) DragEnd() {
	if c.dragID != "" {
		g := surface.Gesture{Op: surface.GestureMove, X: c.dragPos.X, Y: c.dragPos.Y, Done: true}
		if err := c.raster.Interact(c.dragID, g); err != nil {
			c.fail(err)
		}
	}
	c.dragID, c.panning = "", false
}

// Scrolled zooms; Fyne does not report modifiers on scroll events.
func (c *ThumbCanvas) Scrolled(e *fyne.ScrollEvent) {
	c.view.zoomBy(e.Scrolled.DY * 0.05)
	c.Refresh()
}

func (c *ThumbCanvas) fail(err error) {
	c.log.Warn("gesture failed", slog.Any("err", err))
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c *ThumbCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 30, G: 30, B: 34, A: 255})
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillStretch
	img.ScaleMode = canvas.ImageScaleSmooth

	sel := canvas.NewRectangle(color.Transparent)
	sel.StrokeColor = color.NRGBA{R: 0, G: 170, B: 255, A: 255}
	sel.StrokeWidth = 1
	sel.Hide()

	return &thumbCanvasRenderer{c: c, bg: bg, img: img, sel: sel, objects: []fyne.CanvasObject{bg, img, sel}}
}

type thumbCanvasRenderer struct {
	c       *ThumbCanvas
	bg, sel *canvas.Rectangle
	img     *canvas.Image
	objects []fyne.CanvasObject
}

func (r *thumbCanvasRenderer) Destroy()                     {}
func (r *thumbCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *thumbCanvasRenderer) MinSize() fyne.Size           { return r.c.MinSize() }

func (r *thumbCanvasRenderer) Refresh() {
	frame, err := r.c.raster.Snapshot(surface.SnapshotOptions{IncludeProtected: true})
	if err != nil {
		r.c.log.Debug("frame capture failed", slog.Any("err", err))
	} else {
		r.img.Image = frame
	}
	r.Layout(r.c.Size())
	canvas.Refresh(r.c)
}

func (r *thumbCanvasRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	v := r.c.view
	s := v.scale(size.Width, size.Height)
	ox, oy := v.origin(size.Width, size.Height)
	r.img.Move(fyne.NewPos(ox, oy))
	r.img.Resize(fyne.NewSize(v.surfW*s, v.surfH*s))

	id := r.c.raster.Active()
	b, ok := r.c.raster.Bounds(id)
	if id == "" || !ok {
		r.sel.Hide()
		return
	}
	x, y := v.toWidget(vector.Pt{X: b.X, Y: b.Y}, size.Width, size.Height)
	r.sel.Move(fyne.NewPos(x, y))
	r.sel.Resize(fyne.NewSize(float32(b.W)*s, float32(b.H)*s))
	r.sel.Show()
}
