/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package surface

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"thumbtory/internal/textlayout"
	"thumbtory/internal/vector"

	applog "thumbtory/internal/log"
)

// Raster is the software implementation of Surface. Objects are retained
// in paint order and rasterized with gg on Snapshot.
type Raster struct {
	mu       sync.Mutex
	w, h     int
	objs     []Object
	active   string
	editing  string
	backdrop Backdrop
	renders  uint64

	fonts    textlayout.Provider
	layouter *textlayout.WordWrapLayouter

	subs    map[int]func(Event)
	nextSub int
	log     *slog.Logger
}

var _ Surface = (*Raster)(nil)

// NewRaster creates a w×h surface. A nil provider uses the bundled Go fonts.
func NewRaster(w, h int, fonts textlayout.Provider) *Raster {
	if fonts == nil {
		fonts = textlayout.NewDefaultProvider()
	}
	return &Raster{
		w: w, h: h,
		fonts:    fonts,
		layouter: textlayout.NewWordWrap(fonts),
		subs:     map[int]func(Event){},
		log:      applog.WithComponent("surface"),
	}
}

func (r *Raster) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w, r.h
}

func (r *Raster) Resize(w, h int) {
	r.mu.Lock()
	r.w, r.h = w, h
	r.mu.Unlock()
}

// Objects returns copies in paint order (bottom first).
func (r *Raster) Objects() []Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Object, len(r.objs))
	copy(out, r.objs)
	return out
}

func (r *Raster) Object(id string) (Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.objs[i], true
	}
	return Object{}, false
}

// Add appends o on top.
func (r *Raster) Add(o Object) error {
	r.mu.Lock()
	if r.indexLocked(o.ID) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateObject, o.ID)
	}
	o = r.normalize(o)
	r.objs = append(r.objs, o)
	r.mu.Unlock()
	r.emit(Event{Type: ObjectAdded, ID: o.ID, Object: o})
	return nil
}

// Update replaces the object with the same id, keeping its stacking position.
func (r *Raster) Update(o Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(o.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownObject, o.ID)
	}
	r.objs[i] = r.normalize(o)
	return nil
}

func (r *Raster) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.objs = append(r.objs[:i], r.objs[i+1:]...)
	if r.active == id {
		r.active = ""
	}
	if r.editing == id {
		r.editing = ""
	}
	return true
}

// MoveTo places id at index, clamped to the valid range.
func (r *Raster) MoveTo(id string, index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index >= len(r.objs) {
		index = len(r.objs) - 1
	}
	if i == index {
		return true
	}
	o := r.objs[i]
	r.objs = append(r.objs[:i], r.objs[i+1:]...)
	r.objs = append(r.objs[:index], append([]Object{o}, r.objs[index:]...)...)
	return true
}

func (r *Raster) BringToFront(id string) bool {
	r.mu.Lock()
	n := len(r.objs)
	r.mu.Unlock()
	return r.MoveTo(id, n-1)
}

func (r *Raster) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive changes the selection and emits SelectionChanged when it differs.
func (r *Raster) SetActive(id string) {
	r.mu.Lock()
	if id != "" && r.indexLocked(id) < 0 {
		id = ""
	}
	if r.active == id {
		r.mu.Unlock()
		return
	}
	r.active = id
	var o Object
	if i := r.indexLocked(id); i >= 0 {
		o = r.objs[i]
	}
	r.mu.Unlock()
	r.emit(Event{Type: SelectionChanged, ID: id, Object: o})
}

// Editing returns the id of the object in text edit mode, if any.
func (r *Raster) Editing() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.editing
}

func (r *Raster) SetBackground(b Backdrop) {
	r.mu.Lock()
	r.backdrop = b
	r.mu.Unlock()
}

func (r *Raster) Background() Backdrop {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backdrop
}

// RequestRender asks listeners to repaint.
func (r *Raster) RequestRender() {
	r.mu.Lock()
	r.renders++
	r.mu.Unlock()
	r.emit(Event{Type: RenderRequested})
}

// Renders counts RequestRender calls.
func (r *Raster) Renders() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Snapshot rasterizes the surface. The result is always a fresh image.
func (r *Raster) Snapshot(opts SnapshotOptions) (image.Image, error) {
	r.mu.Lock()
	w, h := r.w, r.h
	objs := make([]Object, len(r.objs))
	copy(objs, r.objs)
	bd := r.backdrop
	r.mu.Unlock()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyCapture, w, h)
	}
	return r.paint(objs, bd, w, h, opts)
}

// Bounds returns the axis-aligned bounds of id after its transform.
func (r *Raster) Bounds(id string) (vector.Rect, bool) {
	o, ok := r.Object(id)
	if !ok {
		return vector.Rect{}, false
	}
	return vector.TransformRect(o.Box(), o.Transform()), true
}

// HitTest returns the topmost non-protected object under (x, y).
func (r *Raster) HitTest(x, y float64) (string, bool) {
	objs := r.Objects()
	p := vector.Pt{X: x, Y: y}
	for i := len(objs) - 1; i >= 0; i-- {
		o := objs[i]
		if o.Protected {
			continue
		}
		var hit bool
		switch o.Kind {
		case KindEllipse:
			hit = vector.HitEllipse(o.Box(), o.Transform(), p)
		case KindTriangle:
			hit = vector.HitTriangle(o.Box(), o.Transform(), p)
		default:
			hit = vector.HitRect(o.Box(), o.Transform(), p)
		}
		if hit {
			return o.ID, true
		}
	}
	return "", false
}

func (r *Raster) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Interact applies one gesture frame to id and emits the matching event.
func (r *Raster) Interact(id string, g Gesture) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	o := &r.objs[i]
	typ := ObjectMoving
	switch g.Op {
	case GestureMove:
		o.X, o.Y = g.X, g.Y
	case GestureScale:
		o.ScaleX, o.ScaleY = g.ScaleX, g.ScaleY
		typ = ObjectScaling
	case GestureRotate:
		o.Rotation = g.Rotation
		typ = ObjectRotating
	}
	if g.Done {
		typ = ObjectModified
	}
	ev := Event{Type: typ, ID: id, Object: *o}
	r.mu.Unlock()
	r.emit(ev)
	return nil
}

// BeginTextEdit puts a text object into edit mode.
func (r *Raster) BeginTextEdit(id string) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 || r.objs[i].Kind != KindText {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is not a text object", ErrUnknownObject, id)
	}
	r.editing = id
	ev := Event{Type: TextEditEntered, ID: id, Object: r.objs[i]}
	r.mu.Unlock()
	r.emit(ev)
	return nil
}

// EditText changes the text of the object being edited.
func (r *Raster) EditText(id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 || r.editing != id {
		return fmt.Errorf("%w: %s is not in edit mode", ErrUnknownObject, id)
	}
	o := r.objs[i]
	o.Text = text
	r.objs[i] = r.normalize(o)
	return nil
}

// EndTextEdit leaves edit mode and emits the final text.
func (r *Raster) EndTextEdit(id string) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 || r.editing != id {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is not in edit mode", ErrUnknownObject, id)
	}
	r.editing = ""
	ev := Event{Type: TextEditExited, ID: id, Object: r.objs[i]}
	r.mu.Unlock()
	r.emit(ev)
	return nil
}

func (r *Raster) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range r.objs {
		if r.objs[i].ID == id {
			return i
		}
	}
	return -1
}

// normalize fills defaults and lays out text to size the box.
func (r *Raster) normalize(o Object) Object {
	if o.ScaleX == 0 {
		o.ScaleX = 1
	}
	if o.ScaleY == 0 {
		o.ScaleY = 1
	}
	if o.Kind == KindText {
		box, err := r.layouter.Layout(o.Text, o.Font, o.Width)
		if err != nil {
			r.log.Warn("text layout failed", slog.String("id", o.ID), slog.Any("err", err))
			return o
		}
		o.Height = box.Height
		o.layoutW = box.Width
	}
	return o
}

func (r *Raster) emit(ev Event) {
	r.mu.Lock()
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
