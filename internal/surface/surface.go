/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package surface is the drawing capability the canvas synchronizer drives:
// an ordered list of retained objects with interactive hooks, rasterized on
// demand.
package surface

import (
	"errors"
	"image"

	"thumbtory/internal/textlayout"
	"thumbtory/internal/vector"
)

var (
	// ErrSurfaceUnavailable is returned when no surface became ready in time.
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
	ErrEmptyCapture       = errors.New("surface capture is empty")
	ErrUnknownObject      = errors.New("unknown surface object")
	ErrDuplicateObject    = errors.New("duplicate surface object")
)

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindRect     Kind = "rect"
	KindEllipse  Kind = "ellipse"
	KindTriangle Kind = "triangle"
	// KindGuide is an outline used for grid lines and border guides.
	KindGuide Kind = "guide"
)

// Object is a retained drawable. Geometry follows the element model: the
// local box is (0,0)-(Width,Height), mapped by translate(X,Y) · rotate ·
// scale. For text, Width is the wrap width and Height is computed from
// layout when the object is added or updated.
type Object struct {
	ID       string
	Kind     Kind
	X, Y     float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
	Opacity  float64
	Width    float64
	Height   float64

	Fill        vector.Color
	Stroke      vector.Color
	StrokeWidth float64

	Text      string
	Font      textlayout.FontSpec
	Align     string
	Underline bool

	// Image is nil while pending or after a decode failure; the placeholder
	// colour is painted instead.
	Image image.Image

	layoutW float64 // natural text width when Width is zero

	// Protected objects are not part of the scene: the synchronizer never
	// removes them and captures never include them.
	Protected bool
}

// Transform maps the local box to surface coordinates.
func (o Object) Transform() vector.Affine2D {
	return vector.ElementTransform(o.X, o.Y, o.ScaleX, o.ScaleY, o.Rotation)
}

// Box is the unscaled local box.
func (o Object) Box() vector.Rect {
	w := o.Width
	if o.Kind == KindText && w <= 0 {
		w = o.layoutW
	}
	return vector.R(0, 0, w, o.Height)
}

// Backdrop is the surface background. Rect is where Image lands in surface
// coordinates; it may extend past the surface and is clipped.
type Backdrop struct {
	Color vector.Color
	Image image.Image
	Rect  vector.Rect
	// Default marks a theme colour rather than a scene background.
	Default bool
}

// SnapshotOptions controls a capture.
type SnapshotOptions struct {
	// PixelRatio scales the output; values below 1 are treated as 1.
	PixelRatio float64
	// Offsets shift individual objects, in surface units, for this capture only.
	Offsets map[string]vector.Pt
	// IncludeProtected draws guides too; on-screen frames use it.
	IncludeProtected bool
	// OmitDefaultBackdrop leaves the area transparent when the backdrop is
	// only a theme default.
	OmitDefaultBackdrop bool
}

type EventType int

const (
	ObjectAdded EventType = iota
	ObjectMoving
	ObjectScaling
	ObjectRotating
	ObjectModified
	SelectionChanged
	TextEditEntered
	TextEditExited
	RenderRequested
)

func (t EventType) String() string {
	switch t {
	case ObjectAdded:
		return "object:added"
	case ObjectMoving:
		return "object:moving"
	case ObjectScaling:
		return "object:scaling"
	case ObjectRotating:
		return "object:rotating"
	case ObjectModified:
		return "object:modified"
	case SelectionChanged:
		return "selection:changed"
	case TextEditEntered:
		return "text:editing:entered"
	case TextEditExited:
		return "text:editing:exited"
	case RenderRequested:
		return "render:requested"
	}
	return "unknown"
}

// Event carries a copy of the affected object (zero for render requests and
// cleared selections).
type Event struct {
	Type   EventType
	ID     string
	Object Object
}

// GestureOp is the kind of pointer interaction.
type GestureOp int

const (
	GestureMove GestureOp = iota
	GestureScale
	GestureRotate
)

// Gesture is one frame of a pointer interaction. Done marks the release,
// which emits ObjectModified instead of a continuous event.
type Gesture struct {
	Op             GestureOp
	X, Y           float64
	ScaleX, ScaleY float64
	Rotation       float64
	Done           bool
}

// Surface is implemented by Raster; the UI and tests may provide others.
type Surface interface {
	Size() (w, h int)
	Resize(w, h int)
	Objects() []Object
	Object(id string) (Object, bool)
	Add(o Object) error
	Update(o Object) error
	Remove(id string) bool
	MoveTo(id string, index int) bool
	BringToFront(id string) bool
	Active() string
	SetActive(id string)
	Editing() string
	SetBackground(b Backdrop)
	Background() Backdrop
	RequestRender()
	Snapshot(opts SnapshotOptions) (image.Image, error)
	Bounds(id string) (vector.Rect, bool)
	HitTest(x, y float64) (string, bool)
	Subscribe(fn func(Event)) func()
	Interact(id string, g Gesture) error
	BeginTextEdit(id string) error
	EditText(id, text string) error
	EndTextEdit(id string) error
}
