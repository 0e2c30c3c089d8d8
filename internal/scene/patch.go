/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import "math"

// Patch is a partial update. Nil fields are left unchanged; fields that do
// not apply to the element's variant are ignored.
type Patch struct {
	X, Y     *float64
	ScaleX   *float64
	ScaleY   *float64
	Rotation *float64
	Opacity  *float64

	// text
	Text       *string
	FontFamily *string
	FontSize   *float64
	FontWeight *string
	FontStyle  *string
	Underline  *bool
	TextAlign  *string

	// shared by text (wrap width), image and shape
	Width  *float64
	Height *float64
	Fill   *string

	// image
	Src *string

	// shape
	Shape       *ShapeKind
	Stroke      *string
	StrokeWidth *float64
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool { return p == (Patch{}) }

// Float, String and Bool build pointer fields inline.
func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }
func Bool(v bool) *bool        { return &v }

// Apply returns e with the patch merged in.
func (p Patch) Apply(e Element) Element {
	set(&e.X, p.X)
	set(&e.Y, p.Y)
	set(&e.ScaleX, p.ScaleX)
	set(&e.ScaleY, p.ScaleY)
	set(&e.Rotation, p.Rotation)
	if p.Opacity != nil {
		e.Opacity = math.Max(0, math.Min(1, *p.Opacity))
	}
	e.Body = Match(e.Body,
		func(t Text) Body {
			set(&t.Text, p.Text)
			set(&t.FontFamily, p.FontFamily)
			set(&t.FontSize, p.FontSize)
			set(&t.FontWeight, p.FontWeight)
			set(&t.FontStyle, p.FontStyle)
			set(&t.Underline, p.Underline)
			set(&t.TextAlign, p.TextAlign)
			set(&t.Width, p.Width)
			set(&t.Fill, p.Fill)
			return t
		},
		func(i Image) Body {
			set(&i.Src, p.Src)
			set(&i.Width, p.Width)
			set(&i.Height, p.Height)
			return i
		},
		func(s Shape) Body {
			set(&s.Shape, p.Shape)
			set(&s.Width, p.Width)
			set(&s.Height, p.Height)
			set(&s.Fill, p.Fill)
			set(&s.Stroke, p.Stroke)
			set(&s.StrokeWidth, p.StrokeWidth)
			return s
		},
	)
	return e
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
