/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// RenderOptions controls how a laid out box is painted.
type RenderOptions struct {
	Width     float64 // alignment box width; box.Width when zero
	Align     string
	Color     color.Color
	Underline bool
}

// Render rasterizes box into a transparent RGBA image sized to the box.
// The face is resolved again from spec so the caller may reuse a box across
// renders.
func Render(p Provider, spec FontSpec, box TextBox, opts RenderOptions) *image.RGBA {
	if p == nil {
		p = BasicProvider{}
	}
	w := opts.Width
	if w < box.Width {
		w = box.Width
	}
	iw, ih := int(math.Ceil(w)), int(math.Ceil(box.Height))
	if iw < 1 {
		iw = 1
	}
	if ih < 1 {
		ih = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, iw, ih))
	col := opts.Color
	if col == nil {
		col = color.Black
	}
	src := image.NewUniform(col)
	face, met := p.Resolve(spec)
	d := &font.Drawer{Dst: img, Src: src, Face: face}
	lh := met.LineHeight()
	thick := math.Max(1, math.Round(spec.Size/15))
	for i, ln := range box.Lines {
		x := LineOffset(opts.Align, w, ln.Width)
		base := float64(i)*lh + met.Ascent
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(base * 64)}
		d.DrawString(ln.Text)
		if opts.Underline && ln.Width > 0 {
			y := int(math.Round(base + met.Descent/2))
			r := image.Rect(int(x), y, int(math.Ceil(x+ln.Width)), y+int(thick))
			draw.Draw(img, r.Intersect(img.Bounds()), src, image.Point{}, draw.Over)
		}
	}
	return img
}
