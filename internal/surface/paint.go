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
	"math"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"thumbtory/internal/textlayout"
	"thumbtory/internal/vector"
)

func (r *Raster) paint(objs []Object, bd Backdrop, w, h int, opts SnapshotOptions) (img image.Image, err error) {
	ratio := math.Max(1, opts.PixelRatio)
	pw, ph := int(math.Round(float64(w)*ratio)), int(math.Round(float64(h)*ratio))
	if pw <= 0 || ph <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyCapture, pw, ph)
	}
	dc := gg.NewContext(pw, ph)
	defer func() {
		if cerr := dc.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if !(opts.OmitDefaultBackdrop && bd.Default) {
		if bd.Color.A > 0 {
			rr, g, b, a := bd.Color.Floats()
			dc.ClearWithColor(gg.RGBA{R: rr, G: g, B: b, A: a})
		}
		if bd.Image != nil && !bd.Rect.Empty() {
			sb := bd.Image.Bounds()
			m := vector.Scale(ratio, ratio).
				Mul(vector.Translate(bd.Rect.X, bd.Rect.Y)).
				Mul(vector.Scale(bd.Rect.W/float64(sb.Dx()), bd.Rect.H/float64(sb.Dy())))
			composite(dc, bd.Image, m, 1)
		}
	}

	for _, o := range objs {
		if o.Protected && !opts.IncludeProtected {
			continue
		}
		if d, ok := opts.Offsets[o.ID]; ok {
			o.X += d.X
			o.Y += d.Y
		}
		if err := r.drawObject(dc, o, ratio); err != nil {
			return nil, fmt.Errorf("draw %s %s: %w", o.Kind, o.ID, err)
		}
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

func (r *Raster) drawObject(dc *gg.Context, o Object, ratio float64) error {
	if o.Opacity <= 0 {
		return nil
	}
	xf := vector.Scale(ratio, ratio).Mul(o.Transform())
	switch o.Kind {
	case KindText:
		spec := o.Font
		spec.Size *= ratio
		box, err := r.layouter.Layout(o.Text, spec, o.Width*ratio)
		if err != nil {
			return err
		}
		img := textlayout.Render(r.fonts, spec, box, textlayout.RenderOptions{
			Width:     o.Width * ratio,
			Align:     o.Align,
			Color:     o.Fill.NRGBA(),
			Underline: o.Underline,
		})
		composite(dc, img, xf.Mul(vector.Scale(1/ratio, 1/ratio)), o.Opacity)
		return nil
	case KindImage:
		if o.Image == nil {
			o.Kind, o.Fill, o.StrokeWidth = KindRect, vector.Placeholder, 0
			return drawShape(dc, o, ratio)
		}
		sb := o.Image.Bounds()
		if sb.Empty() {
			return nil
		}
		m := xf.Mul(vector.Scale(o.Width/float64(sb.Dx()), o.Height/float64(sb.Dy())))
		composite(dc, o.Image, m, o.Opacity)
		return nil
	default:
		return drawShape(dc, o, ratio)
	}
}

func drawShape(dc *gg.Context, o Object, ratio float64) error {
	dc.Push()
	defer dc.Pop()
	dc.Scale(ratio, ratio)
	dc.Translate(o.X, o.Y)
	dc.Rotate(o.Rotation * math.Pi / 180)
	dc.Scale(o.ScaleX, o.ScaleY)

	w, h := o.Width, o.Height
	switch o.Kind {
	case KindEllipse:
		dc.DrawEllipse(w/2, h/2, w/2, h/2)
	case KindTriangle:
		t := vector.TrianglePoints(vector.R(0, 0, w, h))
		dc.MoveTo(t[0].X, t[0].Y)
		dc.LineTo(t[1].X, t[1].Y)
		dc.LineTo(t[2].X, t[2].Y)
		dc.ClosePath()
	default:
		dc.DrawRectangle(0, 0, w, h)
	}

	fill := o.Fill.A > 0 && o.Kind != KindGuide
	stroke := o.StrokeWidth > 0 && o.Stroke.A > 0
	if o.Kind == KindGuide && !stroke {
		o.Stroke, o.StrokeWidth, stroke = o.Fill, 1, true
	}
	if fill {
		setColor(dc, o.Fill, o.Opacity)
		var err error
		if stroke {
			err = dc.FillPreserve()
		} else {
			err = dc.Fill()
		}
		if err != nil {
			return err
		}
	}
	if stroke {
		dc.SetLineWidth(o.StrokeWidth)
		setColor(dc, o.Stroke, o.Opacity)
		return dc.Stroke()
	}
	if !fill {
		dc.ClearPath()
	}
	return nil
}

func setColor(dc *gg.Context, c vector.Color, opacity float64) {
	r, g, b, a := c.Floats()
	dc.SetRGBA(r, g, b, a*opacity)
}

// composite draws src through m (source pixels to output pixels) using a
// full-size layer, so rotation and non-uniform scale are honoured.
func composite(dc *gg.Context, src image.Image, m vector.Affine2D, opacity float64) {
	sb := src.Bounds()
	m = m.Mul(vector.Translate(-float64(sb.Min.X), -float64(sb.Min.Y)))
	layer := image.NewRGBA(image.Rect(0, 0, dc.Width(), dc.Height()))
	s2d := f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
	xdraw.CatmullRom.Transform(layer, s2d, src, sb, xdraw.Over, nil)
	dc.Push()
	dc.Identity()
	dc.DrawImageEx(gg.ImageBufFromImage(layer), gg.DrawImageOptions{Opacity: opacity})
	dc.Pop()
}
