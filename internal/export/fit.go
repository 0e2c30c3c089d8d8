/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"thumbtory/internal/vector"
)

var darkFill = vector.Color{R: 0x18, G: 0x18, B: 0x1b, A: 255}

// Fill returns the colour painted behind the capture.
func (b BackgroundMode) Fill() vector.Color {
	switch b {
	case BackgroundDark:
		return darkFill
	case BackgroundTransparent:
		return vector.Transparent
	}
	return vector.White
}

// FormatFor maps a background mode to its output format.
func FormatFor(b BackgroundMode) Format {
	switch b {
	case BackgroundTransparent:
		return FormatPNG
	case BackgroundWebP:
		return FormatWebP
	}
	return FormatJPEG
}

// Scale returns the uniform factor that fits (contain) or covers (cover)
// a sw×sh source into a tw×th target.
func Scale(fit Fit, sw, sh, tw, th float64) float64 {
	if sw <= 0 || sh <= 0 {
		return 0
	}
	if fit == FitCover {
		return math.Max(tw/sw, th/sh)
	}
	return math.Min(tw/sw, th/sh)
}

// Compose renders src into a tw×th image. Contain centres the scaled source
// over the background; cover scales by zoom on top of the cover factor and
// crops the centre.
func Compose(src image.Image, tw, th int, fit Fit, bg vector.Color, zoom float64) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	if bg.A > 0 {
		xdraw.Draw(dst, dst.Bounds(), image.NewUniform(bg.NRGBA()), image.Point{}, xdraw.Src)
	}
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	k := Scale(fit, sw, sh, float64(tw), float64(th))
	if k <= 0 {
		return dst
	}
	if fit == FitCover {
		if zoom > 1 {
			k *= zoom
		}
		cw, ch := float64(tw)/k, float64(th)/k
		x0 := float64(sb.Min.X) + (sw-cw)/2
		y0 := float64(sb.Min.Y) + (sh-ch)/2
		sr := image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x0+cw)), int(math.Round(y0+ch))).Intersect(sb)
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sr, xdraw.Over, nil)
		return dst
	}
	w, h := sw*k, sh*k
	x0, y0 := (float64(tw)-w)/2, (float64(th)-h)/2
	dr := image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x0+w)), int(math.Round(y0+h)))
	xdraw.CatmullRom.Scale(dst, dr, src, sb, xdraw.Over, nil)
	return dst
}
