/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"image"
	"log/slog"
	"math"

	"thumbtory/internal/scene"
	"thumbtory/internal/surface"
	"thumbtory/internal/textlayout"
	"thumbtory/internal/vector"
)

// objectFor converts an element into its surface object. prev is the
// existing object, used to keep the previous image while a new source is
// decoding.
func (s *Synchronizer) objectFor(e scene.Element, prev surface.Object, hasPrev bool) surface.Object {
	o := surface.Object{
		ID: e.ID, X: e.X, Y: e.Y,
		ScaleX: e.ScaleX, ScaleY: e.ScaleY,
		Rotation: e.Rotation, Opacity: e.Opacity,
	}
	if o.ScaleX == 0 {
		o.ScaleX = 1
	}
	if o.ScaleY == 0 {
		o.ScaleY = 1
	}
	return scene.Match(e.Body,
		func(t scene.Text) surface.Object {
			o.Kind = surface.KindText
			o.Text = t.Text
			o.Width = t.Width
			o.Fill = vector.MustColor(t.Fill, vector.Black)
			o.Font = textlayout.FontSpec{
				Family: t.FontFamily,
				Size:   t.FontSize,
				Weight: textlayout.WeightFromString(t.FontWeight),
				Italic: t.FontStyle == "italic" || t.FontStyle == "oblique",
			}
			o.Align = t.TextAlign
			o.Underline = t.Underline
			if hasPrev && prev.Kind == surface.KindText {
				// height comes from layout on the surface
				o.Height = prev.Height
			}
			return o
		},
		func(im scene.Image) surface.Object {
			o.Kind = surface.KindImage
			o.Width, o.Height = im.Width, im.Height
			img, st := s.imageFor(im.Src)
			switch {
			case st == imageReady:
				o.Image = img
			case st == imagePending && hasPrev && prev.Kind == surface.KindImage:
				o.Image = prev.Image
			}
			if o.Image != nil && (o.Width <= 0 || o.Height <= 0) {
				b := o.Image.Bounds()
				o.Width, o.Height = float64(b.Dx()), float64(b.Dy())
			}
			return o
		},
		func(sh scene.Shape) surface.Object {
			switch sh.Shape {
			case scene.Circle:
				o.Kind = surface.KindEllipse
			case scene.Triangle:
				o.Kind = surface.KindTriangle
			default:
				o.Kind = surface.KindRect
			}
			o.Width, o.Height = sh.Width, sh.Height
			o.Fill = vector.MustColor(sh.Fill, vector.Transparent)
			if sh.Stroke != "" {
				o.Stroke = vector.MustColor(sh.Stroke, vector.Transparent)
				o.StrokeWidth = sh.StrokeWidth
			}
			return o
		},
	)
}

type imageState int

const (
	imagePending imageState = iota
	imageReady
	imageFailed
)

// imageFor returns a decoded image when it is ready. A miss starts one async
// decode per source; its completion triggers an immediate pass while the
// scene still references the source. Failed sources get the placeholder.
func (s *Synchronizer) imageFor(src string) (image.Image, imageState) {
	if src == "" {
		return nil, imageFailed
	}
	img, done, err := s.assets.Cached(src)
	if done {
		if err != nil {
			s.reportDecode(src, err)
			return nil, imageFailed
		}
		return img, imageReady
	}
	s.mu.Lock()
	if s.waiting[src] {
		s.mu.Unlock()
		return nil, imagePending
	}
	s.waiting[src] = true
	s.mu.Unlock()
	s.assets.Request(src, func(_ image.Image, err error) {
		s.mu.Lock()
		delete(s.waiting, src)
		s.mu.Unlock()
		if !s.references(src) {
			s.log.Debug("stale image decode dropped", slog.Int("src_len", len(src)))
			return
		}
		if err != nil {
			s.reportDecode(src, err)
		}
		s.Schedule(true)
	})
	return nil, imagePending
}

// references reports whether the current scene still uses src.
func (s *Synchronizer) references(src string) bool {
	sc := s.model.Scene()
	if sc.Background.Kind == scene.BackgroundImage && sc.Background.Src == src {
		return true
	}
	for _, e := range sc.Elements {
		if im, ok := e.Body.(scene.Image); ok && im.Src == src {
			return true
		}
	}
	return false
}

func (s *Synchronizer) reportDecode(src string, err error) {
	s.mu.Lock()
	seen := s.failed[src]
	s.failed[src] = true
	s.mu.Unlock()
	if !seen {
		s.log.Warn("image unavailable, using placeholder", slog.Any("err", err))
	}
}

// applyBackground sets the backdrop. A pending image keeps the previous
// backdrop until the decode completes.
func (s *Synchronizer) applyBackground(surf surface.Surface, bg scene.Background) {
	s.mu.Lock()
	theme := s.theme
	s.mu.Unlock()
	switch bg.Kind {
	case scene.BackgroundColor:
		surf.SetBackground(surface.Backdrop{Color: vector.MustColor(bg.Color, theme.DefaultBackground())})
	case scene.BackgroundImage:
		img, st := s.imageFor(bg.Src)
		switch st {
		case imagePending:
			return
		case imageFailed:
			surf.SetBackground(surface.Backdrop{Color: vector.Placeholder})
			return
		}
		w, h := surf.Size()
		iw, ih := bg.Width, bg.Height
		if iw <= 0 || ih <= 0 {
			iw, ih = img.Bounds().Dx(), img.Bounds().Dy()
		}
		surf.SetBackground(surface.Backdrop{
			Color: theme.DefaultBackground(),
			Image: img,
			Rect:  CoverRect(float64(w), float64(h), float64(iw), float64(ih)),
		})
	default:
		surf.SetBackground(surface.Backdrop{Color: theme.DefaultBackground(), Default: true})
	}
}

// CoverRect scales an iw×ih image uniformly so it covers a w×h area and
// centres it. The result may extend past the area on one axis.
func CoverRect(w, h, iw, ih float64) vector.Rect {
	if iw <= 0 || ih <= 0 {
		return vector.R(0, 0, w, h)
	}
	k := math.Max(w/iw, h/ih)
	sw, sh := iw*k, ih*k
	return vector.R((w-sw)/2, (h-sh)/2, sw, sh)
}

// sameObject compares the fields the synchronizer owns.
func sameObject(a, b surface.Object) bool {
	if a.Kind != b.Kind || a.X != b.X || a.Y != b.Y || a.ScaleX != b.ScaleX || a.ScaleY != b.ScaleY ||
		a.Rotation != b.Rotation || a.Opacity != b.Opacity || a.Width != b.Width ||
		a.Fill != b.Fill || a.Stroke != b.Stroke || a.StrokeWidth != b.StrokeWidth {
		return false
	}
	switch a.Kind {
	case surface.KindText:
		return a.Text == b.Text && a.Font == b.Font && a.Align == b.Align && a.Underline == b.Underline
	case surface.KindImage:
		return a.Height == b.Height && a.Image == b.Image
	default:
		return a.Height == b.Height
	}
}
