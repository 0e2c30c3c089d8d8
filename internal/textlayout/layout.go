/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement and line breaking behind small interfaces so the drawing
// surface and the export engine agree on the size of a text element.

import (
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font. Size is in pixels at 1x.
type FontSpec struct {
	Family string
	Size   float64
	Weight int // 100..900
	Italic bool
}

// Metrics are font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

func (m Metrics) LineHeight() float64 { return m.Ascent + m.Descent + m.LineGap }

// Line is a single laid out line.
type Line struct {
	Text  string
	Width float64
}

// TextBox is the result of laying out text into a wrap width.
type TextBox struct {
	Lines   []Line
	Width   float64
	Height  float64
	Metrics Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Layouter performs line-breaking and measurement.
type Layouter interface {
	Layout(text string, spec FontSpec, maxWidth float64) (TextBox, error)
}

// BasicProvider uses basicfont.Face7x13 for deterministic tests; the
// requested size is ignored.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	asc, desc := float64(m.Ascent.Round()), float64(m.Descent.Round())
	gap := float64(m.Height.Round()) - asc - desc
	if gap < 0 {
		gap = 0
	}
	return Metrics{Ascent: asc, Descent: desc, LineGap: gap}
}

// WordWrapLayouter breaks on spaces and explicit newlines; it does not
// shape or hyphenate. A word longer than maxWidth gets its own line.
type WordWrapLayouter struct{ Provider Provider }

func NewWordWrap(provider Provider) *WordWrapLayouter { return &WordWrapLayouter{Provider: provider} }

func (l *WordWrapLayouter) Layout(text string, spec FontSpec, maxWidth float64) (TextBox, error) {
	p := l.Provider
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(spec)
	d := &font.Drawer{Face: face}
	box := TextBox{Metrics: met}
	space := advance(d, " ")

	for _, para := range strings.Split(text, "\n") {
		var cur strings.Builder
		curW := 0.0
		flush := func() {
			box.Lines = append(box.Lines, Line{Text: cur.String(), Width: curW})
			if curW > box.Width {
				box.Width = curW
			}
			cur.Reset()
			curW = 0
		}
		for _, word := range strings.Fields(para) {
			w := advance(d, word)
			if cur.Len() > 0 && maxWidth > 0 && curW+space+w > maxWidth {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
				curW += space
			}
			cur.WriteString(word)
			curW += w
		}
		flush()
	}
	box.Height = float64(len(box.Lines)) * met.LineHeight()
	return box, nil
}

func advance(d *font.Drawer, s string) float64 {
	return float64(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
}

// Measure returns the single-line width and line height of text.
func Measure(provider Provider, spec FontSpec, text string) (w, h float64) {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	return advance(&font.Drawer{Face: face}, text), met.Ascent + met.Descent
}

// LineOffset returns the x offset of a line of width lineW inside boxW for
// the given alignment (left, center, right; justify is treated as left).
func LineOffset(align string, boxW, lineW float64) float64 {
	switch strings.ToLower(align) {
	case "center":
		return (boxW - lineW) / 2
	case "right":
		return boxW - lineW
	default:
		return 0
	}
}

// WeightFromString maps CSS-like weights ("normal", "bold", "600") to 100..900.
func WeightFromString(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "regular":
		return 400
	case "bold":
		return 700
	case "bolder":
		return 800
	case "lighter", "light":
		return 300
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 100 && n <= 900 {
		return n
	}
	return 400
}
