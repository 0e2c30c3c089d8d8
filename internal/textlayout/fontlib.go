/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFamily is the bundled family used when a requested family is unknown.
const DefaultFamily = "Go"

// FontLibrary stores parsed OpenType fonts keyed by family/bold/italic.
// Weights >= 600 resolve to the bold face.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[fontKey]*opentype.Font
}

type fontKey struct {
	family string
	bold   bool
	italic bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

var (
	defaultLibOnce sync.Once
	defaultLib     *FontLibrary
)

// DefaultLibrary returns a shared library preloaded with the Go font family.
func DefaultLibrary() *FontLibrary {
	defaultLibOnce.Do(func() {
		lib := NewFontLibrary()
		for _, v := range []struct {
			data         []byte
			bold, italic bool
		}{
			{goregular.TTF, false, false},
			{gobold.TTF, true, false},
			{goitalic.TTF, false, true},
			{gobolditalic.TTF, true, true},
		} {
			// bundled fonts always parse
			_ = lib.LoadBytes(DefaultFamily, v.bold, v.italic, v.data)
		}
		defaultLib = lib
	})
	return defaultLib
}

// LoadBytes parses font data into the library.
func (fl *FontLibrary) LoadBytes(family string, bold, italic bool, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	fl.fonts[fontKey{family: strings.ToLower(family), bold: bold, italic: italic}] = f
	return nil
}

// LoadTTF loads a font file into the library.
func (fl *FontLibrary) LoadTTF(family string, bold, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.LoadBytes(family, bold, italic, data)
}

// Families lists loaded family names.
func (fl *FontLibrary) Families() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for k := range fl.fonts {
		if !seen[k.family] {
			seen[k.family] = true
			out = append(out, k.family)
		}
	}
	return out
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	bold := spec.Weight >= 600
	fam := strings.ToLower(spec.Family)
	for _, k := range []fontKey{
		{fam, bold, spec.Italic},
		{fam, bold, false},
		{fam, false, false},
		{strings.ToLower(DefaultFamily), bold, spec.Italic},
		{strings.ToLower(DefaultFamily), false, false},
	} {
		if f, ok := fl.fonts[k]; ok {
			return f
		}
	}
	return nil
}

// OTProvider resolves FontSpec through a FontLibrary and falls back to
// another Provider when nothing matches.
type OTProvider struct {
	Lib      *FontLibrary
	Fallback Provider
}

// NewDefaultProvider resolves against DefaultLibrary.
func NewDefaultProvider() OTProvider { return OTProvider{Lib: DefaultLibrary()} }

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = 16
	}
	if f := p.Lib.find(spec); f != nil {
		// DPI 72 makes Size a pixel size.
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: 72, Hinting: font.HintingNone})
		if err == nil {
			return face, metricsOf(face)
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}
