/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"

	"thumbtory/internal/canvas"
	"thumbtory/internal/config"
	"thumbtory/internal/export"
	"thumbtory/internal/scene"
	"thumbtory/internal/textlayout"
)

// Renderer exports scenes without an interactive session. Each call builds
// a fresh off-screen surface, so a Renderer is safe for concurrent use.
type Renderer struct {
	Width, Height int
	Theme         canvas.Theme
	Presets       *export.Registry
	Settings      export.Settings
	Fonts         textlayout.Provider
}

// RendererFromConfig uses the editor canvas size and export defaults of c.
func RendererFromConfig(c config.AppConfig) *Renderer {
	return &Renderer{
		Width:    c.Editor.Width,
		Height:   c.Editor.Height,
		Theme:    canvas.ParseTheme(c.General.Theme),
		Presets:  export.RegistryFromConfig(c.Export),
		Settings: export.SettingsFromConfig(c.Export),
	}
}

func (r *Renderer) headless(sc scene.Scene) (*canvas.Headless, error) {
	w, h := r.Width, r.Height
	if w <= 0 || h <= 0 {
		d := config.Defaults().Editor
		w, h = d.Width, d.Height
	}
	fonts := r.Fonts
	if fonts == nil {
		fonts = textlayout.NewDefaultProvider()
	}
	m := scene.NewModel(nil)
	m.Replace(sc)
	hd := canvas.NewHeadless(m, w, h, r.Theme, fonts)
	if _, err := hd.Sync(); err != nil {
		hd.Close()
		return nil, err
	}
	return hd, nil
}

func (r *Renderer) engine(hd *canvas.Headless) *export.Engine {
	reg := r.Presets
	if reg == nil {
		reg = export.NewRegistry()
	}
	return export.NewEngine(hd.Handle, reg, r.Settings)
}

// Render exports sc for one preset.
func (r *Renderer) Render(ctx context.Context, sc scene.Scene, req export.Request) (export.Result, error) {
	hd, err := r.headless(sc)
	if err != nil {
		return export.Result{}, fmt.Errorf("render: %w", err)
	}
	defer hd.Close()
	return r.engine(hd).Export(ctx, req)
}

// RenderAll exports sc for every enabled preset.
func (r *Renderer) RenderAll(ctx context.Context, sc scene.Scene, req export.Request) (export.BatchResult, error) {
	hd, err := r.headless(sc)
	if err != nil {
		return export.BatchResult{}, fmt.Errorf("render: %w", err)
	}
	defer hd.Close()
	return r.engine(hd).ExportAll(ctx, req), nil
}
