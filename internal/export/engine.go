/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"runtime/debug"
	"sort"
	"time"

	applog "thumbtory/internal/log"
	"thumbtory/internal/surface"
	"thumbtory/internal/vector"
)

// Failure is the typed export error. Reason is short and user facing.
type Failure struct {
	PresetID string
	Reason   string
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("export %s: %s: %v", f.PresetID, f.Reason, f.Err)
	}
	return fmt.Sprintf("export %s: %s", f.PresetID, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// Request selects a preset and optionally overrides the engine settings.
type Request struct {
	PresetID   string
	Fit        Fit
	Background BackgroundMode
}

// Result is one encoded image.
type Result struct {
	Preset Preset
	Fit    Fit
	Format Format
	Width  int
	Height int
	Data   []byte
	SizeKB int
	// Image is the composed raster before encoding.
	Image image.Image
	// Shifted lists elements moved into the safe zone.
	Shifted []string
}

func (r Result) DataURL() string { return DataURL(r.Format, r.Data) }

// BatchResult summarises ExportAll.
type BatchResult struct {
	Results   []Result
	Failures  []*Failure
	Succeeded int
	Failed    int
}

// Engine renders the live surface to platform presets.
type Engine struct {
	handle   *surface.Handle
	presets  *Registry
	settings Settings
	log      *slog.Logger
}

func NewEngine(h *surface.Handle, presets *Registry, s Settings) *Engine {
	if presets == nil {
		presets = NewRegistry()
	}
	return &Engine{handle: h, presets: presets, settings: s.normalized(), log: applog.WithComponent("export")}
}

func (e *Engine) Presets() *Registry { return e.presets }
func (e *Engine) Settings() Settings { return e.settings }

// Export captures the surface and produces one image for the requested
// preset. Every failure, including panics, comes back as *Failure.
func (e *Engine) Export(ctx context.Context, req Request) (res Result, err error) {
	preset, perr := e.presets.Resolve(req.PresetID)
	if perr != nil {
		e.log.Warn("export preset fallback", slog.Any("err", perr))
	}
	l := applog.WithOperation(e.log, "export").With(slog.String("preset", preset.ID))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{PresetID: preset.ID, Reason: "internal error", Err: fmt.Errorf("panic: %v", r)}
			l.Error("export panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
		if err != nil {
			l.Warn("export failed", slog.Any("err", err))
			return
		}
		l.Info("exported", slog.String("format", string(res.Format)), slog.Int("kb", res.SizeKB),
			slog.Duration("took", time.Since(start)))
	}()

	surf, err := e.handle.Get(ctx)
	if err != nil {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "surface not found", Err: err}
	}
	return e.render(surf, preset, req)
}

func (e *Engine) render(surf surface.Surface, preset Preset, req Request) (Result, error) {
	set := e.settings
	fit := req.Fit
	if fit == "" {
		fit = set.Fit
	}
	bgMode := req.Background
	if bgMode == "" {
		bgMode = set.Background
	}
	zoom := 1.0
	if preset.AlwaysFill {
		fit = FitCover
		zoom = set.AlwaysFillZoom
	}
	tw, th := preset.Width, preset.Height
	if tw <= 0 || th <= 0 {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "preset has no size"}
	}
	sw, sh := surf.Size()
	if sw <= 0 || sh <= 0 {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "empty capture", Err: surface.ErrEmptyCapture}
	}

	opts := surface.SnapshotOptions{PixelRatio: math.Max(MinPixelRatio, set.PixelRatio), OmitDefaultBackdrop: true}
	var shifted []string
	if preset.AlwaysFill {
		bounds := map[string]vector.Rect{}
		for _, o := range surf.Objects() {
			if o.Protected {
				continue
			}
			if b, ok := surf.Bounds(o.ID); ok {
				bounds[o.ID] = b
			}
		}
		p := CoverPlacement(float64(sw), float64(sh), float64(tw), float64(th), zoom)
		opts.Offsets = SafeZoneOffsets(bounds, p, float64(tw), float64(th), set.SafeZone)
		for id := range opts.Offsets {
			shifted = append(shifted, id)
		}
		sort.Strings(shifted)
	}

	capture, err := surf.Snapshot(opts)
	if err != nil {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "capture failed", Err: err}
	}
	if capture == nil || capture.Bounds().Empty() {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "empty capture", Err: surface.ErrEmptyCapture}
	}

	img := Compose(capture, tw, th, fit, bgMode.Fill(), zoom)
	format := FormatFor(bgMode)
	if preset.OutputFormat != "" {
		format = preset.OutputFormat
	}
	data, err := Encode(img, format, set.JPEGQuality)
	if err != nil {
		return Result{}, &Failure{PresetID: preset.ID, Reason: "encode failed", Err: err}
	}
	return Result{
		Preset: preset, Fit: fit, Format: format,
		Width: tw, Height: th,
		Data: data, SizeKB: EstimateKB(data),
		Image: img, Shifted: shifted,
	}, nil
}

// ExportAll exports every enabled preset. A failing preset never stops the
// others; the batch is only cut short when ctx ends.
func (e *Engine) ExportAll(ctx context.Context, req Request) BatchResult {
	var br BatchResult
	for _, p := range e.presets.Enabled() {
		if ctx.Err() != nil {
			br.Failures = append(br.Failures, &Failure{PresetID: p.ID, Reason: "cancelled", Err: ctx.Err()})
			br.Failed++
			continue
		}
		r := req
		r.PresetID = p.ID
		res, err := e.Export(ctx, r)
		if err != nil {
			var f *Failure
			if !errors.As(err, &f) {
				f = &Failure{PresetID: p.ID, Reason: "export failed", Err: err}
			}
			br.Failures = append(br.Failures, f)
			br.Failed++
			continue
		}
		br.Results = append(br.Results, res)
		br.Succeeded++
	}
	e.log.Info("batch export finished", slog.Int("ok", br.Succeeded), slog.Int("failed", br.Failed))
	return br
}
