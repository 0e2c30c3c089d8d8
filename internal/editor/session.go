/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor ties the scene model, the canvas synchronizer and the
// export engine into one editing session. It is the layer the desktop UI
// and the CLI talk to.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"thumbtory/internal/assets"
	"thumbtory/internal/canvas"
	"thumbtory/internal/config"
	"thumbtory/internal/export"
	"thumbtory/internal/history"
	applog "thumbtory/internal/log"
	"thumbtory/internal/scene"
	"thumbtory/internal/schedule"
	"thumbtory/internal/storage"
	"thumbtory/internal/surface"
	"thumbtory/internal/telemetry"
	"thumbtory/internal/textlayout"
)

// DefaultPreviewDebounce is the quiet period before the preview is rebuilt.
const DefaultPreviewDebounce = 900 * time.Millisecond

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Width, Height int
	Theme         canvas.Theme
	SyncDebounce  time.Duration
	// PreviewDebounce is DefaultPreviewDebounce when zero; negative disables
	// automatic previews.
	PreviewDebounce time.Duration
	SurfaceWait     time.Duration
	SnapThreshold   float64
	History         history.Config
	Presets         *export.Registry
	Export          export.Settings
	// Workspace enables templates, autosave snapshots and the preview cache.
	Workspace *storage.Workspace
	Queue     schedule.Queue
	Fonts     textlayout.Provider
	// OnPreview receives every regenerated preview.
	OnPreview func(Preview)
	// Events replaces telemetry.Event.
	Events func(name string, props map[string]any)
}

// OptionsFromConfig maps the application config onto session options.
func OptionsFromConfig(c config.AppConfig) Options {
	return Options{
		Width:           c.Editor.Width,
		Height:          c.Editor.Height,
		Theme:           canvas.ParseTheme(c.General.Theme),
		SyncDebounce:    c.Editor.SyncDebounce(),
		PreviewDebounce: c.Editor.PreviewDebounce(),
		SurfaceWait:     c.Editor.SurfaceWait(),
		SnapThreshold:   c.Editor.SnapThreshold,
		History:         history.Config{MaxDepth: c.Editor.HistoryMaxDepth, MaxBytes: c.Editor.HistoryMaxBytes},
		Presets:         export.RegistryFromConfig(c.Export),
		Export:          export.SettingsFromConfig(c.Export),
	}
}

// Preview is the latest rendering of the default preset.
type Preview struct {
	Key    storage.PreviewKey
	Format string
	Data   []byte
	At     time.Time
}

// Session is one open editor.
type Session struct {
	opts   Options
	model  *scene.Model
	handle *surface.Handle
	sync   *canvas.Synchronizer
	engine *export.Engine
	prev   *schedule.Debouncer
	events func(string, map[string]any)
	log    *slog.Logger

	mu      sync.Mutex
	name    string // template the scene was loaded from or saved as
	preview Preview
	unsub   func()
	stop    context.CancelFunc
}

// New creates a session with an empty scene. The drawing surface is
// attached later through Handle, or immediately with AttachRaster.
func New(opts Options) *Session {
	if opts.Width <= 0 || opts.Height <= 0 {
		d := config.Defaults().Editor
		opts.Width, opts.Height = d.Width, d.Height
	}
	if opts.Queue == nil {
		opts.Queue = schedule.Inline{}
	}
	if opts.Presets == nil {
		opts.Presets = export.NewRegistry()
	}
	if opts.Fonts == nil {
		opts.Fonts = textlayout.NewDefaultProvider()
	}
	if opts.PreviewDebounce == 0 {
		opts.PreviewDebounce = DefaultPreviewDebounce
	}
	events := opts.Events
	if events == nil {
		events = telemetry.Event
	}
	m := scene.NewModel(history.NewManager(opts.History))
	h := surface.NewHandle(opts.SurfaceWait)
	s := &Session{
		opts:   opts,
		model:  m,
		handle: h,
		sync: canvas.New(m, h, assets.NewLoader(opts.Queue), opts.Queue, canvas.Options{
			Debounce:      opts.SyncDebounce,
			Theme:         opts.Theme,
			SnapThreshold: opts.SnapThreshold,
		}),
		engine: export.NewEngine(h, opts.Presets, opts.Export),
		events: events,
		log:    applog.WithComponent("editor"),
	}
	if opts.PreviewDebounce > 0 {
		s.prev = schedule.NewDebouncer(opts.Queue, opts.PreviewDebounce)
		s.unsub = m.Subscribe(s.onChange)
	}
	return s
}

// AttachRaster attaches an off-screen raster of the session size and
// returns it.
func (s *Session) AttachRaster() *surface.Raster {
	r := surface.NewRaster(s.opts.Width, s.opts.Height, s.opts.Fonts)
	s.handle.Attach(r)
	return r
}

func (s *Session) Model() *scene.Model                { return s.model }
func (s *Session) Handle() *surface.Handle            { return s.handle }
func (s *Session) Synchronizer() *canvas.Synchronizer { return s.sync }
func (s *Session) Engine() *export.Engine             { return s.engine }

// Name is the template name the session is bound to, if any.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Close stops background work and detaches from the model.
func (s *Session) Close() {
	s.mu.Lock()
	stop, unsub := s.stop, s.unsub
	s.stop, s.unsub = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if unsub != nil {
		unsub()
	}
	if s.prev != nil {
		s.prev.Cancel()
	}
	s.sync.Close()
}

// SetTheme switches the default backdrop.
func (s *Session) SetTheme(t canvas.Theme) { s.sync.SetTheme(t) }

// AddText adds a text element formatted by the named style preset. Unknown
// styles use Body.
func (s *Session) AddText(style, text string, x, y float64) (scene.Element, error) {
	st, ok := textlayout.GetStyle(style)
	if !ok {
		st, _ = textlayout.GetStyle("Body")
	}
	body := scene.Text{
		Text:       text,
		FontFamily: st.Font.Family,
		FontSize:   st.Font.Size,
		Fill:       st.Fill,
		FontWeight: st.FontWeight,
		TextAlign:  st.Align,
		Width:      st.WrapWidth,
	}
	if st.Font.Italic {
		body.FontStyle = "italic"
	}
	return s.model.AddElement(body, scene.Placement{X: x, Y: y})
}

// AddImage adds an image element; the source is decoded by the synchronizer.
func (s *Session) AddImage(src string, w, h, x, y float64) (scene.Element, error) {
	return s.model.AddElement(scene.Image{Src: src, Width: w, Height: h}, scene.Placement{X: x, Y: y})
}

// AddShape adds a filled shape.
func (s *Session) AddShape(kind scene.ShapeKind, w, h float64, fill string, x, y float64) (scene.Element, error) {
	return s.model.AddElement(scene.Shape{Shape: kind, Width: w, Height: h, Fill: fill}, scene.Placement{X: x, Y: y})
}

// Reorder moves id one step in the stacking order and restacks the surface
// immediately so the two never disagree.
func (s *Session) Reorder(id string, dir scene.Direction) (bool, error) {
	moved, err := s.model.Reorder(id, dir)
	if err != nil || !moved {
		return moved, err
	}
	s.sync.ApplyOrder()
	return true, nil
}

// Export renders one preset from the live surface.
func (s *Session) Export(ctx context.Context, req export.Request) (export.Result, error) {
	s.sync.Flush()
	return s.engine.Export(ctx, req)
}

// ExportAll renders every enabled preset and reports the batch to telemetry.
func (s *Session) ExportAll(ctx context.Context, req export.Request) export.BatchResult {
	s.sync.Flush()
	br := s.engine.ExportAll(ctx, req)
	s.events("export_batch", map[string]any{"ok": br.Succeeded, "failed": br.Failed})
	return br
}

// ExportToDir runs ExportAll and writes the images, plus the bundle and the
// proof sheet when asked, into dir.
func (s *Session) ExportToDir(ctx context.Context, dir string, req export.Request, bundle, proof bool) ([]string, export.BatchResult, error) {
	br := s.ExportAll(ctx, req)
	if len(br.Results) == 0 {
		return nil, br, fmt.Errorf("export to %s: no preset succeeded", dir)
	}
	paths, err := WriteOutputs(dir, br.Results, s.model.SEO(), time.Now(), bundle, proof)
	return paths, br, err
}

// WriteOutputs stores results in dir and returns every written path.
func WriteOutputs(dir string, results []export.Result, seo scene.SEO, date time.Time, bundle, proof bool) ([]string, error) {
	paths, err := export.WriteResults(dir, results, seo, date)
	if err != nil {
		return paths, err
	}
	base := filepath.Join(dir, export.Sanitize(bundleBase(seo)))
	if bundle {
		p := base + "-bundle.zip"
		if err := export.WriteBundle(p, results, seo, date); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	if proof {
		p := base + "-proof.pdf"
		if err := export.WriteProofSheet(p, results, seo, date, export.ProofOptions{}); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func bundleBase(seo scene.SEO) string {
	if seo.Filename != "" {
		return seo.Filename
	}
	return "thumbnail"
}

func (s *Session) onChange(c scene.Change) {
	if c.Kind == scene.ChangeSelection {
		return
	}
	s.prev.Trigger(func() {
		if _, err := s.RefreshPreview(context.Background()); err != nil {
			s.log.Warn("preview failed", slog.Any("err", err))
		}
	})
}

// RefreshPreview renders the default preset now, going through the
// workspace preview cache when there is one.
func (s *Session) RefreshPreview(ctx context.Context) (Preview, error) {
	s.sync.Flush()
	sc := s.model.Scene()
	blob, err := sc.Encode()
	if err != nil {
		return Preview{}, err
	}
	set := s.engine.Settings()
	key := storage.PreviewKey{
		SceneHash:  storage.SceneHash(blob),
		Preset:     s.engine.Presets().Default().ID,
		Fit:        string(set.Fit),
		Background: string(set.Background),
	}
	gen := func(ctx context.Context) ([]byte, string, error) {
		res, err := s.engine.Export(ctx, export.Request{PresetID: key.Preset})
		if err != nil {
			return nil, "", err
		}
		return res.Data, string(res.Format), nil
	}
	var (
		data   []byte
		format string
	)
	if ws := s.opts.Workspace; ws != nil {
		data, format, err = storage.GetOrCreatePreview(ctx, ws.Root, key, gen)
	} else {
		data, format, err = gen(ctx)
	}
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Key: key, Format: format, Data: data, At: time.Now()}
	s.mu.Lock()
	s.preview = p
	s.mu.Unlock()
	if s.opts.OnPreview != nil {
		s.opts.OnPreview(p)
	}
	return p, nil
}

// Preview returns the last generated preview.
func (s *Session) Preview() (Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview, s.preview.Data != nil
}

// ErrNoWorkspace is returned by operations that need a workspace.
var ErrNoWorkspace = errors.New("no workspace open")

func (s *Session) workspace() (*storage.Workspace, error) {
	if s.opts.Workspace == nil {
		return nil, ErrNoWorkspace
	}
	return s.opts.Workspace, nil
}

// SaveTemplate stores the scene and SEO under name.
func (s *Session) SaveTemplate(ctx context.Context, name string) (string, error) {
	ws, err := s.workspace()
	if err != nil {
		return "", err
	}
	t := storage.TemplateFromScene(name, s.model.Scene(), s.model.SEO())
	path, err := storage.SaveTemplate(ctx, ws, t)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.name = t.Name
	s.mu.Unlock()
	s.events("template_saved", map[string]any{"elements": len(t.Elements)})
	return path, nil
}

// LoadTemplate replaces the scene with a stored template. The replacement
// can be undone.
func (s *Session) LoadTemplate(name string) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}
	t, err := storage.LoadTemplate(ws, name)
	if err != nil {
		return err
	}
	s.ApplyTemplate(t)
	return nil
}

// ApplyTemplate swaps in t's scene and SEO.
func (s *Session) ApplyTemplate(t storage.Template) {
	s.model.Replace(t.Scene())
	if t.SEO != nil {
		s.model.SetSEO(*t.SEO)
	}
	s.mu.Lock()
	s.name = t.Name
	s.mu.Unlock()
}

// Autosave writes a snapshot of the scene unless it is unchanged since the
// last one.
func (s *Session) Autosave(ctx context.Context) (bool, error) {
	ws, err := s.workspace()
	if err != nil {
		return false, err
	}
	return storage.SaveSnapshot(ctx, ws, s.model.Scene(), "autosave", time.Now())
}

// StartAutosave snapshots every interval and keeps the newest keep
// snapshots, until Close.
func (s *Session) StartAutosave(interval time.Duration, keep int) error {
	ws, err := s.workspace()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
	}
	s.stop = cancel
	s.mu.Unlock()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.Autosave(ctx); err != nil {
					s.log.Warn("autosave failed", slog.Any("err", err))
					continue
				}
				if keep > 0 {
					_, _ = storage.PruneOldSnapshots(ctx, ws, keep)
				}
			}
		}
	}()
	return nil
}

// RecoverLatest restores the newest autosave snapshot. It reports false
// when there is none.
func (s *Session) RecoverLatest(ctx context.Context) (bool, error) {
	ws, err := s.workspace()
	if err != nil {
		return false, err
	}
	snap, ok, err := storage.LatestSnapshot(ctx, ws)
	if err != nil || !ok {
		return false, err
	}
	s.model.Replace(snap.Scene)
	return true, nil
}

// CrashSave writes the scene as a recovery template. It is safe to call
// from a panic handler.
func (s *Session) CrashSave() (string, error) {
	ws, err := s.workspace()
	if err != nil {
		return "", err
	}
	return storage.AutosaveCrashTemplate(ws, s.model.Scene(), s.model.SEO())
}

// Notice turns an error into a short message for the status line.
func Notice(err error) string {
	var f *export.Failure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &f):
		return fmt.Sprintf("Export %s failed: %s", f.PresetID, f.Reason)
	case errors.Is(err, surface.ErrSurfaceUnavailable):
		return "Canvas is not ready yet"
	case errors.Is(err, assets.ErrDecode):
		return "Image could not be loaded"
	case errors.Is(err, scene.ErrNotFound):
		return "Element no longer exists"
	case errors.Is(err, export.ErrInvalidPreset):
		return "Unknown export preset"
	case errors.Is(err, storage.ErrTemplateNotFound):
		return "Template not found"
	case errors.Is(err, storage.ErrInvalidTemplate):
		return "Template file is invalid"
	case errors.Is(err, ErrNoWorkspace):
		return "Open a workspace first"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Operation cancelled"
	default:
		return "Something went wrong"
	}
}
