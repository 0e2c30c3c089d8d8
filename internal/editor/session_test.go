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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"thumbtory/internal/assets"
	"thumbtory/internal/export"
	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
	"thumbtory/internal/surface"
	"thumbtory/internal/textlayout"
)

type eventLog struct {
	mu    sync.Mutex
	names []string
	props []map[string]any
}

func (e *eventLog) record(name string, props map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	e.props = append(e.props, props)
}

func (e *eventLog) find(name string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, n := range e.names {
		if n == name {
			return e.props[i], true
		}
	}
	return nil, false
}

func newSession(t *testing.T, ws *storage.Workspace, opts Options) (*Session, *eventLog) {
	t.Helper()
	ev := &eventLog{}
	opts.Width, opts.Height = 640, 360
	opts.SyncDebounce = -1
	if opts.PreviewDebounce == 0 {
		opts.PreviewDebounce = -1
	}
	opts.Workspace = ws
	opts.Fonts = textlayout.BasicProvider{}
	opts.Events = ev.record
	s := New(opts)
	s.AttachRaster()
	t.Cleanup(s.Close)
	return s, ev
}

func newWorkspace(t *testing.T) *storage.Workspace {
	t.Helper()
	ws, err := storage.InitWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return ws
}

func TestAddTextUsesStylePreset(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	e, err := s.AddText("Heading", "Launch day", 10, 20)
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	txt := e.Body.(scene.Text)
	if txt.FontSize != 72 || txt.FontWeight != "bold" || txt.Width != 900 {
		t.Fatalf("heading style not applied: %+v", txt)
	}
	e, _ = s.AddText("Shouting", "fallback", 0, 0)
	if got := e.Body.(scene.Text).FontSize; got != 28 {
		t.Fatalf("unknown style should use Body (28), got %v", got)
	}
	e, _ = s.AddText("Caption", "small", 0, 0)
	if got := e.Body.(scene.Text).FontStyle; got != "italic" {
		t.Fatalf("caption should be italic, got %q", got)
	}
	if sel, _ := s.Model().Selected(); sel != e.ID {
		t.Fatalf("new element should be selected")
	}
}

func TestElementsReachTheSurface(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	e, err := s.AddShape(scene.Rectangle, 100, 50, "#ff0000", 30, 40)
	if err != nil {
		t.Fatalf("AddShape: %v", err)
	}
	surf, ok := s.Handle().Current()
	if !ok {
		t.Fatalf("surface not attached")
	}
	o, ok := surf.Object(e.ID)
	if !ok || o.Kind != surface.KindRect {
		t.Fatalf("surface object = %+v ok=%v", o, ok)
	}
}

func TestReorderRestacksSurface(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	a, _ := s.AddShape(scene.Rectangle, 100, 50, "#ff0000", 0, 0)
	b, _ := s.AddShape(scene.Circle, 100, 50, "#00ff00", 10, 10)
	surf, _ := s.Handle().Current()
	order := func() []string {
		var ids []string
		for _, o := range surf.Objects() {
			if !o.Protected {
				ids = append(ids, o.ID)
			}
		}
		return ids
	}
	if got := order(); len(got) != 2 || got[1] != b.ID {
		t.Fatalf("initial order = %v", got)
	}
	moved, err := s.Reorder(b.ID, scene.Down)
	if err != nil || !moved {
		t.Fatalf("Reorder moved=%v err=%v", moved, err)
	}
	if got := order(); got[0] != b.ID || got[1] != a.ID {
		t.Fatalf("surface order after reorder = %v", got)
	}
	if moved, _ := s.Reorder(b.ID, scene.Down); moved {
		t.Fatalf("bottommost element should not move down")
	}
}

func TestExportAllReportsBatch(t *testing.T) {
	s, ev := newSession(t, nil, Options{})
	if _, err := s.AddShape(scene.Rectangle, 200, 100, "#2563eb", 50, 50); err != nil {
		t.Fatal(err)
	}
	br := s.ExportAll(context.Background(), export.Request{})
	if br.Failed != 0 || br.Succeeded != len(export.NewRegistry().Enabled()) {
		t.Fatalf("batch = ok %d failed %d (%v)", br.Succeeded, br.Failed, br.Failures)
	}
	props, ok := ev.find("export_batch")
	if !ok || props["ok"] != br.Succeeded {
		t.Fatalf("export_batch event missing or wrong: %v", props)
	}
}

func TestExportToDirWritesBundleAndProof(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	_, _ = s.AddShape(scene.Circle, 120, 120, "#16a34a", 100, 100)
	s.Model().SetSEO(scene.SEO{Filename: "Spring Sale", Keywords: []string{"sale"}})
	dir := t.TempDir()
	paths, br, err := s.ExportToDir(context.Background(), dir, export.Request{}, true, true)
	if err != nil {
		t.Fatalf("ExportToDir: %v", err)
	}
	if len(paths) != br.Succeeded+2 {
		t.Fatalf("expected %d files, got %v", br.Succeeded+2, paths)
	}
	for _, want := range []string{"spring-sale-bundle.zip", "spring-sale-proof.pdf"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Fatalf("missing %s: %v", want, err)
		}
	}
}

func TestPreviewRegeneratesAfterQuietPeriod(t *testing.T) {
	got := make(chan Preview, 4)
	s, _ := newSession(t, nil, Options{
		PreviewDebounce: 20 * time.Millisecond,
		OnPreview:       func(p Preview) { got <- p },
	})
	_, _ = s.AddShape(scene.Rectangle, 10, 10, "#000000", 0, 0)
	_, _ = s.AddShape(scene.Rectangle, 10, 10, "#000000", 20, 0)
	select {
	case p := <-got:
		if len(p.Data) == 0 || p.Key.Preset != export.DefaultPresetID {
			t.Fatalf("preview = %+v", p.Key)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("preview was not regenerated")
	}
	if _, ok := s.Preview(); !ok {
		t.Fatalf("Preview() should return the last rendering")
	}
}

func TestRefreshPreviewUsesWorkspaceCache(t *testing.T) {
	ws := newWorkspace(t)
	s, _ := newSession(t, ws, Options{})
	_, _ = s.AddShape(scene.Triangle, 80, 80, "#f59e0b", 10, 10)
	ctx := context.Background()
	p1, err := s.RefreshPreview(ctx)
	if err != nil {
		t.Fatalf("RefreshPreview: %v", err)
	}
	total, err := storage.TotalPreviewBytes(ctx, ws.Root)
	if err != nil || total != int64(len(p1.Data)) {
		t.Fatalf("cache bytes = %d err=%v, want %d", total, err, len(p1.Data))
	}
	p2, err := s.RefreshPreview(ctx)
	if err != nil || p2.Key != p1.Key || string(p2.Data) != string(p1.Data) {
		t.Fatalf("second preview should come from cache (err=%v)", err)
	}
}

func TestSaveAndLoadTemplate(t *testing.T) {
	ws := newWorkspace(t)
	s, ev := newSession(t, ws, Options{})
	_, _ = s.AddText("Heading", "Hello", 10, 10)
	s.Model().SetSEO(scene.SEO{Title: "Hello"})
	ctx := context.Background()
	if _, err := s.SaveTemplate(ctx, "Launch"); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if _, ok := ev.find("template_saved"); !ok {
		t.Fatalf("template_saved event missing")
	}

	s2, _ := newSession(t, ws, Options{})
	if err := s2.LoadTemplate("Launch"); err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if n := len(s2.Model().Scene().Elements); n != 1 {
		t.Fatalf("loaded %d elements", n)
	}
	if s2.Name() != "Launch" || s2.Model().SEO().Title != "Hello" {
		t.Fatalf("name=%q seo=%+v", s2.Name(), s2.Model().SEO())
	}
	if !s2.Model().Undo() || len(s2.Model().Scene().Elements) != 0 {
		t.Fatalf("template load should be undoable")
	}
	if err := s2.LoadTemplate("missing"); !errors.Is(err, storage.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestAutosaveAndRecover(t *testing.T) {
	ws := newWorkspace(t)
	s, _ := newSession(t, ws, Options{})
	_, _ = s.AddShape(scene.Rectangle, 40, 40, "#111111", 5, 5)
	ctx := context.Background()
	wrote, err := s.Autosave(ctx)
	if err != nil || !wrote {
		t.Fatalf("first autosave wrote=%v err=%v", wrote, err)
	}
	if wrote, _ = s.Autosave(ctx); wrote {
		t.Fatalf("unchanged scene should not be saved twice")
	}
	s.Model().Clear()
	ok, err := s.RecoverLatest(ctx)
	if err != nil || !ok {
		t.Fatalf("RecoverLatest ok=%v err=%v", ok, err)
	}
	if len(s.Model().Scene().Elements) != 1 {
		t.Fatalf("scene not restored")
	}
	path, err := s.CrashSave()
	if err != nil || !strings.Contains(path, "crash-") {
		t.Fatalf("CrashSave path=%q err=%v", path, err)
	}
}

func TestWorkspaceOperationsNeedWorkspace(t *testing.T) {
	s, _ := newSession(t, nil, Options{})
	if _, err := s.SaveTemplate(context.Background(), "x"); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
	if err := s.StartAutosave(time.Second, 3); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestNotice(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&export.Failure{PresetID: "youtube", Reason: "surface not found"}, "Export youtube failed: surface not found"},
		{fmt.Errorf("wrap: %w", surface.ErrSurfaceUnavailable), "Canvas is not ready yet"},
		{fmt.Errorf("x: %w", assets.ErrDecode), "Image could not be loaded"},
		{scene.ErrNotFound, "Element no longer exists"},
		{storage.ErrInvalidTemplate, "Template file is invalid"},
		{ErrNoWorkspace, "Open a workspace first"},
		{errors.New("boom"), "Something went wrong"},
	}
	for _, c := range cases {
		if got := Notice(c.err); got != c.want {
			t.Fatalf("Notice(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestRendererExportsScene(t *testing.T) {
	sc := scene.Scene{
		Background: scene.ColorBackground("#ffffff"),
		Elements: []scene.Element{{
			ID: "r1", X: 100, Y: 100, ScaleX: 1, ScaleY: 1, Opacity: 1,
			Body: scene.Shape{Shape: scene.Rectangle, Width: 300, Height: 200, Fill: "#dc2626"},
		}},
	}
	r := &Renderer{Width: 1280, Height: 720, Fonts: textlayout.BasicProvider{}}
	res, err := r.Render(context.Background(), sc, export.Request{PresetID: "instagram"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != 1080 || res.Height != 1080 || len(res.Data) == 0 {
		t.Fatalf("result %dx%d (%d bytes)", res.Width, res.Height, len(res.Data))
	}
	br, err := r.RenderAll(context.Background(), sc, export.Request{})
	if err != nil || br.Failed != 0 || br.Succeeded == 0 {
		t.Fatalf("RenderAll ok=%d failed=%d err=%v", br.Succeeded, br.Failed, err)
	}
}
