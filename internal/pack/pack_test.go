/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pack

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
)

func newWorkspace(t *testing.T) *storage.Workspace {
	t.Helper()
	ws, err := storage.InitWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return ws
}

func saveTemplate(t *testing.T, ws *storage.Workspace, name string) {
	t.Helper()
	s := scene.Scene{Elements: []scene.Element{{ID: "e1", ScaleX: 1, ScaleY: 1, Opacity: 1,
		Body: scene.Shape{Shape: scene.Circle, Width: 80, Height: 80, Fill: "#00ff00"}}}}
	if _, err := storage.SaveTemplate(context.Background(), ws, storage.TemplateFromScene(name, s, scene.SEO{})); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
}

func TestExportAndInstallPack(t *testing.T) {
	src := newWorkspace(t)
	saveTemplate(t, src, "Promo")
	saveTemplate(t, src, "Podcast Cover")

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	n, err := Export(src, zipPath)
	if err != nil || n != 2 {
		t.Fatalf("export pack: %d %v", n, err)
	}
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(r.File) != 3 {
		t.Fatalf("expected manifest + 2 templates, got %d entries", len(r.File))
	}
	_ = r.Close()

	dst := newWorkspace(t)
	res, err := Install(context.Background(), dst, zipPath)
	if err != nil {
		t.Fatalf("install pack: %v", err)
	}
	if len(res.Installed) != 2 {
		t.Fatalf("installed = %v", res)
	}
	if _, err := storage.LoadTemplate(dst, "podcast cover"); err != nil {
		t.Fatalf("expected template installed: %v", err)
	}
	hits, err := storage.SearchTemplates(context.Background(), dst.Root, storage.TemplateQuery{Text: "promo"})
	if err != nil || len(hits) != 1 {
		t.Fatalf("installed template should be indexed: %v %v", hits, err)
	}

	// a second install skips everything
	res, err = Install(context.Background(), dst, zipPath)
	if err != nil || len(res.Installed) != 0 || len(res.Skipped) != 2 {
		t.Fatalf("reinstall = %+v %v", res, err)
	}
}

func TestExportNamedMissing(t *testing.T) {
	ws := newWorkspace(t)
	if _, err := Export(ws, filepath.Join(t.TempDir(), "x.zip"), "nope"); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestInstallRejectsInvalidAndTraversal(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	entries := map[string]string{
		"../../escape.json":     `{"name":"Escape","background":{},"elements":[]}`,
		"templates/broken.json": `{"name":`,
		"readme.txt":            "ignored",
	}
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(body))
	}
	_ = zw.Close()
	_ = f.Close()

	ws := newWorkspace(t)
	res, err := Install(context.Background(), ws, zipPath)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(res.Installed) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("result = %+v", res)
	}
	// the traversal entry lands inside templates/ under its own name
	if _, err := os.Stat(ws.TemplatePath("Escape")); err != nil {
		t.Fatalf("expected escape.json inside templates: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(ws.Root), "escape.json")); err == nil {
		t.Fatalf("entry escaped the workspace")
	}
}
