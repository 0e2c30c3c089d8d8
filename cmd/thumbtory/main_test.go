/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"thumbtory/internal/auth"
	"thumbtory/internal/backend"
	"thumbtory/internal/config"
	"thumbtory/internal/editor"
	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
	"thumbtory/internal/textlayout"
)

type memStore struct{ m map[string]string }

func (s *memStore) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (s *memStore) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}

func (s *memStore) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}

func isolate(t *testing.T) *memStore {
	t.Helper()
	t.Setenv(config.EnvConfigDir, t.TempDir())
	t.Setenv(config.EnvTelemetryOptIn, "")
	t.Setenv(config.EnvLogLevel, "error")
	st := &memStore{m: map[string]string{}}
	t.Cleanup(config.SetTokenStore(st))
	return st
}

func cli(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(args, &out)
	return code, out.String()
}

func seedTemplate(t *testing.T, root, name string) {
	t.Helper()
	ws, err := storage.OpenWorkspace(root)
	if err != nil {
		t.Fatal(err)
	}
	tpl := storage.Template{
		Version:    storage.TemplateVersion,
		Name:       name,
		Background: scene.ColorBackground("#0f172a"),
		Elements: []scene.Element{
			{ID: "t", X: 60, Y: 60, ScaleX: 1, ScaleY: 1, Opacity: 1,
				Body: scene.Text{Text: "Hello world", FontFamily: "Go", FontSize: 48, Fill: "#ffffff"}},
		},
		SEO: &scene.SEO{Title: "Launch", Keywords: []string{"launch"}},
	}
	if _, err := storage.SaveTemplate(context.Background(), ws, tpl); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestUsageAndVersion(t *testing.T) {
	isolate(t)
	if code, out := cli(t); code != 0 || !strings.Contains(out, "Usage:") {
		t.Fatalf("no args: %d %q", code, out)
	}
	if code, out := cli(t, "version"); code != 0 || !strings.HasPrefix(out, "thumbtory ") {
		t.Fatalf("version: %d %q", code, out)
	}
	if code, _ := cli(t, "bogus"); code != 2 {
		t.Fatalf("unknown command should exit 2, got %d", code)
	}
	if code, _ := cli(t, "render"); code != 2 {
		t.Fatalf("render without args should exit 2, got %d", code)
	}
	if code, out := cli(t, "presets"); code != 0 || !strings.Contains(out, "youtube") || !strings.Contains(out, "1280x720") {
		t.Fatalf("presets: %d %q", code, out)
	}
}

func TestInitTemplatesRender(t *testing.T) {
	isolate(t)
	root := filepath.Join(t.TempDir(), "ws")
	if code, out := cli(t, "init", root); code != 0 {
		t.Fatalf("init: %d %q", code, out)
	}
	seedTemplate(t, root, "Launch Day")

	if code, out := cli(t, "templates", root); code != 0 || !strings.Contains(out, "Launch Day") {
		t.Fatalf("templates: %d %q", code, out)
	}
	if code, out := cli(t, "templates", root, "hello"); code != 0 || !strings.Contains(out, "Launch Day") {
		t.Fatalf("search: %d %q", code, out)
	}

	outDir := t.TempDir()
	code, out := cli(t, "render", root, "Launch Day", "-preset", "instagram", "-out", outDir, "-bundle")
	if code != 0 {
		t.Fatalf("render: %d %q", code, out)
	}
	files, _ := os.ReadDir(outDir)
	var images, zips int
	for _, f := range files {
		switch filepath.Ext(f.Name()) {
		case ".zip":
			zips++
		case ".jpg", ".jpeg", ".png", ".webp":
			images++
		}
	}
	if images != 1 || zips != 1 {
		t.Fatalf("outputs = %v", files)
	}
	if code, _ := cli(t, "render", root, "missing"); code != 1 {
		t.Fatalf("missing template should exit 1, got %d", code)
	}
}

func TestPackExportInstall(t *testing.T) {
	isolate(t)
	src, dst := filepath.Join(t.TempDir(), "a"), filepath.Join(t.TempDir(), "b")
	cli(t, "init", src)
	cli(t, "init", dst)
	seedTemplate(t, src, "Promo")
	zipPath := filepath.Join(t.TempDir(), "promo.zip")
	if code, out := cli(t, "pack", "export", src, zipPath); code != 0 || !strings.Contains(out, "Exported 1") {
		t.Fatalf("pack export: %d %q", code, out)
	}
	if code, out := cli(t, "pack", "install", dst, zipPath); code != 0 || !strings.Contains(out, "Installed 1") {
		t.Fatalf("pack install: %d %q", code, out)
	}
	if code, out := cli(t, "pack", "install", dst, zipPath); code != 0 || !strings.Contains(out, "skipped 1") {
		t.Fatalf("second install: %d %q", code, out)
	}
}

func TestRemoteLoginPushPull(t *testing.T) {
	st := isolate(t)
	a, err := auth.NewAuthority([]byte("0123456789abcdef-test-secret"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	srv := backend.NewServer(backend.NewMemoryStore(), a, &editor.Renderer{Width: 640, Height: 360, Fonts: textlayout.BasicProvider{}})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()
	t.Setenv(config.EnvBackendURL, ts.URL)

	if code, out := cli(t, "remote", "login", "alice"); code != 0 || !strings.Contains(out, "Token stored") {
		t.Fatalf("login: %d %q", code, out)
	}
	if len(st.m) != 1 {
		t.Fatalf("token not stored: %v", st.m)
	}

	src, dst := filepath.Join(t.TempDir(), "a"), filepath.Join(t.TempDir(), "b")
	cli(t, "init", src)
	cli(t, "init", dst)
	seedTemplate(t, src, "Shared Banner")
	if code, out := cli(t, "remote", "push", src, "Shared Banner"); code != 0 || !strings.Contains(out, "version 1") {
		t.Fatalf("push: %d %q", code, out)
	}
	if code, out := cli(t, "remote", "list", "hello"); code != 0 || !strings.Contains(out, "Shared Banner") || !strings.Contains(out, "alice") {
		t.Fatalf("list: %d %q", code, out)
	}
	if code, out := cli(t, "remote", "pull", dst, "shared banner"); code != 0 || !strings.Contains(out, "Saved") {
		t.Fatalf("pull: %d %q", code, out)
	}
	ws, _ := storage.OpenWorkspace(dst)
	if _, err := storage.LoadTemplate(ws, "Shared Banner"); err != nil {
		t.Fatalf("pulled template: %v", err)
	}
}
