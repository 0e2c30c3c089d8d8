/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"thumbtory/internal/auth"
	"thumbtory/internal/editor"
	"thumbtory/internal/export"
	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
	"thumbtory/internal/textlayout"
)

func sampleTemplate(name string) storage.Template {
	return storage.Template{
		Version:    storage.TemplateVersion,
		Name:       name,
		Background: scene.ColorBackground("#ffffff"),
		Elements: []scene.Element{
			{ID: "t1", X: 40, Y: 40, ScaleX: 1, ScaleY: 1, Opacity: 1,
				Body: scene.Text{Text: "Hello world", FontFamily: "Go", FontSize: 32, Fill: "#111111", Width: 400}},
			{ID: "logo", X: 10, Y: 10, ScaleX: 1, ScaleY: 1, Opacity: 1,
				Body: scene.Shape{Shape: scene.Rectangle, Width: 100, Height: 40, Fill: "#ff0000"}},
		},
		SEO: &scene.SEO{Keywords: []string{"launch"}},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *Server, *MemoryStore) {
	t.Helper()
	a, err := auth.NewAuthority([]byte("0123456789abcdef-test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	store := NewMemoryStore()
	srv := NewServer(store, a, &editor.Renderer{Width: 640, Height: 360, Fonts: textlayout.BasicProvider{}})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, srv, store
}

func authedClient(t *testing.T, ts *httptest.Server, subject string) *Client {
	t.Helper()
	c := NewClient(ts.URL+"/", "")
	if _, err := c.IssueToken(context.Background(), subject); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return c
}

func TestHealthReadyVersion(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready", "/version": "thumbtory "} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(b), want) {
			t.Fatalf("GET %s = %d %q", path, resp.StatusCode, b)
		}
	}
}

func TestPresetsArePublic(t *testing.T) {
	ts, _, _ := newTestServer(t)
	list, err := NewClient(ts.URL, "").Presets(context.Background())
	if err != nil {
		t.Fatalf("Presets: %v", err)
	}
	if len(list) != len(export.NewRegistry().All()) || list[0].ID != "youtube" {
		t.Fatalf("presets = %+v", list)
	}
}

func TestTemplatesRequireToken(t *testing.T) {
	ts, _, _ := newTestServer(t)
	_, err := NewClient(ts.URL, "").ListTemplates(context.Background(), storage.TemplateQuery{})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	_, err = NewClient(ts.URL, "garbage.token").ListTemplates(context.Background(), storage.TemplateQuery{})
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized || se.Message != "invalid token" {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t)
	c := authedClient(t, ts, "alice")
	ctx := context.Background()

	meta, err := c.PutTemplate(ctx, sampleTemplate("Launch Day"))
	if err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if meta.Slug != "launch-day" || meta.Version != 1 || meta.Owner != "alice" || meta.Elements != 2 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta, err = c.PutTemplate(ctx, sampleTemplate("Launch Day")); err != nil || meta.Version != 2 {
		t.Fatalf("second put version=%d err=%v", meta.Version, err)
	}
	_, _ = c.PutTemplate(ctx, sampleTemplate("Other"))

	env, err := c.GetTemplate(ctx, "Launch Day")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if env.Template.Name != "Launch Day" || len(env.Template.Elements) != 2 || env.Template.SavedAt == nil {
		t.Fatalf("template = %+v", env.Template)
	}
	if _, ok := env.Template.Elements[0].Body.(scene.Text); !ok {
		t.Fatalf("element body not decoded: %T", env.Template.Elements[0].Body)
	}

	all, err := c.ListTemplates(ctx, storage.TemplateQuery{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list all = %d err=%v", len(all), err)
	}
	hits, err := c.ListTemplates(ctx, storage.TemplateQuery{Text: "launch hello", Limit: 5})
	if err != nil || len(hits) != 2 {
		t.Fatalf("search = %+v err=%v", hits, err)
	}
	if hits, _ = c.ListTemplates(ctx, storage.TemplateQuery{Text: "day"}); len(hits) != 1 || hits[0].Slug != "launch-day" {
		t.Fatalf("search by name = %+v", hits)
	}

	if err := c.DeleteTemplate(ctx, "Launch Day"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := c.GetTemplate(ctx, "Launch Day"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.DeleteTemplate(ctx, "Launch Day"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be 404, got %v", err)
	}
}

func TestPutRejectsInvalidTemplates(t *testing.T) {
	ts, _, _ := newTestServer(t)
	c := authedClient(t, ts, "bob")
	put := func(path, body string) int {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+c.Token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT %s: %v", path, err)
		}
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	if code := put("/api/templates/x", `{"name":"x"}`); code != http.StatusBadRequest {
		t.Fatalf("missing elements: %d", code)
	}
	if code := put("/api/templates/x", `not json`); code != http.StatusBadRequest {
		t.Fatalf("malformed: %d", code)
	}
	if code := put("/api/templates/other", `{"name":"x","background":{},"elements":[]}`); code != http.StatusBadRequest {
		t.Fatalf("name mismatch: %d", code)
	}
	if code := put("/api/templates/x", `{"name":"x","background":{},"elements":[]}`); code != http.StatusOK {
		t.Fatalf("valid empty template: %d", code)
	}
}

func TestRenderStoredTemplate(t *testing.T) {
	ts, _, store := newTestServer(t)
	c := authedClient(t, ts, "carol")
	ctx := context.Background()
	if _, err := c.PutTemplate(ctx, sampleTemplate("Banner")); err != nil {
		t.Fatal(err)
	}
	out, err := c.Render(ctx, "instagram", RenderRequest{Template: "banner"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Preset != "instagram" || out.Size != "1080x1080" || out.ContentType != "image/jpeg" {
		t.Fatalf("render = %+v", out)
	}
	if len(out.Data) < 3 || out.Data[0] != 0xFF || out.Data[1] != 0xD8 {
		t.Fatalf("not a JPEG")
	}
	log := store.Renders()
	if len(log) != 1 || log[0].Subject != "carol" || log[0].Template != "Banner" || log[0].Preset != "instagram" {
		t.Fatalf("render log = %+v", log)
	}
}

func TestConcurrentRendersAreSerialized(t *testing.T) {
	ts, _, store := newTestServer(t)
	c := authedClient(t, ts, "frank")
	ctx := context.Background()
	if _, err := c.PutTemplate(ctx, sampleTemplate("Banner")); err != nil {
		t.Fatal(err)
	}
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.Render(ctx, "twitter", RenderRequest{Template: "banner"})
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if n := len(store.Renders()); n != 4 {
		t.Fatalf("render log has %d entries, want 4", n)
	}
}

func TestRenderAfterCloseFails(t *testing.T) {
	ts, srv, _ := newTestServer(t)
	c := authedClient(t, ts, "gina")
	srv.Close()
	tpl := sampleTemplate("Late")
	var se *StatusError
	if _, err := c.Render(context.Background(), "youtube", RenderRequest{Inline: &tpl}); !errors.As(err, &se) || se.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 after close, got %v", err)
	}
}

func TestRenderInlineFallsBackToDefaultPreset(t *testing.T) {
	ts, _, _ := newTestServer(t)
	c := authedClient(t, ts, "dave")
	tpl := sampleTemplate("Inline")
	out, err := c.Render(context.Background(), "myspace", RenderRequest{Inline: &tpl, Background: "transparent"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Preset != "youtube" || out.ContentType != "image/png" {
		t.Fatalf("render = %+v", out)
	}
}

func TestRenderErrors(t *testing.T) {
	ts, _, _ := newTestServer(t)
	c := authedClient(t, ts, "erin")
	ctx := context.Background()
	var se *StatusError
	if _, err := c.Render(ctx, "youtube", RenderRequest{}); !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("empty request: %v", err)
	}
	if _, err := c.Render(ctx, "youtube", RenderRequest{Template: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown template: %v", err)
	}
	bad := storage.Template{Name: "bad", Elements: []scene.Element{}}
	bad.Elements = append(bad.Elements, scene.Element{ID: "e", Opacity: 2, Body: scene.Shape{Shape: scene.Circle}})
	if _, err := c.Render(ctx, "youtube", RenderRequest{Inline: &bad}); !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("invalid inline template: %v", err)
	}
}

func TestIssueKeyGuardsTokens(t *testing.T) {
	ts, srv, _ := newTestServer(t)
	srv.IssueKey = "let-me-in"
	_, err := NewClient(ts.URL, "").IssueToken(context.Background(), "mallory")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/token", strings.NewReader(`{"subject":"ok"}`))
	req.Header.Set("X-Thumbtory-Key", "let-me-in")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key: %d", resp.StatusCode)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("migrations/0002_render_log.sql"); err != nil || v != 2 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("readme.sql"); err == nil {
		t.Fatalf("expected error for unversioned file")
	}
}

func TestPrefixTSQuery(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"Hello":              "hello:*",
		"launch  day!":       "launch:* & day:*",
		"a&b | c:* ('drop')": "ab:* & c:* & drop:*",
	}
	for in, want := range cases {
		if got := prefixTSQuery(in); got != want {
			t.Fatalf("prefixTSQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
