/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"thumbtory/internal/config"
	"thumbtory/internal/scene"
	"thumbtory/internal/surface"
	"thumbtory/internal/textlayout"
	"thumbtory/internal/vector"
)

var red = vector.Color{R: 255, A: 255}

func rasterWith(w, h int, objs ...surface.Object) *surface.Raster {
	r := surface.NewRaster(w, h, textlayout.BasicProvider{})
	for _, o := range objs {
		_ = r.Add(o)
	}
	return r
}

func box(id string, x, y, w, h float64) surface.Object {
	return surface.Object{ID: id, Kind: surface.KindRect, X: x, Y: y, Width: w, Height: h, Opacity: 1, Fill: red}
}

func at(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	p, err := r.Resolve("myspace")
	if !errors.Is(err, ErrInvalidPreset) {
		t.Fatalf("expected ErrInvalidPreset, got %v", err)
	}
	if p.ID != "youtube" || p.Width != 1280 || p.Height != 720 {
		t.Fatalf("fallback = %+v", p)
	}
	wp, err := r.Resolve("WordPress")
	if err != nil || !wp.AlwaysFill || wp.Width != 1200 || wp.Height != 628 {
		t.Fatalf("wordpress = %+v %v", wp, err)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	c := config.Defaults().Export
	c.EnabledPresets = []string{"tiktok", "instagram"}
	c.DefaultPreset = "instagram"
	r := RegistryFromConfig(c)
	var ids []string
	for _, p := range r.Enabled() {
		ids = append(ids, p.ID)
	}
	if strings.Join(ids, ",") != "instagram,tiktok" {
		t.Fatalf("enabled = %v", ids)
	}
	if r.Default().ID != "instagram" {
		t.Fatalf("default = %s", r.Default().ID)
	}
	if len(r.All()) != 8 {
		t.Fatalf("expected 8 presets, got %d", len(r.All()))
	}
}

func TestSettingsClampQualityAndRatio(t *testing.T) {
	s := Settings{JPEGQuality: 50, PixelRatio: 1, Fit: "weird", Background: "neon"}.normalized()
	if s.JPEGQuality < MinJPEGQuality || s.PixelRatio != MinPixelRatio || s.Fit != FitContain || s.Background != BackgroundWhite {
		t.Fatalf("normalized = %+v", s)
	}
}

func TestScale(t *testing.T) {
	if k := Scale(FitContain, 100, 100, 1200, 628); k != 6.28 {
		t.Fatalf("contain = %v", k)
	}
	if k := Scale(FitCover, 100, 100, 1200, 628); k != 12 {
		t.Fatalf("cover = %v", k)
	}
}

func TestComposeContainTransparent(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i-3], src.Pix[i] = 255, 255
	}
	img := Compose(src, 1200, 628, FitContain, BackgroundTransparent.Fill(), 1)
	if b := img.Bounds(); b.Dx() != 1200 || b.Dy() != 628 {
		t.Fatalf("size = %v", b)
	}
	if c := at(img, 10, 314); c.A != 0 {
		t.Fatalf("padding should be transparent, got %v", c)
	}
	if c := at(img, 600, 314); c.A != 255 || c.R < 250 {
		t.Fatalf("source area should be opaque red, got %v", c)
	}
}

func TestComposeCoverFillsTarget(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}
	img := Compose(src, 1200, 628, FitCover, BackgroundTransparent.Fill(), 1)
	for _, p := range []image.Point{{0, 0}, {1199, 0}, {0, 627}, {1199, 627}} {
		if at(img, p.X, p.Y).A != 255 {
			t.Fatalf("cover must not pad, corner %v transparent", p)
		}
	}
}

func TestSafeZoneScenario(t *testing.T) {
	p := CoverPlacement(1280, 720, 1200, 628, 1)
	offs := SafeZoneOffsets(map[string]vector.Rect{"t": vector.R(10, 10, 100, 40)}, p, 1200, 628, 0.15)
	d, ok := offs["t"]
	if !ok {
		t.Fatalf("element near the edge must be shifted")
	}
	x := p.OffsetX + (10+d.X)*p.K
	y := p.OffsetY + (10+d.Y)*p.K
	if math.Abs(x-180) > 1e-9 || math.Abs(y-94.2) > 1e-9 {
		t.Fatalf("relocated to (%v, %v), want (180, 94.2)", x, y)
	}
	// already inside: no entry
	offs = SafeZoneOffsets(map[string]vector.Rect{"c": vector.R(600, 300, 50, 50)}, p, 1200, 628, 0.15)
	if len(offs) != 0 {
		t.Fatalf("inner element should not move: %v", offs)
	}
}

func TestSafeZoneShiftIsMinimalPerAxis(t *testing.T) {
	// only the right edge offends; y is untouched
	d := SafeZoneShift(vector.R(1100, 300, 50, 20), 1200, 628, 0.15)
	if d.X != -130 || d.Y != 0 {
		t.Fatalf("shift = %+v", d)
	}
	// wider than the interior: centred on x
	d = SafeZoneShift(vector.R(0, 300, 1000, 20), 1200, 628, 0.15)
	if d.X != 100 || d.Y != 0 {
		t.Fatalf("oversize shift = %+v", d)
	}
}

func TestExportWordpressRelocatesIntoSafeZone(t *testing.T) {
	r := rasterWith(1280, 720, box("logo", 10, 10, 100, 40))
	e := NewEngine(surface.Attached(r), nil, DefaultSettings())
	res, err := e.Export(context.Background(), Request{PresetID: "wordpress", Fit: FitContain})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Fit != FitCover {
		t.Fatalf("always-fill preset must force cover, got %s", res.Fit)
	}
	if len(res.Shifted) != 1 || res.Shifted[0] != "logo" {
		t.Fatalf("shifted = %v", res.Shifted)
	}
	if c := at(res.Image, 220, 110); c.R < 200 || c.G > 60 {
		t.Fatalf("logo should sit inside the safe zone, got %v", c)
	}
	if c := at(res.Image, 20, 10); c.R < 250 || c.G < 250 {
		t.Fatalf("original corner should show the white background, got %v", c)
	}
	if o, _ := r.Object("logo"); o.X != 10 {
		t.Fatalf("export must not move the live object")
	}
	if res.Format != FormatJPEG || !bytes.HasPrefix(res.Data, []byte{0xff, 0xd8}) {
		t.Fatalf("white background should encode jpeg")
	}
}

func TestExportShiftedIsSorted(t *testing.T) {
	r := rasterWith(1280, 720,
		box("zeta", 10, 10, 60, 30),
		box("alpha", 1200, 680, 60, 30),
		box("mid", 10, 680, 60, 30),
		box("centre", 600, 340, 60, 30))
	e := NewEngine(surface.Attached(r), nil, DefaultSettings())
	for i := 0; i < 5; i++ {
		res, err := e.Export(context.Background(), Request{PresetID: "wordpress"})
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if got := strings.Join(res.Shifted, ","); got != "alpha,mid,zeta" {
			t.Fatalf("shifted = %s", got)
		}
	}
}

func TestExportTransparentContainPNG(t *testing.T) {
	r := rasterWith(500, 500, box("sq", 0, 0, 500, 500))
	e := NewEngine(surface.Attached(r), nil, DefaultSettings())
	res, err := e.Export(context.Background(), Request{PresetID: "facebook", Fit: FitContain, Background: BackgroundTransparent})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Format != FormatPNG {
		t.Fatalf("transparent should be png, got %s", res.Format)
	}
	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 1200 || b.Dy() != 630 {
		t.Fatalf("size = %v", b)
	}
	if c := at(img, 5, 315); c.A != 0 {
		t.Fatalf("padding must have zero alpha, got %v", c)
	}
	if c := at(img, 600, 315); c.A != 255 {
		t.Fatalf("source area must be opaque, got %v", c)
	}
	if res.SizeKB != EstimateKB(res.Data) || !strings.HasPrefix(res.DataURL(), "data:image/png;base64,") {
		t.Fatalf("size or data url mismatch")
	}
}

func TestExportWebPAndDark(t *testing.T) {
	r := rasterWith(200, 100, box("a", 10, 10, 20, 20))
	e := NewEngine(surface.Attached(r), nil, DefaultSettings())
	res, err := e.Export(context.Background(), Request{PresetID: "youtube", Background: BackgroundWebP})
	if err != nil {
		t.Fatalf("webp: %v", err)
	}
	if res.Format != FormatWebP || !bytes.HasPrefix(res.Data, []byte("RIFF")) {
		t.Fatalf("expected a RIFF/WebP payload")
	}
	res, err = e.Export(context.Background(), Request{PresetID: "youtube", Background: BackgroundDark})
	if err != nil {
		t.Fatal(err)
	}
	if c := at(res.Image, 1279, 719); c.R != 0x18 || c.G != 0x18 || c.B != 0x1b {
		t.Fatalf("dark fill expected, got %v", c)
	}
}

func TestExportWithoutSurfaceFails(t *testing.T) {
	e := NewEngine(surface.NewHandle(10*time.Millisecond), nil, DefaultSettings())
	_, err := e.Export(context.Background(), Request{PresetID: "youtube"})
	var f *Failure
	if !errors.As(err, &f) || f.PresetID != "youtube" || f.Reason == "" {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if !errors.Is(err, surface.ErrSurfaceUnavailable) {
		t.Fatalf("failure should wrap ErrSurfaceUnavailable")
	}
}

func TestExportAllIsolatesFailures(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Preset{ID: "broken", DisplayName: "Broken", Width: 10, Height: 10, Enabled: true, OutputFormat: "tiff"}); err != nil {
		t.Fatal(err)
	}
	reg.SetEnabled([]string{"youtube", "broken", "instagram"})
	e := NewEngine(surface.Attached(rasterWith(320, 180, box("a", 0, 0, 10, 10))), reg, DefaultSettings())
	br := e.ExportAll(context.Background(), Request{})
	if br.Succeeded != 2 || br.Failed != 1 {
		t.Fatalf("batch = ok %d failed %d", br.Succeeded, br.Failed)
	}
	if br.Failures[0].PresetID != "broken" {
		t.Fatalf("failure should name the preset")
	}
}

func TestEstimateKB(t *testing.T) {
	if kb := EstimateKB(make([]byte, 1024)); kb != 2 {
		t.Fatalf("1024 bytes -> %d KB", kb)
	}
	if kb := EstimateKB(make([]byte, 3072)); kb != 3 {
		t.Fatalf("3072 bytes -> %d KB", kb)
	}
}

func TestFilenameConvention(t *testing.T) {
	p, _ := NewRegistry().Get("wordpress")
	day := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	if got := Filename(scene.SEO{Filename: "  My Great   Post!! "}, p, day, "jpg"); got != "my-great-post-wordpress-1200x628-2026-03-07.jpg" {
		t.Fatalf("got %s", got)
	}
	if got := Filename(scene.SEO{Filename: "%%%"}, p, day, ".png"); got != "thumbnail-wordpress-1200x628-2026-03-07.png" {
		t.Fatalf("got %s", got)
	}
	yt, _ := NewRegistry().Get("youtube")
	for in, want := range map[string]string{
		"v1.5 launch video": "v1-5-launch-video-youtube-1280x720-2026-03-07.jpg",
		"Top 10 tips vol.2": "top-10-tips-vol-2-youtube-1280x720-2026-03-07.jpg",
		"Banner.PNG":        "banner-youtube-1280x720-2026-03-07.jpg",
		"hero.final.webp":   "hero-final-youtube-1280x720-2026-03-07.jpg",
	} {
		if got := Filename(scene.SEO{Filename: in}, yt, day, "jpg"); got != want {
			t.Fatalf("Filename(%q) = %s, want %s", in, got, want)
		}
	}
	if got := Sanitize("Café--Ünïcode__2026"); got != "caf-n-code-2026" {
		t.Fatalf("sanitize = %s", got)
	}
}

func TestWriteResultsBundleAndProof(t *testing.T) {
	e := NewEngine(surface.Attached(rasterWith(320, 180, box("a", 0, 0, 50, 50))), nil, DefaultSettings())
	br := e.ExportAll(context.Background(), Request{})
	if br.Failed != 0 {
		t.Fatalf("batch failures: %v", br.Failures)
	}
	seo := scene.SEO{Filename: "launch", Title: "Launch", AltText: "A red square", Keywords: []string{"b", "a", "A"}}
	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	paths, err := WriteResults(filepath.Join(dir, "out"), br.Results, seo, day)
	if err != nil || len(paths) != br.Succeeded {
		t.Fatalf("write results: %v %v", paths, err)
	}
	if filepath.Base(paths[0]) != "launch-youtube-1280x720-2026-01-02.jpg" {
		t.Fatalf("first file = %s", filepath.Base(paths[0]))
	}

	zipPath := filepath.Join(dir, "bundle")
	if err := WriteBundle(zipPath, br.Results, seo, day); err != nil {
		t.Fatalf("bundle: %v", err)
	}
	zr, err := zip.OpenReader(zipPath + ".zip")
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var man BundleManifest
	for _, f := range zr.File {
		if f.Name != "seo.json" {
			continue
		}
		rc, _ := f.Open()
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		if err := json.Unmarshal(data, &man); err != nil {
			t.Fatal(err)
		}
	}
	if len(man.Images) != br.Succeeded || len(zr.File) != br.Succeeded+1 {
		t.Fatalf("bundle holds %d files, manifest %d images", len(zr.File), len(man.Images))
	}
	if strings.Join(man.SEO.Keywords, ",") != "a,b" {
		t.Fatalf("keywords should be a normalized set, got %v", man.SEO.Keywords)
	}

	pdfPath := filepath.Join(dir, "proof.pdf")
	if err := WriteProofSheet(pdfPath, br.Results, seo, day, ProofOptions{}); err != nil {
		t.Fatalf("proof: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("proof sheet is not a pdf: %v", err)
	}
}
