/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestLoadDataURLAndFile(t *testing.T) {
	raw := pngBytes(t, 3, 2)
	l := NewLoader(nil)
	img, err := l.Load(DataURL("image/png", raw))
	if err != nil {
		t.Fatalf("data url: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	p := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(p); err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, done, err := l.Cached(p); !done || err != nil {
		t.Fatalf("file result should be cached")
	}
}

func TestLoadFailureIsDecodeError(t *testing.T) {
	l := NewLoader(nil)
	_, err := l.Load("data:image/png;base64,bm90IGFuIGltYWdl")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if _, err := Decode(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, ErrDecode) {
		t.Fatalf("missing file should be ErrDecode, got %v", err)
	}
}

func TestRequestCompletesOnQueue(t *testing.T) {
	l := NewLoader(nil)
	gate := make(chan struct{})
	l.fetch = func(src string) ([]byte, error) {
		<-gate
		return pngBytes(t, 1, 1), nil
	}
	got := make(chan error, 2)
	if !l.Request("x", func(_ image.Image, err error) { got <- err }) {
		t.Fatalf("first request should start a decode")
	}
	if l.Request("x", func(_ image.Image, err error) { got <- err }) {
		t.Fatalf("second request should join the running decode")
	}
	if _, done, _ := l.Cached("x"); done {
		t.Fatalf("should still be loading")
	}
	close(gate)
	for i := 0; i < 2; i++ {
		select {
		case err := <-got:
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not delivered", i)
		}
	}
}
