/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package assets decodes image sources referenced by the scene (data URLs and
// local files) and caches the results. Decoding runs off the editor thread;
// completions are handed back through a schedule.Queue.
package assets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	applog "thumbtory/internal/log"
	"thumbtory/internal/schedule"
)

// ErrDecode marks a source that could not be read or decoded.
var ErrDecode = errors.New("image decode failed")

type entry struct {
	img     image.Image
	err     error
	loading bool
	waiters []func(image.Image, error)
}

// Loader caches decoded images by source string.
type Loader struct {
	mu    sync.Mutex
	cache map[string]*entry
	q     schedule.Queue
	log   *slog.Logger
	// fetch reads raw bytes for a source; replaced in tests.
	fetch func(src string) ([]byte, error)
}

// NewLoader creates a loader whose async completions are posted to q.
func NewLoader(q schedule.Queue) *Loader {
	if q == nil {
		q = schedule.Inline{}
	}
	return &Loader{cache: map[string]*entry{}, q: q, log: applog.WithComponent("assets"), fetch: readSource}
}

// Cached returns a finished decode without blocking. done is false while the
// source is unknown or still loading.
func (l *Loader) Cached(src string) (img image.Image, done bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[src]
	if !ok || e.loading {
		return nil, false, nil
	}
	return e.img, true, e.err
}

// Load decodes src synchronously, using the cache when possible.
func (l *Loader) Load(src string) (image.Image, error) {
	if img, done, err := l.Cached(src); done {
		return img, err
	}
	img, err := l.decode(src)
	l.store(src, img, err)
	return img, err
}

// Request decodes src in the background and posts cb to the queue when it
// finishes. A cached result is posted right away. It reports whether a new
// decode was started.
func (l *Loader) Request(src string, cb func(image.Image, error)) bool {
	l.mu.Lock()
	e, ok := l.cache[src]
	if ok && !e.loading {
		img, err := e.img, e.err
		l.mu.Unlock()
		if cb != nil {
			l.q.Post(func() { cb(img, err) })
		}
		return false
	}
	if ok {
		if cb != nil {
			e.waiters = append(e.waiters, cb)
		}
		l.mu.Unlock()
		return false
	}
	e = &entry{loading: true}
	if cb != nil {
		e.waiters = append(e.waiters, cb)
	}
	l.cache[src] = e
	l.mu.Unlock()

	go func() {
		img, err := l.decode(src)
		waiters := l.store(src, img, err)
		for _, w := range waiters {
			w := w
			l.q.Post(func() { w(img, err) })
		}
	}()
	return true
}

// Forget drops a cached source.
func (l *Loader) Forget(src string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.cache[src]; ok && !e.loading {
		delete(l.cache, src)
	}
}

func (l *Loader) store(src string, img image.Image, err error) []func(image.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[src]
	if !ok {
		e = &entry{}
		l.cache[src] = e
	}
	e.img, e.err, e.loading = img, err, false
	w := e.waiters
	e.waiters = nil
	return w
}

func (l *Loader) decode(src string) (image.Image, error) {
	data, err := l.fetch(src)
	if err != nil {
		l.log.Warn("image source unreadable", slog.String("src", short(src)), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		l.log.Warn("image decode failed", slog.String("src", short(src)), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	l.log.Debug("image decoded", slog.String("src", short(src)), slog.String("format", format),
		slog.Int("w", img.Bounds().Dx()), slog.Int("h", img.Bounds().Dy()))
	return img, nil
}

// Decode reads and decodes a single source without caching.
func Decode(src string) (image.Image, error) {
	data, err := readSource(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func readSource(src string) ([]byte, error) {
	switch {
	case src == "":
		return nil, errors.New("empty source")
	case strings.HasPrefix(src, "data:"):
		return decodeDataURL(src)
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(u.Path)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return nil, fmt.Errorf("remote sources are not fetched: %s", short(src))
	default:
		return os.ReadFile(src)
	}
}

func decodeDataURL(src string) ([]byte, error) {
	comma := strings.IndexByte(src, ',')
	if comma < 0 {
		return nil, errors.New("malformed data url")
	}
	meta, payload := src[len("data:"):comma], src[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
			return b, nil
		}
		return base64.RawStdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	return []byte(s), err
}

// DataURL encodes raw bytes as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func short(src string) string {
	if len(src) > 48 {
		return src[:48] + "…"
	}
	return src
}
