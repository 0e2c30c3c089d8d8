/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"thumbtory/internal/scene"
)

// Sanitize lowercases s and collapses every run of characters other than
// ASCII letters and digits into a single '-', trimming the ends.
func Sanitize(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// imageExts are the suffixes Filename drops from an SEO filename. Other dots
// are part of the name.
var imageExts = []string{".png", ".jpg", ".jpeg", ".webp"}

func trimImageExt(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, e := range imageExts {
		if strings.HasSuffix(lower, e) {
			return s[:len(s)-len(e)]
		}
	}
	return s
}

// Filename builds {name}-{preset}-{w}x{h}-{YYYY-MM-DD}.{ext}. The name is
// the sanitized SEO filename, or "thumbnail" when that is empty.
func Filename(seo scene.SEO, p Preset, date time.Time, ext string) string {
	name := Sanitize(trimImageExt(seo.Filename))
	if name == "" {
		name = "thumbnail"
	}
	return fmt.Sprintf("%s-%s-%dx%d-%s.%s", name, p.ID, p.Width, p.Height, date.Format("2006-01-02"), strings.TrimPrefix(ext, "."))
}

// WriteResults writes each result into dir using Filename and returns the
// written paths in result order.
func WriteResults(dir string, results []Result, seo scene.SEO, date time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	paths := make([]string, 0, len(results))
	for _, r := range results {
		p := filepath.Join(dir, Filename(seo, r.Preset, date, r.Format.Ext()))
		if err := os.WriteFile(p, r.Data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", filepath.Base(p), err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
