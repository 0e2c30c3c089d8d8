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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thumbtory/internal/scene"
)

// BundleManifest is written as seo.json next to the images.
type BundleManifest struct {
	SEO     scene.SEO     `json:"seo"`
	Created time.Time     `json:"created"`
	Images  []BundleImage `json:"images"`
}

type BundleImage struct {
	File   string `json:"file"`
	Preset string `json:"preset"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
	SizeKB int    `json:"sizeKb"`
	Alt    string `json:"alt,omitempty"`
}

// WriteBundle packages results and an SEO manifest into a zip at outPath.
func WriteBundle(outPath string, results []Result, seo scene.SEO, date time.Time) error {
	if len(results) == 0 {
		return fmt.Errorf("bundle: nothing to write")
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	zw, f, err := createZip(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	seo = seo.Normalize()
	man := BundleManifest{SEO: seo, Created: date.UTC()}
	for _, r := range results {
		name := Filename(seo, r.Preset, date, r.Format.Ext())
		if err := addZipFile(zw, name, r.Data); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
		man.Images = append(man.Images, BundleImage{
			File: name, Preset: r.Preset.ID, Width: r.Width, Height: r.Height,
			Format: r.Format, SizeKB: r.SizeKB, Alt: seo.AltText,
		})
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, "seo.json", data); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create zip: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
