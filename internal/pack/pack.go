/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pack moves templates between workspaces as zip archives.
package pack

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	applog "thumbtory/internal/log"
	"thumbtory/internal/storage"
	"thumbtory/internal/version"
)

// ManifestName is the human readable note at the root of every pack.
const ManifestName = "pack.manifest.txt"

// maxEntryBytes bounds a single template inside a pack.
const maxEntryBytes = 8 << 20

// Export zips the named templates (all templates when names is empty) into
// destZipPath. Entries live under templates/ next to a small manifest.
// It returns the number of templates written.
func Export(ws *storage.Workspace, destZipPath string, names ...string) (int, error) {
	if ws == nil {
		return 0, errors.New("workspace is required")
	}
	if strings.TrimSpace(destZipPath) == "" {
		return 0, errors.New("destZipPath is required")
	}
	l := applog.WithOperation(applog.WithComponent("pack"), "export").With(slog.String("workspace", ws.Root))

	var files []string
	if len(names) == 0 {
		infos, err := storage.ListTemplates(ws)
		if err != nil {
			return 0, err
		}
		for _, in := range infos {
			files = append(files, in.Path)
		}
	} else {
		for _, n := range names {
			p := ws.TemplatePath(n)
			if _, err := os.Stat(p); err != nil {
				return 0, fmt.Errorf("%w: %q", storage.ErrTemplateNotFound, n)
			}
			files = append(files, p)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destZipPath), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	// Windows will not create over an open handle
	_ = os.Remove(destZipPath)
	zf, err := os.Create(destZipPath)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("Thumbtory template pack\nCreated: %s\nApp: %s\nTemplates: %d\n",
		time.Now().Format(time.RFC3339), version.String(), len(files))
	w, err := zw.Create(ManifestName)
	if err != nil {
		return 0, fmt.Errorf("add manifest: %w", err)
	}
	if _, err := w.Write([]byte(manifest)); err != nil {
		return 0, fmt.Errorf("write manifest: %w", err)
	}
	for _, p := range files {
		if err := addFile(zw, p, path.Join(storage.TemplatesDirName, filepath.Base(p))); err != nil {
			l.Error("zip build failed", slog.Any("err", err))
			return 0, fmt.Errorf("build zip: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip: %w", err)
	}
	l.Info("template pack exported", slog.Int("templates", len(files)), slog.String("zip", destZipPath))
	return len(files), nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fw, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// InstallResult reports what Install did.
type InstallResult struct {
	Installed []string
	Skipped   []string
	Rejected  []string
}

// Install extracts the templates of packZipPath into the workspace. Entries
// must be valid templates; existing templates are never overwritten. Every
// installed template is added to the index.
func Install(ctx context.Context, ws *storage.Workspace, packZipPath string) (InstallResult, error) {
	var res InstallResult
	if ws == nil {
		return res, errors.New("workspace is required")
	}
	if strings.TrimSpace(packZipPath) == "" {
		return res, errors.New("packZipPath is required")
	}
	l := applog.WithOperation(applog.WithComponent("pack"), "install").With(slog.String("workspace", ws.Root))
	if err := os.MkdirAll(ws.TemplatesDir(), 0o755); err != nil {
		return res, fmt.Errorf("ensure templates dir: %w", err)
	}
	r, err := zip.OpenReader(packZipPath)
	if err != nil {
		return res, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		name := f.Name
		if name == ManifestName || f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(name), ".json") {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			l.Warn("reject entry", slog.String("entry", name), slog.Any("err", err))
			res.Rejected = append(res.Rejected, name)
			continue
		}
		t, err := storage.ParseTemplate(data)
		if err != nil {
			l.Warn("reject entry", slog.String("entry", name), slog.Any("err", err))
			res.Rejected = append(res.Rejected, name)
			continue
		}
		// the target comes from the template name, never from the entry path
		target := ws.TemplatePath(t.Name)
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing template", slog.String("name", t.Name))
			res.Skipped = append(res.Skipped, t.Name)
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", filepath.Base(target), err)
		}
		if err := storage.IndexTemplate(ctx, ws.Root, t, target); err != nil {
			l.Warn("index template failed", slog.String("name", t.Name), slog.Any("err", err))
		}
		res.Installed = append(res.Installed, t.Name)
	}
	l.Info("template pack installed", slog.Int("installed", len(res.Installed)),
		slog.Int("skipped", len(res.Skipped)), slog.Int("rejected", len(res.Rejected)))
	return res, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntryBytes {
		return nil, fmt.Errorf("entry too large: %d bytes", f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntryBytes {
		return nil, errors.New("entry too large")
	}
	return data, nil
}
