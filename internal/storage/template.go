/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "thumbtory/internal/log"
	"thumbtory/internal/scene"
)

// TemplateVersion is written into every saved template.
const TemplateVersion = 1

// ErrTemplateNotFound is returned when no template file exists for a name.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a named, reusable snapshot of a scene.
type Template struct {
	Version    int              `json:"version,omitempty"`
	Name       string           `json:"name"`
	Background scene.Background `json:"background"`
	Elements   []scene.Element  `json:"elements"`
	SEO        *scene.SEO       `json:"seo,omitempty"`
	SavedAt    *time.Time       `json:"savedAt,omitempty"`
}

// TemplateFromScene captures s under name. Empty SEO is omitted.
func TemplateFromScene(name string, s scene.Scene, seo scene.SEO) Template {
	s = s.Clone()
	t := Template{Version: TemplateVersion, Name: strings.TrimSpace(name), Background: s.Background, Elements: s.Elements}
	seo = seo.Normalize()
	if seo.Filename != "" || seo.Title != "" || seo.AltText != "" || seo.Description != "" ||
		seo.Author != "" || seo.Copyright != "" || len(seo.Keywords) > 0 {
		t.SEO = &seo
	}
	return t
}

// Scene returns the scene stored in the template.
func (t Template) Scene() scene.Scene {
	return scene.Scene{Background: t.Background, Elements: t.Elements}.Clone()
}

// MarshalTemplate encodes t in the on-disk form.
func MarshalTemplate(t Template) ([]byte, error) {
	if t.Elements == nil {
		t.Elements = []scene.Element{}
	}
	if t.Version == 0 {
		t.Version = TemplateVersion
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseTemplate validates data against the schema and decodes it.
func ParseTemplate(data []byte) (Template, error) {
	if err := ValidateTemplate(data); err != nil {
		return Template{}, err
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if t.Elements == nil {
		t.Elements = []scene.Element{}
	}
	return t, nil
}

// SaveTemplate writes t into the workspace, replacing a template of the same
// name. The previous file is kept as a timestamped backup. The index is
// updated on a best-effort basis; a failing index never fails the save.
func SaveTemplate(ctx context.Context, ws *Workspace, t Template) (string, error) {
	if ws == nil {
		return "", errors.New("nil Workspace")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	now := time.Now().UTC().Truncate(time.Second)
	t.SavedAt = &now
	t.Version = TemplateVersion
	data, err := MarshalTemplate(t)
	if err != nil {
		return "", err
	}
	if err := ValidateTemplate(data); err != nil {
		return "", err
	}
	path := ws.TemplatePath(t.Name)
	if err := writeAtomic(path, data, ws.BackupsDir()); err != nil {
		return "", err
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "template_save")
	if err := IndexTemplate(ctx, ws.Root, t, path); err != nil {
		l.Warn("index template failed", slog.String("name", t.Name), slog.Any("err", err))
	}
	l.Info("template saved", slog.String("name", t.Name), slog.Int("elements", len(t.Elements)))
	return path, nil
}

// LoadTemplate reads the template called name. When the file is corrupt or
// fails validation, backups are tried newest first.
func LoadTemplate(ws *Workspace, name string) (Template, error) {
	if ws == nil {
		return Template{}, errors.New("nil Workspace")
	}
	path := ws.TemplatePath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	if err != nil {
		return Template{}, fmt.Errorf("read template: %w", err)
	}
	t, perr := ParseTemplate(data)
	if perr == nil {
		return t, nil
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "template_load")
	l.Warn("template unreadable, trying backups", slog.String("name", name), slog.Any("err", perr))
	baks, berr := backupsOf(ws.BackupsDir(), filepath.Base(path))
	if berr != nil {
		return Template{}, fmt.Errorf("%w; backup attempt: %v", perr, berr)
	}
	for i := len(baks) - 1; i >= 0; i-- {
		b, err := os.ReadFile(baks[i])
		if err != nil {
			continue
		}
		if t, err := ParseTemplate(b); err == nil {
			l.Info("template restored from backup", slog.String("backup", filepath.Base(baks[i])))
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w; no usable backup", perr)
}

// TemplateInfo is a catalogue entry.
type TemplateInfo struct {
	Name     string
	Path     string
	SavedAt  time.Time
	Elements int
}

// ListTemplates returns every readable template in the workspace, by name.
func ListTemplates(ws *Workspace) ([]TemplateInfo, error) {
	if ws == nil {
		return nil, errors.New("nil Workspace")
	}
	ents, err := os.ReadDir(ws.TemplatesDir())
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	l := applog.WithComponent("storage")
	var out []TemplateInfo
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), templateExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(ws.TemplatesDir(), e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			l.Warn("skip template", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		t, err := ParseTemplate(data)
		if err != nil {
			l.Warn("skip template", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		info := TemplateInfo{Name: t.Name, Path: p, Elements: len(t.Elements)}
		if t.SavedAt != nil {
			info.SavedAt = *t.SavedAt
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// DeleteTemplate removes the template (keeping a backup) and drops it from
// the index.
func DeleteTemplate(ctx context.Context, ws *Workspace, name string) error {
	if ws == nil {
		return errors.New("nil Workspace")
	}
	path := ws.TemplatePath(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	stamp := time.Now().Format("20060102-150405.000")
	bak := filepath.Join(ws.BackupsDir(), fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
	if err := copyFile(path, bak); err != nil {
		return fmt.Errorf("backup before delete: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if err := UnindexTemplate(ctx, ws.Root, name); err != nil {
		applog.WithComponent("storage").Warn("unindex template failed", slog.String("name", name), slog.Any("err", err))
	}
	return nil
}

// AutosaveCrashTemplate writes s into recovery/ under a timestamped name so
// it survives a crash. It never touches the regular templates.
func AutosaveCrashTemplate(ws *Workspace, s scene.Scene, seo scene.SEO) (string, error) {
	if ws == nil {
		return "", errors.New("nil Workspace")
	}
	stamp := time.Now().Format("20060102-150405")
	t := TemplateFromScene("recovery "+stamp, s, seo)
	now := time.Now().UTC().Truncate(time.Second)
	t.SavedAt = &now
	data, err := MarshalTemplate(t)
	if err != nil {
		return "", err
	}
	path := filepath.Join(ws.Root, RecoveryDirName, "crash-"+stamp+templateExt)
	if err := writeAtomic(path, data, ""); err != nil {
		return "", err
	}
	return path, nil
}
