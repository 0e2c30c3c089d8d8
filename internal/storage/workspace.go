/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	TemplatesDirName = "templates"
	ExportsDirName   = "exports"
	BackupsDirName   = "backups"
	RecoveryDirName  = "recovery"

	templateExt = ".json"
)

var standardSubDirs = []string{
	TemplatesDirName,
	ExportsDirName,
	BackupsDirName,
	RecoveryDirName,
}

// Workspace is a directory holding templates, exports and the index.
type Workspace struct {
	Root string
}

// InitWorkspace creates root (if needed) and scaffolds the standard subfolders.
func InitWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	return &Workspace{Root: root}, nil
}

// OpenWorkspace opens an existing workspace. The templates folder must exist.
func OpenWorkspace(root string) (*Workspace, error) {
	fi, err := os.Stat(filepath.Join(root, TemplatesDirName))
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("open workspace: %s is not a directory", TemplatesDirName)
	}
	return &Workspace{Root: root}, nil
}

func (w *Workspace) TemplatesDir() string { return filepath.Join(w.Root, TemplatesDirName) }
func (w *Workspace) ExportsDir() string   { return filepath.Join(w.Root, ExportsDirName) }
func (w *Workspace) BackupsDir() string   { return filepath.Join(w.Root, BackupsDirName) }

// TemplatePath returns the file used for the template called name.
func (w *Workspace) TemplatePath(name string) string {
	return filepath.Join(w.TemplatesDir(), Slug(name)+templateExt)
}

// Slug turns a template name into a file stem: lowercase ASCII letters and
// digits, other runs collapsed to '-'. An empty result becomes "untitled".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// writeAtomic replaces path with data. The previous content, if any, is
// copied into backupDir as <base>.<stamp>.bak first.
func writeAtomic(path string, data []byte, backupDir string) error {
	if backupDir != "" {
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return fmt.Errorf("ensure backups dir: %w", err)
		}
		if _, statErr := os.Stat(path); statErr == nil {
			stamp := time.Now().Format("20060102-150405.000")
			bpath := filepath.Join(backupDir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
			if cerr := copyFile(path, bpath); cerr != nil {
				return fmt.Errorf("backup current file: %w", cerr)
			}
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp file: %w", werr)
	}
	// Windows will not rename over an existing file
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), rerr)
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// backupsOf lists the backups of the file named base, oldest first.
func backupsOf(backupDir, base string) ([]string, error) {
	ents, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(backupDir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}
