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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "thumbtory/internal/log"
	"thumbtory/internal/scene"
	"thumbtory/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-workspace ephemeral/index data under the workspace root.
	IndexDirName  = ".thumbtory"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	schemaVersion = 2
)

// IndexPath returns the full path to the workspace's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the SQLite index exists at .thumbtory/index.sqlite,
// opens it in WAL mode and brings the schema up to date.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create %s dir: %w", IndexDirName, err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema for runMigrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_templates_saved ON templates(saved_at);`,
				`CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(scene_hash);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// best effort
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_templates(fts_templates) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the catalogue, FTS, snapshot and preview tables.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id            INTEGER PRIMARY KEY,
			slug          TEXT    NOT NULL UNIQUE,
			name          TEXT    NOT NULL,
			path          TEXT    NOT NULL,
			saved_at      TEXT,
			element_count INTEGER NOT NULL DEFAULT 0,
			text          TEXT    NOT NULL DEFAULT '',
			keywords      TEXT    NOT NULL DEFAULT ''
		);`,
		// External-content FTS5 over templates, kept in sync by triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_templates USING fts5(
			name, text, keywords,
			content='templates',
			content_rowid='id',
			tokenize = 'unicode61'
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY,
			ts         TEXT    NOT NULL,
			label      TEXT    NOT NULL DEFAULT '',
			scene_hash TEXT    NOT NULL,
			scene_blob BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_templates_saved ON templates(saved_at);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(scene_hash);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS templates_ai AFTER INSERT ON templates BEGIN
			INSERT INTO fts_templates(rowid, name, text, keywords) VALUES (new.id, new.name, new.text, new.keywords);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS templates_ad AFTER DELETE ON templates BEGIN
			INSERT INTO fts_templates(fts_templates, rowid, name, text, keywords) VALUES ('delete', old.id, old.name, old.text, old.keywords);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS templates_au AFTER UPDATE ON templates BEGIN
			INSERT INTO fts_templates(fts_templates, rowid, name, text, keywords) VALUES ('delete', old.id, old.name, old.text, old.keywords);
			INSERT INTO fts_templates(rowid, name, text, keywords) VALUES (new.id, new.name, new.text, new.keywords);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return ensurePreviewsSchema(ctx, db)
}

// SearchFields extracts the searchable text of t: the text elements and the
// SEO keywords, title, description, alt text and filename.
func SearchFields(t Template) (text, keywords string) {
	var parts []string
	for _, e := range t.Elements {
		if tx, ok := e.Body.(scene.Text); ok && strings.TrimSpace(tx.Text) != "" {
			parts = append(parts, strings.TrimSpace(tx.Text))
		}
	}
	var kw []string
	if t.SEO != nil {
		s := t.SEO.Normalize()
		kw = append(kw, s.Keywords...)
		for _, v := range []string{s.Title, s.Description, s.AltText, s.Filename} {
			if v != "" {
				kw = append(kw, v)
			}
		}
	}
	return strings.Join(parts, "\n"), strings.Join(kw, " ")
}

func upsertTemplate(ctx context.Context, db *sql.DB, t Template, path string) error {
	text, kw := SearchFields(t)
	saved := ""
	if t.SavedAt != nil {
		saved = t.SavedAt.UTC().Format(time.RFC3339)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO templates(slug, name, path, saved_at, element_count, text, keywords)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(slug) DO UPDATE SET name=excluded.name, path=excluded.path, saved_at=excluded.saved_at,
			element_count=excluded.element_count, text=excluded.text, keywords=excluded.keywords`,
		Slug(t.Name), t.Name, path, saved, len(t.Elements), text, kw)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// IndexTemplate adds or refreshes the catalogue row for t.
func IndexTemplate(ctx context.Context, root string, t Template, path string) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return upsertTemplate(ctx, db, t, path)
}

// UnindexTemplate removes the catalogue row for name.
func UnindexTemplate(ctx context.Context, root string, name string) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `DELETE FROM templates WHERE slug=?`, Slug(name)); err != nil {
		return fmt.Errorf("delete template row: %w", err)
	}
	return nil
}

// BuildIndexIfEmpty fills the catalogue from the template files when it has
// no rows yet.
func BuildIndexIfEmpty(ctx context.Context, ws *Workspace) error {
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return err
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates;").Scan(&cnt); err != nil {
		return fmt.Errorf("check templates count: %w", err)
	}
	if cnt > 0 {
		return nil
	}
	return rebuildTemplatesFromFiles(ctx, db, ws)
}

// RebuildIndex drops the catalogue and recreates it from the template files.
// Snapshots and previews are kept.
func RebuildIndex(ctx context.Context, ws *Workspace) error {
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS templates_ai;",
		"DROP TRIGGER IF EXISTS templates_ad;",
		"DROP TRIGGER IF EXISTS templates_au;",
		"DROP TABLE IF EXISTS fts_templates;",
		"DROP TABLE IF EXISTS templates;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return rebuildTemplatesFromFiles(ctx, db, ws)
}

func rebuildTemplatesFromFiles(ctx context.Context, db *sql.DB, ws *Workspace) error {
	infos, err := ListTemplates(ws)
	if err != nil {
		return err
	}
	for _, info := range infos {
		data, err := os.ReadFile(info.Path)
		if err != nil {
			continue
		}
		t, err := ParseTemplate(data)
		if err != nil {
			continue
		}
		if err := upsertTemplate(ctx, db, t, info.Path); err != nil {
			return err
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds
// the index if needed. It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, ws *Workspace) (bool, error) {
	path := IndexPath(ws.Root)
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if rbErr := RebuildIndex(ctx, ws); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM templates LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if err := RebuildIndex(ctx, ws); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .thumbtory/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(indexPath + suffix)
	}
}
