/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "thumbtory/internal/log"
	"thumbtory/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore keeps shared templates in Postgres.
type PGStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPG connects through the pgx stdlib driver, pings and applies the
// embedded migrations.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGStore{db: db, log: applog.WithComponent("backend.pg")}, nil
}

func (s *PGStore) DB() *sql.DB  { return s.db }
func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PGStore) List(ctx context.Context, q storage.TemplateQuery) ([]TemplateMeta, error) {
	return SearchPG(ctx, s.db, q)
}

func (s *PGStore) Get(ctx context.Context, name string) (storage.Template, TemplateMeta, error) {
	var (
		meta TemplateMeta
		body []byte
	)
	row := s.db.QueryRowContext(ctx, `SELECT name, slug, owner, element_count, version, updated_at, body
		FROM templates WHERE slug = $1`, storage.Slug(name))
	switch err := row.Scan(&meta.Name, &meta.Slug, &meta.Owner, &meta.Elements, &meta.Version, &meta.UpdatedAt, &body); {
	case errors.Is(err, sql.ErrNoRows):
		return storage.Template{}, TemplateMeta{}, ErrNotFound
	case err != nil:
		return storage.Template{}, TemplateMeta{}, fmt.Errorf("select template: %w", err)
	}
	var t storage.Template
	if err := json.Unmarshal(body, &t); err != nil {
		return storage.Template{}, meta, fmt.Errorf("decode template %s: %w", meta.Slug, err)
	}
	return t, meta, nil
}

// Put inserts or replaces a template and bumps its version.
func (s *PGStore) Put(ctx context.Context, owner string, t storage.Template) (TemplateMeta, error) {
	body, err := storage.MarshalTemplate(t)
	if err != nil {
		return TemplateMeta{}, err
	}
	text, kw := storage.SearchFields(t)
	meta := TemplateMeta{Name: t.Name, Slug: storage.Slug(t.Name), Owner: owner, Elements: len(t.Elements)}
	err = s.db.QueryRowContext(ctx, `INSERT INTO templates(slug, name, owner, body, element_count, search_text)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (slug) DO UPDATE SET name=EXCLUDED.name, owner=EXCLUDED.owner, body=EXCLUDED.body,
			element_count=EXCLUDED.element_count, search_text=EXCLUDED.search_text,
			version=templates.version+1, updated_at=now()
		RETURNING version, updated_at`,
		meta.Slug, meta.Name, owner, string(body), meta.Elements, strings.TrimSpace(text+" "+kw),
	).Scan(&meta.Version, &meta.UpdatedAt)
	if err != nil {
		return TemplateMeta{}, fmt.Errorf("upsert template: %w", err)
	}
	s.log.Debug("template stored", slog.String("slug", meta.Slug), slog.Int64("version", meta.Version))
	return meta, nil
}

func (s *PGStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE slug = $1`, storage.Slug(name))
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRender appends to render_log.
func (s *PGStore) RecordRender(ctx context.Context, e RenderEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO render_log(subject, template, preset, format, size_kb) VALUES($1,$2,$3,$4,$5)`,
		e.Subject, e.Template, e.Preset, e.Format, e.SizeKB)
	return err
}

// applyMigrations applies embedded SQL migrations in filename order and
// records each one in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		sqlText := string(b)
		if strings.TrimSpace(sqlText) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1,$2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
