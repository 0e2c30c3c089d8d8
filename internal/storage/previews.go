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
	"os"
	"strconv"
	"strings"
	"time"
)

// PreviewKey identifies a cached export preview.
type PreviewKey struct {
	SceneHash  string
	Preset     string
	Fit        string
	Background string
}

func (k PreviewKey) valid() bool {
	return k.SceneHash != "" && k.Preset != ""
}

// ensurePreviewsSchema creates the previews table and adds columns missing
// from older indexes. It is safe to call multiple times.
func ensurePreviewsSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS previews (
		id           INTEGER PRIMARY KEY,
		scene_hash   TEXT    NOT NULL,
		preset       TEXT    NOT NULL,
		fit          TEXT    NOT NULL DEFAULT '',
		background   TEXT    NOT NULL DEFAULT '',
		blob         BLOB    NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		updated_at   TEXT    NOT NULL
	);`); err != nil {
		return fmt.Errorf("ensure previews table: %w", err)
	}
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(previews);`)
	if err != nil {
		return fmt.Errorf("table_info previews: %w", err)
	}
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()
	if !cols["format"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE previews ADD COLUMN format TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add format: %w", err)
		}
	}
	if !cols["last_access"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE previews ADD COLUMN last_access INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("add last_access: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_previews_key ON previews(scene_hash, preset, fit, background)`); err != nil {
		return fmt.Errorf("create key index: %w", err)
	}
	_, _ = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_previews_access ON previews(last_access)`)
	return nil
}

// GetPreview returns the cached bytes and format for k and marks the entry as
// used. A miss returns nil data and no error.
func GetPreview(ctx context.Context, root string, k PreviewKey) ([]byte, string, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()
	var blob []byte
	var format string
	err = db.QueryRowContext(ctx, `SELECT blob, format FROM previews WHERE scene_hash=? AND preset=? AND fit=? AND background=?`,
		k.SceneHash, k.Preset, k.Fit, k.Background).Scan(&blob, &format)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("query preview: %w", err)
	}
	_, _ = db.ExecContext(ctx, `UPDATE previews SET last_access=? WHERE scene_hash=? AND preset=? AND fit=? AND background=?`,
		time.Now().UnixNano(), k.SceneHash, k.Preset, k.Fit, k.Background)
	return blob, format, nil
}

// PutPreview upserts a preview and enforces the cache cap via LRU eviction.
func PutPreview(ctx context.Context, root string, k PreviewKey, format string, blob []byte) error {
	if !k.valid() {
		return fmt.Errorf("invalid preview key %+v", k)
	}
	if len(blob) == 0 {
		return errors.New("empty preview")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	now := time.Now()
	_, err = db.ExecContext(ctx, `INSERT INTO previews(scene_hash,preset,fit,background,format,blob,size,updated_at,last_access)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(scene_hash,preset,fit,background) DO UPDATE SET format=excluded.format, blob=excluded.blob,
			size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		k.SceneHash, k.Preset, k.Fit, k.Background, format, blob, len(blob), now.UTC().Format(time.RFC3339), now.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	if capBytes := MaxPreviewBytesFromEnv(); capBytes > 0 {
		if err := EvictPreviewsToFit(ctx, db, capBytes); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreatePreview fetches a preview or generates and stores it using gen.
func GetOrCreatePreview(ctx context.Context, root string, k PreviewKey, gen func(context.Context) ([]byte, string, error)) ([]byte, string, error) {
	if b, f, err := GetPreview(ctx, root, k); err != nil {
		return nil, "", err
	} else if b != nil {
		return b, f, nil
	}
	if gen == nil {
		return nil, "", nil
	}
	data, format, err := gen(ctx)
	if err != nil {
		return nil, "", err
	}
	if data == nil {
		return nil, "", nil
	}
	if err := PutPreview(ctx, root, k, format, data); err != nil {
		return nil, "", err
	}
	return data, format, nil
}

// EvictPreviewsToFit deletes least-recently-used rows until total size <= capBytes.
func EvictPreviewsToFit(ctx context.Context, db *sql.DB, capBytes int64) error {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM previews`).Scan(&total); err != nil {
		return fmt.Errorf("sum previews size: %w", err)
	}
	if total <= capBytes {
		return nil
	}
	rows, err := db.QueryContext(ctx, `SELECT id, size FROM previews ORDER BY last_access ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	toDelete := make([]any, 0, 32)
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		toDelete = append(toDelete, id)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// close the cursor before writing
	if err := rows.Close(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	q := `DELETE FROM previews WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(toDelete)), ",") + `)`
	if _, err := db.ExecContext(ctx, q, toDelete...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// TotalPreviewBytes returns total bytes tracked by previews.size.
func TotalPreviewBytes(ctx context.Context, root string) (int64, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM previews`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// DefaultPreviewCacheBytes caps the preview cache when the env var is unset.
const DefaultPreviewCacheBytes = 64 * 1024 * 1024

// MaxPreviewBytesFromEnv reads TT_PREVIEW_CACHE_MAX_BYTES.
func MaxPreviewBytesFromEnv() int64 {
	v := os.Getenv("TT_PREVIEW_CACHE_MAX_BYTES")
	if v == "" {
		return DefaultPreviewCacheBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return DefaultPreviewCacheBytes
	}
	return n
}
