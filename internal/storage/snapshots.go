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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"thumbtory/internal/scene"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(ts, label, scene_hash, scene_blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT id, ts, label, scene_hash, scene_blob FROM snapshots ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT id, ts, label, scene_hash, scene_blob FROM snapshots ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE id NOT IN (
	SELECT id FROM snapshots ORDER BY ts DESC, id DESC LIMIT ?
)`

// Snapshot is an autosaved scene.
type Snapshot struct {
	ID    int64
	TS    time.Time
	Label string
	Hash  string
	Scene scene.Scene
}

// SceneHash returns the hex SHA-256 of the encoded scene.
func SceneHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// SaveSnapshot autosaves s. It skips the write and returns false when the
// newest snapshot already holds the same scene.
func SaveSnapshot(ctx context.Context, ws *Workspace, s scene.Scene, label string, ts time.Time) (bool, error) {
	if ws == nil {
		return false, errors.New("nil Workspace")
	}
	blob, err := s.Encode()
	if err != nil {
		return false, fmt.Errorf("encode scene: %w", err)
	}
	hash := SceneHash(blob)
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()
	var last string
	err = db.QueryRowContext(ctx, `SELECT scene_hash FROM snapshots ORDER BY ts DESC, id DESC LIMIT 1`).Scan(&last)
	if err == nil && last == hash {
		return false, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if _, err := db.ExecContext(ctx, insertSnapshotSQL, ts.UTC().Format(time.RFC3339Nano), label, hash, blob); err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return true, nil
}

func scanSnapshot(sc interface{ Scan(...any) error }) (Snapshot, error) {
	var (
		snap  Snapshot
		tsStr string
		blob  []byte
	)
	if err := sc.Scan(&snap.ID, &tsStr, &snap.Label, &snap.Hash, &blob); err != nil {
		return Snapshot{}, err
	}
	snap.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	s, err := scene.Decode(blob)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", snap.ID, err)
	}
	snap.Scene = s
	return snap, nil
}

// LatestSnapshot returns the newest autosave; ok is false when there is none.
func LatestSnapshot(ctx context.Context, ws *Workspace) (snap Snapshot, ok bool, err error) {
	if ws == nil {
		return Snapshot{}, false, errors.New("nil Workspace")
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer func() { _ = db.Close() }()
	snap, err = scanSnapshot(db.QueryRowContext(ctx, selectLatestSnapshotSQL))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// ListSnapshots returns up to limit most recent autosaves, newest first.
func ListSnapshots(ctx context.Context, ws *Workspace, limit int) ([]Snapshot, error) {
	if ws == nil {
		return nil, errors.New("nil Workspace")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSnapshotsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// PruneOldSnapshots keeps at most keepLast autosaves and deletes older ones.
func PruneOldSnapshots(ctx context.Context, ws *Workspace, keepLast int) (int64, error) {
	if ws == nil {
		return 0, errors.New("nil Workspace")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(ws.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneOldSnapshotsSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
