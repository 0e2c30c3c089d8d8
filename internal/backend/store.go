/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend is the shared template library: an HTTP API over a
// Postgres template table, and the client the editor uses to reach it.
package backend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"thumbtory/internal/storage"
)

// ErrNotFound is returned when no template exists under a name.
var ErrNotFound = errors.New("template not found")

// TemplateMeta describes a stored template.
type TemplateMeta struct {
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Owner     string    `json:"owner,omitempty"`
	Elements  int       `json:"elements"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Snippet   string    `json:"snippet,omitempty"`
}

// TemplateStore persists shared templates keyed by storage.Slug(name).
type TemplateStore interface {
	List(ctx context.Context, q storage.TemplateQuery) ([]TemplateMeta, error)
	Get(ctx context.Context, name string) (storage.Template, TemplateMeta, error)
	Put(ctx context.Context, owner string, t storage.Template) (TemplateMeta, error)
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps templates in process. It backs tests and `serve`
// without a database URL.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]memRow
	renders []RenderEntry
	now     func() time.Time
}

type memRow struct {
	t    storage.Template
	meta TemplateMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]memRow{}, now: time.Now}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// List matches every query term against name and searchable text, by
// substring. Results are newest first.
func (m *MemoryStore) List(_ context.Context, q storage.TemplateQuery) ([]TemplateMeta, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	m.mu.RLock()
	var out []TemplateMeta
	for _, r := range m.rows {
		text, kw := storage.SearchFields(r.t)
		hay := strings.ToLower(r.t.Name + " " + text + " " + kw)
		ok := true
		for _, term := range terms {
			if !strings.Contains(hay, term) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r.meta)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return page(out, q.Limit, q.Offset), nil
}

func page(list []TemplateMeta, limit, offset int) []TemplateMeta {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []TemplateMeta{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

func (m *MemoryStore) Get(_ context.Context, name string) (storage.Template, TemplateMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[storage.Slug(name)]
	if !ok {
		return storage.Template{}, TemplateMeta{}, ErrNotFound
	}
	return r.t, r.meta, nil
}

func (m *MemoryStore) Put(_ context.Context, owner string, t storage.Template) (TemplateMeta, error) {
	slug := storage.Slug(t.Name)
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := TemplateMeta{Name: t.Name, Slug: slug, Owner: owner, Elements: len(t.Elements), Version: 1, UpdatedAt: m.now().UTC()}
	if prev, ok := m.rows[slug]; ok {
		meta.Version = prev.meta.Version + 1
	}
	m.rows[slug] = memRow{t: t, meta: meta}
	return meta, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	slug := storage.Slug(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[slug]; !ok {
		return ErrNotFound
	}
	delete(m.rows, slug)
	return nil
}

func (m *MemoryStore) RecordRender(_ context.Context, e RenderEntry) error {
	m.mu.Lock()
	m.renders = append(m.renders, e)
	m.mu.Unlock()
	return nil
}

// Renders returns the recorded render log.
func (m *MemoryStore) Renders() []RenderEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RenderEntry(nil), m.renders...)
}
