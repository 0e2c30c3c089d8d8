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
	"strings"
	"time"
	"unicode"
)

// TemplateQuery describes a catalogue search.
// Text is split into terms; every term must match a prefix of a word in the
// template name, its text elements or its SEO keywords. An empty Text lists
// all templates, newest first.
type TemplateQuery struct {
	Text   string
	Limit  int
	Offset int
}

// TemplateHit is one search result. Snippet marks matches with [ ].
type TemplateHit struct {
	Name     string
	Path     string
	SavedAt  time.Time
	Elements int
	Snippet  string
}

// SearchTemplates runs q against the workspace index.
func SearchTemplates(ctx context.Context, root string, q TemplateQuery) ([]TemplateHit, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q TemplateQuery) ([]TemplateHit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	var (
		stmt string
		args []any
	)
	if match := ftsQuery(q.Text); match != "" {
		stmt = `SELECT t.name, t.path, COALESCE(t.saved_at,''), t.element_count,
				snippet(fts_templates, -1, '[', ']', '…', 8)
			FROM fts_templates JOIN templates t ON fts_templates.rowid = t.id
			WHERE fts_templates MATCH ?
			ORDER BY bm25(fts_templates), t.name
			LIMIT ? OFFSET ?`
		args = append(args, match, limit, q.Offset)
	} else {
		stmt = `SELECT name, path, COALESCE(saved_at,''), element_count, ''
			FROM templates ORDER BY saved_at DESC, name LIMIT ? OFFSET ?`
		args = append(args, limit, q.Offset)
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []TemplateHit
	for rows.Next() {
		var h TemplateHit
		var saved string
		var sn sql.NullString
		if err := rows.Scan(&h.Name, &h.Path, &saved, &h.Elements, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		h.SavedAt, _ = time.Parse(time.RFC3339, saved)
		if sn.Valid {
			h.Snippet = sn.String
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression of quoted prefix terms,
// so user input never reaches the FTS5 query parser as syntax.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for i, t := range terms {
		terms[i] = `"` + t + `"*`
	}
	return strings.Join(terms, " ")
}
