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
	"fmt"
	"strings"
	"unicode"

	"thumbtory/internal/storage"
)

// SearchPG runs q over the templates table. Text terms become a prefix
// tsquery so results line up with the local FTS5 catalogue; an empty Text
// lists everything, newest first.
func SearchPG(ctx context.Context, db *sql.DB, q storage.TemplateQuery) ([]TemplateMeta, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if tsq := prefixTSQuery(q.Text); tsq != "" {
		p := place(tsq)
		b.WriteString("SELECT name, slug, owner, element_count, version, updated_at, ")
		b.WriteString("COALESCE(ts_headline('simple', search_text, to_tsquery('simple', " + p + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM templates WHERE search_vector @@ to_tsquery('simple', " + p + ") ")
		b.WriteString("ORDER BY ts_rank(search_vector, to_tsquery('simple', " + p + ")) DESC, name ")
	} else {
		b.WriteString("SELECT name, slug, owner, element_count, version, updated_at, '' FROM templates ")
		b.WriteString("ORDER BY updated_at DESC, slug ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString("LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []TemplateMeta{}
	for rows.Next() {
		var m TemplateMeta
		if err := rows.Scan(&m.Name, &m.Slug, &m.Owner, &m.Elements, &m.Version, &m.UpdatedAt, &m.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// prefixTSQuery turns free text into term:* & term:* keeping only letters
// and digits, so user input never reaches the tsquery parser raw.
func prefixTSQuery(text string) string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		var tb strings.Builder
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				tb.WriteRune(r)
			}
		}
		if tb.Len() > 0 {
			terms = append(terms, tb.String()+":*")
		}
	}
	return strings.Join(terms, " & ")
}
