/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"sort"
	"strings"
)

// SEO is export naming and tagging metadata. It is edited independently of
// the scene and is not part of undo history.
type SEO struct {
	Filename    string   `json:"filename,omitempty"`
	AltText     string   `json:"altText,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Description string   `json:"description,omitempty"`
	Title       string   `json:"title,omitempty"`
	Author      string   `json:"author,omitempty"`
	Copyright   string   `json:"copyright,omitempty"`
}

// Normalize trims fields and turns Keywords into a sorted set
// (case-insensitive de-duplication, first spelling wins).
func (s SEO) Normalize() SEO {
	s.Filename = strings.TrimSpace(s.Filename)
	s.AltText = strings.TrimSpace(s.AltText)
	s.Description = strings.TrimSpace(s.Description)
	s.Title = strings.TrimSpace(s.Title)
	s.Author = strings.TrimSpace(s.Author)
	s.Copyright = strings.TrimSpace(s.Copyright)
	seen := make(map[string]bool, len(s.Keywords))
	var kw []string
	for _, k := range s.Keywords {
		k = strings.TrimSpace(k)
		lk := strings.ToLower(k)
		if k == "" || seen[lk] {
			continue
		}
		seen[lk] = true
		kw = append(kw, k)
	}
	sort.Slice(kw, func(i, j int) bool { return strings.ToLower(kw[i]) < strings.ToLower(kw[j]) })
	s.Keywords = kw
	return s
}

// HasKeyword reports set membership, ignoring case.
func (s SEO) HasKeyword(k string) bool {
	for _, v := range s.Keywords {
		if strings.EqualFold(v, strings.TrimSpace(k)) {
			return true
		}
	}
	return false
}
