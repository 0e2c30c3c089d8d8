/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import "encoding/json"

type BackgroundKind string

const (
	BackgroundNone  BackgroundKind = ""
	BackgroundColor BackgroundKind = "color"
	BackgroundImage BackgroundKind = "image"
)

// Background is either a flat colour or an image with its intrinsic size.
// The zero value means no explicit background; the theme default applies.
type Background struct {
	Kind   BackgroundKind `json:"kind,omitempty"`
	Color  string         `json:"color,omitempty"`
	Src    string         `json:"src,omitempty"`
	Width  int            `json:"width,omitempty"`
	Height int            `json:"height,omitempty"`
}

func ColorBackground(c string) Background { return Background{Kind: BackgroundColor, Color: c} }

func ImageBackground(src string, w, h int) Background {
	return Background{Kind: BackgroundImage, Src: src, Width: w, Height: h}
}

// Scene is the unit of undo/redo.
type Scene struct {
	Elements   []Element  `json:"elements"`
	Background Background `json:"background"`
}

// Clone returns a deep copy. Bodies are values, so copying the slice suffices.
func (s Scene) Clone() Scene {
	out := Scene{Background: s.Background}
	if s.Elements != nil {
		out.Elements = append(make([]Element, 0, len(s.Elements)), s.Elements...)
	} else {
		out.Elements = []Element{}
	}
	return out
}

// Index returns the position of id in paint order, or -1.
func (s Scene) Index(id string) int {
	for i, e := range s.Elements {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Element returns the element with id.
func (s Scene) Element(id string) (Element, bool) {
	if i := s.Index(id); i >= 0 {
		return s.Elements[i], true
	}
	return Element{}, false
}

// IDs lists element ids in paint order.
func (s Scene) IDs() []string {
	ids := make([]string, len(s.Elements))
	for i, e := range s.Elements {
		ids[i] = e.ID
	}
	return ids
}

// Encode serializes the scene; equal scenes encode to equal bytes.
func (s Scene) Encode() ([]byte, error) {
	if s.Elements == nil {
		s.Elements = []Element{}
	}
	return json.Marshal(s)
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return Scene{}, err
	}
	if s.Elements == nil {
		s.Elements = []Element{}
	}
	return s, nil
}
