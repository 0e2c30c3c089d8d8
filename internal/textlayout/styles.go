/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// TextStyle is a reusable preset applied when a text element is created.
// Size is in pixels at 1x.
type TextStyle struct {
	Name       string
	Font       FontSpec
	FontWeight string
	Fill       string
	Align      string
	WrapWidth  float64
}

var builtinStyles = map[string]TextStyle{
	"Heading": {
		Name:       "Heading",
		Font:       FontSpec{Family: DefaultFamily, Size: 72, Weight: 700},
		FontWeight: "bold",
		Fill:       "#111827",
		Align:      "left",
		WrapWidth:  900,
	},
	"Subheading": {
		Name:       "Subheading",
		Font:       FontSpec{Family: DefaultFamily, Size: 44, Weight: 600},
		FontWeight: "600",
		Fill:       "#1f2937",
		Align:      "left",
		WrapWidth:  800,
	},
	"Body": {
		Name:       "Body",
		Font:       FontSpec{Family: DefaultFamily, Size: 28, Weight: 400},
		FontWeight: "normal",
		Fill:       "#374151",
		Align:      "left",
		WrapWidth:  600,
	},
	"Caption": {
		Name:       "Caption",
		Font:       FontSpec{Family: DefaultFamily, Size: 20, Weight: 400, Italic: true},
		FontWeight: "normal",
		Fill:       "#6b7280",
		Align:      "left",
		WrapWidth:  500,
	},
}

// GetStyle returns a builtin style preset by name.
func GetStyle(name string) (TextStyle, bool) { s, ok := builtinStyles[name]; return s, ok }

// ListStyles lists the names of the builtin styles in stable order.
func ListStyles() []string { return []string{"Heading", "Subheading", "Body", "Caption"} }
