/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"thumbtory/internal/config"
	applog "thumbtory/internal/log"
)

// ErrInvalidPreset is logged when a preset id is unknown; callers get the
// default preset instead.
var ErrInvalidPreset = errors.New("invalid preset")

type Fit string

const (
	FitContain Fit = "contain"
	FitCover   Fit = "cover"
)

type BackgroundMode string

const (
	BackgroundWhite       BackgroundMode = "white"
	BackgroundDark        BackgroundMode = "dark"
	BackgroundTransparent BackgroundMode = "transparent"
	BackgroundWebP        BackgroundMode = "webp"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
)

// Ext is the file extension without the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

func (f Format) MIME() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	}
	return "image/jpeg"
}

// Preset is a named export target.
type Preset struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Enabled     bool   `json:"enabled"`
	// OutputFormat overrides the format implied by the background mode.
	OutputFormat Format `json:"outputFormat,omitempty"`
	// AlwaysFill forces cover and relocates content into the safe zone.
	AlwaysFill bool `json:"alwaysFill,omitempty"`
}

// DefaultPresetID is used when a requested preset is unknown.
const DefaultPresetID = "youtube"

func builtinPresets() []Preset {
	return []Preset{
		{ID: "youtube", DisplayName: "YouTube", Width: 1280, Height: 720, Enabled: true},
		{ID: "wordpress", DisplayName: "WordPress", Width: 1200, Height: 628, Enabled: true, AlwaysFill: true},
		{ID: "facebook", DisplayName: "Facebook", Width: 1200, Height: 630, Enabled: true},
		{ID: "twitter", DisplayName: "X / Twitter", Width: 1600, Height: 900, Enabled: true},
		{ID: "instagram", DisplayName: "Instagram", Width: 1080, Height: 1080, Enabled: true},
		{ID: "linkedin", DisplayName: "LinkedIn", Width: 1200, Height: 627},
		{ID: "pinterest", DisplayName: "Pinterest", Width: 1000, Height: 1500},
		{ID: "tiktok", DisplayName: "TikTok", Width: 1080, Height: 1920},
	}
}

// Registry holds the presets in display order.
type Registry struct {
	mu      sync.RWMutex
	presets []Preset
	def     string
	log     *slog.Logger
}

// NewRegistry returns the built-in presets with their default enablement.
func NewRegistry() *Registry {
	return &Registry{presets: builtinPresets(), def: DefaultPresetID, log: applog.WithComponent("export")}
}

// RegistryFromConfig applies the configured default and enabled set.
func RegistryFromConfig(c config.ExportConfig) *Registry {
	r := NewRegistry()
	if len(c.EnabledPresets) > 0 {
		r.SetEnabled(c.EnabledPresets)
	}
	if c.DefaultPreset != "" {
		if _, ok := r.Get(c.DefaultPreset); ok {
			r.def = strings.ToLower(c.DefaultPreset)
		} else {
			r.log.Warn("configured default preset unknown", slog.String("preset", c.DefaultPreset))
		}
	}
	return r
}

func (r *Registry) Get(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range r.presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Default returns the fallback preset.
func (r *Registry) Default() Preset {
	p, _ := r.Get(r.def)
	return p
}

// Resolve returns the preset for id, or the default preset when id is
// unknown. The error is non-nil (wrapping ErrInvalidPreset) in that case so
// callers can surface a notice; the returned preset is always usable.
func (r *Registry) Resolve(id string) (Preset, error) {
	if p, ok := r.Get(id); ok {
		return p, nil
	}
	err := fmt.Errorf("%w: %q", ErrInvalidPreset, id)
	r.log.Warn("falling back to default preset", slog.String("requested", id), slog.String("default", r.def))
	return r.Default(), err
}

// All returns every preset in display order.
func (r *Registry) All() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Preset(nil), r.presets...)
}

// Enabled returns the presets used by batch export.
func (r *Registry) Enabled() []Preset {
	var out []Preset
	for _, p := range r.All() {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Register adds or replaces a preset.
func (r *Registry) Register(p Preset) error {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	if p.ID == "" || p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: %q %dx%d", ErrInvalidPreset, p.ID, p.Width, p.Height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.presets {
		if r.presets[i].ID == p.ID {
			r.presets[i] = p
			return nil
		}
	}
	r.presets = append(r.presets, p)
	return nil
}

// SetEnabled enables exactly the given ids. Unknown ids are ignored.
func (r *Registry) SetEnabled(ids []string) {
	want := map[string]bool{}
	for _, id := range ids {
		want[strings.ToLower(strings.TrimSpace(id))] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.presets {
		r.presets[i].Enabled = want[r.presets[i].ID]
	}
}

// Settings are the engine defaults, normally taken from config.
type Settings struct {
	Fit            Fit
	Background     BackgroundMode
	PixelRatio     float64
	JPEGQuality    int
	SafeZone       float64
	AlwaysFillZoom float64
}

// MinPixelRatio is the capture quality floor.
const MinPixelRatio = 2

// MinJPEGQuality keeps lossy output at or above 0.9.
const MinJPEGQuality = 90

func DefaultSettings() Settings {
	return SettingsFromConfig(config.Defaults().Export)
}

func SettingsFromConfig(c config.ExportConfig) Settings {
	s := Settings{
		Fit:            Fit(strings.ToLower(c.Fit)),
		Background:     BackgroundMode(strings.ToLower(c.Background)),
		PixelRatio:     c.PixelRatio,
		JPEGQuality:    c.JPEGQuality,
		SafeZone:       c.SafeZone,
		AlwaysFillZoom: c.AlwaysFillZoom,
	}
	return s.normalized()
}

func (s Settings) normalized() Settings {
	if s.Fit != FitCover {
		s.Fit = FitContain
	}
	switch s.Background {
	case BackgroundWhite, BackgroundDark, BackgroundTransparent, BackgroundWebP:
	default:
		s.Background = BackgroundWhite
	}
	if s.PixelRatio < MinPixelRatio {
		s.PixelRatio = MinPixelRatio
	}
	if s.JPEGQuality < MinJPEGQuality || s.JPEGQuality > 100 {
		s.JPEGQuality = 92
	}
	if s.SafeZone <= 0 || s.SafeZone >= 0.5 {
		s.SafeZone = 0.15
	}
	if s.AlwaysFillZoom < 1 {
		s.AlwaysFillZoom = 1
	}
	return s
}
