/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config_version written by Save.
const CurrentVersion = 2

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied at load time.
// Secrets (backend token, server auth secret) never touch the file; they live in the OS keychain.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Editor        EditorConfig  `yaml:"editor"`
	Export        ExportConfig  `yaml:"export"`
	Server        ServerConfig  `yaml:"server"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	Workspace      string `yaml:"workspace"`
}

// EditorConfig tunes the interactive session.
type EditorConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	SyncDebounceMs    int     `yaml:"sync_debounce_ms"`
	PreviewDebounceMs int     `yaml:"preview_debounce_ms"`
	SurfaceWaitMs     int     `yaml:"surface_wait_ms"`
	HistoryMaxDepth   int     `yaml:"history_max_depth"` // 0 = unbounded
	HistoryMaxBytes   int     `yaml:"history_max_bytes"` // 0 = unbounded
	SnapThreshold     float64 `yaml:"snap_threshold"`    // 0 disables snapping
}

// ExportConfig holds the defaults of the platform export engine.
type ExportConfig struct {
	DefaultPreset  string   `yaml:"default_preset"`
	EnabledPresets []string `yaml:"enabled_presets"`
	Fit            string   `yaml:"fit"`        // contain | cover
	Background     string   `yaml:"background"` // white | dark | transparent | webp
	PixelRatio     float64  `yaml:"pixel_ratio"`
	JPEGQuality    int      `yaml:"jpeg_quality"`
	SafeZone       float64  `yaml:"safe_zone"`
	AlwaysFillZoom float64  `yaml:"always_fill_zoom"`
	OutDir         string   `yaml:"out_dir"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	TokenTTLMin int    `yaml:"token_ttl_min"`
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		General:       GeneralConfig{Theme: "system"},
		Editor: EditorConfig{
			Width: 1280, Height: 720,
			SyncDebounceMs: 100, PreviewDebounceMs: 900, SurfaceWaitMs: 2000,
			SnapThreshold: 6,
		},
		Export: ExportConfig{
			DefaultPreset:  "youtube",
			EnabledPresets: []string{"youtube", "wordpress", "facebook", "twitter", "instagram"},
			Fit:            "contain",
			Background:     "white",
			PixelRatio:     2,
			JPEGQuality:    92,
			SafeZone:       0.15,
			AlwaysFillZoom: 1.0,
			OutDir:         "exports",
		},
		Server:  ServerConfig{Addr: ":8080", TokenTTLMin: 24 * 60},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir         = "TT_CONFIG_DIR"
	EnvTheme             = "TT_THEME"
	EnvWorkspace         = "TT_WORKSPACE"
	EnvTelemetryOptIn    = "TT_TELEMETRY"
	EnvSyncDebounceMs    = "TT_SYNC_DEBOUNCE_MS"
	EnvPreviewDebounceMs = "TT_PREVIEW_DEBOUNCE_MS"
	EnvDefaultPreset     = "TT_DEFAULT_PRESET"
	EnvFit               = "TT_FIT"
	EnvBackground        = "TT_BACKGROUND"
	EnvJPEGQuality       = "TT_JPEG_QUALITY"
	EnvServerAddr        = "TT_SERVER_ADDR"
	EnvDatabaseURL       = "TT_DATABASE_URL"
	EnvAuthSecret        = "TT_AUTH_SECRET"
	EnvBackendURL        = "TT_BACKEND_URL"
	EnvBackendTimeoutMs  = "TT_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec   = "TT_TLS_INSECURE"
	EnvLogLevel          = "TT_LOG_LEVEL"
	EnvLogFormat         = "TT_LOG_FORMAT"
	EnvLogSource         = "TT_LOG_SOURCE"
	EnvLogFile           = "TT_LOG_FILE"
)

// ConfigPath returns the per-user config file path. TT_CONFIG_DIR replaces the
// OS-specific directory.
func ConfigPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Thumbtory")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Thumbtory")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "thumbtory")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "thumbtory")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, upgrades old
// versions and merges environment overrides. The backend token is read from the
// keyring and returned separately.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, "", err
	}
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// LoadFrom is Load for an explicit path, without keyring access.
// A missing file yields defaults; a malformed file is an error.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		upgrade(&fileCfg)
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	cfg.Normalize()
	return cfg, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := SaveTo(path, cfg); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.ConfigVersion = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// upgrade migrates older file layouts in place. Version 1 files carried
// only general/backend/logging and an enable_server flag that no longer exists.
func upgrade(c *AppConfig) {
	if c.ConfigVersion == 0 {
		c.ConfigVersion = 1
	}
	if c.ConfigVersion < 2 {
		c.ConfigVersion = 2
	}
}

// Normalize clamps values the export and editor code rely on.
func (c *AppConfig) Normalize() {
	d := Defaults()
	switch c.General.Theme {
	case "light", "dark", "system":
	default:
		c.General.Theme = d.General.Theme
	}
	switch c.Export.Fit {
	case "contain", "cover":
	default:
		c.Export.Fit = d.Export.Fit
	}
	switch c.Export.Background {
	case "white", "dark", "transparent", "webp":
	default:
		c.Export.Background = d.Export.Background
	}
	if c.Export.PixelRatio < 2 {
		c.Export.PixelRatio = 2
	}
	if c.Export.JPEGQuality < 90 || c.Export.JPEGQuality > 100 {
		c.Export.JPEGQuality = d.Export.JPEGQuality
	}
	if c.Export.SafeZone <= 0 || c.Export.SafeZone >= 0.5 {
		c.Export.SafeZone = d.Export.SafeZone
	}
	if c.Export.AlwaysFillZoom < 1 {
		c.Export.AlwaysFillZoom = 1
	}
	if c.Editor.Width <= 0 || c.Editor.Height <= 0 {
		c.Editor.Width, c.Editor.Height = d.Editor.Width, d.Editor.Height
	}
	if c.Editor.SyncDebounceMs < 0 {
		c.Editor.SyncDebounceMs = d.Editor.SyncDebounceMs
	}
	if c.Editor.PreviewDebounceMs < 0 {
		c.Editor.PreviewDebounceMs = d.Editor.PreviewDebounceMs
	}
	if c.Editor.SurfaceWaitMs <= 0 {
		c.Editor.SurfaceWaitMs = d.Editor.SurfaceWaitMs
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// general
	if src.General.Theme != "" {
		dst.General.Theme = strings.ToLower(strings.TrimSpace(src.General.Theme))
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.General.Workspace != "" {
		dst.General.Workspace = src.General.Workspace
	}
	// editor
	mergeInt(&dst.Editor.Width, src.Editor.Width)
	mergeInt(&dst.Editor.Height, src.Editor.Height)
	mergeInt(&dst.Editor.SyncDebounceMs, src.Editor.SyncDebounceMs)
	mergeInt(&dst.Editor.PreviewDebounceMs, src.Editor.PreviewDebounceMs)
	mergeInt(&dst.Editor.SurfaceWaitMs, src.Editor.SurfaceWaitMs)
	mergeInt(&dst.Editor.HistoryMaxDepth, src.Editor.HistoryMaxDepth)
	mergeInt(&dst.Editor.HistoryMaxBytes, src.Editor.HistoryMaxBytes)
	if src.Editor.SnapThreshold != 0 {
		dst.Editor.SnapThreshold = src.Editor.SnapThreshold
	}
	// export
	if s := strings.TrimSpace(src.Export.DefaultPreset); s != "" {
		dst.Export.DefaultPreset = strings.ToLower(s)
	}
	if len(src.Export.EnabledPresets) > 0 {
		dst.Export.EnabledPresets = append([]string(nil), src.Export.EnabledPresets...)
	}
	if s := strings.TrimSpace(src.Export.Fit); s != "" {
		dst.Export.Fit = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Export.Background); s != "" {
		dst.Export.Background = strings.ToLower(s)
	}
	if src.Export.PixelRatio != 0 {
		dst.Export.PixelRatio = src.Export.PixelRatio
	}
	mergeInt(&dst.Export.JPEGQuality, src.Export.JPEGQuality)
	if src.Export.SafeZone != 0 {
		dst.Export.SafeZone = src.Export.SafeZone
	}
	if src.Export.AlwaysFillZoom != 0 {
		dst.Export.AlwaysFillZoom = src.Export.AlwaysFillZoom
	}
	if s := strings.TrimSpace(src.Export.OutDir); s != "" {
		dst.Export.OutDir = s
	}
	// server
	if s := strings.TrimSpace(src.Server.Addr); s != "" {
		dst.Server.Addr = s
	}
	if s := strings.TrimSpace(src.Server.DatabaseURL); s != "" {
		dst.Server.DatabaseURL = s
	}
	mergeInt(&dst.Server.TokenTTLMin, src.Server.TokenTTLMin)
	// backend
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	mergeInt(&dst.Backend.TimeoutMs, src.Backend.TimeoutMs)
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := env(EnvTheme); v != "" {
		cfg.General.Theme = strings.ToLower(v)
	}
	if v := env(EnvWorkspace); v != "" {
		cfg.General.Workspace = v
	}
	if v := env(EnvTelemetryOptIn); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	envInt(EnvSyncDebounceMs, &cfg.Editor.SyncDebounceMs)
	envInt(EnvPreviewDebounceMs, &cfg.Editor.PreviewDebounceMs)
	if v := env(EnvDefaultPreset); v != "" {
		cfg.Export.DefaultPreset = strings.ToLower(v)
	}
	if v := env(EnvFit); v != "" {
		cfg.Export.Fit = strings.ToLower(v)
	}
	if v := env(EnvBackground); v != "" {
		cfg.Export.Background = strings.ToLower(v)
	}
	envInt(EnvJPEGQuality, &cfg.Export.JPEGQuality)
	if v := env(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := env(EnvDatabaseURL); v != "" {
		cfg.Server.DatabaseURL = v
	}
	if v := env(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	envInt(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	if v := env(EnvBackendTLSInsec); v != "" {
		cfg.Backend.TLSInsecure = truthy(v)
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := env(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string, dst *int) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

var overrideKeys = map[string]string{
	"general.theme":              EnvTheme,
	"general.workspace":          EnvWorkspace,
	"general.telemetry_opt_in":   EnvTelemetryOptIn,
	"editor.sync_debounce_ms":    EnvSyncDebounceMs,
	"editor.preview_debounce_ms": EnvPreviewDebounceMs,
	"export.default_preset":      EnvDefaultPreset,
	"export.fit":                 EnvFit,
	"export.background":          EnvBackground,
	"export.jpeg_quality":        EnvJPEGQuality,
	"server.addr":                EnvServerAddr,
	"server.database_url":        EnvDatabaseURL,
	"backend.base_url":           EnvBackendURL,
	"backend.timeout_ms":         EnvBackendTimeoutMs,
	"backend.tls_insecure":       EnvBackendTLSInsec,
	"logging.level":              EnvLogLevel,
	"logging.format":             EnvLogFormat,
	"logging.source":             EnvLogSource,
	"logging.file":               EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrideKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

func ms(v, def int) time.Duration {
	if v < 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// SyncDebounce is the coalescing window of synchronizer passes.
func (e EditorConfig) SyncDebounce() time.Duration {
	return ms(e.SyncDebounceMs, Defaults().Editor.SyncDebounceMs)
}

// PreviewDebounce is the delay between the last change and preview regeneration.
func (e EditorConfig) PreviewDebounce() time.Duration {
	return ms(e.PreviewDebounceMs, Defaults().Editor.PreviewDebounceMs)
}

// SurfaceWait bounds how long export and sync wait for the drawing surface.
func (e EditorConfig) SurfaceWait() time.Duration {
	if e.SurfaceWaitMs <= 0 {
		return ms(Defaults().Editor.SurfaceWaitMs, 0)
	}
	return ms(e.SurfaceWaitMs, 0)
}

// EffectiveTimeout returns the backend HTTP client timeout.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return ms(Defaults().Backend.TimeoutMs, 0)
	}
	return ms(b.TimeoutMs, 0)
}

// TokenTTL is the lifetime of tokens issued by the template server.
func (s ServerConfig) TokenTTL() time.Duration {
	if s.TokenTTLMin <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.TokenTTLMin) * time.Minute
}
