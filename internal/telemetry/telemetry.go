/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous usage events and crash reports.
// Only the event names in Known are sent, and only scalar properties.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"thumbtory/internal/config"
	applog "thumbtory/internal/log"
	"thumbtory/internal/version"
)

// Event names.
const (
	EventExportBatch   = "export_batch"
	EventTemplateSaved = "template_saved"
	EventCrash         = "crash"
)

// Known lists the events a client forwards; anything else is dropped.
var Known = map[string]bool{EventExportBatch: true, EventTemplateSaved: true, EventCrash: true}

// Env vars read by FromEnv.
const (
	EnvEventsURL = "TT_TELEMETRY_URL"
	EnvCrashURL  = "TT_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "TT_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "TT_TELEMETRY_DEBUG"
)

// Config controls the client. Without an EventsURL events are dropped even
// when OptIn is set.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

// FromEnv reads TT_TELEMETRY (opt-in) and the TT_TELEMETRY_* endpoints.
func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(config.EnvTelemetryOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

// FromConfig is FromEnv with the opt-in taken from the user config, so the
// preference toggle in the settings file wins over a missing env var.
func FromConfig(g config.GeneralConfig) Config {
	cfg := FromEnv()
	cfg.OptIn = cfg.OptIn || g.TelemetryOptIn
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client sends asynchronously through a bounded queue and never blocks the
// caller; failures are dropped.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	q      chan map[string]any
	sent   atomic.Int64
	once   sync.Once
	closed chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func defaultC() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault replaces the package client (closing the old one).
func SetDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
}

func New(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports opt-in with an events endpoint.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

func Enabled() bool { return defaultC().Enabled() }

// Sent counts events delivered with a 2xx response.
func (c *Client) Sent() int64 { return c.sent.Load() }

// Event queues a known event. Non-scalar properties are dropped.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || !Known[name] {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.Version,
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		switch v.(type) {
		case bool, int, int64, float64, string:
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
	}
	select {
	case c.q <- payload:
	default:
		// queue full
	}
}

func Event(name string, props map[string]any) { defaultC().Event(name, props) }

// Flush waits up to 500ms, or until ctx ends, for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for len(c.q) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func Flush(ctx context.Context) { defaultC().Flush(ctx) }

func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", mustJSON(item), "event")
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "thumbtory/"+version.Version)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.String("what", what), slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && what == "event" {
		c.sent.Add(1)
	}
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.String("what", what), slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report to CrashURL when opted in. It does not
// wait for the upload.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", append([]byte(nil), report...), "crash")
}

func UploadCrash(report []byte) { defaultC().UploadCrash(report) }
