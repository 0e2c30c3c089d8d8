/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"thumbtory/internal/config"
)

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv("TT_LOG_LEVEL", "warn")
	t.Setenv("TT_LOG_FORMAT", "json")
	t.Setenv("TT_LOG_SOURCE", "true")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if err := os.Unsetenv("SOME_UNSET_VAR"); err != nil {
		t.Fatalf("Unsetenv error: %v", err)
	}
	if v := getenv("SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestFromConfigWithEnvOverride(t *testing.T) {
	t.Setenv("TT_LOG_LEVEL", "")
	t.Setenv("TT_LOG_FORMAT", "json")
	t.Setenv("TT_LOG_SOURCE", "")
	t.Setenv("TT_LOG_FILE", "")

	opts := FromConfig(config.LoggingConfig{Level: "debug", Format: "console", Source: true, File: "/tmp/tt.log"})
	if opts.Level != "debug" || opts.Format != "json" || !opts.AddSource || opts.File != "/tmp/tt.log" {
		t.Fatalf("FromConfig mismatch: %+v", opts)
	}
}

func TestPrettyTextHandler_Behavior(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")})
	h2 = h2.WithGroup("grp")

	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.Float64("w", 10), slog.Bool("ok", true),
		slog.String("title", "two words"))
	if err := h2.Handle(ctx, r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR", "boom", " k=v", "grp.n=42", "grp.pi=3.14", "grp.w=10", "grp.ok=true", `grp.title="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "grp.k=v") {
		t.Fatalf("attrs added before the group must not be prefixed: %q", out)
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := multiHandler(
		&prettyTextHandler{opts: prettyOpts{Level: slog.LevelDebug}, w: &a},
		&prettyTextHandler{opts: prettyOpts{Level: slog.LevelError}, w: &b},
	)
	l := slog.New(h)
	l.Info("only-first")
	l.Error("both")
	if !strings.Contains(a.String(), "only-first") || !strings.Contains(a.String(), "both") {
		t.Fatalf("first handler output: %q", a.String())
	}
	if strings.Contains(b.String(), "only-first") || !strings.Contains(b.String(), "both") {
		t.Fatalf("second handler output: %q", b.String())
	}
}
