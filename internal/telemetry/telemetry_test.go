/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type sink struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
	srv     *httptest.Server
}

func newSink(t *testing.T) *sink {
	s := &sink{}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		s.mu.Lock()
		s.events = append(s.events, m)
		s.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.crashes = append(s.crashes, b)
		s.mu.Unlock()
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) wait(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ok := cond()
		s.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestEventIsSentWithScalarProps(t *testing.T) {
	s := newSink(t)
	c := New(Config{OptIn: true, EventsURL: s.srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.Event(EventExportBatch, map[string]any{
		"ok": 5, "failed": 1,
		"name":  "overwrite attempt",
		"paths": []string{"/home/me/secret.png"},
	})
	c.Flush(context.Background())
	s.wait(t, func() bool { return len(s.events) == 1 })

	m := s.events[0]
	if m["name"] != EventExportBatch {
		t.Fatalf("name = %v", m["name"])
	}
	if m["ok"] != float64(5) || m["failed"] != float64(1) {
		t.Fatalf("props = %v", m)
	}
	if _, ok := m["paths"]; ok {
		t.Fatalf("non-scalar prop should be dropped")
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
	s.wait(t, func() bool { return c.Sent() == 1 })
}

func TestUploadCrash(t *testing.T) {
	s := newSink(t)
	c := New(Config{OptIn: true, CrashURL: s.srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	c.UploadCrash([]byte("STACKTRACE"))
	s.wait(t, func() bool { return len(s.crashes) == 1 && string(s.crashes[0]) == "STACKTRACE" })
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv("TT_TELEMETRY", "yes")
	t.Setenv(EnvEventsURL, "http://127.0.0.1:0")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMs, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	SetDefault(cfg)
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
	SetDefault(Config{})
	if Enabled() {
		t.Fatalf("default client should be replaced")
	}
}
