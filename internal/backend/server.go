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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"thumbtory/internal/auth"
	"thumbtory/internal/config"
	"thumbtory/internal/editor"
	"thumbtory/internal/export"
	applog "thumbtory/internal/log"
	"thumbtory/internal/schedule"
	"thumbtory/internal/storage"
	"thumbtory/internal/version"
)

const maxBodyBytes = 8 << 20

// RenderEntry is one server-side render.
type RenderEntry struct {
	Subject  string
	Template string
	Preset   string
	Format   string
	SizeKB   int
}

// RenderRecorder is implemented by stores that keep a render log.
type RenderRecorder interface {
	RecordRender(ctx context.Context, e RenderEntry) error
}

// Server serves the template library API.
type Server struct {
	store    TemplateStore
	auth     *auth.Authority
	renderer *editor.Renderer
	renders  *schedule.Loop // renders run one at a time
	log      *slog.Logger
	// IssueKey, when set, must be sent as X-Thumbtory-Key to obtain a token.
	IssueKey string
}

func NewServer(store TemplateStore, a *auth.Authority, r *editor.Renderer) *Server {
	if r == nil {
		r = &editor.Renderer{}
	}
	if r.Presets == nil {
		r.Presets = export.NewRegistry()
	}
	s := &Server{store: store, auth: a, renderer: r, renders: schedule.NewLoop(0), log: applog.WithComponent("backend")}
	s.renders.Start(context.Background())
	return s
}

// Close stops the render worker. Pending renders fail with
// context.Canceled.
func (s *Server) Close() { s.renders.Stop() }

type renderOut struct {
	res export.Result
	err error
}

// render runs on the render loop and waits for its result.
func (s *Server) render(ctx context.Context, t storage.Template, req export.Request) (export.Result, error) {
	out := make(chan renderOut, 1)
	err := s.renders.Do(ctx, func() {
		res, err := s.renderer.Render(ctx, t.Scene(), req)
		out <- renderOut{res, err}
	})
	if err != nil {
		return export.Result{}, err
	}
	o := <-out
	return o.res, o.err
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("thumbtory " + version.String()))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.StripSlashes)
		r.Post("/auth/token", s.handleToken)
		r.Get("/presets", s.handlePresets)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth))
			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{name}", s.handleGetTemplate)
			r.Put("/templates/{name}", s.handlePutTemplate)
			r.Delete("/templates/{name}", s.handleDeleteTemplate)
			r.Post("/render/{preset}", s.handleRender)
		})
	})
	return r
}

func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			ctx := applog.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			next.ServeHTTP(ww, r.WithContext(ctx))
			l.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", time.Since(start)),
				slog.String("req_id", applog.RequestIDFrom(ctx)))
		})
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// TokenResponse is the body of POST /api/auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.IssueKey != "" && r.Header.Get("X-Thumbtory-Key") != s.IssueKey {
		writeError(w, http.StatusForbidden, errors.New("issue key required"))
		return
	}
	// Optional JSON body: { "subject": "name" }
	var req struct {
		Subject string `json:"subject"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = json.Unmarshal(b, &req)
	if strings.TrimSpace(req.Subject) == "" {
		req.Subject = "dev"
	}
	tok, c, err := s.auth.Issue(req.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: c.Expires.UTC()})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.renderer.Presets.All())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := storage.TemplateQuery{Text: r.URL.Query().Get("q")}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.store.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// TemplateEnvelope is the body of GET /api/templates/{name}.
type TemplateEnvelope struct {
	Meta     TemplateMeta     `json:"meta"`
	Template storage.Template `json:"template"`
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, meta, err := s.store.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TemplateEnvelope{Meta: meta, Template: t})
}

func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	t, err := storage.ParseTemplate(data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if storage.Slug(t.Name) != storage.Slug(name) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("template name %q does not match path %q", t.Name, name))
		return
	}
	now := time.Now().UTC()
	t.SavedAt = &now
	if t.Version == 0 {
		t.Version = storage.TemplateVersion
	}
	owner := ""
	if c, ok := auth.ClaimsFrom(r.Context()); ok {
		owner = c.Subject
	}
	meta, err := s.store.Put(r.Context(), owner, t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenderRequest is the body of POST /api/render/{preset}. Exactly one of
// Template (a stored name) and Inline must be set.
type RenderRequest struct {
	Template   string            `json:"template,omitempty"`
	Inline     *storage.Template `json:"inline,omitempty"`
	Fit        string            `json:"fit,omitempty"`
	Background string            `json:"background,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode render request: %w", err))
		return
	}
	var t storage.Template
	switch {
	case req.Inline != nil && req.Template != "":
		writeError(w, http.StatusBadRequest, errors.New("set either template or inline"))
		return
	case req.Inline != nil:
		raw, err := json.Marshal(req.Inline)
		if err == nil {
			_, err = storage.ParseTemplate(raw)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		t = *req.Inline
	case req.Template != "":
		var err error
		if t, _, err = s.store.Get(r.Context(), req.Template); err != nil {
			s.fail(w, r, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, errors.New("template or inline is required"))
		return
	}

	res, err := s.render(r.Context(), t, export.Request{
		PresetID:   chi.URLParam(r, "preset"),
		Fit:        export.Fit(strings.ToLower(req.Fit)),
		Background: export.BackgroundMode(strings.ToLower(req.Background)),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rec, ok := s.store.(RenderRecorder); ok {
		sub := ""
		if c, ok := auth.ClaimsFrom(r.Context()); ok {
			sub = c.Subject
		}
		e := RenderEntry{Subject: sub, Template: t.Name, Preset: res.Preset.ID, Format: string(res.Format), SizeKB: res.SizeKB}
		if err := rec.RecordRender(r.Context(), e); err != nil {
			s.log.Warn("record render failed", slog.Any("err", err))
		}
	}
	w.Header().Set("Content-Type", res.Format.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Thumbtory-Preset", res.Preset.ID)
	w.Header().Set("X-Thumbtory-Size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	if len(res.Shifted) > 0 {
		w.Header().Set("X-Thumbtory-Shifted", strings.Join(res.Shifted, ","))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var f *export.Failure
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &f):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// Start serves until ctx ends. A configured database URL selects the
// Postgres store; without one templates live in memory.
func Start(ctx context.Context, cfg config.AppConfig, secret string) error {
	l := applog.WithComponent("backend")
	a, err := auth.NewAuthority([]byte(secret), cfg.Server.TokenTTL())
	if err != nil {
		return err
	}
	var store TemplateStore
	if dsn := strings.TrimSpace(cfg.Server.DatabaseURL); dsn != "" {
		pg, err := OpenPG(ctx, dsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := pg.Close(); err != nil {
				l.Warn("db close", slog.Any("err", err))
			}
		}()
		store = pg
	} else {
		l.Warn("no database configured; templates are kept in memory")
		store = NewMemoryStore()
	}

	api := NewServer(store, a, editor.RendererFromConfig(cfg))
	defer api.Close()
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	l.Info("thumbtory server listening", slog.String("addr", cfg.Server.Addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
