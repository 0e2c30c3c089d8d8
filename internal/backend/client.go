/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thumbtory/internal/config"
	"thumbtory/internal/export"
	"thumbtory/internal/storage"
)

// Client talks to the template library API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	b := strings.TrimRight(baseURL, "/")
	return &Client{
		BaseURL: b,
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ClientFromConfig applies the configured base URL, timeout and TLS mode.
func ClientFromConfig(c config.BackendConfig, token string) *Client {
	cl := NewClient(c.BaseURL, token)
	cl.client.Timeout = c.EffectiveTimeout()
	if c.TLSInsecure {
		cl.client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // opt-in for self-signed dev servers
	}
	return cl
}

// StatusError is a non-2xx response. A 404 unwraps to ErrNotFound.
type StatusError struct {
	Method, Path string
	Status       int
	Message      string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("server %s %s: %d", e.Method, e.Path, e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		se := &StatusError{Method: method, Path: u.Path, Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e) == nil {
			se.Message = e.Error
		}
		return nil, se
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// IssueToken asks the server for a bearer token and keeps it on c.
func (c *Client) IssueToken(ctx context.Context, subject string) (TokenResponse, error) {
	var tr TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", map[string]string{"subject": subject}, &tr); err != nil {
		return tr, err
	}
	c.Token = tr.Token
	return tr, nil
}

// Presets lists the server's export presets.
func (c *Client) Presets(ctx context.Context) ([]export.Preset, error) {
	var list []export.Preset
	if err := c.doJSON(ctx, http.MethodGet, "/api/presets", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListTemplates searches shared templates.
func (c *Client) ListTemplates(ctx context.Context, q storage.TemplateQuery) ([]TemplateMeta, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/api/templates"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var list []TemplateMeta
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func templatePath(name string) string { return "/api/templates/" + url.PathEscape(storage.Slug(name)) }

// GetTemplate downloads a shared template.
func (c *Client) GetTemplate(ctx context.Context, name string) (*TemplateEnvelope, error) {
	var env TemplateEnvelope
	if err := c.doJSON(ctx, http.MethodGet, templatePath(name), nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// PutTemplate uploads t under its name.
func (c *Client) PutTemplate(ctx context.Context, t storage.Template) (TemplateMeta, error) {
	var meta TemplateMeta
	err := c.doJSON(ctx, http.MethodPut, templatePath(t.Name), t, &meta)
	return meta, err
}

// DeleteTemplate removes a shared template.
func (c *Client) DeleteTemplate(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, templatePath(name), nil, nil)
}

// Rendered is an image produced by the server.
type Rendered struct {
	Preset      string
	ContentType string
	Size        string
	Shifted     []string
	Data        []byte
}

// Render asks the server to render a stored or inline template for preset.
func (c *Client) Render(ctx context.Context, preset string, req RenderRequest) (*Rendered, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/render/"+url.PathEscape(preset), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	out := &Rendered{
		Preset:      resp.Header.Get("X-Thumbtory-Preset"),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.Header.Get("X-Thumbtory-Size"),
		Data:        data,
	}
	if s := resp.Header.Get("X-Thumbtory-Shifted"); s != "" {
		out.Shifted = strings.Split(s, ",")
	}
	return out, nil
}
