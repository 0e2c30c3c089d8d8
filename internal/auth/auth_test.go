/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package auth

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var secret = []byte("0123456789abcdef0123")

func TestShouldRedirect(t *testing.T) {
	u := &User{ID: "ana"}
	cases := []struct {
		g    Gate
		want bool
	}{
		{StaticGate{IsLoading: true}, false},
		{StaticGate{}, true},
		{StaticGate{User: u}, false},
		{StaticGate{User: u, IsLoading: true}, false},
		{LocalUser(""), false},
		{nil, true},
	}
	for i, c := range cases {
		if got := ShouldRedirect(c.g); got != c.want {
			t.Fatalf("case %d: ShouldRedirect = %v, want %v", i, got, c.want)
		}
	}
}

func TestNewAuthorityRejectsWeakSecret(t *testing.T) {
	if _, err := NewAuthority(nil, 0); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := NewAuthority([]byte("short"), 0); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	a, err := NewAuthority(secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, c, err := a.Issue("ana")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := a.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Subject != "ana" || got.ID != c.ID || !got.Expires.Equal(c.Expires) {
		t.Fatalf("claims = %+v, issued %+v", got, c)
	}
	head, _, _ := strings.Cut(tok, ".")
	raw, _ := base64.RawURLEncoding.DecodeString(head)
	if parts := strings.Split(string(raw), "|"); len(parts) != 3 || parts[0] != "ana" {
		t.Fatalf("payload = %q", raw)
	}
	if _, _, err := a.Issue("a|b"); !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("subject with separator should be rejected: %v", err)
	}
}

func TestVerifyRejectsTamperingAndExpiry(t *testing.T) {
	a, _ := NewAuthority(secret, time.Minute)
	tok, _, _ := a.Issue("ana")

	other, _ := NewAuthority([]byte("another-secret-of-length"), time.Minute)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature accepted: %v", err)
	}
	forged := base64.RawURLEncoding.EncodeToString([]byte("root|9999999999|"+"00000000-0000-0000-0000-000000000000")) + tok[strings.Index(tok, "."):]
	if _, err := a.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged payload accepted: %v", err)
	}
	for _, bad := range []string{"", "abc", "abc.", ".sig", "!!.!!"} {
		if _, err := a.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) = %v", bad, err)
		}
	}
	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := a.Verify(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTokenGate(t *testing.T) {
	a, _ := NewAuthority(secret, time.Hour)
	tok, _, _ := a.Issue("ana")
	g := NewTokenGate(a, tok)
	if u, ok := g.CurrentUser(); !ok || u.ID != "ana" {
		t.Fatalf("gate user = %+v %v", u, ok)
	}
	if ShouldRedirect(g) {
		t.Fatalf("valid token should not redirect")
	}
	if !ShouldRedirect(NewTokenGate(a, "garbage")) {
		t.Fatalf("bad token should redirect")
	}
}

func TestMiddleware(t *testing.T) {
	a, _ := NewAuthority(secret, time.Hour)
	tok, _, _ := a.Issue("ana")
	h := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFrom(r.Context())
		if !ok {
			t.Errorf("claims missing in context")
		}
		_, _ = w.Write([]byte(c.Subject))
	}))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do("Bearer " + tok); rec.Code != http.StatusOK || rec.Body.String() != "ana" {
		t.Fatalf("valid token: %d %q", rec.Code, rec.Body.String())
	}
	for _, hdr := range []string{"", "Basic abc", "Bearer nope"} {
		rec := do(hdr)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: status %d", hdr, rec.Code)
		}
		if !strings.Contains(rec.Header().Get("WWW-Authenticate"), "Bearer") {
			t.Fatalf("missing challenge header")
		}
	}
}

func TestMaskToken(t *testing.T) {
	if MaskToken("short") != "****" || MaskToken("abcdefghijkl") != "abcd...ijkl" {
		t.Fatalf("mask mismatch")
	}
}
