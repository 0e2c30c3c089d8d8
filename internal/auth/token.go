/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoSecret       = errors.New("auth secret is not configured")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrInvalidSubject = errors.New("invalid subject")
)

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 12 * time.Hour

// minSecretLen keeps HMAC keys at 128 bits or more.
const minSecretLen = 16

// Claims are the verified contents of a token.
type Claims struct {
	Subject string
	ID      string
	Expires time.Time
}

// Authority issues and verifies tokens of the form
// base64url(subject|expiry|id) "." base64url(HMAC-SHA256(secret, first part)).
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthority returns an Authority. A ttl <= 0 uses DefaultTTL.
func NewAuthority(secret []byte, ttl time.Duration) (*Authority, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth secret too short: %d bytes, need %d", len(secret), minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authority{secret: append([]byte(nil), secret...), ttl: ttl, now: time.Now}, nil
}

// Issue signs a new token for subject.
func (a *Authority) Issue(subject string) (string, Claims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || strings.Contains(subject, "|") {
		return "", Claims{}, fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	c := Claims{Subject: subject, ID: uuid.NewString(), Expires: a.now().Add(a.ttl).UTC().Truncate(time.Second)}
	payload := c.Subject + "|" + strconv.FormatInt(c.Expires.Unix(), 10) + "|" + c.ID
	head := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return head + "." + base64.RawURLEncoding.EncodeToString(a.sign(head)), c, nil
}

// Verify checks the signature and expiry of token.
func (a *Authority) Verify(token string) (Claims, error) {
	head, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || head == "" || sig == "" {
		return Claims{}, ErrInvalidToken
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, a.sign(head)) {
		return Claims{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(head)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 || parts[0] == "" {
		return Claims{}, ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(parts[2]); err != nil {
		return Claims{}, ErrInvalidToken
	}
	c := Claims{Subject: parts[0], Expires: time.Unix(exp, 0).UTC(), ID: parts[2]}
	if !a.now().Before(c.Expires) {
		return c, ErrExpiredToken
	}
	return c, nil
}

func (a *Authority) sign(head string) []byte {
	m := hmac.New(sha256.New, a.secret)
	m.Write([]byte(head))
	return m.Sum(nil)
}

// MaskToken shortens a token for logs.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// TokenGate adapts a bearer token to a Gate.
type TokenGate struct {
	auth  *Authority
	token string
}

func NewTokenGate(a *Authority, token string) *TokenGate {
	return &TokenGate{auth: a, token: token}
}

func (g *TokenGate) CurrentUser() (User, bool) {
	if g == nil || g.auth == nil || g.token == "" {
		return User{}, false
	}
	c, err := g.auth.Verify(g.token)
	if err != nil {
		return User{}, false
	}
	return User{ID: c.Subject, Name: c.Subject}, true
}

func (g *TokenGate) Loading() bool { return false }
